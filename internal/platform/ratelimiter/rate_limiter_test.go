package ratelimiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// TestRateLimiter_Allow はバースト分だけ許可し、キーごとに独立して制限することを検証します。
func TestRateLimiter_Allow(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 2)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "other clients are independent")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"), "token refilled after one second")
}

func TestRateLimiter_Disabled(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("a"))
	}
}

// TestRateLimiter_EvictsIdleClients は一定時間使われないクライアントが破棄されることを検証します。
func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(idleTTL + time.Second)
	rl.Allow("b")

	assert.Len(t, rl.clients, 1)
	_, ok := rl.clients["b"]
	assert.True(t, ok)
}

// TestRateLimiter_SweepInterval は掃除がidleTTLごとに1回だけ行われることを検証します。
func TestRateLimiter_SweepInterval(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 1)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	rl.now = func() time.Time { return now }

	steps := []struct {
		name     string
		at       time.Duration
		key      string
		wantKeys []string
	}{
		{name: "first call sweeps an empty map", at: 0, key: "a", wantKeys: []string{"a"}},
		{name: "sweep at idleTTL keeps a", at: idleTTL, key: "b", wantKeys: []string{"a", "b"}},
		{name: "idle a survives until next sweep", at: idleTTL + 2*time.Second, key: "c", wantKeys: []string{"a", "b", "c"}},
		{name: "next sweep evicts a", at: 2 * idleTTL, key: "d", wantKeys: []string{"b", "c", "d"}},
	}

	for _, st := range steps {
		now = start.Add(st.at)
		rl.Allow(st.key)

		keys := make([]string, 0, len(rl.clients))
		for k := range rl.clients {
			keys = append(keys, k)
		}
		assert.ElementsMatch(t, st.wantKeys, keys, st.name)
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(0.001, 1)
	r := gin.New()
	r.POST("/x", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
