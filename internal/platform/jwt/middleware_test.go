package jwtmw

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// TestMain はテスト実行前にGinをテストモードに設定します。
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const (
	testSecret = "test-secret-key"
	testIssuer = "wheatleaf"
)

func run(t *testing.T, mw gin.HandlerFunc, authHeader string) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		c.Request.Header.Set("Authorization", authHeader)
	}
	mw(c)
	return w, c
}

// TestAuthRequired_MissingBearerToken はBearerトークンがない場合やプレフィックスが不正な場合に401が返されることを検証します。
func TestAuthRequired_MissingBearerToken(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
	}{
		{"no header", ""},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"bearer lowercase", "bearer token123"},
		{"no space after Bearer", "Bearertoken123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, c := run(t, AuthRequired(testSecret, testIssuer, ScopeHistoryRead), tt.authHeader)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
			}
			if !c.IsAborted() {
				t.Error("expected request to be aborted")
			}
		})
	}
}

// TestAuthRequired_MissingJWTSecret はシークレットが未設定の場合に500が返されることを検証します。
func TestAuthRequired_MissingJWTSecret(t *testing.T) {
	w, _ := run(t, AuthRequired("", testIssuer, ScopeHistoryRead), "Bearer sometoken")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

// TestAuthRequired_InvalidToken は不正なトークン（改ざん・期限切れ等）で401が返されることを検証します。
func TestAuthRequired_InvalidToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"malformed token", "not.a.valid.token"},
		{"random string", "randomstring"},
		{"wrong secret", createToken("wrong-secret", testIssuer, ScopeHistoryRead, time.Hour)},
		{"expired token", createToken(testSecret, testIssuer, ScopeHistoryRead, -time.Hour)},
		{"wrong issuer", createToken(testSecret, "someone-else", ScopeHistoryRead, time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := run(t, AuthRequired(testSecret, testIssuer, ScopeHistoryRead), "Bearer "+tt.token)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
			}
		})
	}
}

// TestAuthRequired_InsufficientScope はスコープが不足している場合に403が返されることを検証します。
func TestAuthRequired_InsufficientScope(t *testing.T) {
	token := createToken(testSecret, testIssuer, "labels:read", time.Hour)
	w, c := run(t, AuthRequired(testSecret, testIssuer, ScopeHistoryRead), "Bearer "+token)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, w.Code)
	}
	if !c.IsAborted() {
		t.Error("expected request to be aborted")
	}
}

// TestAuthRequired_ValidToken は有効なトークンでリクエストが通過し、コンテキストにサブジェクトが設定されることを検証します。
func TestAuthRequired_ValidToken(t *testing.T) {
	tests := []struct {
		name  string
		scope string
	}{
		{"exact scope", ScopeHistoryRead},
		{"scope in list", "labels:read " + ScopeHistoryRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewGenerator(testSecret, testIssuer, time.Hour)
			token, err := gen.GenerateToken("agronomist", tt.scope)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			w, c := run(t, AuthRequired(testSecret, testIssuer, ScopeHistoryRead), "Bearer "+token)

			if c.IsAborted() {
				t.Errorf("expected request not to be aborted, response: %s", w.Body.String())
				return
			}
			sub, exists := c.Get(ContextSubject)
			if !exists {
				t.Error("expected subject to be set in context")
				return
			}
			if sub.(string) != "agronomist" {
				t.Errorf("expected subject agronomist, got %v", sub)
			}
		})
	}
}

// TestAuthRequired_InvalidSigningMethod はnoneアルゴリズム（未署名）のトークンが拒否されることを検証します。
func TestAuthRequired_InvalidSigningMethod(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":   "ops",
		"iss":   testIssuer,
		"scope": ScopeHistoryRead,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	tokenStr, _ := token.SignedString(jwt.UnsafeAllowNoneSignatureType)

	w, _ := run(t, AuthRequired(testSecret, testIssuer, ScopeHistoryRead), "Bearer "+tokenStr)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

// createToken はテスト用に指定されたシークレット・発行者・スコープで署名済みJWTトークンを生成します。
func createToken(secret, issuer, scope string, expiration time.Duration) string {
	claims := jwt.MapClaims{
		"sub":   "ops",
		"iss":   issuer,
		"scope": scope,
		"exp":   time.Now().Add(expiration).Unix(),
		"iat":   time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, _ := token.SignedString([]byte(secret))
	return signed
}
