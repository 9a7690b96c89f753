package http

import (
	"net/http"
	"testing"
	"time"
)

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		timeout time.Duration
		want    time.Duration
	}{
		{"explicit timeout", 7 * time.Second, 7 * time.Second},
		{"zero uses default", 0, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewHTTPClient(tt.timeout)
			if c.Timeout != tt.want {
				t.Errorf("expected timeout %v, got %v", tt.want, c.Timeout)
			}
			tr, ok := c.Transport.(*http.Transport)
			if !ok {
				t.Fatalf("expected *http.Transport, got %T", c.Transport)
			}
			if tr.MaxIdleConnsPerHost != 32 {
				t.Errorf("expected MaxIdleConnsPerHost 32, got %d", tr.MaxIdleConnsPerHost)
			}
			if tr.ResponseHeaderTimeout != tt.want {
				t.Errorf("expected ResponseHeaderTimeout %v, got %v", tt.want, tr.ResponseHeaderTimeout)
			}
		})
	}
}
