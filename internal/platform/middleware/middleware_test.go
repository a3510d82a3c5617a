package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func run(mw echo.MiddlewareFunc, req *http.Request, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := mw(handler)(c)
	return rec, err
}

func okHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func TestRequestID_Generated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec, err := run(RequestID(), req, okHandler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Error("no request ID in response")
	}
}

func TestRequestID_Honored(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "client-supplied-id")

	rec, err := run(RequestID(), req, okHandler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get(HeaderRequestID); got != "client-supplied-id" {
		t.Errorf("request ID = %q, want client-supplied-id", got)
	}
}

func TestRecovery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := run(Recovery(zerolog.Nop()), req, func(c echo.Context) error {
		panic("boom")
	})

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusInternalServerError {
		t.Errorf("err = %v, want 500 HTTPError", err)
	}
}

func TestSecurityHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec, err := run(SecurityHeaders(), req, okHandler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
		"Referrer-Policy":        "no-referrer",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}

func TestBodyLimit(t *testing.T) {
	mw := BodyLimit("1K")

	t.Run("under limit", func(t *testing.T) {
		body := strings.NewReader(strings.Repeat("a", 512))
		req := httptest.NewRequest(http.MethodPost, "/", body)
		_, err := run(mw, req, func(c echo.Context) error {
			if _, err := c.Request().Body.Read(make([]byte, 1024)); err != nil && err.Error() != "EOF" {
				return err
			}
			return c.NoContent(http.StatusOK)
		})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("content-length over limit", func(t *testing.T) {
		body := strings.NewReader(strings.Repeat("a", 2048))
		req := httptest.NewRequest(http.MethodPost, "/", body)
		_, err := run(mw, req, okHandler)

		var he *echo.HTTPError
		if !errors.As(err, &he) || he.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("err = %v, want 413", err)
		}
	})
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1K", 1 << 10},
		{"2M", 2 << 20},
		{"1G", 1 << 30},
		{"512", 512},
		{"", 1 << 20},
		{"junk", 1 << 20},
	}
	for _, tt := range tests {
		if got := parseLimit(tt.in); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})

	status := func() int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec, err := run(mw, req, okHandler)
		if err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				return he.Code
			}
			return http.StatusInternalServerError
		}
		return rec.Code
	}

	if got := status(); got != http.StatusOK {
		t.Fatalf("first request: %d", got)
	}
	if got := status(); got != http.StatusOK {
		t.Fatalf("second request within burst: %d", got)
	}
	if got := status(); got != http.StatusTooManyRequests {
		t.Errorf("burst exhausted: %d, want 429", got)
	}
}

func TestRateLimit_KeyedByPrincipal(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 0.01, BurstSize: 1})

	// Mirrors the registration order in the server: authentication has
	// already stashed principal_id by the time the limiter runs.
	status := func(principalID string) int {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set("principal_id", principalID)
		if err := mw(okHandler)(c); err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				return he.Code
			}
			return http.StatusInternalServerError
		}
		return rec.Code
	}

	if got := status("principal-a"); got != http.StatusOK {
		t.Fatalf("first principal: %d, want 200", got)
	}
	if got := status("principal-b"); got != http.StatusOK {
		t.Fatalf("second principal behind the same IP: %d, want 200", got)
	}
	if got := status("principal-a"); got != http.StatusTooManyRequests {
		t.Errorf("repeat request from first principal: %d, want 429", got)
	}
}

func TestRequestTimeout(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := run(RequestTimeout(20*time.Millisecond), req, func(c echo.Context) error {
		select {
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		case <-time.After(time.Second):
			return c.NoContent(http.StatusOK)
		}
	})

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusGatewayTimeout {
		t.Errorf("err = %v, want 504", err)
	}
}
