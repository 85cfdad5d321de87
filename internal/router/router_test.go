package router

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/contactrelay/contactrelay/internal/config"
	"github.com/contactrelay/contactrelay/internal/contact"
	"github.com/contactrelay/contactrelay/internal/handler"
	"github.com/contactrelay/contactrelay/internal/logger"
	"github.com/contactrelay/contactrelay/internal/middleware"
	"github.com/contactrelay/contactrelay/internal/model"
	"github.com/contactrelay/contactrelay/internal/ratelimit"
)

type countingMailer struct {
	calls int
}

func (m *countingMailer) Send(context.Context, model.OutboundMessage) error {
	m.calls++
	return nil
}

func newTestRouter(t *testing.T, trustedProxies ...string) (http.Handler, *countingMailer) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.TrustedProxies = trustedProxies
	cfg.App.Name = "Relay"
	cfg.App.Version = "1.0.0"
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.RateLimit.Enabled = true

	log := logger.Nop()
	mailer := &countingMailer{}
	h := handler.New(log, cfg,
		contact.NewDecoder(0, nil),
		contact.NewComposer("Site", "Tag", "Default"),
		mailer,
	)
	mw := middleware.New(ratelimit.New(6, time.Minute), log, cfg)
	return New(h, mw, cfg), mailer
}

func TestRouter_Routes(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/_test_page", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodGet, "/send-email", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		if w.Code != tt.status {
			t.Errorf("%s %s: got %d, want %d", tt.method, tt.path, w.Code, tt.status)
		}
		if w.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s %s: missing X-Request-ID", tt.method, tt.path)
		}
	}
}

func TestRouter_RateLimitsSendEmailOnly(t *testing.T) {
	t.Parallel()
	r, mailer := newTestRouter(t)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/send-email", strings.NewReader(`{"name":"Ann","email":"a@b.com","message":"Hi"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "198.51.100.4:5000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	for i := 1; i <= 6; i++ {
		if code := send(); code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, code)
		}
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("request 7: got %d, want 429", code)
	}
	if mailer.calls != 6 {
		t.Errorf("mailer calls: got %d, want 6", mailer.calls)
	}

	// Other routes stay reachable for the same client.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "198.51.100.4:5000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("health after limit: got %d", w.Code)
	}
}

func TestRouter_SpoofedForwardedForStillLimited(t *testing.T) {
	t.Parallel()
	r, mailer := newTestRouter(t)

	send := func(i int) int {
		req := httptest.NewRequest(http.MethodPost, "/send-email", strings.NewReader(`{"name":"Ann","email":"a@b.com","message":"Hi"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		req.RemoteAddr = "198.51.100.4:5000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	for i := 1; i <= 6; i++ {
		if code := send(i); code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, code)
		}
	}
	if code := send(7); code != http.StatusTooManyRequests {
		t.Fatalf("request 7 with a fresh X-Forwarded-For: got %d, want 429", code)
	}
	if mailer.calls != 6 {
		t.Errorf("mailer calls: got %d, want 6", mailer.calls)
	}
}

func TestRouter_TrustedProxyForwardsClientIP(t *testing.T) {
	t.Parallel()
	r, mailer := newTestRouter(t, "10.0.0.0/8")

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodPost, "/send-email", strings.NewReader(`{"name":"Ann","email":"a@b.com","message":"Hi"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", client)
		req.RemoteAddr = "10.0.0.2:443"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	for i := 1; i <= 6; i++ {
		if code := send("198.51.100.1"); code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, code)
		}
	}
	if code := send("198.51.100.1"); code != http.StatusTooManyRequests {
		t.Fatalf("request 7: got %d, want 429", code)
	}
	// A different client behind the same proxy has its own window.
	if code := send("198.51.100.2"); code != http.StatusOK {
		t.Errorf("second client: got %d, want 200", code)
	}
	if mailer.calls != 7 {
		t.Errorf("mailer calls: got %d, want 7", mailer.calls)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/send-email", nil)
	req.Header.Set("Origin", "https://fans.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status: got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("allow origin: got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}
