package http

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AlibekovAA/safecheck/internal/common/config"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
	userdomain "github.com/AlibekovAA/safecheck/internal/user/domain"
)

func TestStatusStream_OfferKeepsNewest(t *testing.T) {
	s := newStatusStream(nil, time.Now, streamSettings{}, logger.NewWriter(io.Discard, "test", "error"))

	s.offer(userdomain.User{Version: 1})
	s.offer(userdomain.User{Version: 3})
	s.offer(userdomain.User{Version: 2})

	select {
	case got := <-s.pending:
		if got.Version != 3 {
			t.Fatalf("pending version = %d, want 3", got.Version)
		}
	default:
		t.Fatal("expected a pending snapshot")
	}

	select {
	case extra := <-s.pending:
		t.Fatalf("unexpected second snapshot version %d", extra.Version)
	default:
	}
}

func TestStatusStream_OfferAfterCloseIsDropped(t *testing.T) {
	s := newStatusStream(nil, time.Now, streamSettings{}, logger.NewWriter(io.Discard, "test", "error"))
	s.close(reasonClientClosed)
	s.close(reasonReadError)

	s.offer(userdomain.User{Version: 1})

	if len(s.pending) != 0 {
		t.Fatal("offer after close should not enqueue")
	}
	if s.reason != reasonClientClosed {
		t.Errorf("reason = %q, want %q", s.reason, reasonClientClosed)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		host    string
		origin  string
		want    bool
	}{
		{name: "no origin header", host: "safecheck.local", want: true},
		{name: "same host", host: "safecheck.local:8080", origin: "http://safecheck.local:8080", want: true},
		{name: "other host", host: "safecheck.local:8080", origin: "http://evil.example", want: false},
		{name: "listed origin", allowed: []string{"https://app.example/"}, host: "api.example", origin: "https://APP.example", want: true},
		{name: "unlisted origin", allowed: []string{"https://app.example"}, host: "api.example", origin: "https://api.example", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ws/status/elderly1", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(req); got != tt.want {
				t.Errorf("originChecker() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewStreamSettings_Defaults(t *testing.T) {
	s := newStreamSettings(config.ServerConfig{WebSocketPongWait: 10 * time.Second, WebSocketPingPeriod: 20 * time.Second})

	if s.writeWait <= 0 {
		t.Errorf("writeWait = %v, want default", s.writeWait)
	}
	if s.pingPeriod != 9*time.Second {
		t.Errorf("pingPeriod = %v, want 9s", s.pingPeriod)
	}
}
