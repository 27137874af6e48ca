package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/config"
)

func TestNewHTTPServiceAppliesServerTimeouts(t *testing.T) {
	svc := NewHTTPService(config.ServerConfig{
		Host:                     "127.0.0.1",
		Port:                     "9090",
		ReadHeaderTimeoutSeconds: 5,
		ReadTimeoutSeconds:       15,
		WriteTimeoutSeconds:      30,
	}, http.NotFoundHandler())

	if svc.server.Addr != "127.0.0.1:9090" {
		t.Fatalf("unexpected addr %s", svc.server.Addr)
	}
	if svc.server.ReadHeaderTimeout != 5*time.Second || svc.server.ReadTimeout != 15*time.Second || svc.server.WriteTimeout != 30*time.Second {
		t.Fatalf("timeouts not applied: %+v", svc.server)
	}
	if svc.server.IdleTimeout != 0 {
		t.Fatalf("unset idle timeout should stay zero, got %s", svc.server.IdleTimeout)
	}
}

func TestHTTPServiceServeAndStop(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	svc := NewHTTPService(config.ServerConfig{ReadHeaderTimeoutSeconds: 1}, handler)

	done := make(chan error, 1)
	go func() { done <- svc.Serve(listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("unexpected body %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("graceful shutdown should return nil, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("serve did not return after stop")
	}
}

func TestHTTPServiceStartReportsListenError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer busy.Close()
	_, port, _ := net.SplitHostPort(busy.Addr().String())

	svc := NewHTTPService(config.ServerConfig{Host: "127.0.0.1", Port: port}, http.NotFoundHandler())
	if err := svc.Start(context.Background()); err == nil {
		t.Fatalf("port in use should fail start")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]string{
		"":       ModeAll,
		" API ":  ModeAPI,
		"worker": ModeWorker,
		"all":    ModeAll,
	}
	for raw, want := range cases {
		got, err := ParseMode(raw)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParseMode("cron"); err == nil {
		t.Fatalf("unknown mode should fail")
	}
}

func TestNormalizeOptionsShutdownTimeout(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{ShutdownTimeoutSeconds: 25}}

	opts, err := normalizeOptions(Options{Config: cfg})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if opts.ShutdownTimeout != 25*time.Second || opts.Mode != ModeAll || opts.Logger == nil {
		t.Fatalf("unexpected options: %+v", opts)
	}

	opts, err = normalizeOptions(Options{Config: cfg, ShutdownTimeout: 3 * time.Second})
	if err != nil || opts.ShutdownTimeout != 3*time.Second {
		t.Fatalf("explicit timeout should win: %+v err=%v", opts, err)
	}

	opts, err = normalizeOptions(Options{})
	if err != nil || opts.ShutdownTimeout != defaultShutdownTimeout {
		t.Fatalf("missing config should use default: %+v err=%v", opts, err)
	}

	if err := Run(Options{Config: cfg, Mode: "scheduler"}); err == nil {
		t.Fatalf("unknown mode should fail before building services")
	}
}
