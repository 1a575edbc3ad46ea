package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestHTTPProbeReadyWithPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","connections":12}`))
	}))
	defer srv.Close()

	p := &HTTPProbe{URL: srv.URL}
	res, err := p.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Ready {
		t.Fatalf("expected ready, got %+v", res)
	}
	if res.Detail != "HTTP 200" {
		t.Fatalf("detail: %q", res.Detail)
	}
	if res.Payload["status"] != "ok" {
		t.Fatalf("payload not parsed: %+v", res.Payload)
	}
}

func TestHTTPProbeNotReadyOn503(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "warming up", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := &HTTPProbe{URL: srv.URL}
	res, err := p.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Ready {
		t.Fatal("503 must not be ready")
	}
	if res.Detail != "HTTP 503" {
		t.Fatalf("detail: %q", res.Detail)
	}
}

func TestHTTPProbeRefusedIsNotReady(t *testing.T) {
	// Nothing listens here; refusal is a completed not-ready poll,
	// same as TCPProbe.
	p := &HTTPProbe{URL: "http://127.0.0.1:1", Timeout: 500 * time.Millisecond}
	res, err := p.Check(context.Background())
	if err != nil {
		t.Fatalf("refusal must not be a transport error: %v", err)
	}
	if res.Ready {
		t.Fatal("refusal must not be ready")
	}
	if res.Detail == "" {
		t.Fatal("refusal detail missing")
	}
}

func TestHTTPProbeDNSFailureIsTransportError(t *testing.T) {
	p := &HTTPProbe{URL: "http://readyup-no-such-host.invalid/healthz", Timeout: 2 * time.Second}
	if _, err := p.Check(context.Background()); err == nil {
		t.Fatal("unresolvable host must be a transport error")
	}
}

func TestHTTPProbeReadyAfterLateBind(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	p := &HTTPProbe{URL: "http://" + addr + "/healthz", Timeout: 500 * time.Millisecond}
	res, err := p.Check(context.Background())
	if err != nil || res.Ready {
		t.Fatalf("pre-listen poll: %+v err=%v", res, err)
	}

	ln, err = net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})}
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Close() }()

	res, err = p.Check(context.Background())
	if err != nil || !res.Ready {
		t.Fatalf("post-listen poll: %+v err=%v", res, err)
	}
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	p := &TCPProbe{Address: ln.Addr().String()}
	res, err := p.Check(context.Background())
	if err != nil || !res.Ready {
		t.Fatalf("expected ready, got %+v err=%v", res, err)
	}

	// Refused connection is a completed not-ready poll, not an error.
	p = &TCPProbe{Address: "127.0.0.1:1", Timeout: 500 * time.Millisecond}
	res, err = p.Check(context.Background())
	if err != nil {
		t.Fatalf("refusal must not be a transport error: %v", err)
	}
	if res.Ready {
		t.Fatal("refusal must not be ready")
	}
}

func TestTCPProbeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &TCPProbe{Address: "127.0.0.1:1"}
	if _, err := p.Check(ctx); err == nil {
		t.Fatal("cancelled context must surface as error")
	}
}

func TestCommandProbe(t *testing.T) {
	requireUnix(t)
	p := &CommandProbe{Command: "true"}
	res, err := p.Check(context.Background())
	if err != nil || !res.Ready {
		t.Fatalf("exit 0 should be ready, got %+v err=%v", res, err)
	}

	p = &CommandProbe{Command: "false"}
	res, err = p.Check(context.Background())
	if err != nil {
		t.Fatalf("non-zero exit is not a transport error: %v", err)
	}
	if res.Ready {
		t.Fatal("exit 1 must not be ready")
	}

	p = &CommandProbe{Command: "/definitely/not/here"}
	if _, err := p.Check(context.Background()); err == nil {
		t.Fatal("spawn failure must be a transport error")
	}
}

func TestCommandProbeEnvAndShell(t *testing.T) {
	requireUnix(t)
	p := &CommandProbe{Command: `test "$PROBE_FLAG" = on`, Env: []string{"PROBE_FLAG=on"}}
	res, err := p.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Ready {
		t.Fatalf("env not propagated: %+v", res)
	}
}
