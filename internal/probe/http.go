package probe

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// DefaultTimeout bounds a single probe call so a hung target cannot
// stall the poll loop past the configured budget.
const DefaultTimeout = 2 * time.Second

// HTTPProbe issues GET requests against a health-style endpoint.
// Any 2xx status is ready. A JSON object body, when present, is parsed
// into Result.Payload. A refused or timed-out connection is a completed
// not-ready poll, same as TCPProbe: before the target listens, refusal
// is the expected answer.
type HTTPProbe struct {
	URL     string
	Timeout time.Duration
	// TLS overrides the client TLS configuration for https targets
	// (custom CA, skip-verify). Nil uses the default verifier.
	TLS *tls.Config

	client *http.Client
}

const maxHealthBody = 64 * 1024

func (p *HTTPProbe) httpClient() *http.Client {
	if p.client != nil {
		return p.client
	}
	t := p.Timeout
	if t <= 0 {
		t = DefaultTimeout
	}
	transport := http.DefaultTransport
	if p.TLS != nil {
		transport = &http.Transport{TLSClientConfig: p.TLS}
	}
	p.client = &http.Client{Timeout: t, Transport: transport}
	return p.client
}

func (p *HTTPProbe) Check(ctx context.Context) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if isConnFailure(err) {
			return Result{Ready: false, Detail: err.Error()}, nil
		}
		return Result{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	res := Result{Detail: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxHealthBody))
	var payload map[string]any
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		res.Payload = payload
	}
	res.Ready = resp.StatusCode >= 200 && resp.StatusCode < 300
	return res, nil
}

func (p *HTTPProbe) Describe() string { return "http:" + p.URL }

// isConnFailure reports errors that mean the target is not accepting
// connections yet: refusal before listen, reset, or a connect timeout.
// Anything else (DNS resolution, a broken proxy) stays a transport
// error so a clearly wrong probe path can escalate.
func isConnFailure(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
