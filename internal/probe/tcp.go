package probe

import (
	"context"
	"net"
	"time"
)

// TCPProbe checks readiness by connect-and-close against host:port.
// A refused or timed-out connection is a completed not-ready poll, not
// a transport error: before the target listens, refusal is the expected
// answer.
type TCPProbe struct {
	Address string
	Timeout time.Duration
}

func (p *TCPProbe) Check(ctx context.Context) (Result, error) {
	t := p.Timeout
	if t <= 0 {
		t = DefaultTimeout
	}
	d := net.Dialer{Timeout: t}
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{Ready: false, Detail: err.Error()}, nil
	}
	_ = conn.Close()
	return Result{Ready: true, Detail: "connected"}, nil
}

func (p *TCPProbe) Describe() string { return "tcp:" + p.Address }
