// Package probe answers whether an endpoint is reachable at the network
// level, independent of any session state.
package probe

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/danmuck/tetherctl/internal/transport"
)

// Prober reports endpoint reachability. Implementations must treat
// "no response within the timeout" as unreachable, never as an error.
type Prober interface {
	Probe(ctx context.Context, ep transport.Endpoint) bool
}

// Func adapts a function into a Prober.
type Func func(ctx context.Context, ep transport.Endpoint) bool

func (f Func) Probe(ctx context.Context, ep transport.Endpoint) bool {
	return f(ctx, ep)
}

// TCP probes reachability by dialing the endpoint's transport port with a
// bounded timeout. A refused connection still proves the host is up; only
// timeouts and routing failures count as unreachable.
type TCP struct {
	Timeout time.Duration
}

func NewTCP(timeout time.Duration) TCP {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return TCP{Timeout: timeout}
}

func (p TCP) Probe(ctx context.Context, ep transport.Endpoint) bool {
	dialer := net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", ep.Addr())
	if err == nil {
		_ = conn.Close()
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return false
}
