package transport

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FuncTransport adapts an open function into a Transport.
type FuncTransport func(ctx context.Context, ep Endpoint) (Conn, error)

func (f FuncTransport) Open(ctx context.Context, ep Endpoint) (Conn, error) {
	return f(ctx, ep)
}

// FuncConn adapts exec/close functions into a Conn for tests and dry runs.
type FuncConn struct {
	ExecFn  func(ctx context.Context, command string) (Result, error)
	CloseFn func() error
}

func (c *FuncConn) Exec(ctx context.Context, command string) (Result, error) {
	if c.ExecFn == nil {
		return Result{}, ErrConnBroken
	}
	return c.ExecFn(ctx, command)
}

func (c *FuncConn) Close() error {
	if c.CloseFn == nil {
		return nil
	}
	return c.CloseFn()
}

// Simulated is an in-memory Transport that behaves like a healthy host
// which reboots after a fixed number of commands. It backs the CLI mock
// mode so the full recovery path can be exercised with no remote host.
type Simulated struct {
	mu          sync.Mutex
	bootQuery   string
	rebootAfter int
	runs        int
	bootTime    time.Time
	opens       int
}

func NewSimulated(bootQuery string, rebootAfter int) *Simulated {
	return &Simulated{
		bootQuery:   bootQuery,
		rebootAfter: rebootAfter,
		bootTime:    time.Now().Add(-90 * time.Minute).Truncate(time.Second),
	}
}

func (s *Simulated) Open(ctx context.Context, ep Endpoint) (Conn, error) {
	s.mu.Lock()
	s.opens++
	s.mu.Unlock()
	return &FuncConn{ExecFn: s.exec}, nil
}

// OpenCalls reports how many connections were opened so far.
func (s *Simulated) OpenCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func (s *Simulated) exec(ctx context.Context, command string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if command == s.bootQuery {
		return Result{Stdout: s.bootTime.Format("2006-01-02 15:04:05") + "\n"}, nil
	}

	s.runs++
	if s.rebootAfter > 0 && s.runs == s.rebootAfter {
		s.bootTime = time.Now().Truncate(time.Second)
		return Result{}, fmt.Errorf("%w: simulated reboot", ErrConnBroken)
	}
	return Result{Stdout: fmt.Sprintf("simulated: %s\n", command)}, nil
}
