package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/tetherctl/internal/testutil/testlog"
	"github.com/danmuck/tetherctl/internal/transport"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterStaysNonDecreasingAndCapped(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     2 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := NextBackoffDelay(cfg, attempt, rng)
		if d < prev {
			t.Fatalf("attempt %d decreased: prev=%v got=%v", attempt, prev, d)
		}
		if d > cfg.MaxDelay {
			t.Fatalf("attempt %d above cap: %v", attempt, d)
		}
		prev = d
	}
}

func TestBootTokenEqualSameRaw(t *testing.T) {
	testlog.Start(t)
	a := BootToken{Raw: "12345", ObservedAt: time.Now()}
	b := BootToken{Raw: "12345", ObservedAt: time.Now().Add(time.Minute)}
	if !a.Equal(b, 2*time.Second) {
		t.Fatalf("identical raw tokens must match")
	}
}

func TestBootTokenUptimeResetDetected(t *testing.T) {
	testlog.Start(t)
	now := time.Now()
	prior := BootToken{Raw: "94212", ObservedAt: now.Add(-time.Minute)}
	fresh := BootToken{Raw: "8", ObservedAt: now}
	if prior.Equal(fresh, 2*time.Second) {
		t.Fatalf("uptime reset must read as a different boot")
	}
}

func TestBootTokenTimestampWithinTolerance(t *testing.T) {
	testlog.Start(t)
	a := BootToken{Raw: "2025-06-12 10:30:00", ObservedAt: time.Now()}
	b := BootToken{Raw: "2025-06-12 10:30:01", ObservedAt: time.Now()}
	if !a.Equal(b, 2*time.Second) {
		t.Fatalf("timestamps within tolerance must match")
	}
	c := BootToken{Raw: "2025-06-12 10:31:00", ObservedAt: time.Now()}
	if a.Equal(c, 2*time.Second) {
		t.Fatalf("timestamps beyond tolerance must differ")
	}
}

func TestBootTokenOpaqueStringsCompareExactly(t *testing.T) {
	testlog.Start(t)
	a := BootToken{Raw: "b9c4a1de-0000-4fd1-9c8e-1f2a3b4c5d6e", ObservedAt: time.Now()}
	b := BootToken{Raw: "b9c4a1de-ffff-4fd1-9c8e-1f2a3b4c5d6e", ObservedAt: time.Now()}
	if a.Equal(b, time.Hour) {
		t.Fatalf("different boot ids must not match regardless of tolerance")
	}
	if a.Equal(BootToken{}, time.Hour) {
		t.Fatalf("zero token never matches")
	}
}

func scriptedTransport(conn *transport.FuncConn) transport.Transport {
	return transport.FuncTransport(func(ctx context.Context, ep transport.Endpoint) (transport.Conn, error) {
		return conn, nil
	})
}

func TestSessionRunAndGenerations(t *testing.T) {
	testlog.Start(t)
	conn := &transport.FuncConn{
		ExecFn: func(ctx context.Context, command string) (transport.Result, error) {
			return transport.Result{ExitCode: 3, Stdout: "out", Stderr: "err"}, nil
		},
	}
	tr := scriptedTransport(conn)
	ep := transport.Endpoint{Host: "host"}

	first, err := Open(context.Background(), tr, ep, DefaultConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, err := Open(context.Background(), tr, ep, DefaultConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if second.Generation() <= first.Generation() {
		t.Fatalf("generations must increase: %d then %d", first.Generation(), second.Generation())
	}

	res, err := first.Run(context.Background(), "false")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 3 || res.Stdout != "out" || res.Stderr != "err" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	testlog.Start(t)
	closes := 0
	conn := &transport.FuncConn{
		CloseFn: func() error {
			closes++
			return nil
		},
	}
	s, err := Open(context.Background(), scriptedTransport(conn), transport.Endpoint{Host: "host"}, DefaultConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if closes != 1 {
		t.Fatalf("underlying close called %d times", closes)
	}
	if _, err := s.Run(context.Background(), "true"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("run on closed session: %v", err)
	}
}

func TestSessionExitStatus255IsBrokenConn(t *testing.T) {
	testlog.Start(t)
	conn := &transport.FuncConn{
		ExecFn: func(ctx context.Context, command string) (transport.Result, error) {
			return transport.Result{ExitCode: 255}, nil
		},
	}
	s, err := Open(context.Background(), scriptedTransport(conn), transport.Endpoint{Host: "host"}, DefaultConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Run(context.Background(), "true"); !errors.Is(err, transport.ErrConnBroken) {
		t.Fatalf("expected broken conn, got %v", err)
	}
}

func TestSessionBootToken(t *testing.T) {
	testlog.Start(t)
	conn := &transport.FuncConn{
		ExecFn: func(ctx context.Context, command string) (transport.Result, error) {
			if command != "uptime -s" {
				return transport.Result{}, fmt.Errorf("unexpected command %q", command)
			}
			return transport.Result{Stdout: "2025-06-12 10:30:00\n"}, nil
		},
	}
	s, err := Open(context.Background(), scriptedTransport(conn), transport.Endpoint{Host: "host"}, DefaultConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	token, err := s.BootToken(context.Background())
	if err != nil {
		t.Fatalf("boot token: %v", err)
	}
	if token.Raw != "2025-06-12 10:30:00" {
		t.Fatalf("unexpected token: %q", token.Raw)
	}
}

func TestSessionBootTokenFailureIsBrokenConn(t *testing.T) {
	testlog.Start(t)
	conn := &transport.FuncConn{
		ExecFn: func(ctx context.Context, command string) (transport.Result, error) {
			return transport.Result{ExitCode: 1, Stderr: "uptime: not found"}, nil
		},
	}
	s, err := Open(context.Background(), scriptedTransport(conn), transport.Endpoint{Host: "host"}, DefaultConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.BootToken(context.Background()); !errors.Is(err, transport.ErrConnBroken) {
		t.Fatalf("boot query failure must read as broken conn, got %v", err)
	}
}
