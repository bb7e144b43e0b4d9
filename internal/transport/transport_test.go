package transport

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/danmuck/tetherctl/internal/testutil/testlog"
)

func TestEndpointAddrAndString(t *testing.T) {
	testlog.Start(t)
	ep := Endpoint{Host: "10.0.0.5", User: "ops"}
	if ep.Addr() != "10.0.0.5:22" {
		t.Fatalf("unexpected addr: %q", ep.Addr())
	}
	if ep.String() != "ops@10.0.0.5:22" {
		t.Fatalf("unexpected string: %q", ep.String())
	}
	ep.Port = 2222
	if ep.Addr() != "10.0.0.5:2222" {
		t.Fatalf("unexpected addr: %q", ep.Addr())
	}
}

func TestClassifyDialError(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		err  error
		want OpenReason
	}{
		{&net.OpError{Op: "dial", Err: errors.New("connection refused")}, ReasonUnreachable},
		{errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [publickey]"), ReasonAuth},
		{errors.New("ssh: handshake failed: read tcp: i/o timeout"), ReasonUnreachable},
		{errors.New("ssh: handshake failed: ssh: no common algorithm for key exchange"), ReasonNegotiation},
	}
	for _, tc := range cases {
		if got := ClassifyDialError(tc.err); got != tc.want {
			t.Fatalf("classify %v: got %s want %s", tc.err, got, tc.want)
		}
	}
}

func TestOpenErrorTransient(t *testing.T) {
	testlog.Start(t)
	if (&OpenError{Reason: ReasonAuth}).Transient() {
		t.Fatalf("auth failures must not be transient")
	}
	if !(&OpenError{Reason: ReasonUnreachable}).Transient() {
		t.Fatalf("unreachable failures must be transient")
	}
	if !(&OpenError{Reason: ReasonNegotiation}).Transient() {
		t.Fatalf("negotiation failures must be transient")
	}
}

func TestSimulatedRebootCycle(t *testing.T) {
	testlog.Start(t)
	sim := NewSimulated("uptime -s", 3)
	ctx := context.Background()

	conn, err := sim.Open(ctx, Endpoint{Host: "mock"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	boot, err := conn.Exec(ctx, "uptime -s")
	if err != nil {
		t.Fatalf("boot query: %v", err)
	}
	before := strings.TrimSpace(boot.Stdout)

	for i := 0; i < 2; i++ {
		if _, err := conn.Exec(ctx, "echo hi"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if _, err := conn.Exec(ctx, "echo hi"); !errors.Is(err, ErrConnBroken) {
		t.Fatalf("third run should simulate a reboot, got %v", err)
	}

	boot, err = conn.Exec(ctx, "uptime -s")
	if err != nil {
		t.Fatalf("boot query after reboot: %v", err)
	}
	if after := strings.TrimSpace(boot.Stdout); after == before {
		t.Fatalf("boot token should change across the simulated reboot")
	}
	if sim.OpenCalls() != 1 {
		t.Fatalf("unexpected open count: %d", sim.OpenCalls())
	}
}
