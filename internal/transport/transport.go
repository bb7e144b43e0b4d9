// Package transport defines the remote-shell capability boundary.
//
// Ownership boundary:
// - Endpoint identity and command results
// - Transport/Conn contracts and their failure signals
// - concrete SSH adapter and the scripted fake
//
// The reconnection logic above this package never sees a raw transport
// error: open failures carry a classified reason and broken connections
// surface as ErrConnBroken.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrConnBroken signals the connection is no longer usable and a new one
// must be opened. It is the expected failure mode, not an exceptional one.
var ErrConnBroken = errors.New("transport: connection broken")

// Endpoint identifies one managed remote host.
type Endpoint struct {
	Host           string
	Port           int
	User           string
	KeyFile        string
	KnownHostsFile string
}

func (e Endpoint) Addr() string {
	port := e.Port
	if port <= 0 {
		port = 22
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

func (e Endpoint) String() string {
	if e.User == "" {
		return e.Addr()
	}
	return e.User + "@" + e.Addr()
}

// Result holds the output from one remote command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OpenReason classifies why an Open attempt failed.
type OpenReason string

const (
	// ReasonUnreachable covers dial timeouts, refused connections and
	// routing failures. Retryable.
	ReasonUnreachable OpenReason = "unreachable"
	// ReasonAuth covers rejected credentials. Never retryable.
	ReasonAuth OpenReason = "auth"
	// ReasonNegotiation covers protocol/handshake failures. Retryable.
	ReasonNegotiation OpenReason = "negotiation"
)

// OpenError reports a failed Open attempt with a classified reason.
type OpenError struct {
	Reason OpenReason
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("transport: open failed (%s): %v", e.Reason, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// Transient reports whether waiting and retrying can fix this failure.
func (e *OpenError) Transient() bool {
	return e.Reason != ReasonAuth
}

// Conn is one live transport-level connection to an endpoint.
//
// Exec runs a command and returns its exit status and captured output.
// A non-zero exit status is a successful Exec; an error wrapping
// ErrConnBroken means the connection itself died.
type Conn interface {
	Exec(ctx context.Context, command string) (Result, error)
	Close() error
}

// Transport opens transport-level connections to an endpoint.
// Failed opens return *OpenError.
type Transport interface {
	Open(ctx context.Context, ep Endpoint) (Conn, error)
}

// ClassifyDialError maps a dial/handshake error onto an OpenReason.
func ClassifyDialError(err error) OpenReason {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonUnreachable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ReasonUnreachable
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "no supported methods remain"):
		return ReasonAuth
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no route to host"),
		strings.Contains(msg, "i/o timeout"):
		return ReasonUnreachable
	default:
		return ReasonNegotiation
	}
}
