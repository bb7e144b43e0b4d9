package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/tetherctl/internal/transport"
)

var ErrSessionClosed = errors.New("session: closed")

// sshClientFailure is the exit status the SSH layer reserves for its own
// failures; it never carries a remote command's real status.
const sshClientFailure = 255

var generation atomic.Uint64

// Session is one logical connection to an endpoint. A closed Session is
// never reused: recovery always opens a fresh one with a higher
// generation.
type Session struct {
	mu     sync.Mutex
	conn   transport.Conn
	cfg    Config
	gen    uint64
	closed bool
}

// Open establishes one transport-level connection and wraps it in a new
// Session. Failed opens return *transport.OpenError unchanged so the
// caller can classify the reason.
func Open(ctx context.Context, tr transport.Transport, ep transport.Endpoint, cfg Config) (*Session, error) {
	cfg = cfg.WithDefaults()
	openCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	conn, err := tr.Open(openCtx, ep)
	if err != nil {
		return nil, err
	}
	return &Session{
		conn: conn,
		cfg:  cfg,
		gen:  generation.Add(1),
	}, nil
}

func (s *Session) Generation() uint64 {
	return s.gen
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Run executes one command. A non-zero exit status is a successful Run;
// errors wrapping transport.ErrConnBroken mean the connection died and
// the Session must be replaced.
func (s *Session) Run(ctx context.Context, command string) (transport.Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return transport.Result{}, ErrSessionClosed
	}
	conn := s.conn
	s.mu.Unlock()

	if s.cfg.ExecTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ExecTimeout)
		defer cancel()
	}

	res, err := conn.Exec(ctx, command)
	if err != nil {
		return transport.Result{}, err
	}
	if res.ExitCode == sshClientFailure {
		return transport.Result{}, fmt.Errorf("%w: exit status %d", transport.ErrConnBroken, sshClientFailure)
	}
	return res, nil
}

// BootToken reads the remote boot identity over this Session. Any failure
// to obtain it is reported as a broken connection: reboot status is never
// guessed from absent data.
func (s *Session) BootToken(ctx context.Context) (BootToken, error) {
	res, err := s.Run(ctx, s.cfg.BootQuery)
	if err != nil {
		return BootToken{}, err
	}
	if res.ExitCode != 0 {
		return BootToken{}, fmt.Errorf("%w: boot query exit %d", transport.ErrConnBroken, res.ExitCode)
	}
	raw := strings.TrimSpace(res.Stdout)
	if raw == "" {
		return BootToken{}, fmt.Errorf("%w: empty boot token", transport.ErrConnBroken)
	}
	return BootToken{Raw: raw, ObservedAt: time.Now()}, nil
}

// Close is idempotent; closing an already-closed Session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
