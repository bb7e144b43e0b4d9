package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSH opens connections over the SSH protocol using key-file auth.
type SSH struct {
	DialTimeout time.Duration
}

func NewSSH(dialTimeout time.Duration) *SSH {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &SSH{DialTimeout: dialTimeout}
}

func (t *SSH) Open(ctx context.Context, ep Endpoint) (Conn, error) {
	cfg, err := clientConfig(ep, t.DialTimeout)
	if err != nil {
		return nil, &OpenError{Reason: ReasonAuth, Err: err}
	}

	dialer := net.Dialer{Timeout: t.DialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", ep.Addr())
	if err != nil {
		return nil, &OpenError{Reason: ReasonUnreachable, Err: err}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	} else {
		_ = raw.SetDeadline(time.Now().Add(t.DialTimeout))
	}
	conn, chans, reqs, err := ssh.NewClientConn(raw, ep.Addr(), cfg)
	if err != nil {
		_ = raw.Close()
		return nil, &OpenError{Reason: ClassifyDialError(err), Err: err}
	}
	_ = raw.SetDeadline(time.Time{})

	return &sshConn{client: ssh.NewClient(conn, chans, reqs)}, nil
}

func clientConfig(ep Endpoint, timeout time.Duration) (*ssh.ClientConfig, error) {
	key, err := os.ReadFile(ep.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("transport: read key file: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("transport: parse key file: %w", err)
	}

	hostKeys := ssh.InsecureIgnoreHostKey()
	if ep.KnownHostsFile != "" {
		hostKeys, err = knownhosts.New(ep.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("transport: load known hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            ep.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}, nil
}

type sshConn struct {
	client *ssh.Client
}

func (c *sshConn) Exec(ctx context.Context, command string) (Result, error) {
	sess, err := c.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("%w: new session: %v", ErrConnBroken, err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- sess.Run(command)
	}()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()
		return Result{}, ctx.Err()
	case err = <-done:
	}

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	switch e := err.(type) {
	case nil:
		return res, nil
	case *ssh.ExitError:
		res.ExitCode = e.ExitStatus()
		return res, nil
	case *ssh.ExitMissingError:
		return Result{}, fmt.Errorf("%w: session ended without exit status", ErrConnBroken)
	default:
		return Result{}, fmt.Errorf("%w: %v", ErrConnBroken, err)
	}
}

func (c *sshConn) Close() error {
	return c.client.Close()
}
