package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Transport is the interactive channel a Session drives commands over.
// sshTransport is the production implementation; tests substitute a fake
// that never touches the network, so Session's OS-detection and dispatch
// logic can be exercised without a real device.
type Transport interface {
	// Open establishes the channel. Idempotent: a second call on an
	// already-open transport is a no-op.
	Open(ctx context.Context) error
	// Exec sends command into the open shell and returns everything read
	// back before the channel goes idle. If timeout elapses first, it
	// returns an error and no output.
	Exec(ctx context.Context, command string, timeout time.Duration) (string, error)
	// Close tears down the channel. Idempotent; swallows transport errors
	// so callers can always defer it.
	Close() error
}

// idleWindow is how long Exec waits for more output before deciding a
// command has finished producing it. Network CLIs have no reliable
// end-of-output marker over a raw PTY, so — like the interactive libraries
// this design is grounded on — we detect "done" by quiescence rather than
// a prompt regex, which would otherwise need per-platform tuning.
const idleWindow = 300 * time.Millisecond

// sshTransport drives one interactive shell channel over golang.org/x/crypto/ssh.
type sshTransport struct {
	host, user, pass string
	port             int

	mu      sync.Mutex
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	lines   chan []byte
	closed  chan struct{}
}

// NewSSHTransport builds a Transport that will dial host:port with password
// auth on first Open. port 0 defaults to 22.
func NewSSHTransport(host, user, pass string, port int) Transport {
	if port == 0 {
		port = 22
	}
	return &sshTransport{host: host, user: user, pass: pass, port: port}
}

func (t *sshTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session != nil {
		return nil
	}

	config := &ssh.ClientConfig{
		User:            t.user,
		Auth:            []ssh.AuthMethod{ssh.Password(t.pass)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", t.host, t.port)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return err
	}

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return fmt.Errorf("ssh new session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 115200,
		ssh.TTY_OP_OSPEED: 115200,
	}
	if err := sess.RequestPty("vt100", 200, 512, modes); err != nil {
		sess.Close()
		client.Close()
		return fmt.Errorf("ssh request pty: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return fmt.Errorf("ssh stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return fmt.Errorf("ssh stdout pipe: %w", err)
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return fmt.Errorf("ssh start shell: %w", err)
	}

	t.client = client
	t.session = sess
	t.stdin = stdin
	t.lines = make(chan []byte, 256)
	t.closed = make(chan struct{})
	go t.pump(stdout)

	// Drain the login banner and initial prompt before the first command.
	t.drain(idleWindow * 3)
	return nil
}

// pump copies raw reads from stdout into t.lines until stdout closes.
func (t *sshTransport) pump(stdout io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case t.lines <- chunk:
			case <-t.closed:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// drain reads whatever has accumulated until idle passes with no new data.
func (t *sshTransport) drain(idle time.Duration) string {
	var out bytes.Buffer
	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		select {
		case chunk, ok := <-t.lines:
			if !ok {
				return out.String()
			}
			out.Write(chunk)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(idle)
		case <-timer.C:
			return out.String()
		case <-t.closed:
			return out.String()
		}
	}
}

func (t *sshTransport) Exec(ctx context.Context, command string, timeout time.Duration) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return "", fmt.Errorf("ssh transport: not open")
	}

	if _, err := io.WriteString(t.stdin, command+"\n"); err != nil {
		return "", fmt.Errorf("ssh write command: %w", err)
	}

	type result struct {
		out string
	}
	done := make(chan result, 1)
	go func() { done <- result{out: t.drain(idleWindow)} }()

	select {
	case r := <-done:
		return r.out, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("ssh command %q: %w", command, errCommandTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *sshTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil
	}
	if t.closed != nil {
		close(t.closed)
	}
	// disconnect() must be idempotent and swallow transport errors.
	_ = t.session.Close()
	if t.client != nil {
		_ = t.client.Close()
	}
	t.session = nil
	t.client = nil
	return nil
}
