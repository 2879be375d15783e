package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Transport is an established bidirectional byte stream to a server
// session. The engine only reads and writes frames on it; authentication,
// host keys, and process spawning belong to the mechanism behind it.
//
// CloseSend half-closes the outbound direction so the peer sees EOF after
// the client's final frame. Close tears the stream down and reports how the
// peer ended — for ssh, a non-zero remote exit status is an error.
type Transport interface {
	io.Reader
	io.Writer
	CloseSend() error
	Close() error
}

// SSHTransport is a Transport over a spawned ssh process's standard streams.
type SSHTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	sendClosed bool
}

// DialSSH spawns `sshCmd host remoteCmd` with piped stdin/stdout. The
// child's stderr is inherited so remote diagnostics (and the server's own
// logging) reach the user directly.
func DialSSH(ctx context.Context, sshCmd, host, remoteCmd string) (*SSHTransport, error) {
	cmd := exec.CommandContext(ctx, sshCmd, host, remoteCmd)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("dial ssh: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("dial ssh: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("dial ssh: start %s: %w", sshCmd, err)
	}

	return &SSHTransport{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

func (t *SSHTransport) Read(p []byte) (int, error)  { return t.stdout.Read(p) }
func (t *SSHTransport) Write(p []byte) (int, error) { return t.stdin.Write(p) }

// CloseSend closes the remote process's stdin; the server sees EOF.
func (t *SSHTransport) CloseSend() error {
	if t.sendClosed {
		return nil
	}
	t.sendClosed = true
	return t.stdin.Close()
}

// Close waits for the ssh process to exit. A non-zero remote exit status
// surfaces as the returned error, so a sync only counts as complete when
// the server side also finished cleanly.
func (t *SSHTransport) Close() error {
	t.CloseSend()
	if err := t.cmd.Wait(); err != nil {
		return fmt.Errorf("ssh session: %w", err)
	}
	return nil
}
