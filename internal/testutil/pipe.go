// Package testutil provides small deterministic helpers shared by package
// tests and the scenario harness: an in-memory pipe transport standing in
// for ssh, and history entry builders.
package testutil

import (
	"io"
)

// PipeTransport connects a client to an in-process peer function over
// in-memory pipes, standing in for a spawned ssh session. It satisfies the
// client's Transport contract: Read/Write speak to the peer, CloseSend
// half-closes the outbound direction, Close tears down and reports the
// peer's result the way ssh's exit status would.
type PipeTransport struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	done chan error
}

// NewPipeSession starts serve in a goroutine wired to the returned
// transport. When serve returns, its error (if any) propagates both to a
// client blocked in Read and to the eventual Close call.
func NewPipeSession(serve func(r io.Reader, w io.Writer) error) *PipeTransport {
	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	t := &PipeTransport{r: clientR, w: clientW, done: make(chan error, 1)}
	go func() {
		err := serve(serverR, serverW)
		serverW.CloseWithError(err)
		serverR.Close()
		t.done <- err
	}()
	return t
}

func (t *PipeTransport) Read(p []byte) (int, error)  { return t.r.Read(p) }
func (t *PipeTransport) Write(p []byte) (int, error) { return t.w.Write(p) }

// CloseSend half-closes the client→server direction; the peer sees EOF.
func (t *PipeTransport) CloseSend() error { return t.w.Close() }

// Close tears down both directions and returns the peer function's error,
// mirroring how an ssh transport surfaces the remote exit status.
func (t *PipeTransport) Close() error {
	t.w.Close()
	t.r.Close()
	return <-t.done
}
