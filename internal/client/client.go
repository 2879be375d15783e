// Package client drives the local side of one sync session: lock the
// history directory, ship the local entries to the server, and atomically
// replace the local file with the merged result.
//
// Every exit path — success, decode failure, transport cut, store error
// relayed from the server — releases the lock, and nothing touches the
// local file until the merged history has fully arrived and the transport
// has confirmed a clean server exit. A failed sync leaves the file
// byte-identical to its pre-sync state.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/roach88/shoal/internal/history"
	"github.com/roach88/shoal/internal/wire"
)

// Options configures one sync session.
type Options struct {
	// HistoryPath is the local history file. A missing file is an empty
	// history; its directory must exist (it holds the lock and the temp
	// file for the atomic replace).
	HistoryPath string

	// Transport is the established stream to the server session.
	Transport Transport

	// Logger receives session diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Run executes one sync session: AcquireLock → ReadLocal → SendBatch →
// ReceiveMerged → AtomicReplace → ReleaseLock → Done.
func Run(ctx context.Context, opts Options) (err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	lock, err := acquireDirLock(filepath.Dir(opts.HistoryPath))
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()

	transportOpen := true
	defer func() {
		if transportOpen {
			opts.Transport.Close()
		}
	}()

	data, err := history.ReadFile(opts.HistoryPath)
	if err != nil {
		return err
	}
	local, err := history.ParseAll(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", opts.HistoryPath, err)
	}
	logger.Debug("local history read", "path", opts.HistoryPath, "entries", len(local))

	if err := sendBatch(opts.Transport, local); err != nil {
		return err
	}

	merged, err := receiveMerged(opts.Transport)
	if err != nil {
		return err
	}
	logger.Debug("merged history received", "entries", len(merged))

	// Nothing local changes until the server has confirmed a clean finish:
	// half-close our side, then wait for the remote exit status.
	if err := opts.Transport.CloseSend(); err != nil {
		return fmt.Errorf("close send: %w", err)
	}
	transportOpen = false
	if err := opts.Transport.Close(); err != nil {
		return err
	}

	if err := history.WriteFileAtomic(opts.HistoryPath, history.Render(merged)); err != nil {
		return err
	}
	logger.Info("history synced", "path", opts.HistoryPath, "entries", len(merged))
	return nil
}

// sendBatch ships the local entries as BATCH frames followed by END. Zero
// entries means END alone — the client had nothing new.
func sendBatch(t Transport, local []history.Entry) error {
	for _, chunk := range wire.SplitBatch(local, wire.DefaultChunkBytes) {
		f := wire.Frame{Tag: wire.TagBatch, Payload: wire.EncodeBatch(chunk)}
		if err := wire.WriteFrame(t, f); err != nil {
			return fmt.Errorf("send batch: %w", err)
		}
	}
	if err := wire.WriteFrame(t, wire.Frame{Tag: wire.TagEnd}); err != nil {
		return fmt.Errorf("send batch end: %w", err)
	}
	return nil
}

// receiveMerged accumulates the server's full merged history up to its END.
func receiveMerged(t Transport) ([]history.Entry, error) {
	merged := []history.Entry{}
	for {
		f, err := wire.ReadFrame(t)
		if err == io.EOF {
			return nil, fmt.Errorf("%w: stream ended before END", wire.ErrTransportClosed)
		}
		if err != nil {
			return nil, fmt.Errorf("receive merged: %w", err)
		}

		switch f.Tag {
		case wire.TagBatch:
			entries, err := wire.DecodeBatch(f.Payload)
			if err != nil {
				return nil, fmt.Errorf("decode merged: %w", err)
			}
			merged = append(merged, entries...)
		case wire.TagEnd:
			return merged, nil
		case wire.TagError:
			return nil, fmt.Errorf("server error: %s", f.Payload)
		}
	}
}
