// Package server drives the host side of one sync session: ingest the
// client's batch into the shared store, send back the full merged history.
//
// Each invocation is a fresh, independent transaction — the process serves
// exactly one session on its standard streams and exits. There is no
// long-lived server state; concurrent sessions from different machines are
// isolated by the store's transactions, not by anything here.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/shoal/internal/history"
	"github.com/roach88/shoal/internal/store"
	"github.com/roach88/shoal/internal/wire"
)

// Server runs one sync session against a store.
type Server struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a server over an opened store. A nil logger discards logs.
func New(st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{store: st, logger: logger}
}

// Run executes one session: AwaitingBatch → Ingesting → SendingResult → Done.
//
// It reads BATCH frames from r until the client's END (a lone END means the
// client had nothing new), ingests the accumulated batch in one transaction,
// then writes the full merged history to w as BATCH frames followed by END.
//
// Store failures are reported to the peer with a best-effort ERROR frame
// before returning, so the client user sees the real cause rather than a
// bare hangup. Any failure leaves the store either untouched or with the
// whole batch applied, never in between.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	batch, err := s.receiveBatch(r)
	if err != nil {
		return err
	}
	s.logger.Debug("batch received", "entries", len(batch))

	inserted, err := s.store.Ingest(ctx, batch)
	if err != nil {
		s.reportError(w, err)
		return fmt.Errorf("ingest batch: %w", err)
	}
	s.logger.Info("batch ingested", "entries", len(batch), "new", inserted)

	merged, err := s.store.ReadAll(ctx)
	if err != nil {
		s.reportError(w, err)
		return fmt.Errorf("read merged history: %w", err)
	}

	if err := s.sendResult(w, merged); err != nil {
		return err
	}
	s.logger.Info("merged history sent", "entries", len(merged))
	return nil
}

// receiveBatch accumulates the client's logical batch: every BATCH frame up
// to its END. The client may split a large history across several frames;
// they are one batch for ingest purposes.
func (s *Server) receiveBatch(r io.Reader) ([]history.Entry, error) {
	var batch []history.Entry
	for {
		f, err := wire.ReadFrame(r)
		if err == io.EOF {
			return nil, fmt.Errorf("%w: stream ended before END", wire.ErrTransportClosed)
		}
		if err != nil {
			return nil, fmt.Errorf("receive batch: %w", err)
		}

		switch f.Tag {
		case wire.TagBatch:
			entries, err := wire.DecodeBatch(f.Payload)
			if err != nil {
				return nil, fmt.Errorf("decode batch: %w", err)
			}
			batch = append(batch, entries...)
		case wire.TagEnd:
			return batch, nil
		case wire.TagError:
			return nil, fmt.Errorf("peer error: %s", f.Payload)
		}
	}
}

func (s *Server) sendResult(w io.Writer, merged []history.Entry) error {
	for _, chunk := range wire.SplitBatch(merged, wire.DefaultChunkBytes) {
		f := wire.Frame{Tag: wire.TagBatch, Payload: wire.EncodeBatch(chunk)}
		if err := wire.WriteFrame(w, f); err != nil {
			return fmt.Errorf("send result: %w", err)
		}
	}
	if err := wire.WriteFrame(w, wire.Frame{Tag: wire.TagEnd}); err != nil {
		return fmt.Errorf("send result end: %w", err)
	}
	return nil
}

// reportError pushes the failure to the peer in-band. Best effort: if the
// stream is already gone the original error is what matters.
func (s *Server) reportError(w io.Writer, cause error) {
	f := wire.Frame{Tag: wire.TagError, Payload: []byte(cause.Error())}
	if err := wire.WriteFrame(w, f); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.logger.Debug("could not send error frame", "error", err)
	}
}
