package server

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shoal/internal/history"
	"github.com/roach88/shoal/internal/store"
	"github.com/roach88/shoal/internal/wire"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// clientSend frames a batch the way a client would: BATCH frames then END.
func clientSend(t *testing.T, entries []history.Entry) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, chunk := range wire.SplitBatch(entries, wire.DefaultChunkBytes) {
		f := wire.Frame{Tag: wire.TagBatch, Payload: wire.EncodeBatch(chunk)}
		require.NoError(t, wire.WriteFrame(&buf, f))
	}
	require.NoError(t, wire.WriteFrame(&buf, wire.Frame{Tag: wire.TagEnd}))
	return &buf
}

// readResult consumes the server's response: entries until END.
func readResult(t *testing.T, r io.Reader) []history.Entry {
	t.Helper()
	var entries []history.Entry
	for {
		f, err := wire.ReadFrame(r)
		require.NoError(t, err)
		if f.Tag == wire.TagEnd {
			return entries
		}
		require.Equal(t, wire.TagBatch, f.Tag)
		chunk, err := wire.DecodeBatch(f.Payload)
		require.NoError(t, err)
		entries = append(entries, chunk...)
	}
}

func TestRun_IngestsAndReturnsMerged(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	// Pre-existing history from another machine.
	_, err := st.Ingest(ctx, []history.Entry{{Cmd: "pwd", When: 50}})
	require.NoError(t, err)

	in := clientSend(t, []history.Entry{{Cmd: "ls", When: 100}})
	var out bytes.Buffer

	require.NoError(t, New(st, nil).Run(ctx, in, &out))

	merged := readResult(t, &out)
	require.Len(t, merged, 2)
	assert.Equal(t, "pwd", merged[0].Cmd)
	assert.Equal(t, "ls", merged[1].Cmd)

	stored, err := st.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, merged, stored)
}

func TestRun_EmptyClientBatch(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.Ingest(ctx, []history.Entry{{Cmd: "ls", When: 100}})
	require.NoError(t, err)

	// A lone END means the client had nothing new.
	in := clientSend(t, nil)
	var out bytes.Buffer

	require.NoError(t, New(st, nil).Run(ctx, in, &out))

	merged := readResult(t, &out)
	require.Len(t, merged, 1)
	assert.Equal(t, "ls", merged[0].Cmd)
}

func TestRun_EmptyStoreEmptyBatch(t *testing.T) {
	st := openTestStore(t)

	in := clientSend(t, nil)
	var out bytes.Buffer

	require.NoError(t, New(st, nil).Run(context.Background(), in, &out))
	assert.Empty(t, readResult(t, &out))
}

func TestRun_MultipleBatchFramesAreOneBatch(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	// Hand-framed: the logical batch arrives split across two BATCH frames.
	var in bytes.Buffer
	f1 := wire.Frame{Tag: wire.TagBatch, Payload: wire.EncodeBatch([]history.Entry{{Cmd: "a", When: 1}})}
	f2 := wire.Frame{Tag: wire.TagBatch, Payload: wire.EncodeBatch([]history.Entry{{Cmd: "b", When: 2}})}
	require.NoError(t, wire.WriteFrame(&in, f1))
	require.NoError(t, wire.WriteFrame(&in, f2))
	require.NoError(t, wire.WriteFrame(&in, wire.Frame{Tag: wire.TagEnd}))

	var out bytes.Buffer
	require.NoError(t, New(st, nil).Run(ctx, &in, &out))

	stored, err := st.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestRun_DuplicateResubmission(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	entry := history.Entry{Cmd: "cd /", When: 200}

	for i := 0; i < 2; i++ {
		in := clientSend(t, []history.Entry{entry})
		var out bytes.Buffer
		require.NoError(t, New(st, nil).Run(ctx, in, &out))
	}

	stored, err := st.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1, "two sync runs submitting the same entry must leave one row")
}

func TestRun_EOFBeforeEnd(t *testing.T) {
	st := openTestStore(t)

	// Client hangs up after its batch frame, before END.
	var in bytes.Buffer
	f := wire.Frame{Tag: wire.TagBatch, Payload: wire.EncodeBatch([]history.Entry{{Cmd: "ls", When: 100}})}
	require.NoError(t, wire.WriteFrame(&in, f))

	var out bytes.Buffer
	err := New(st, nil).Run(context.Background(), &in, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, wire.ErrTransportClosed)

	// Nothing was ingested from the aborted session.
	n, cntErr := st.Count(context.Background())
	require.NoError(t, cntErr)
	assert.Zero(t, n)
}

func TestRun_MalformedFrameAborts(t *testing.T) {
	st := openTestStore(t)

	in := bytes.NewReader([]byte{0xFF, 0, 0, 0, 0})
	var out bytes.Buffer

	err := New(st, nil).Run(context.Background(), in, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, wire.ErrMalformedFrame)
}

func TestRun_CorruptBatchPayloadAborts(t *testing.T) {
	st := openTestStore(t)

	var in bytes.Buffer
	payload := wire.EncodeBatch([]history.Entry{{Cmd: "ls", When: 100}})
	require.NoError(t, wire.WriteFrame(&in, wire.Frame{Tag: wire.TagBatch, Payload: payload[:len(payload)-2]}))
	require.NoError(t, wire.WriteFrame(&in, wire.Frame{Tag: wire.TagEnd}))

	var out bytes.Buffer
	err := New(st, nil).Run(context.Background(), &in, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, history.ErrInvalidEntry)

	n, cntErr := st.Count(context.Background())
	require.NoError(t, cntErr)
	assert.Zero(t, n, "a session that failed to decode must not touch the store")
}

func TestRun_PeerErrorFrameAborts(t *testing.T) {
	st := openTestStore(t)

	var in bytes.Buffer
	require.NoError(t, wire.WriteFrame(&in, wire.Frame{Tag: wire.TagError, Payload: []byte("client gave up")}))

	var out bytes.Buffer
	err := New(st, nil).Run(context.Background(), &in, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client gave up")
}

func TestRun_StoreErrorReportedInBand(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.Close()) // force every store call to fail

	in := clientSend(t, []history.Entry{{Cmd: "ls", When: 100}})
	var out bytes.Buffer

	err := New(st, nil).Run(context.Background(), in, &out)
	require.Error(t, err)

	// The failure also went to the peer as an ERROR frame.
	f, readErr := wire.ReadFrame(&out)
	require.NoError(t, readErr)
	assert.Equal(t, wire.TagError, f.Tag)
	assert.NotEmpty(t, f.Payload)
}
