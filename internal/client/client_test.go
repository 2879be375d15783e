package client

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shoal/internal/history"
	"github.com/roach88/shoal/internal/server"
	"github.com/roach88/shoal/internal/store"
	"github.com/roach88/shoal/internal/testutil"
	"github.com/roach88/shoal/internal/wire"
)

// startServerSession wires a real server over a real temp store to an
// in-memory transport, standing in for `ssh host shoal serve`.
func startServerSession(t *testing.T, st *store.Store) *testutil.PipeTransport {
	t.Helper()
	return testutil.NewPipeSession(func(r io.Reader, w io.Writer) error {
		return server.New(st, nil).Run(context.Background(), r, w)
	})
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeHistory(t *testing.T, dir string, entries []history.Entry) string {
	t.Helper()
	path := filepath.Join(dir, "fish_history")
	require.NoError(t, os.WriteFile(path, history.Render(entries), 0o600))
	return path
}

func TestRun_FirstSyncAgainstEmptyStore(t *testing.T) {
	st := openTestStore(t)
	dir := t.TempDir()
	path := writeHistory(t, dir, []history.Entry{testutil.Entry("ls", 100)})

	err := Run(context.Background(), Options{
		HistoryPath: path,
		Transport:   startServerSession(t, st),
	})
	require.NoError(t, err)

	// Store holds exactly the one entry; the local file is unchanged in value.
	stored, err := st.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []history.Entry{testutil.Entry("ls", 100)}, stored)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	local, err := history.ParseAll(data)
	require.NoError(t, err)
	assert.Equal(t, stored, local)
}

func TestRun_TwoClientsConverge(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	// First machine syncs `ls` at 100.
	dirA := t.TempDir()
	pathA := writeHistory(t, dirA, []history.Entry{testutil.Entry("ls", 100)})
	require.NoError(t, Run(ctx, Options{HistoryPath: pathA, Transport: startServerSession(t, st)}))

	// Second machine syncs `pwd` at 50 and receives the union, ordered by when.
	dirB := t.TempDir()
	pathB := writeHistory(t, dirB, []history.Entry{testutil.Entry("pwd", 50)})
	require.NoError(t, Run(ctx, Options{HistoryPath: pathB, Transport: startServerSession(t, st)}))

	want := []history.Entry{testutil.Entry("pwd", 50), testutil.Entry("ls", 100)}

	dataB, err := os.ReadFile(pathB)
	require.NoError(t, err)
	localB, err := history.ParseAll(dataB)
	require.NoError(t, err)
	assert.Equal(t, want, localB)

	// First machine syncs again with nothing new and converges on the same file.
	require.NoError(t, Run(ctx, Options{HistoryPath: pathA, Transport: startServerSession(t, st)}))
	dataA, err := os.ReadFile(pathA)
	require.NoError(t, err)
	localA, err := history.ParseAll(dataA)
	require.NoError(t, err)
	assert.Equal(t, want, localA)

	assert.Equal(t, dataB, dataA, "converged machines render identical files")
}

func TestRun_MissingLocalFileIsEmptyHistory(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	_, err := st.Ingest(ctx, []history.Entry{testutil.Entry("make", 10)})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "fish_history")

	require.NoError(t, Run(ctx, Options{HistoryPath: path, Transport: startServerSession(t, st)}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	local, err := history.ParseAll(data)
	require.NoError(t, err)
	assert.Equal(t, []history.Entry{testutil.Entry("make", 10)}, local)
}

func TestRun_ExtraBlocksSurviveSync(t *testing.T) {
	st := openTestStore(t)
	entry := testutil.EntryWithExtra("cd /tmp", 100, "  paths:\n    - /tmp")

	dir := t.TempDir()
	path := writeHistory(t, dir, []history.Entry{entry})

	require.NoError(t, Run(context.Background(), Options{
		HistoryPath: path,
		Transport:   startServerSession(t, st),
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	local, err := history.ParseAll(data)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, entry, local[0])
}

func TestRun_TransportCutMidResultLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	original := []history.Entry{testutil.Entry("ls", 100)}
	path := writeHistory(t, dir, original)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	cut := errors.New("connection reset")
	tr := testutil.NewPipeSession(func(r io.Reader, w io.Writer) error {
		// Drain the client's upload, send one result frame, then die
		// before END.
		for {
			f, err := wire.ReadFrame(r)
			if err != nil {
				return err
			}
			if f.Tag == wire.TagEnd {
				break
			}
		}
		payload := wire.EncodeBatch([]history.Entry{testutil.Entry("evil", 1)})
		if err := wire.WriteFrame(w, wire.Frame{Tag: wire.TagBatch, Payload: payload}); err != nil {
			return err
		}
		return cut
	})

	err = Run(context.Background(), Options{HistoryPath: path, Transport: tr})
	require.Error(t, err)

	after, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, before, after, "aborted sync must leave the file byte-identical")
}

func TestRun_ServerErrorFrameSurfacesMessage(t *testing.T) {
	dir := t.TempDir()
	path := writeHistory(t, dir, []history.Entry{testutil.Entry("ls", 100)})
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	tr := testutil.NewPipeSession(func(r io.Reader, w io.Writer) error {
		for {
			f, err := wire.ReadFrame(r)
			if err != nil {
				return err
			}
			if f.Tag == wire.TagEnd {
				break
			}
		}
		return wire.WriteFrame(w, wire.Frame{Tag: wire.TagError, Payload: []byte("store unavailable: database is locked")})
	})

	err = Run(context.Background(), Options{HistoryPath: path, Transport: tr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")

	after, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, before, after)
}

func TestRun_CleanEOFBeforeEnd(t *testing.T) {
	dir := t.TempDir()
	path := writeHistory(t, dir, []history.Entry{testutil.Entry("ls", 100)})

	tr := testutil.NewPipeSession(func(r io.Reader, w io.Writer) error {
		// Peer reads the upload then exits without sending anything:
		// clean EOF mid-protocol.
		for {
			f, err := wire.ReadFrame(r)
			if err != nil {
				return err
			}
			if f.Tag == wire.TagEnd {
				return nil
			}
		}
	})

	err := Run(context.Background(), Options{HistoryPath: path, Transport: tr})
	require.Error(t, err)
	assert.ErrorIs(t, err, wire.ErrTransportClosed)
}

func TestRun_MalformedLocalFileAbortsBeforeTransport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fish_history")
	require.NoError(t, os.WriteFile(path, []byte("- cmd: ls\n  when: soon\n"), 0o600))

	tr := testutil.NewPipeSession(func(r io.Reader, w io.Writer) error {
		io.Copy(io.Discard, r)
		return nil
	})

	err := Run(context.Background(), Options{HistoryPath: path, Transport: tr})
	require.Error(t, err)
	assert.ErrorIs(t, err, history.ErrInvalidEntry)
}

func TestRun_DuplicateSubmissionAcrossRuns(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	dir := t.TempDir()
	entry := testutil.EntryWithExtra("cd /", 200, "dir")
	path := writeHistory(t, dir, []history.Entry{entry})

	for i := 0; i < 2; i++ {
		require.NoError(t, Run(ctx, Options{HistoryPath: path, Transport: startServerSession(t, st)}))
	}

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
