package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the serialized end state of a scenario: the full store dump
// plus every machine's final file. JSON with sorted map keys makes the
// bytes deterministic across runs.
type Snapshot struct {
	Scenario string            `json:"scenario"`
	Store    []SnapshotEntry   `json:"store"`
	Machines map[string]string `json:"machines"`
}

// SnapshotEntry mirrors a stored entry; a nil Extra is an absent block.
type SnapshotEntry struct {
	Cmd   string  `json:"cmd"`
	When  int64   `json:"when"`
	Extra *string `json:"extra,omitempty"`
}

// RunWithGolden executes a scenario, checks its assertions, and compares
// the end-state snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) error {
	t.Helper()

	result, err := Run(s, t.TempDir())
	if err != nil {
		return err
	}

	for _, assertErr := range CheckAssertions(s, result) {
		t.Error(assertErr)
	}

	snapshot := Snapshot{
		Scenario: s.Name,
		Store:    make([]SnapshotEntry, 0, len(result.StoreEntries)),
		Machines: make(map[string]string, len(result.Files)),
	}
	for _, e := range result.StoreEntries {
		se := SnapshotEntry{Cmd: e.Cmd, When: e.When}
		if e.Extra.Valid {
			extra := e.Extra.String
			se.Extra = &extra
		}
		snapshot.Store = append(snapshot.Store, se)
	}
	for name, data := range result.Files {
		snapshot.Machines[name] = string(data)
	}

	out, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, out)

	return nil
}
