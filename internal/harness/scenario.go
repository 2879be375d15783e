package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a multi-machine sync conformance test.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Machines maps a machine name to its initial local history.
	Machines map[string]MachineSpec `yaml:"machines"`

	// Store optionally pre-seeds the server store before any sync runs,
	// standing in for history merged by machines outside the scenario.
	Store []EntrySpec `yaml:"store,omitempty"`

	// Syncs is the ordered list of sync sessions to execute.
	Syncs []SyncStep `yaml:"syncs"`

	// Assertions validate the final store and history files.
	Assertions []Assertion `yaml:"assertions"`
}

// MachineSpec is one machine's starting state.
type MachineSpec struct {
	// History is the machine's initial local history, in file order.
	// An empty list means the machine has no history file yet.
	History []EntrySpec `yaml:"history"`
}

// EntrySpec is one history entry in YAML form. A nil Extra is an absent
// extra block, which is distinct from an empty one.
type EntrySpec struct {
	Cmd   string  `yaml:"cmd"`
	When  int64   `yaml:"when"`
	Extra *string `yaml:"extra,omitempty"`
}

// SyncStep runs one sync session for a machine against the scenario store.
type SyncStep struct {
	Machine string `yaml:"machine"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants below.
	Type string `yaml:"type"`

	// Count is the expected number of store rows (store_count).
	Count int `yaml:"count,omitempty"`

	// Entries is an exact ordered entry list (store_entries, file_entries).
	Entries []EntrySpec `yaml:"entries,omitempty"`

	// Machine names the machine under test (file_entries).
	Machine string `yaml:"machine,omitempty"`

	// Machines names machines whose final files must be byte-identical
	// (files_identical).
	Machines []string `yaml:"machines,omitempty"`
}

// Assertion type constants.
const (
	AssertStoreCount     = "store_count"
	AssertStoreEntries   = "store_entries"
	AssertFileEntries    = "file_entries"
	AssertFilesIdentical = "files_identical"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// (typos) and missing required fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and every
// referenced machine exists.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Machines) == 0 {
		return fmt.Errorf("machines map is required and must be non-empty")
	}
	if len(s.Syncs) == 0 {
		return fmt.Errorf("syncs list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Syncs {
		if step.Machine == "" {
			return fmt.Errorf("syncs[%d]: machine is required", i)
		}
		if _, ok := s.Machines[step.Machine]; !ok {
			return fmt.Errorf("syncs[%d]: unknown machine %q", i, step.Machine)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, s.Machines); err != nil {
			return err
		}
	}

	return nil
}

func validateAssertion(index int, a *Assertion, machines map[string]MachineSpec) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertStoreCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertStoreEntries:
		if a.Entries == nil {
			return fmt.Errorf("assertions[%d]: entries list is required for store_entries", index)
		}
	case AssertFileEntries:
		if a.Machine == "" {
			return fmt.Errorf("assertions[%d]: machine is required for file_entries", index)
		}
		if _, ok := machines[a.Machine]; !ok {
			return fmt.Errorf("assertions[%d]: unknown machine %q", index, a.Machine)
		}
		if a.Entries == nil {
			return fmt.Errorf("assertions[%d]: entries list is required for file_entries", index)
		}
	case AssertFilesIdentical:
		if len(a.Machines) < 2 {
			return fmt.Errorf("assertions[%d]: files_identical needs at least two machines", index)
		}
		for _, m := range a.Machines {
			if _, ok := machines[m]; !ok {
				return fmt.Errorf("assertions[%d]: unknown machine %q", index, m)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
