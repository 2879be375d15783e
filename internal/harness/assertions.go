package harness

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/roach88/shoal/internal/history"
)

// CheckAssertions verifies every assertion against a result, returning one
// error per failed assertion.
func CheckAssertions(s *Scenario, result *Result) []error {
	var errs []error
	for i, a := range s.Assertions {
		if err := checkAssertion(&a, result); err != nil {
			errs = append(errs, fmt.Errorf("assertions[%d] (%s): %w", i, a.Type, err))
		}
	}
	return errs
}

func checkAssertion(a *Assertion, result *Result) error {
	switch a.Type {
	case AssertStoreCount:
		if got := len(result.StoreEntries); got != a.Count {
			return fmt.Errorf("store holds %d entries, expected %d", got, a.Count)
		}

	case AssertStoreEntries:
		want := specEntries(a.Entries)
		if !reflect.DeepEqual(result.StoreEntries, want) {
			return fmt.Errorf("store entries = %v, expected %v", result.StoreEntries, want)
		}

	case AssertFileEntries:
		data, ok := result.Files[a.Machine]
		if !ok {
			return fmt.Errorf("no result recorded for machine %q", a.Machine)
		}
		got, err := history.ParseAll(data)
		if err != nil {
			return fmt.Errorf("parse final file of %q: %w", a.Machine, err)
		}
		want := specEntries(a.Entries)
		if !reflect.DeepEqual(got, want) {
			return fmt.Errorf("%q file entries = %v, expected %v", a.Machine, got, want)
		}

	case AssertFilesIdentical:
		first := a.Machines[0]
		for _, m := range a.Machines[1:] {
			if !bytes.Equal(result.Files[first], result.Files[m]) {
				return fmt.Errorf("files of %q and %q differ", first, m)
			}
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
