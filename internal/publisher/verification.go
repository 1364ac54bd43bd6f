package publisher

import (
	"fmt"
	"strings"
)

// Verify compares the counter deltas between before and after with what a
// cycle was expected to produce. It assumes no other publisher was active.
func Verify(before, after Stats, expect Expectation) error {
	var problems []string
	check := func(name string, got int64, want int) {
		if got != int64(want) {
			problems = append(problems, fmt.Sprintf("%s delta %d, want %d", name, got, want))
		}
	}

	check("received", after.Received-before.Received, expect.Received)
	check("unique_processed", after.UniqueProcessed-before.UniqueProcessed, expect.Unique)
	check("duplicate_dropped", after.DuplicateDropped-before.DuplicateDropped, expect.Duplicates)

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrMismatch, strings.Join(problems, "; "))
	}
	return nil
}
