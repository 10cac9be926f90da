package shellexec

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestTruncateNeverExceedsByteBudget verifies spec.md §8's "Output
// truncation bounds" property: the model-facing string Truncate returns
// never exceeds the configured byte budget, for any input text and any
// budget at or above the elision marker's own size (a budget smaller than
// the marker can't possibly honor both truncation and markup in the same
// breath, so it's excluded rather than asserted against).
func TestTruncateNeverExceedsByteBudget(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("truncated output respects the byte budget", prop.ForAll(
		func(lines []string, budget int) bool {
			if budget < len(elisionMarker) {
				return true
			}
			text := strings.Join(lines, "\n")
			got := Truncate(text, budget, DefaultLineBudget)
			return len(got) <= budget
		},
		gen.SliceOfN(30, gen.AlphaString()),
		gen.IntRange(len(elisionMarker), 4096),
	))

	properties.TestingRun(t)
}
