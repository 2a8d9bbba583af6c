package reporting

import (
	"fmt"
	"strings"

	"github.com/ethereum-optimism/fitgate/types"
)

// Summary is the one-line build-log string for an outcome, e.g.
// "Right: 3, Wrong: 1, Ignored: 0, Exceptions: 1 (fail)". Error outcomes also
// carry the first line of their diagnostic.
func Summary(outcome types.BuildOutcome) string {
	line := fmt.Sprintf("%s (%s)", outcome.Statistics, outcome.Verdict)
	if outcome.Verdict == types.VerdictError && outcome.Diagnostic != "" {
		first, _, _ := strings.Cut(strings.TrimSpace(outcome.Diagnostic), "\n")
		line += ": " + first
	}
	return line
}
