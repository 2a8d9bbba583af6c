package fitgate

import (
	"fmt"
	"time"

	"github.com/ethereum-optimism/fitgate/types"
)

// getVerdictString returns the console label of a verdict
func getVerdictString(v types.Verdict) string {
	switch v {
	case types.VerdictPass:
		return "✓ pass"
	case types.VerdictFail:
		return "✗ fail"
	default:
		return "! error"
	}
}

func getPageString(p types.PageResult) string {
	switch {
	case p.Malformed:
		return "! malformed"
	case p.Failed():
		return "✗ fail"
	default:
		return "✓ pass"
	}
}

// formatDuration formats to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatMillis(ms int64) string {
	return formatDuration(time.Duration(ms) * time.Millisecond)
}
