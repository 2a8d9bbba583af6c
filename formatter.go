package fitgate

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/fitgate/reporting"
	"github.com/ethereum-optimism/fitgate/runner"
	"github.com/ethereum-optimism/fitgate/types"
)

// ResultsTable renders the per-page breakdown of every outcome to w.
func ResultsTable(w io.Writer, outcomes []types.BuildOutcome, order runner.PageOrder) {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	var total types.Counts
	var elapsed int64
	verdict := types.VerdictPass
	for _, o := range outcomes {
		total = total.Add(o.Statistics)
		elapsed += o.DurationMillis
		verdict = worseVerdict(verdict, o.Verdict)
	}
	t.SetTitle(fmt.Sprintf("FitNesse Suite Results (%s)", formatMillis(elapsed)))

	t.AppendHeader(table.Row{
		"Type", "Name", "Duration", "Right", "Wrong", "Ignored", "Exceptions", "Status", "Detail",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "Name", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Right", Align: text.AlignRight},
		{Name: "Wrong", Align: text.AlignRight},
		{Name: "Ignored", Align: text.AlignRight},
		{Name: "Exceptions", Align: text.AlignRight},
		{Name: "Detail", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, o := range outcomes {
		t.AppendRow(table.Row{
			"Suite",
			o.Suite,
			formatMillis(o.DurationMillis),
			o.Statistics.Right,
			o.Statistics.Wrong,
			o.Statistics.Ignored,
			o.Statistics.Exceptions,
			getVerdictString(o.Verdict),
			firstLine(o.Diagnostic),
		})

		pages := runner.SortedPages(o.Result, order)
		for i, p := range pages {
			prefix := "├──"
			if i == len(pages)-1 {
				prefix = "└──"
			}
			t.AppendRow(table.Row{
				"Page",
				fmt.Sprintf("%s %s", prefix, p.Name),
				"",
				p.Right,
				p.Wrong,
				p.Ignored,
				p.Exceptions,
				getPageString(p),
				pageDetail(p),
			})
		}
		t.AppendSeparator()
	}

	switch verdict {
	case types.VerdictPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.VerdictFail:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatMillis(elapsed),
		total.Right,
		total.Wrong,
		total.Ignored,
		total.Exceptions,
		getVerdictString(verdict),
		"",
	})

	t.Render()
}

// PrintSummaries writes the one-line summary of each outcome.
func PrintSummaries(w io.Writer, outcomes []types.BuildOutcome) {
	for _, o := range outcomes {
		line := fmt.Sprintf("%s: %s", o.Suite, reporting.Summary(o))
		if o.ReportArtifactPath != "" {
			line += " -> " + o.ReportArtifactPath
		}
		fmt.Fprintln(w, line)
	}
}

// worseVerdict orders verdicts error > fail > pass.
func worseVerdict(a, b types.Verdict) types.Verdict {
	rank := func(v types.Verdict) int {
		switch v {
		case types.VerdictPass:
			return 0
		case types.VerdictFail:
			return 1
		default:
			return 2
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

// pageDetail is the first message explaining why a page did not pass.
func pageDetail(p types.PageResult) string {
	if p.Malformed {
		return firstLine(p.Detail)
	}
	for _, o := range p.Outcomes {
		if o.Kind == types.OutcomeWrong || o.Kind == types.OutcomeException {
			return firstLine(o.Message)
		}
	}
	return ""
}

func firstLine(s string) string {
	s = strings.TrimSpace(stripansi.Strip(s))
	first, _, _ := strings.Cut(s, "\n")
	return first
}

// outcomeFromArtifact rebuilds the outcome an artifact was published for.
func outcomeFromArtifact(a *reporting.Artifact, path string) types.BuildOutcome {
	return types.BuildOutcome{
		Verdict:            a.Verdict,
		Statistics:         a.Totals,
		ReportArtifactPath: path,
		DurationMillis:     a.DurationMillis,
		RunID:              a.RunID,
		Suite:              a.Suite,
		Result:             a.Result(),
	}
}

// ShowArtifact prints the table and summary of a published artifact.
func ShowArtifact(w io.Writer, path string, order runner.PageOrder) (types.BuildOutcome, error) {
	a, err := reporting.ReadArtifact(path)
	if err != nil {
		return types.BuildOutcome{}, err
	}
	outcome := outcomeFromArtifact(a, path)
	ResultsTable(w, []types.BuildOutcome{outcome}, order)
	fmt.Fprintf(w, "Run %s started %s\n", a.RunID, a.StartedAt.Format(time.RFC3339))
	PrintSummaries(w, []types.BuildOutcome{outcome})
	return outcome, nil
}
