package types

import (
	"fmt"
)

// OutcomeKind is the classification of a single checked expectation.
type OutcomeKind string

const (
	OutcomeRight     OutcomeKind = "right"
	OutcomeWrong     OutcomeKind = "wrong"
	OutcomeIgnored   OutcomeKind = "ignored"
	OutcomeException OutcomeKind = "exception"
)

// Verdict is the overall judgment attached to a completed run.
type Verdict string

const (
	VerdictPass  Verdict = "pass"
	VerdictFail  Verdict = "fail"
	VerdictError Verdict = "error"
)

// AssertionOutcome is a leaf of the result tree.
type AssertionOutcome struct {
	Kind    OutcomeKind `json:"kind"`
	Message string      `json:"message,omitempty"`
}

// Counts groups the four outcome counters used at page and suite level.
type Counts struct {
	Right      int `json:"right"`
	Wrong      int `json:"wrong"`
	Ignored    int `json:"ignored"`
	Exceptions int `json:"exceptions"`
}

// Add returns the element-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Right:      c.Right + o.Right,
		Wrong:      c.Wrong + o.Wrong,
		Ignored:    c.Ignored + o.Ignored,
		Exceptions: c.Exceptions + o.Exceptions,
	}
}

// Total is the number of assertions represented by c.
func (c Counts) Total() int {
	return c.Right + c.Wrong + c.Ignored + c.Exceptions
}

func (c Counts) String() string {
	return fmt.Sprintf("Right: %d, Wrong: %d, Ignored: %d, Exceptions: %d",
		c.Right, c.Wrong, c.Ignored, c.Exceptions)
}

// CountOutcomes partitions outcomes by kind.
func CountOutcomes(outcomes []AssertionOutcome) Counts {
	var c Counts
	for _, o := range outcomes {
		switch o.Kind {
		case OutcomeRight:
			c.Right++
		case OutcomeWrong:
			c.Wrong++
		case OutcomeIgnored:
			c.Ignored++
		case OutcomeException:
			c.Exceptions++
		}
	}
	return c
}

// PageResult is the parsed result of one test page.
type PageResult struct {
	Name     string             `json:"name"`
	Outcomes []AssertionOutcome `json:"outcomes"`
	Counts

	// Malformed marks a page the parser could not read. Such a page carries
	// Exceptions=1 and no outcomes.
	Malformed bool   `json:"malformed,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// NewPageResult builds a page whose counts are derived from its outcomes.
func NewPageResult(name string, outcomes []AssertionOutcome) PageResult {
	if outcomes == nil {
		outcomes = []AssertionOutcome{}
	}
	return PageResult{
		Name:     name,
		Outcomes: outcomes,
		Counts:   CountOutcomes(outcomes),
	}
}

// NewMalformedPage builds a quarantined page.
func NewMalformedPage(name, detail string) PageResult {
	return PageResult{
		Name:      name,
		Outcomes:  []AssertionOutcome{},
		Counts:    Counts{Exceptions: 1},
		Malformed: true,
		Detail:    detail,
	}
}

// CheckCounts verifies that the page counters agree with its outcome list.
func (p PageResult) CheckCounts() error {
	if p.Malformed {
		if len(p.Outcomes) != 0 || p.Counts != (Counts{Exceptions: 1}) {
			return fmt.Errorf("page %q: malformed page must carry exactly one exception and no outcomes", p.Name)
		}
		return nil
	}
	want := CountOutcomes(p.Outcomes)
	if p.Counts != want {
		return fmt.Errorf("page %q: counts {%s} disagree with outcomes {%s}", p.Name, p.Counts, want)
	}
	return nil
}

// Failed reports whether the page contributes to a failing verdict.
func (p PageResult) Failed() bool {
	return p.Wrong > 0 || p.Exceptions > 0
}

// SuiteResult is the normalized result tree of a suite run.
type SuiteResult struct {
	Pages  []PageResult `json:"pages"`
	Totals Counts       `json:"totals"`
}

// BuildOutcome is returned to the pipeline once per run.
type BuildOutcome struct {
	Verdict            Verdict
	Statistics         Counts
	ReportArtifactPath string
	DurationMillis     int64

	// Diagnostic explains an Error verdict or a publish failure.
	Diagnostic string

	// RunID and Suite identify the run the outcome belongs to.
	RunID string
	Suite string

	// Result is the aggregated tree, nil when the run errored before parsing.
	Result *SuiteResult
}
