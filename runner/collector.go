package runner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum-optimism/fitgate/types"
)

// InvariantViolationError lists the pages whose counters disagree with their
// outcomes. Aggregate still returns recomputed totals alongside it.
type InvariantViolationError struct {
	Violations []string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("result invariants violated: %s", strings.Join(e.Violations, "; "))
}

// Aggregate returns a copy of result whose totals are recomputed from the
// page counts. Totals claimed by the runner are never trusted.
func Aggregate(result *types.SuiteResult) (*types.SuiteResult, error) {
	if result == nil {
		return &types.SuiteResult{Pages: []types.PageResult{}}, nil
	}

	out := &types.SuiteResult{Pages: make([]types.PageResult, len(result.Pages))}
	var violations []string
	for i, page := range result.Pages {
		out.Pages[i] = page
		if err := page.CheckCounts(); err != nil {
			violations = append(violations, err.Error())
		}
		out.Totals = out.Totals.Add(page.Counts)
	}

	if len(violations) > 0 {
		return out, &InvariantViolationError{Violations: violations}
	}
	return out, nil
}

// Verdict is Fail when any page has a wrong or exception outcome and Pass
// otherwise. Ignored assertions do not affect it. It reads the page counts,
// not Totals, so it only depends on the result tree.
func Verdict(result *types.SuiteResult) types.Verdict {
	if result == nil {
		return types.VerdictPass
	}
	var totals types.Counts
	for _, page := range result.Pages {
		totals = totals.Add(page.Counts)
	}
	if totals.Wrong > 0 || totals.Exceptions > 0 {
		return types.VerdictFail
	}
	return types.VerdictPass
}

// PageOrder selects how pages are listed in reports.
type PageOrder string

const (
	OrderAsReported    PageOrder = "reported"
	OrderFailuresFirst PageOrder = "failures-first"
	OrderByName        PageOrder = "name"
)

// ParsePageOrder validates a page order name. An empty name selects
// OrderAsReported.
func ParsePageOrder(s string) (PageOrder, error) {
	switch PageOrder(s) {
	case "", OrderAsReported:
		return OrderAsReported, nil
	case OrderFailuresFirst, OrderByName:
		return PageOrder(s), nil
	}
	return "", fmt.Errorf("unknown page order %q", s)
}

// SortedPages returns a sorted copy of the result pages. The sort is stable so
// ties keep the order the runner reported them in.
func SortedPages(result *types.SuiteResult, order PageOrder) []types.PageResult {
	if result == nil {
		return nil
	}
	pages := make([]types.PageResult, len(result.Pages))
	copy(pages, result.Pages)

	switch order {
	case OrderFailuresFirst:
		sort.SliceStable(pages, func(i, j int) bool {
			return pageRank(pages[i]) < pageRank(pages[j])
		})
	case OrderByName:
		sort.SliceStable(pages, func(i, j int) bool {
			return pages[i].Name < pages[j].Name
		})
	}
	return pages
}

// pageRank puts exceptions before wrong pages before everything else.
func pageRank(p types.PageResult) int {
	switch {
	case p.Exceptions > 0:
		return 0
	case p.Wrong > 0:
		return 1
	default:
		return 2
	}
}
