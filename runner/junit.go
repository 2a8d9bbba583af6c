package runner

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ethereum-optimism/fitgate/types"
)

// junitCase is one <testcase>; FitNesse writes one per test page when asked
// for format=junit.
type junitCase struct {
	Name      string         `xml:"name,attr"`
	Classname string         `xml:"classname,attr"`
	Failures  []junitMessage `xml:"failure"`
	Errors    []junitMessage `xml:"error"`
	Skipped   *junitMessage  `xml:"skipped"`
}

type junitMessage struct {
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

func (m junitMessage) text() string {
	msg := strings.TrimSpace(m.Message)
	if msg == "" {
		msg = strings.TrimSpace(m.Text)
	}
	return truncateRunes(strings.Join(strings.Fields(msg), " "), maxMessageRunes)
}

func (c junitCase) page(index int) types.PageResult {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = strings.TrimSpace(c.Classname)
	}
	if name == "" {
		name = fallbackPageName(index)
	}

	var outcomes []types.AssertionOutcome
	for _, f := range c.Failures {
		outcomes = append(outcomes, types.AssertionOutcome{Kind: types.OutcomeWrong, Message: f.text()})
	}
	for _, e := range c.Errors {
		outcomes = append(outcomes, types.AssertionOutcome{Kind: types.OutcomeException, Message: e.text()})
	}
	if len(outcomes) == 0 {
		if c.Skipped != nil {
			outcomes = append(outcomes, types.AssertionOutcome{Kind: types.OutcomeIgnored, Message: c.Skipped.text()})
		} else {
			outcomes = append(outcomes, types.AssertionOutcome{Kind: types.OutcomeRight})
		}
	}
	return types.NewPageResult(name, outcomes)
}

// parseJUnitReport streams a <testsuite> or <testsuites> document. Once at
// least one test case has been read, a corrupt remainder becomes a single
// quarantined page.
func parseJUnitReport(doc []byte) ([]types.PageResult, types.Counts, error) {
	d := newDecoder(doc)
	pages := []types.PageResult{}
	var reported types.Counts

	corrupt := func(err error) ([]types.PageResult, types.Counts, error) {
		if len(pages) == 0 {
			return nil, types.Counts{}, &ParseError{Reason: tokenErrorReason(err), Err: err}
		}
		pages = append(pages, types.NewMalformedPage(fallbackPageName(len(pages)), fmt.Sprintf("report is unreadable past this point: %v", err)))
		return pages, reported, nil
	}

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return corrupt(err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case rootJUnit:
			reported = reported.Add(suiteAttrCounts(se))
		case "testcase":
			var tc junitCase
			if err := d.DecodeElement(&tc, &se); err != nil {
				return corrupt(err)
			}
			pages = append(pages, tc.page(len(pages)))
		}
	}
	return pages, reported, nil
}

// suiteAttrCounts reads the totals a <testsuite> element claims.
func suiteAttrCounts(se xml.StartElement) types.Counts {
	var tests, failures, errs, skipped int
	for _, attr := range se.Attr {
		n, err := strconv.Atoi(strings.TrimSpace(attr.Value))
		if err != nil || n < 0 {
			continue
		}
		switch attr.Name.Local {
		case "tests":
			tests = n
		case "failures":
			failures = n
		case "errors":
			errs = n
		case "skipped", "disabled":
			skipped += n
		}
	}
	right := tests - failures - errs - skipped
	if right < 0 {
		right = 0
	}
	return types.Counts{Right: right, Wrong: failures, Ignored: skipped, Exceptions: errs}
}
