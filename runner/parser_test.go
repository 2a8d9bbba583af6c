package runner

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum-optimism/fitgate/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fitnesseHeader = `<?xml version="1.0"?>
<testResults>
  <FitNesseVersion>v20240707</FitNesseVersion>
  <rootPath>SuiteAcceptance</rootPath>
`

const pageThreeRightOneWrong = `  <result>
    <counts><right>3</right><wrong>1</wrong><ignores>0</ignores><exceptions>0</exceptions></counts>
    <runTimeInMillis>12</runTimeInMillis>
    <content><![CDATA[<table><tr><td class="pass">1</td><td class="pass">2</td><td class="pass">3</td><td class="fail">4 <span class="fit_label">expected</span><hr/>5 <span class="fit_label">actual</span></td></tr></table>]]></content>
    <relativePageName>PageOne</relativePageName>
  </result>
`

const pageUndecodable = `  <result>
    <counts><right>x</right><wrong>0</wrong><ignores>0</ignores><exceptions>0</exceptions></counts>
    <relativePageName>PageTwo</relativePageName>
  </result>
`

const fitnesseFooter = `  <finalCounts><right>1</right><wrong>1</wrong><ignores>0</ignores><exceptions>0</exceptions></finalCounts>
</testResults>
`

func parse(t *testing.T, report string) (*types.SuiteResult, error) {
	t.Helper()
	return NewResultParser().Parse([]byte(report))
}

func requireParseError(t *testing.T, err error, reason ParseErrorReason) {
	t.Helper()
	require.Error(t, err)
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr), "expected ParseError, got %T: %v", err, err)
	assert.Equal(t, reason, parseErr.Reason)
	assert.True(t, IsParseError(err))
}

func TestParse_QuarantinesUndecodablePage(t *testing.T) {
	result, err := parse(t, fitnesseHeader+pageThreeRightOneWrong+pageUndecodable+fitnesseFooter)
	require.NoError(t, err)
	require.Len(t, result.Pages, 2)

	first := result.Pages[0]
	assert.Equal(t, "PageOne", first.Name)
	assert.Equal(t, types.Counts{Right: 3, Wrong: 1}, first.Counts)
	require.Len(t, first.Outcomes, 4)
	assert.Equal(t, types.AssertionOutcome{Kind: types.OutcomeRight}, first.Outcomes[0])
	assert.Equal(t, types.OutcomeWrong, first.Outcomes[3].Kind)
	assert.Equal(t, "4 expected 5 actual", first.Outcomes[3].Message)

	second := result.Pages[1]
	assert.Equal(t, "PageTwo", second.Name)
	assert.True(t, second.Malformed)
	assert.Equal(t, types.Counts{Exceptions: 1}, second.Counts)
	assert.Empty(t, second.Outcomes)

	// Totals are what the runner claimed; Aggregate recomputes them.
	assert.Equal(t, types.Counts{Right: 1, Wrong: 1}, result.Totals)
	agg, err := Aggregate(result)
	require.NoError(t, err)
	assert.Equal(t, types.Counts{Right: 3, Wrong: 1, Exceptions: 1}, agg.Totals)
	assert.Equal(t, types.VerdictFail, Verdict(agg))
}

func TestParse_Deterministic(t *testing.T) {
	report := fitnesseHeader + pageThreeRightOneWrong + pageUndecodable + pageThreeRightOneWrong + fitnesseFooter
	first, err := parse(t, report)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := parse(t, report)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	require.Len(t, first.Pages, 3)
	assert.Equal(t, []string{"PageOne", "PageTwo", "PageOne"},
		[]string{first.Pages[0].Name, first.Pages[1].Name, first.Pages[2].Name})
}

func TestParse_EmptySuite(t *testing.T) {
	result, err := parse(t, fitnesseHeader+"</testResults>\n")
	require.NoError(t, err)
	assert.Empty(t, result.Pages)
	assert.NotNil(t, result.Pages)
	assert.Equal(t, types.VerdictPass, Verdict(result))
}

func TestParse_PageWithoutAssertions(t *testing.T) {
	page := `<result>
    <counts><right>0</right><wrong>0</wrong><ignores>0</ignores><exceptions>0</exceptions></counts>
    <content>&lt;p&gt;Just a description&lt;/p&gt;</content>
    <relativePageName>Notes</relativePageName>
  </result>`
	result, err := parse(t, fitnesseHeader+page+fitnesseFooter)
	require.NoError(t, err)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, "Notes", result.Pages[0].Name)
	assert.Empty(t, result.Pages[0].Outcomes)
	assert.False(t, result.Pages[0].Failed())
}

func TestParse_EscapedContent(t *testing.T) {
	page := `<result>
    <counts><right>1</right><wrong>0</wrong><ignores>1</ignores><exceptions>1</exceptions></counts>
    <content>&lt;td class="pass"&gt;ok&lt;/td&gt;&lt;td class="ignore"&gt;skipped&lt;/td&gt;&lt;td class="error"&gt;java.lang.NullPointerException&lt;/td&gt;</content>
    <relativePageName>Escaped</relativePageName>
  </result>`
	result, err := parse(t, fitnesseHeader+page+fitnesseFooter)
	require.NoError(t, err)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, []types.AssertionOutcome{
		{Kind: types.OutcomeRight},
		{Kind: types.OutcomeIgnored, Message: "skipped"},
		{Kind: types.OutcomeException, Message: "java.lang.NullPointerException"},
	}, result.Pages[0].Outcomes)
	assert.Equal(t, types.Counts{Right: 1, Ignored: 1, Exceptions: 1}, result.Pages[0].Counts)
}

func TestParse_CountsWithoutContent(t *testing.T) {
	page := `<result>
    <counts><right>2</right><wrong>0</wrong><ignores>1</ignores><exceptions>0</exceptions></counts>
    <relativePageName>CountsOnly</relativePageName>
  </result>`
	result, err := parse(t, fitnesseHeader+page+fitnesseFooter)
	require.NoError(t, err)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, types.Counts{Right: 2, Ignored: 1}, result.Pages[0].Counts)
	assert.Len(t, result.Pages[0].Outcomes, 3)
	assert.Equal(t, types.VerdictPass, Verdict(result))
}

func TestParse_NegativeCountQuarantinesPage(t *testing.T) {
	page := `<result>
    <counts><right>-1</right><wrong>0</wrong><ignores>0</ignores><exceptions>0</exceptions></counts>
    <relativePageName>Broken</relativePageName>
  </result>`
	result, err := parse(t, fitnesseHeader+page+fitnesseFooter)
	require.NoError(t, err)
	require.Len(t, result.Pages, 1)
	assert.True(t, result.Pages[0].Malformed)
	assert.Equal(t, "Broken", result.Pages[0].Name)
}

func TestParse_OversizedCountsQuarantinePage(t *testing.T) {
	countsPage := func(name, counts string) string {
		return `<result><counts>` + counts + `</counts><relativePageName>` + name + `</relativePageName></result>`
	}
	tests := []struct {
		name   string
		counts string
		detail string
	}{
		{
			name:   "sum overflows",
			counts: `<right>9223372036854775807</right><wrong>1</wrong><ignores>0</ignores><exceptions>0</exceptions>`,
			detail: "exceeds",
		},
		{
			name:   "single huge count",
			counts: `<right>2000000000</right><wrong>0</wrong><ignores>0</ignores><exceptions>0</exceptions>`,
			detail: "exceeds",
		},
		{
			name:   "total over the page cap",
			counts: `<right>600000</right><wrong>600000</wrong><ignores>0</ignores><exceptions>0</exceptions>`,
			detail: "more than",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := fitnesseHeader + countsPage("Huge", tt.counts) + pageThreeRightOneWrong + fitnesseFooter
			var result *types.SuiteResult
			var err error
			require.NotPanics(t, func() { result, err = parse(t, report) })
			require.NoError(t, err)
			require.Len(t, result.Pages, 2)

			huge := result.Pages[0]
			assert.Equal(t, "Huge", huge.Name)
			assert.True(t, huge.Malformed)
			assert.Equal(t, types.Counts{Exceptions: 1}, huge.Counts)
			assert.Contains(t, huge.Detail, tt.detail)
			assert.False(t, result.Pages[1].Malformed)
		})
	}

	t.Run("counts at the cap still expand", func(t *testing.T) {
		counts := `<right>999999</right><wrong>1</wrong><ignores>0</ignores><exceptions>0</exceptions>`
		result, err := parse(t, fitnesseHeader+countsPage("Big", counts)+fitnesseFooter)
		require.NoError(t, err)
		require.Len(t, result.Pages, 1)
		assert.False(t, result.Pages[0].Malformed)
		assert.Equal(t, types.Counts{Right: 999999, Wrong: 1}, result.Pages[0].Counts)
		assert.Len(t, result.Pages[0].Outcomes, 1_000_000)
	})
}

func TestParse_UnterminatedPages(t *testing.T) {
	t.Run("truncated after a complete page", func(t *testing.T) {
		report := fitnesseHeader + pageThreeRightOneWrong + `<result><counts><right>1</right>`
		result, err := parse(t, report)
		require.NoError(t, err)
		require.Len(t, result.Pages, 2)
		assert.False(t, result.Pages[0].Malformed)
		assert.True(t, result.Pages[1].Malformed)
		assert.Equal(t, "page-2", result.Pages[1].Name)
	})

	t.Run("page missing its close before the next page", func(t *testing.T) {
		broken := `<result><counts><right>1</right></counts><relativePageName>Unclosed</relativePageName>`
		report := fitnesseHeader + broken + pageThreeRightOneWrong + fitnesseFooter
		result, err := parse(t, report)
		require.NoError(t, err)
		require.Len(t, result.Pages, 2)
		assert.True(t, result.Pages[0].Malformed)
		assert.Equal(t, "Unclosed", result.Pages[0].Name)
		assert.Equal(t, "PageOne", result.Pages[1].Name)
		assert.Equal(t, types.Counts{Right: 3, Wrong: 1}, result.Pages[1].Counts)
	})
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		report string
		reason ParseErrorReason
	}{
		{"empty output", "", ParseUnknownFormat},
		{"plain text", "Exception in thread \"main\" java.lang.RuntimeException", ParseUnknownFormat},
		{"html error page", "<html><body>Internal error</body></html>", ParseUnknownFormat},
		{"truncated inside first page", fitnesseHeader + `<result><counts><right>1</right>`, ParseTruncated},
		{"truncated before first page", fitnesseHeader, ParseTruncated},
		{"truncated mid tag", `<testResults><rootPa`, ParseTruncated},
		{"malformed prologue", `<testResults><rootPath a=>x</rootPath>`, ParseMalformed},
		{"unsupported encoding", `<?xml version="1.0" encoding="x-no-such"?><testResults></testResults>`, ParseMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parse(t, tt.report)
			assert.Nil(t, result)
			requireParseError(t, err, tt.reason)
		})
	}
}

func TestParse_SkipsBannerBeforeReport(t *testing.T) {
	report := "FitNesse (v20240707) Started...\nport: 9123\n" + fitnesseHeader + pageThreeRightOneWrong + fitnesseFooter
	result, err := parse(t, report)
	require.NoError(t, err)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, "PageOne", result.Pages[0].Name)
}

func TestParse_DeclaredEncoding(t *testing.T) {
	report := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<testResults>\n" +
		"<result><counts><right>1</right><wrong>0</wrong><ignores>0</ignores><exceptions>0</exceptions></counts>" +
		"<relativePageName>Caf\xe9</relativePageName></result>\n</testResults>\n"
	result, err := parse(t, report)
	require.NoError(t, err)
	require.Len(t, result.Pages, 1)
	assert.False(t, result.Pages[0].Malformed)
	assert.Equal(t, "Café", result.Pages[0].Name)
}

func TestParse_JUnit(t *testing.T) {
	report := `<?xml version="1.0" encoding="UTF-8"?>
<testsuite name="SuiteAcceptance" tests="4" failures="1" errors="1" skipped="1">
  <testcase name="PageOne" classname="SuiteAcceptance" time="0.1"/>
  <testcase name="PageTwo" classname="SuiteAcceptance">
    <failure message="expected [3] actual [4]" type="java.lang.AssertionError"/>
  </testcase>
  <testcase classname="SuiteAcceptance.PageThree">
    <error message="">java.lang.NullPointerException
      at Fixture.check</error>
  </testcase>
  <testcase name="PageFour"><skipped/></testcase>
</testsuite>`
	result, err := parse(t, report)
	require.NoError(t, err)
	require.Len(t, result.Pages, 4)

	assert.Equal(t, "PageOne", result.Pages[0].Name)
	assert.Equal(t, types.Counts{Right: 1}, result.Pages[0].Counts)

	assert.Equal(t, []types.AssertionOutcome{{Kind: types.OutcomeWrong, Message: "expected [3] actual [4]"}}, result.Pages[1].Outcomes)

	assert.Equal(t, "SuiteAcceptance.PageThree", result.Pages[2].Name)
	assert.Equal(t, types.OutcomeException, result.Pages[2].Outcomes[0].Kind)
	assert.Equal(t, "java.lang.NullPointerException at Fixture.check", result.Pages[2].Outcomes[0].Message)

	assert.Equal(t, types.Counts{Ignored: 1}, result.Pages[3].Counts)

	assert.Equal(t, types.Counts{Right: 1, Wrong: 1, Ignored: 1, Exceptions: 1}, result.Totals)
	assert.Equal(t, types.VerdictFail, Verdict(result))
}

func TestParse_JUnitTruncated(t *testing.T) {
	t.Run("after a test case", func(t *testing.T) {
		report := `<testsuites><testsuite name="S" tests="2"><testcase name="A"/><testcase name="B"><failure message="bo`
		result, err := parse(t, report)
		require.NoError(t, err)
		require.Len(t, result.Pages, 2)
		assert.Equal(t, "A", result.Pages[0].Name)
		assert.True(t, result.Pages[1].Malformed)
	})

	t.Run("before any test case", func(t *testing.T) {
		_, err := parse(t, `<testsuite name="S" tests="2">`)
		requireParseError(t, err, ParseTruncated)
	})
}

func TestScanContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []types.AssertionOutcome
	}{
		{
			name:    "no markup",
			content: "   ",
			want:    nil,
		},
		{
			name:    "nested marker belongs to the outer cell",
			content: `<td class="fail">a <span class="pass">b</span></td>`,
			want:    []types.AssertionOutcome{{Kind: types.OutcomeWrong, Message: "a b"}},
		},
		{
			name:    "multiple classes",
			content: `<td class="left PASS">x</td>`,
			want:    []types.AssertionOutcome{{Kind: types.OutcomeRight}},
		},
		{
			name:    "unterminated marker still counts",
			content: `<td class="error">boom`,
			want:    []types.AssertionOutcome{{Kind: types.OutcomeException, Message: "boom"}},
		},
		{
			name:    "line breaks become spaces",
			content: `<td class="fail">first<br>second</td>`,
			want:    []types.AssertionOutcome{{Kind: types.OutcomeWrong, Message: "first second"}},
		},
		{
			name:    "exception marker without classification",
			content: `<div class="error">Could not invoke constructor for MyFixture</div><td>plain</td>`,
			want:    []types.AssertionOutcome{{Kind: types.OutcomeException, Message: "Could not invoke constructor for MyFixture"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scanContent(tt.content))
		})
	}
}

func TestScanContent_TruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("é", maxMessageRunes+10)
	outcomes := scanContent(`<td class="fail">` + long + `</td>`)
	require.Len(t, outcomes, 1)
	assert.Equal(t, strings.Repeat("é", maxMessageRunes)+"...", outcomes[0].Message)
}
