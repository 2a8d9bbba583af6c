package runner

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/ethereum-optimism/fitgate/types"
)

var _ ResultParser = (*reportParser)(nil)

// ResultParser turns a raw runner report into a SuiteResult.
type ResultParser interface {
	Parse(output []byte) (*types.SuiteResult, error)
}

// ParseErrorReason says why a report could not be read at all.
type ParseErrorReason string

const (
	ParseMalformed     ParseErrorReason = "malformed"
	ParseTruncated     ParseErrorReason = "truncated"
	ParseUnknownFormat ParseErrorReason = "unknown_format"
)

// ParseError is returned when a report has no readable page boundary.
type ParseError struct {
	Reason ParseErrorReason
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse error (%s)", e.Reason)
	}
	return fmt.Sprintf("parse error (%s): %v", e.Reason, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError checks if the error is or wraps a ParseError
func IsParseError(err error) bool {
	var parseErr *ParseError
	return err != nil && errors.As(err, &parseErr)
}

// Report root elements
const (
	rootFitnesse = "testResults"
	rootJUnit    = "testsuite"
	rootJUnitSet = "testsuites"
)

var (
	pageOpen    = []byte("<result>")
	pageClose   = []byte("</result>")
	rootClose   = []byte("</" + rootFitnesse + ">")
	rootMarkers = [][]byte{[]byte("<?xml"), []byte("<" + rootFitnesse), []byte("<" + rootJUnitSet), []byte("<" + rootJUnit)}

	encodingPattern    = regexp.MustCompile(`^<\?xml[^>]*?encoding\s*=\s*["']([^"']+)["']`)
	pageNamePattern    = regexp.MustCompile(`(?s)<relativePageName>\s*(.*?)\s*</relativePageName>`)
	finalCountsPattern = regexp.MustCompile(`(?s)<finalCounts>.*?</finalCounts>`)
)

// reportParser implements ResultParser
type reportParser struct{}

// NewResultParser creates a parser for FitNesse XML and JUnit reports.
func NewResultParser() ResultParser {
	return &reportParser{}
}

// Parse reads the report page by page. Pages that cannot be decoded are kept
// as quarantined pages; only a report without any readable page boundary
// fails. Totals on the returned result are the ones the report claims and
// are recomputed by Aggregate.
func (p *reportParser) Parse(output []byte) (*types.SuiteResult, error) {
	doc, err := toUTF8(trimPreamble(output))
	if err != nil {
		return nil, &ParseError{Reason: ParseMalformed, Err: err}
	}

	root, err := rootElement(doc)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Reason: ParseUnknownFormat, Err: errors.New("no report root element found")}
		}
		return nil, &ParseError{Reason: tokenErrorReason(err), Err: err}
	}

	var (
		pages    []types.PageResult
		reported types.Counts
	)
	switch root {
	case rootFitnesse:
		pages, reported, err = parseFitnesseReport(doc)
	case rootJUnit, rootJUnitSet:
		pages, reported, err = parseJUnitReport(doc)
	default:
		return nil, &ParseError{Reason: ParseUnknownFormat, Err: fmt.Errorf("unexpected root element <%s>", root)}
	}
	if err != nil {
		return nil, err
	}

	for _, page := range pages {
		if err := page.CheckCounts(); err != nil {
			return nil, &ParseError{Reason: ParseMalformed, Err: err}
		}
	}
	return &types.SuiteResult{Pages: pages, Totals: reported}, nil
}

// trimPreamble drops banner lines the runner prints before the XML document.
func trimPreamble(output []byte) []byte {
	output = bytes.TrimPrefix(output, []byte("\xef\xbb\xbf"))
	start := -1
	for _, marker := range rootMarkers {
		if idx := bytes.Index(output, marker); idx >= 0 && (start < 0 || idx < start) {
			start = idx
		}
	}
	if start < 0 {
		return output
	}
	return output[start:]
}

// rootElement returns the name of the first element in doc, or io.EOF when
// there is none.
func rootElement(doc []byte) (string, error) {
	d := newDecoder(doc)
	for {
		tok, err := d.RawToken()
		if err != nil {
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

// parseFitnesseReport splits a <testResults> document on <result> page
// boundaries and decodes each page on its own.
func parseFitnesseReport(doc []byte) ([]types.PageResult, types.Counts, error) {
	first := bytes.Index(doc, pageOpen)

	header := doc
	if first >= 0 {
		header = doc[:first]
	}
	if err := checkWellFormed(header); err != nil {
		return nil, types.Counts{}, &ParseError{Reason: tokenErrorReason(err), Err: fmt.Errorf("report header: %w", err)}
	}

	if first < 0 {
		if bytes.Contains(doc, rootClose) {
			return []types.PageResult{}, reportedTotals(doc), nil
		}
		return nil, types.Counts{}, &ParseError{Reason: ParseTruncated, Err: errors.New("report ended before the first page")}
	}

	pages := []types.PageResult{}
	rest := doc[first:]
	for {
		start := bytes.Index(rest, pageOpen)
		if start < 0 {
			break
		}
		rest = rest[start:]

		end := bytes.Index(rest, pageClose)
		next := bytes.Index(rest[len(pageOpen):], pageOpen)
		if next >= 0 {
			next += len(pageOpen)
		}

		if end < 0 || (next >= 0 && next < end) {
			// The page never closes before the stream ends or the next page
			// begins.
			if next < 0 && len(pages) == 0 {
				return nil, types.Counts{}, &ParseError{Reason: ParseTruncated, Err: errors.New("report ended inside the first page")}
			}
			chunk := rest
			if next >= 0 {
				chunk = rest[:next]
			}
			pages = append(pages, types.NewMalformedPage(pageName(chunk, len(pages)), "page is not terminated"))
			if next < 0 {
				rest = nil
				break
			}
			rest = rest[next:]
			continue
		}

		chunk := rest[:end+len(pageClose)]
		pages = append(pages, decodeFitnessePage(chunk, len(pages)))
		rest = rest[end+len(pageClose):]
	}

	return pages, reportedTotals(rest), nil
}

// fitnessePage is one <result> element of a FitNesse XML report.
type fitnessePage struct {
	XMLName          xml.Name     `xml:"result"`
	Counts           *fitnesseCnt `xml:"counts"`
	RunTimeInMillis  string       `xml:"runTimeInMillis"`
	Content          string       `xml:"content"`
	RelativePageName string       `xml:"relativePageName"`
}

type fitnesseCnt struct {
	Right      int `xml:"right"`
	Wrong      int `xml:"wrong"`
	Ignores    int `xml:"ignores"`
	Exceptions int `xml:"exceptions"`
}

func (c fitnesseCnt) counts() types.Counts {
	return types.Counts{Right: c.Right, Wrong: c.Wrong, Ignored: c.Ignores, Exceptions: c.Exceptions}
}

func (c fitnesseCnt) validate() error {
	if c.Right < 0 || c.Wrong < 0 || c.Ignores < 0 || c.Exceptions < 0 {
		return fmt.Errorf("negative count in {%s}", c.counts())
	}
	for _, n := range []int{c.Right, c.Wrong, c.Ignores, c.Exceptions} {
		if n > maxPageAssertions {
			return fmt.Errorf("count %d exceeds %d assertions per page", n, maxPageAssertions)
		}
	}
	if total := c.counts().Total(); total > maxPageAssertions {
		return fmt.Errorf("page claims %d assertions, more than %d", total, maxPageAssertions)
	}
	return nil
}

// decodeFitnessePage decodes a single <result>...</result> chunk. Any failure
// quarantines the page instead of aborting the report.
func decodeFitnessePage(chunk []byte, index int) types.PageResult {
	var page fitnessePage
	if err := newDecoder(chunk).Decode(&page); err != nil {
		return types.NewMalformedPage(pageName(chunk, index), fmt.Sprintf("cannot decode page: %v", err))
	}

	name := strings.TrimSpace(page.RelativePageName)
	if name == "" {
		name = fallbackPageName(index)
	}

	if page.Counts != nil {
		if err := page.Counts.validate(); err != nil {
			return types.NewMalformedPage(name, err.Error())
		}
	}

	outcomes := scanContent(page.Content)
	if len(outcomes) == 0 && page.Counts != nil {
		outcomes = outcomesFromCounts(page.Counts.counts())
	}
	return types.NewPageResult(name, outcomes)
}

// outcomesFromCounts stands in for pages whose report carries counts but no
// cell markers, e.g. when the runner was asked for XML without HTML.
func outcomesFromCounts(c types.Counts) []types.AssertionOutcome {
	outcomes := make([]types.AssertionOutcome, 0, c.Total())
	appendN := func(kind types.OutcomeKind, n int) {
		for j := 0; j < n; j++ {
			outcomes = append(outcomes, types.AssertionOutcome{Kind: kind})
		}
	}
	appendN(types.OutcomeRight, c.Right)
	appendN(types.OutcomeWrong, c.Wrong)
	appendN(types.OutcomeIgnored, c.Ignored)
	appendN(types.OutcomeException, c.Exceptions)
	return outcomes
}

// reportedTotals reads the <finalCounts> block the runner claims for the
// suite, if any.
func reportedTotals(tail []byte) types.Counts {
	block := finalCountsPattern.Find(tail)
	if block == nil {
		return types.Counts{}
	}
	var final fitnesseCnt
	if err := newDecoder(block).Decode(&final); err != nil {
		return types.Counts{}
	}
	return final.counts()
}

func pageName(chunk []byte, index int) string {
	if m := pageNamePattern.FindSubmatch(chunk); m != nil {
		if name := strings.TrimSpace(string(m[1])); name != "" && !strings.ContainsAny(name, "<>") {
			return name
		}
	}
	return fallbackPageName(index)
}

func fallbackPageName(index int) string {
	return fmt.Sprintf("page-%d", index+1)
}

// checkWellFormed tokenizes a document fragment without requiring its
// elements to be closed.
func checkWellFormed(fragment []byte) error {
	d := newDecoder(fragment)
	for {
		_, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// tokenErrorReason tells a stream that stopped mid-token from one that is
// not XML at all.
func tokenErrorReason(err error) ParseErrorReason {
	if isTruncation(err) {
		return ParseTruncated
	}
	return ParseMalformed
}

func isTruncation(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var syntaxErr *xml.SyntaxError
	return errors.As(err, &syntaxErr) && strings.Contains(syntaxErr.Msg, "unexpected EOF")
}

// toUTF8 transcodes a document that declares a non UTF-8 encoding. Pages
// are decoded separately and lose the declaration, so this happens once up
// front.
func toUTF8(doc []byte) ([]byte, error) {
	m := encodingPattern.FindSubmatch(doc)
	if m == nil {
		return doc, nil
	}
	label := strings.ToLower(strings.TrimSpace(string(m[1])))
	if label == "utf-8" || label == "utf8" {
		return doc, nil
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("unsupported report encoding %q: %w", label, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to transcode report from %q: %w", label, err)
	}
	return out, nil
}

func newDecoder(data []byte) *xml.Decoder {
	d := xml.NewDecoder(bytes.NewReader(data))
	// Documents are already UTF-8 by the time they are decoded.
	d.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) {
		return r, nil
	}
	return d
}
