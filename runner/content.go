package runner

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ethereum-optimism/fitgate/types"
)

// Cell classes FitNesse puts on checked table cells.
var markerClasses = map[string]types.OutcomeKind{
	"pass":   types.OutcomeRight,
	"fail":   types.OutcomeWrong,
	"ignore": types.OutcomeIgnored,
	"error":  types.OutcomeException,
}

var voidElements = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Source: true, atom.Track: true,
	atom.Wbr: true,
}

// openMarker is the marker element whose text is being captured.
type openMarker struct {
	kind  types.OutcomeKind
	depth int
	text  strings.Builder
}

// scanContent walks the rendered page HTML and returns one outcome per marker
// element, in document order. Markers nested inside another marker belong to
// the outer one.
func scanContent(content string) []types.AssertionOutcome {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var (
		outcomes []types.AssertionOutcome
		current  *openMarker
	)
	emit := func() {
		outcomes = append(outcomes, newOutcome(current.kind, current.text.String()))
		current = nil
	}

	z := html.NewTokenizer(strings.NewReader(content))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// EOF or broken markup: whatever was opened still counts.
			if current != nil {
				emit()
			}
			return outcomes

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			void := tt == html.SelfClosingTagToken || voidElements[tok.DataAtom]
			if current != nil {
				if !void {
					current.depth++
				}
				if tok.DataAtom == atom.Br {
					current.text.WriteByte(' ')
				}
				continue
			}
			kind, ok := markerKind(tok)
			if !ok {
				continue
			}
			current = &openMarker{kind: kind}
			if void {
				emit()
			}

		case html.EndTagToken:
			if current == nil {
				continue
			}
			current.depth--
			if current.depth < 0 {
				emit()
			} else {
				current.text.WriteByte(' ')
			}

		case html.TextToken:
			if current != nil {
				current.text.Write(z.Text())
			}
		}
	}
}

func markerKind(tok html.Token) (types.OutcomeKind, bool) {
	for _, attr := range tok.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, class := range strings.Fields(attr.Val) {
			if kind, ok := markerClasses[strings.ToLower(class)]; ok {
				return kind, true
			}
		}
	}
	return "", false
}

func newOutcome(kind types.OutcomeKind, text string) types.AssertionOutcome {
	if kind == types.OutcomeRight {
		return types.AssertionOutcome{Kind: kind}
	}
	return types.AssertionOutcome{Kind: kind, Message: truncateRunes(strings.Join(strings.Fields(text), " "), maxMessageRunes)}
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
