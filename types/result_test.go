package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounts(t *testing.T) {
	a := Counts{Right: 3, Wrong: 1}
	b := Counts{Ignored: 2, Exceptions: 1}
	sum := a.Add(b)
	assert.Equal(t, Counts{Right: 3, Wrong: 1, Ignored: 2, Exceptions: 1}, sum)
	assert.Equal(t, 7, sum.Total())
	assert.Equal(t, "Right: 3, Wrong: 1, Ignored: 2, Exceptions: 1", sum.String())
}

func TestNewPageResult(t *testing.T) {
	p := NewPageResult("PageOne", []AssertionOutcome{
		{Kind: OutcomeRight},
		{Kind: OutcomeWrong, Message: "expected 1"},
		{Kind: OutcomeIgnored},
		{Kind: OutcomeRight},
	})
	assert.Equal(t, Counts{Right: 2, Wrong: 1, Ignored: 1}, p.Counts)
	assert.NoError(t, p.CheckCounts())
	assert.True(t, p.Failed())

	empty := NewPageResult("Empty", nil)
	require.NotNil(t, empty.Outcomes)
	assert.NoError(t, empty.CheckCounts())
	assert.False(t, empty.Failed())
}

func TestCheckCounts(t *testing.T) {
	p := NewPageResult("PageOne", []AssertionOutcome{{Kind: OutcomeRight}})
	p.Right = 2
	assert.ErrorContains(t, p.CheckCounts(), "disagree with outcomes")

	m := NewMalformedPage("Broken", "bad counts")
	assert.NoError(t, m.CheckCounts())
	assert.True(t, m.Failed())

	m.Outcomes = append(m.Outcomes, AssertionOutcome{Kind: OutcomeRight})
	assert.ErrorContains(t, m.CheckCounts(), "malformed page")
}
