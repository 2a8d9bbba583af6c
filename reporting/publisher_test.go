package reporting

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum-optimism/fitgate/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult() *types.SuiteResult {
	pages := []types.PageResult{
		types.NewPageResult("SuiteA.PageOne", []types.AssertionOutcome{
			{Kind: types.OutcomeRight},
			{Kind: types.OutcomeWrong, Message: "expected [3] actual [4]"},
		}),
		types.NewMalformedPage("SuiteA.PageTwo", "cannot decode page"),
		types.NewPageResult("SuiteA.Empty", nil),
	}
	var totals types.Counts
	for _, p := range pages {
		totals = totals.Add(p.Counts)
	}
	return &types.SuiteResult{Pages: pages, Totals: totals}
}

func testInfo() RunInfo {
	return RunInfo{
		RunID:          "run-1",
		Suite:          "FrontPage.SuiteA",
		Verdict:        types.VerdictFail,
		DurationMillis: 1234,
		StartedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestPublisher(overwrite bool) *Publisher {
	return NewPublisher(PublisherConfig{Log: log.NewLogger(log.DiscardHandler()), Overwrite: overwrite})
}

func TestPublisher_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	result := testResult()

	path, err := newTestPublisher(false).Publish(result, testInfo(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-1", "FrontPage.SuiteA.json"), path)

	artifact, err := ReadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, artifact.FormatVersion)
	assert.Equal(t, "run-1", artifact.RunID)
	assert.Equal(t, "FrontPage.SuiteA", artifact.Suite)
	assert.Equal(t, types.VerdictFail, artifact.Verdict)
	assert.Equal(t, int64(1234), artifact.DurationMillis)
	assert.True(t, testInfo().StartedAt.Equal(artifact.StartedAt))

	got := artifact.Result()
	assert.Equal(t, result.Totals, got.Totals)
	require.Len(t, got.Pages, 3)
	for i := range result.Pages {
		assert.Equal(t, result.Pages[i], got.Pages[i])
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestPublisher_PathConflict(t *testing.T) {
	dir := t.TempDir()
	p := newTestPublisher(false)

	_, err := p.Publish(testResult(), testInfo(), dir)
	require.NoError(t, err)

	_, err = p.Publish(testResult(), testInfo(), dir)
	require.Error(t, err)
	var pubErr *PublishError
	require.True(t, errors.As(err, &pubErr))
	assert.Equal(t, PublishPathConflict, pubErr.Reason)
}

func TestPublisher_Overwrite(t *testing.T) {
	dir := t.TempDir()

	_, err := newTestPublisher(false).Publish(testResult(), testInfo(), dir)
	require.NoError(t, err)

	info := testInfo()
	info.Verdict = types.VerdictPass
	path, err := newTestPublisher(true).Publish(&types.SuiteResult{}, info, dir)
	require.NoError(t, err)

	artifact, err := ReadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictPass, artifact.Verdict)
	assert.Empty(t, artifact.Pages)
	assert.NotNil(t, artifact.Pages)
}

func TestPublisher_ConcurrentPublishersConflict(t *testing.T) {
	dir := t.TempDir()
	p := newTestPublisher(false)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Publish(testResult(), testInfo(), dir)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var pubErr *PublishError
		require.True(t, errors.As(err, &pubErr))
		assert.Equal(t, PublishPathConflict, pubErr.Reason)
	}
	assert.Equal(t, 1, succeeded)
}

func TestPublisher_IOFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := newTestPublisher(false).Publish(testResult(), testInfo(), blocker)
	require.Error(t, err)
	var pubErr *PublishError
	require.True(t, errors.As(err, &pubErr))
	assert.Equal(t, PublishIOFailure, pubErr.Reason)

	_, err = newTestPublisher(false).Publish(testResult(), testInfo(), "")
	require.True(t, errors.As(err, &pubErr))
	assert.Equal(t, PublishIOFailure, pubErr.Reason)
}

func TestArtifactPath_Slugs(t *testing.T) {
	tests := []struct {
		name  string
		runID string
		suite string
		want  string
	}{
		{"plain", "abc", "FrontPage.SuiteA", filepath.Join("out", "abc", "FrontPage.SuiteA.json")},
		{"query", "abc", "FrontPage.SuiteA?suiteFilter=smoke", filepath.Join("out", "abc", "FrontPage.SuiteA_suiteFilter_smoke.json")},
		{"traversal", "../../etc", "../passwd", filepath.Join("out", "etc", "passwd.json")},
		{"empty", "", "", filepath.Join("out", "run", "suite.json")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ArtifactPath("out", tt.runID, tt.suite))
		})
	}
}

func TestArtifactName_SharedBySimilarLocators(t *testing.T) {
	assert.Equal(t, "Suite.A_B.json", ArtifactName("Suite.A/B"))
	assert.Equal(t, ArtifactName("Suite.A/B"), ArtifactName("Suite.A_B"))
	assert.NotEqual(t, ArtifactName("Suite.A"), ArtifactName("Suite.B"))
}

func TestReadArtifact_RejectsUnknownMajor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"format_version":"v2.0.0","pages":[]}`), 0o644))
	_, err := ReadArtifact(path)
	assert.ErrorContains(t, err, "unsupported format version")

	require.NoError(t, os.WriteFile(path, []byte(`{"format_version":"1.0","pages":[]}`), 0o644))
	_, err = ReadArtifact(path)
	assert.ErrorContains(t, err, "invalid format version")

	require.NoError(t, os.WriteFile(path, []byte(`{"format_version":"v1.3.0","pages":[]}`), 0o644))
	_, err = ReadArtifact(path)
	assert.NoError(t, err)
}

func TestSummary(t *testing.T) {
	outcome := types.BuildOutcome{
		Verdict:    types.VerdictFail,
		Statistics: types.Counts{Right: 3, Wrong: 1, Exceptions: 1},
	}
	assert.Equal(t, "Right: 3, Wrong: 1, Ignored: 0, Exceptions: 1 (fail)", Summary(outcome))

	outcome = types.BuildOutcome{
		Verdict:    types.VerdictError,
		Diagnostic: "runner exited with status timeout\nstderr: boom",
	}
	assert.Equal(t, "Right: 0, Wrong: 0, Ignored: 0, Exceptions: 0 (error): runner exited with status timeout", Summary(outcome))
}
