package reporting

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum-optimism/fitgate/types"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/mod/semver"
)

// FormatVersion is written into every artifact. Readers accept any artifact
// with the same major version.
const FormatVersion = "v1.0.0"

const artifactExt = ".json"

// PublishErrorReason classifies a failed publish.
type PublishErrorReason string

const (
	PublishIOFailure    PublishErrorReason = "io_failure"
	PublishPathConflict PublishErrorReason = "path_conflict"
)

// PublishError is returned when the report artifact could not be written.
type PublishError struct {
	Reason PublishErrorReason
	Path   string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s (%s): %v", e.Path, e.Reason, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *PublishError) Unwrap() error {
	return e.Err
}

// RunInfo identifies the run an artifact belongs to.
type RunInfo struct {
	RunID          string
	Suite          string
	Verdict        types.Verdict
	DurationMillis int64
	StartedAt      time.Time
}

// Artifact is the on-disk report for one suite run.
type Artifact struct {
	FormatVersion  string             `json:"format_version"`
	RunID          string             `json:"run_id"`
	Suite          string             `json:"suite"`
	Verdict        types.Verdict      `json:"verdict"`
	StartedAt      time.Time          `json:"started_at"`
	DurationMillis int64              `json:"duration_ms"`
	Totals         types.Counts       `json:"totals"`
	Pages          []types.PageResult `json:"pages"`
}

// Result rebuilds the suite result the artifact was written from.
func (a *Artifact) Result() *types.SuiteResult {
	pages := a.Pages
	if pages == nil {
		pages = []types.PageResult{}
	}
	return &types.SuiteResult{Pages: pages, Totals: a.Totals}
}

// PublisherConfig holds configuration for creating a publisher.
type PublisherConfig struct {
	Log log.Logger
	// Overwrite replaces an existing artifact instead of failing with
	// PublishPathConflict.
	Overwrite bool
}

// Publisher writes report artifacts under a destination directory.
type Publisher struct {
	log       log.Logger
	overwrite bool
}

// NewPublisher creates a new report publisher
func NewPublisher(cfg PublisherConfig) *Publisher {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Publisher{log: cfg.Log, overwrite: cfg.Overwrite}
}

// Publish writes the result to <destination>/<run id>/<suite>.json and
// returns the path. The artifact appears atomically: readers never see a
// partially written file.
func (p *Publisher) Publish(result *types.SuiteResult, info RunInfo, destination string) (string, error) {
	if result == nil {
		return "", &PublishError{Reason: PublishIOFailure, Path: destination, Err: errors.New("no result to publish")}
	}
	if strings.TrimSpace(destination) == "" {
		return "", &PublishError{Reason: PublishIOFailure, Path: destination, Err: errors.New("destination is empty")}
	}

	path := ArtifactPath(destination, info.RunID, info.Suite)
	if !p.overwrite {
		if _, err := os.Lstat(path); err == nil {
			return "", &PublishError{Reason: PublishPathConflict, Path: path, Err: fs.ErrExist}
		}
	}

	pages := result.Pages
	if pages == nil {
		pages = []types.PageResult{}
	}
	data, err := json.MarshalIndent(Artifact{
		FormatVersion:  FormatVersion,
		RunID:          info.RunID,
		Suite:          info.Suite,
		Verdict:        info.Verdict,
		StartedAt:      info.StartedAt.UTC(),
		DurationMillis: info.DurationMillis,
		Totals:         result.Totals,
		Pages:          pages,
	}, "", "  ")
	if err != nil {
		return "", &PublishError{Reason: PublishIOFailure, Path: path, Err: fmt.Errorf("failed to encode artifact: %w", err)}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &PublishError{Reason: PublishIOFailure, Path: path, Err: fmt.Errorf("failed to create report directory: %w", err)}
	}
	if err := p.writeAtomic(dir, path, data); err != nil {
		return "", err
	}

	p.log.Info("Published report artifact", "path", path, "suite", info.Suite, "verdict", info.Verdict)
	return path, nil
}

// writeAtomic writes into a temp file in the target directory, then links it
// into place. Link fails if the target appeared in the meantime, which keeps
// concurrent publishers from clobbering each other.
func (p *Publisher) writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
	if err != nil {
		return &PublishError{Reason: PublishIOFailure, Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &PublishError{Reason: PublishIOFailure, Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &PublishError{Reason: PublishIOFailure, Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PublishError{Reason: PublishIOFailure, Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &PublishError{Reason: PublishIOFailure, Path: path, Err: err}
	}

	if p.overwrite {
		if err := os.Rename(tmpName, path); err != nil {
			return &PublishError{Reason: PublishIOFailure, Path: path, Err: err}
		}
		return nil
	}
	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &PublishError{Reason: PublishPathConflict, Path: path, Err: err}
		}
		return &PublishError{Reason: PublishIOFailure, Path: path, Err: err}
	}
	return nil
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ArtifactPath is where Publish writes the artifact of a run.
func ArtifactPath(destination, runID, suite string) string {
	return filepath.Join(destination, slug(runID, "run"), ArtifactName(suite))
}

// ArtifactName is the file name of a suite's artifact inside its run
// directory. Distinct locators can share a name, e.g. "Suite.A/B" and
// "Suite.A_B".
func ArtifactName(suite string) string {
	return slug(suite, "suite") + artifactExt
}

// slug turns a run id or suite locator into a single safe path element, e.g.
// "FrontPage.SuiteA?suiteFilter=smoke" becomes "FrontPage.SuiteA_suiteFilter_smoke".
func slug(s, fallback string) string {
	s = strings.Trim(unsafePathChars.ReplaceAllString(strings.TrimSpace(s), "_"), "_.")
	if s == "" {
		return fallback
	}
	return s
}

// ReadArtifact loads an artifact written by Publish.
func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}
	if !semver.IsValid(artifact.FormatVersion) {
		return nil, fmt.Errorf("artifact %s has invalid format version %q", path, artifact.FormatVersion)
	}
	if semver.Major(artifact.FormatVersion) != semver.Major(FormatVersion) {
		return nil, fmt.Errorf("artifact %s has unsupported format version %s (want %s.x)", path, artifact.FormatVersion, semver.Major(FormatVersion))
	}
	return &artifact, nil
}
