package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ExitStatus classifies how an invocation of the external runner ended.
type ExitStatus string

const (
	ExitSuccess      ExitStatus = "success"
	ExitTimeout      ExitStatus = "timeout"
	ExitProcessError ExitStatus = "process_error"
	ExitNetworkError ExitStatus = "network_error"
)

// SuiteRequest describes a single suite run. It is created once by the caller
// and never modified afterwards.
type SuiteRequest struct {
	SuiteLocator   string `yaml:"suite"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	RunnerEndpoint string `yaml:"endpoint"`

	// RunID partitions published artifacts. Empty means the controller
	// assigns one.
	RunID string `yaml:"-"`
}

// Validate checks that the request can be handed to an invoker.
func (r SuiteRequest) Validate() error {
	if strings.TrimSpace(r.SuiteLocator) == "" {
		return errors.New("suite locator is required")
	}
	if strings.TrimSpace(r.RunnerEndpoint) == "" {
		return errors.New("runner endpoint is required")
	}
	if r.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", r.TimeoutSeconds)
	}
	return nil
}

// Timeout returns the execution budget as a duration.
func (r SuiteRequest) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// RawRunOutput is what an invoker hands to the parser. It is discarded once
// parsing is done.
type RawRunOutput struct {
	ExitStatus     ExitStatus
	Bytes          []byte
	DurationMillis int64

	// Detail carries a human readable diagnostic for non-success statuses.
	Detail string
}
