package registry

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum-optimism/fitgate/reporting"
	"github.com/ethereum-optimism/fitgate/types"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

// SuitesConfig is the layout of a suites file:
//
//	defaults:
//	  endpoint: http://localhost:8080
//	  timeout_seconds: 600
//	suites:
//	  - suite: FrontPage.SuiteAcceptance
//	  - suite: FrontPage.SuiteSmoke
//	    endpoint: ./fitnesse-standalone.jar
//	    timeout_seconds: 120
type SuitesConfig struct {
	Defaults SuiteDefaults       `yaml:"defaults"`
	Suites   []types.SuiteRequest `yaml:"suites"`
}

// SuiteDefaults apply to every suite that does not set its own value.
type SuiteDefaults struct {
	Endpoint       string `yaml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Registry holds the validated list of suites to run.
type Registry struct {
	config Config
	suites []types.SuiteRequest
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log        log.Logger
	SuitesFile string
	// Suites are locators given on the command line; they run after the
	// suites from the file.
	Suites []string
	// Defaults used when neither the suite nor the file sets a value.
	DefaultEndpoint       string
	DefaultTimeoutSeconds int
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.SuitesFile == "" && len(cfg.Suites) == 0 {
		return nil, errors.New("no suites configured: pass --suite or --suites-file")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{config: cfg}
	if err := r.load(); err != nil {
		return nil, err
	}

	cfg.Log.Debug("Registry loaded", "len(suites)", len(r.suites))
	return r, nil
}

func (r *Registry) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	defaults := SuiteDefaults{
		Endpoint:       r.config.DefaultEndpoint,
		TimeoutSeconds: r.config.DefaultTimeoutSeconds,
	}

	var suites []types.SuiteRequest
	if r.config.SuitesFile != "" {
		fileCfg, err := loadConfig(r.config.SuitesFile)
		if err != nil {
			return fmt.Errorf("failed to load suites file: %w", err)
		}
		if fileCfg.Defaults.Endpoint != "" {
			defaults.Endpoint = resolveEndpoint(fileCfg.Defaults.Endpoint, r.config.SuitesFile)
		}
		if fileCfg.Defaults.TimeoutSeconds != 0 {
			defaults.TimeoutSeconds = fileCfg.Defaults.TimeoutSeconds
		}
		for _, s := range fileCfg.Suites {
			if s.RunnerEndpoint != "" {
				s.RunnerEndpoint = resolveEndpoint(s.RunnerEndpoint, r.config.SuitesFile)
			}
			suites = append(suites, s)
		}
	}
	for _, locator := range r.config.Suites {
		suites = append(suites, types.SuiteRequest{SuiteLocator: locator})
	}

	seen := make(map[string]struct{}, len(suites))
	artifacts := make(map[string]string, len(suites))
	for i := range suites {
		s := &suites[i]
		s.SuiteLocator = strings.TrimSpace(s.SuiteLocator)
		if s.RunnerEndpoint == "" {
			s.RunnerEndpoint = defaults.Endpoint
		}
		if s.TimeoutSeconds == 0 {
			s.TimeoutSeconds = defaults.TimeoutSeconds
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("suite #%d (%q): %w", i+1, s.SuiteLocator, err)
		}
		if _, dup := seen[s.SuiteLocator]; dup {
			return fmt.Errorf("suite %q is listed more than once", s.SuiteLocator)
		}
		seen[s.SuiteLocator] = struct{}{}

		name := reporting.ArtifactName(s.SuiteLocator)
		if other, clash := artifacts[name]; clash {
			return fmt.Errorf("suites %q and %q would both publish %s", other, s.SuiteLocator, name)
		}
		artifacts[name] = s.SuiteLocator
	}
	if len(suites) == 0 {
		return errors.New("no suites configured")
	}

	r.suites = suites
	return nil
}

func loadConfig(path string) (*SuitesConfig, error) {
	log.Debug("Reading suites file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suites file: %w", err)
	}

	var cfg SuitesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing suites file: %w", err)
	}
	return &cfg, nil
}

// resolveEndpoint makes relative jar and results paths in a suites file
// relative to the file itself. URLs are left alone.
func resolveEndpoint(endpoint, suitesFile string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return endpoint
	}
	if filepath.IsAbs(endpoint) {
		return endpoint
	}
	return filepath.Join(filepath.Dir(suitesFile), endpoint)
}

// Requests returns the suites to run, stamped with runID.
func (r *Registry) Requests(runID string) []types.SuiteRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.SuiteRequest, len(r.suites))
	for i, s := range r.suites {
		s.RunID = runID
		out[i] = s
	}
	return out
}

// Len is the number of configured suites.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.suites)
}
