package fitgate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/fitgate/exitcodes"
	"github.com/ethereum-optimism/fitgate/metrics"
	"github.com/ethereum-optimism/fitgate/registry"
	"github.com/ethereum-optimism/fitgate/reporting"
	"github.com/ethereum-optimism/fitgate/runner"
	"github.com/ethereum-optimism/fitgate/service"
	"github.com/ethereum-optimism/fitgate/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

var (
	_ cliapp.Lifecycle     = (*Gate)(nil)
	_ service.StatusSource = (*Gate)(nil)
)

// Gate runs the configured FitNesse suites once, or periodically, and turns
// their outcomes into the exit status of the build step.
type Gate struct {
	ctx        context.Context
	config     *Config
	version    string
	registry   *registry.Registry
	controller *runner.StepController
	service    *service.Service

	mu     sync.RWMutex
	latest []types.BuildOutcome

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New wires the registry, invoker, publisher and step controller.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Gate, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Stdout == nil {
		config.Stdout = os.Stdout
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating gate with config",
		"suitesFile", config.SuitesFile,
		"suites", config.Suites,
		"reportDir", config.ReportDir,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"concurrency", config.Concurrency)

	reg, err := registry.NewRegistry(registry.Config{
		Log:                   config.Log,
		SuitesFile:            config.SuitesFile,
		Suites:                config.Suites,
		DefaultEndpoint:       config.DefaultEndpoint,
		DefaultTimeoutSeconds: config.DefaultTimeoutSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	controller, err := runner.NewStepController(runner.ControllerConfig{
		Invoker: runner.NewInvoker(runner.InvokerConfig{
			Log:     config.Log,
			Process: config.Process,
		}),
		Parser: runner.NewResultParser(),
		Publisher: reporting.NewPublisher(reporting.PublisherConfig{
			Log:       config.Log,
			Overwrite: config.Overwrite,
		}),
		Log:        config.Log,
		RetryDelay: config.RetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create step controller: %w", err)
	}
	config.Log.Info("gate.New: created registry and step controller", "suites", reg.Len())

	g := &Gate{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		controller:       controller,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}
	if !config.RunOnce {
		g.service = service.New(service.Config{
			HealthzAddr: config.HealthzAddr,
			MetricsAddr: config.MetricsAddr(),
			Status:      g,
			Log:         config.Log,
		})
	}
	return g, nil
}

// Start runs the suites immediately and, in continuous mode, keeps running
// them every RunInterval.
// Start implements the cliapp.Lifecycle interface.
func (g *Gate) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			g.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	g.ctx = ctx
	g.done = make(chan struct{})
	g.running.Store(true)

	if g.config.RunOnce {
		g.config.Log.Info("Starting fitgate in run-once mode")
		err := g.runSuites()
		if err != nil {
			g.config.Log.Warn("Run-once suite run did not pass", "err", err)
			return err
		}
		g.config.Log.Info("Suites completed, exiting (run-once mode)")
		go func() {
			g.shutdownCallback(nil)
		}()
		return nil
	}

	g.config.Log.Info("Starting fitgate in continuous mode", "interval", g.config.RunInterval)
	g.service.Start(ctx)

	if err := g.runSuites(); err != nil {
		g.config.Log.Error("Suite run did not pass", "err", err)
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.config.Log.Debug("Starting periodic suite runner goroutine", "interval", g.config.RunInterval)

		for {
			select {
			case <-time.After(g.config.RunInterval):
				if !g.running.Load() {
					g.config.Log.Debug("Service stopped, exiting periodic suite runner")
					return
				}
				g.config.Log.Info("Running periodic suites")
				if err := g.runSuites(); err != nil {
					g.config.Log.Error("Suite run did not pass", "err", err)
				}

			case <-g.done:
				g.config.Log.Debug("Done signal received, stopping periodic suite runner")
				return

			case <-ctx.Done():
				g.config.Log.Debug("Context canceled, stopping periodic suite runner")
				g.running.Store(false)
				return
			}
		}
	}()
	g.config.Log.Debug("fitgate started successfully")
	return nil
}

// runSuites runs every registered suite under a fresh run id, prints the
// results and classifies them: any Error verdict is a RuntimeError, any Fail
// verdict a TestFailureError.
func (g *Gate) runSuites() error {
	runID := uuid.New().String()
	reqs := g.registry.Requests(runID)
	g.config.Log.Info("Running suites...", "run_id", runID, "suites", len(reqs))

	outcomes, err := g.controller.RunAll(g.ctx, reqs, g.config.ReportDir, g.config.Concurrency)
	g.setLatest(outcomes)

	ResultsTable(g.config.Stdout, outcomes, g.config.PageOrder)
	PrintSummaries(g.config.Stdout, outcomes)

	if err != nil {
		g.config.Log.Debug("Suite run reported errors", "run_id", runID, "err", err)
	}

	var errored, failed []string
	for _, o := range outcomes {
		switch o.Verdict {
		case types.VerdictPass:
		case types.VerdictFail:
			failed = append(failed, o.Suite)
		default:
			errored = append(errored, o.Suite)
		}
	}
	g.config.Log.Info("Suite run completed", "run_id", runID,
		"errored", len(errored), "failed", len(failed), "total", len(outcomes))

	if len(errored) > 0 {
		if err == nil {
			err = fmt.Errorf("suites errored: %s", strings.Join(errored, ", "))
		}
		metrics.RecordErrorDetails("suite_run", err)
		return NewRuntimeError(err)
	}
	if len(failed) > 0 {
		return NewTestFailureError(fmt.Sprintf("suites failed: %s", strings.Join(failed, ", ")))
	}
	return nil
}

func (g *Gate) setLatest(outcomes []types.BuildOutcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latest = append([]types.BuildOutcome(nil), outcomes...)
}

// LatestOutcomes returns the outcomes of the most recent run.
func (g *Gate) LatestOutcomes() []types.BuildOutcome {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]types.BuildOutcome(nil), g.latest...)
}

// Stop implements the cliapp.Lifecycle interface.
func (g *Gate) Stop(ctx context.Context) error {
	g.config.Log.Info("Stopping fitgate")

	if !g.running.Load() {
		g.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	g.running.Store(false)

	close(g.done)
	g.wg.Wait()
	if g.service != nil {
		g.service.Shutdown()
	}

	g.config.Log.Info("fitgate stopped successfully")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (g *Gate) Stopped() bool {
	return !g.running.Load()
}
