package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum-optimism/fitgate/metrics"
	"github.com/ethereum-optimism/fitgate/reporting"
	"github.com/ethereum-optimism/fitgate/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// State is a step of the suite pipeline.
type State string

const (
	StateIdle        State = "idle"
	StateInvoking    State = "invoking"
	StateParsing     State = "parsing"
	StateAggregating State = "aggregating"
	StatePublishing  State = "publishing"
	StateDone        State = "done"
	StateErrored     State = "errored"
)

// transitions lists the legal successors of each state. Done and Errored are
// terminal.
var transitions = map[State][]State{
	StateIdle:        {StateInvoking, StateErrored},
	StateInvoking:    {StateParsing, StateErrored},
	StateParsing:     {StateAggregating, StateErrored},
	StateAggregating: {StatePublishing, StateErrored},
	StatePublishing:  {StateDone, StateErrored},
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateErrored
}

// CanTransition reports whether from -> to is a legal pipeline step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Publisher writes the report artifact of a finished run.
type Publisher interface {
	Publish(result *types.SuiteResult, info reporting.RunInfo, destination string) (string, error)
}

// ControllerConfig holds configuration for creating a step controller.
type ControllerConfig struct {
	Invoker   Invoker
	Parser    ResultParser
	Publisher Publisher
	Log       log.Logger

	// RetryDelay is the pause before the single retry after a NetworkError.
	RetryDelay time.Duration
	Now        func() time.Time

	// OnTransition is called for every state change of every run.
	OnTransition func(runID string, from, to State)
}

// StepController drives one suite request through the pipeline and turns
// the result into a BuildOutcome. Concurrent runs share no mutable state.
type StepController struct {
	invoker      Invoker
	parser       ResultParser
	publisher    Publisher
	log          log.Logger
	retryDelay   time.Duration
	now          func() time.Time
	onTransition func(runID string, from, to State)
	tracer       trace.Tracer
}

// NewStepController creates a step controller.
func NewStepController(cfg ControllerConfig) (*StepController, error) {
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("invoker is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if cfg.Parser == nil {
		cfg.Parser = NewResultParser()
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &StepController{
		invoker:      cfg.Invoker,
		parser:       cfg.Parser,
		publisher:    cfg.Publisher,
		log:          cfg.Log,
		retryDelay:   cfg.RetryDelay,
		now:          cfg.Now,
		onTransition: cfg.OnTransition,
		tracer:       otel.Tracer("step controller"),
	}, nil
}

// pipelineRun tracks the state of one Run call.
type pipelineRun struct {
	id           string
	state        State
	onTransition func(runID string, from, to State)
}

func (r *pipelineRun) transition(to State) error {
	if !CanTransition(r.state, to) {
		return fmt.Errorf("illegal transition %s -> %s", r.state, to)
	}
	from := r.state
	r.state = to
	if r.onTransition != nil {
		r.onTransition(r.id, from, to)
	}
	return nil
}

// Run executes one suite request. The returned error is non-nil only when the
// request is invalid or ctx was cancelled; every other failure is reported
// through the outcome verdict and diagnostic.
func (c *StepController) Run(ctx context.Context, req types.SuiteRequest, destination string) (types.BuildOutcome, error) {
	if err := req.Validate(); err != nil {
		return types.BuildOutcome{
			Verdict:    types.VerdictError,
			Diagnostic: fmt.Sprintf("invalid suite request: %v", err),
			RunID:      req.RunID,
			Suite:      req.SuiteLocator,
		}, fmt.Errorf("invalid suite request: %w", err)
	}
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}

	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("suite %s", req.SuiteLocator), trace.WithAttributes(
		attribute.String("run_id", req.RunID),
		attribute.String("endpoint", req.RunnerEndpoint),
		attribute.Int("timeout_seconds", req.TimeoutSeconds),
	))
	defer span.End()

	startedAt := c.now()
	run := &pipelineRun{id: req.RunID, state: StateIdle, onTransition: c.onTransition}
	outcome := types.BuildOutcome{RunID: req.RunID, Suite: req.SuiteLocator}
	logger := c.log.New("suite", req.SuiteLocator, "run_id", req.RunID)

	// errored moves the run to Errored from whatever state it reached.
	errored := func(diagnostic string, cause error) types.BuildOutcome {
		if err := run.transition(StateErrored); err != nil {
			logger.Error("Pipeline state error", "err", err)
		}
		outcome.Verdict = types.VerdictError
		outcome.Diagnostic = diagnostic
		outcome.DurationMillis = c.elapsed(startedAt)
		span.SetStatus(codes.Error, diagnostic)
		if cause != nil {
			span.RecordError(cause)
		}
		c.finish(logger, outcome)
		return outcome
	}
	enter := func(to State) bool {
		if err := run.transition(to); err != nil {
			errored(fmt.Sprintf("pipeline error: %v", err), err)
			return false
		}
		return true
	}

	// Invoking
	if !enter(StateInvoking) {
		return outcome, nil
	}
	raw, attempts, err := c.invoke(ctx, logger, req)
	if err != nil {
		errored(fmt.Sprintf("invocation aborted: %v", err), err)
		return outcome, err
	}
	if raw.ExitStatus != types.ExitSuccess {
		diag := fmt.Sprintf("runner exited with status %s", raw.ExitStatus)
		if attempts > 1 {
			diag += fmt.Sprintf(" after %d attempts", attempts)
		}
		if raw.Detail != "" {
			diag += ": " + raw.Detail
		}
		return errored(diag, nil), nil
	}

	// Parsing
	if !enter(StateParsing) {
		return outcome, nil
	}
	parsed, err := c.parse(ctx, raw.Bytes)
	raw.Bytes = nil
	if err != nil {
		metrics.RecordErrorDetails("parse", err)
		return errored(fmt.Sprintf("report could not be parsed: %v", err), err), nil
	}

	// Aggregating
	if !enter(StateAggregating) {
		return outcome, nil
	}
	result, err := Aggregate(parsed)
	if err != nil {
		metrics.RecordError("aggregation_invariant_violation")
		return errored(err.Error(), err), nil
	}
	if parsed.Totals != (types.Counts{}) && parsed.Totals != result.Totals {
		logger.Warn("Runner reported totals disagree with page counts", "reported", parsed.Totals.String(), "computed", result.Totals.String())
	}
	outcome.Verdict = Verdict(result)
	outcome.Statistics = result.Totals
	outcome.Result = result

	// Publishing
	if !enter(StatePublishing) {
		return outcome, nil
	}
	path, err := c.publish(ctx, result, reporting.RunInfo{
		RunID:          req.RunID,
		Suite:          req.SuiteLocator,
		Verdict:        outcome.Verdict,
		DurationMillis: c.elapsed(startedAt),
		StartedAt:      startedAt,
	}, destination)
	if err != nil {
		metrics.RecordErrorDetails("publish", err)
		outcome.Diagnostic = fmt.Sprintf("report artifact not published: %v", err)
		logger.Error("Failed to publish report artifact", "err", err)
	}
	outcome.ReportArtifactPath = path

	if !enter(StateDone) {
		return outcome, nil
	}
	outcome.DurationMillis = c.elapsed(startedAt)
	span.SetAttributes(attribute.String("verdict", string(outcome.Verdict)))
	c.finish(logger, outcome)
	return outcome, nil
}

// invoke calls the invoker, retrying once when the runner connection dropped.
// Timeouts and process errors are final.
func (c *StepController) invoke(ctx context.Context, logger log.Logger, req types.SuiteRequest) (types.RawRunOutput, int, error) {
	ctx, span := c.tracer.Start(ctx, "invoke")
	defer span.End()

	backoff := retry.WithMaxRetries(MaxInvokeRetries, retry.NewConstant(c.retryDelay))

	var (
		out      types.RawRunOutput
		attempts int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		var invokeErr error
		out, invokeErr = c.invoker.Invoke(ctx, req)
		if invokeErr != nil {
			return invokeErr
		}
		metrics.RecordInvocation(req.SuiteLocator, out.ExitStatus)
		if out.ExitStatus == types.ExitNetworkError {
			logger.Warn("Runner output stream broke", "attempt", attempts, "detail", out.Detail)
			return retry.RetryableError(errors.New(out.Detail))
		}
		return nil
	})
	span.SetAttributes(attribute.Int("attempts", attempts), attribute.String("exit_status", string(out.ExitStatus)))

	if ctxErr := ctx.Err(); ctxErr != nil {
		span.SetStatus(codes.Error, "cancelled")
		return types.RawRunOutput{}, attempts, ctxErr
	}
	if err != nil && out.ExitStatus != types.ExitNetworkError {
		// Only the invoker's cancellation error is non-retryable; anything
		// else reaching here is unexpected.
		return types.RawRunOutput{}, attempts, err
	}
	return out, attempts, nil
}

func (c *StepController) parse(ctx context.Context, data []byte) (*types.SuiteResult, error) {
	_, span := c.tracer.Start(ctx, "parse")
	defer span.End()
	span.SetAttributes(attribute.Int("bytes", len(data)))

	result, err := c.parser.Parse(data)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("pages", len(result.Pages)))
	return result, nil
}

func (c *StepController) publish(ctx context.Context, result *types.SuiteResult, info reporting.RunInfo, destination string) (string, error) {
	_, span := c.tracer.Start(ctx, "publish")
	defer span.End()

	path, err := c.publisher.Publish(result, info, destination)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("path", path))
	return path, nil
}

func (c *StepController) elapsed(start time.Time) int64 {
	d := c.now().Sub(start).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}

func (c *StepController) finish(logger log.Logger, outcome types.BuildOutcome) {
	metrics.RecordRun(outcome.Suite, outcome.Verdict, outcome.Statistics, time.Duration(outcome.DurationMillis)*time.Millisecond)
	logger.Info("Suite run finished",
		"verdict", outcome.Verdict,
		"stats", outcome.Statistics.String(),
		"artifact", outcome.ReportArtifactPath,
		"duration_ms", outcome.DurationMillis,
		"diagnostic", outcome.Diagnostic)
}

// RunAll runs independent requests concurrently, at most concurrency at a
// time (unbounded when concurrency <= 0). Outcomes are returned in request
// order; errors from individual runs are joined.
func (c *StepController) RunAll(ctx context.Context, reqs []types.SuiteRequest, destination string, concurrency int) ([]types.BuildOutcome, error) {
	outcomes := make([]types.BuildOutcome, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, req := range reqs {
		g.Go(func() error {
			outcomes[i], errs[i] = c.Run(ctx, req, destination)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, errors.Join(errs...)
}
