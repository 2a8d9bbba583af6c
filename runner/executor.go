package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/fitgate/types"
	"github.com/ethereum/go-ethereum/log"
)

var _ Invoker = (*runInvoker)(nil)

// Invoker launches the external runner for one suite request.
type Invoker interface {
	// Invoke makes exactly one attempt to run the suite, bounded by the
	// request timeout. The returned error is non-nil only when ctx was
	// cancelled by the caller; every runner failure is reported through
	// RawRunOutput.ExitStatus.
	Invoke(ctx context.Context, req types.SuiteRequest) (types.RawRunOutput, error)
}

// ProcessConfig controls how a FitNesse jar is launched.
type ProcessConfig struct {
	JavaBinary string
	JavaOpts   []string
	RootDir    string // FitNesse root (-d), defaults to the jar directory
	Port       int    // FitNesse port (-p), omitted when zero
}

// InvokerConfig holds configuration for creating an invoker.
type InvokerConfig struct {
	Log        log.Logger
	Process    ProcessConfig
	HTTPClient *http.Client
	Now        func() time.Time
}

type transport int

const (
	transportProcess transport = iota
	transportHTTP
	transportFile
)

func (t transport) String() string {
	switch t {
	case transportHTTP:
		return "http"
	case transportFile:
		return "file"
	default:
		return "process"
	}
}

// runInvoker implements Invoker
type runInvoker struct {
	log     log.Logger
	process ProcessConfig
	client  *http.Client
	now     func() time.Time
}

// NewInvoker creates an invoker. The transport is picked per request from
// the runner endpoint.
func NewInvoker(cfg InvokerConfig) Invoker {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Process.JavaBinary == "" {
		cfg.Process.JavaBinary = DefaultJavaBinary
	}
	if cfg.HTTPClient == nil {
		// No client timeout: the request context carries the deadline.
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &runInvoker{
		log:     cfg.Log,
		process: cfg.Process,
		client:  cfg.HTTPClient,
		now:     cfg.Now,
	}
}

// Invoke runs the suite once
func (i *runInvoker) Invoke(ctx context.Context, req types.SuiteRequest) (types.RawRunOutput, error) {
	if ctx == nil {
		return types.RawRunOutput{}, errors.New("context cannot be nil")
	}
	if err := req.Validate(); err != nil {
		return types.RawRunOutput{
			ExitStatus: types.ExitProcessError,
			Detail:     fmt.Sprintf("invalid suite request: %v", err),
		}, nil
	}

	kind, target := resolveEndpoint(req.RunnerEndpoint)
	i.log.Info("Invoking runner", "suite", req.SuiteLocator, "transport", kind, "target", target, "timeout", req.Timeout())

	runCtx, cancel := context.WithTimeout(ctx, req.Timeout())
	defer cancel()

	start := i.now()
	var out types.RawRunOutput
	switch kind {
	case transportHTTP:
		out = i.fetch(runCtx, target, req.SuiteLocator)
	case transportFile:
		out = i.readResultsFile(runCtx, target, req.SuiteLocator)
	default:
		out = i.launch(runCtx, target, req.SuiteLocator)
	}
	out.DurationMillis = i.now().Sub(start).Milliseconds()
	if out.DurationMillis < 0 {
		out.DurationMillis = 0
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		out.Bytes = nil
		i.log.Warn("Runner invocation cancelled", "suite", req.SuiteLocator, "err", ctxErr)
		return out, fmt.Errorf("runner invocation cancelled: %w", ctxErr)
	}

	// A report that arrived in full is kept even if the deadline fired right
	// after; anything incomplete past the deadline is a timeout.
	if out.ExitStatus != types.ExitSuccess && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		out = types.RawRunOutput{
			ExitStatus:     types.ExitTimeout,
			DurationMillis: out.DurationMillis,
			Detail:         fmt.Sprintf("runner did not finish within %v", req.Timeout()),
		}
	}

	if out.ExitStatus == types.ExitSuccess {
		i.log.Info("Runner finished", "suite", req.SuiteLocator, "bytes", len(out.Bytes), "duration_ms", out.DurationMillis)
	} else {
		i.log.Warn("Runner failed", "suite", req.SuiteLocator, "status", out.ExitStatus, "detail", out.Detail, "duration_ms", out.DurationMillis)
	}
	return out, nil
}

// resolveEndpoint picks the transport for an endpoint. Anything that is not an
// http(s) or file URL is treated as the path of a FitNesse jar.
func resolveEndpoint(endpoint string) (transport, string) {
	endpoint = strings.TrimSpace(endpoint)
	u, err := url.Parse(endpoint)
	if err != nil {
		return transportProcess, endpoint
	}
	switch strings.ToLower(u.Scheme) {
	case EndpointHTTP, EndpointHTTPS:
		return transportHTTP, endpoint
	case EndpointFile:
		return transportFile, filepath.FromSlash(urlPath(u))
	case EndpointExec:
		return transportProcess, filepath.FromSlash(urlPath(u))
	default:
		return transportProcess, endpoint
	}
}

// urlPath keeps relative file URLs such as file://reports/out.xml usable.
func urlPath(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	if u.Host != "" && u.Host != "localhost" {
		return u.Host + u.Path
	}
	return u.Path
}

// splitLocator separates a page path from any responder arguments the caller
// appended, e.g. "FrontPage.SuiteAcceptance?suiteFilter=smoke".
func splitLocator(locator string) (page string, args []string) {
	page, query, _ := strings.Cut(strings.TrimSpace(locator), "?")
	page = strings.Trim(page, "/")
	for _, arg := range strings.Split(query, "&") {
		if arg != "" {
			args = append(args, arg)
		}
	}
	return page, args
}

// responderQuery builds the FitNesse query string asking for an XML report.
func responderQuery(args []string) string {
	hasResponder, hasFormat, hasHTML := false, false, false
	for _, arg := range args {
		name, _, _ := strings.Cut(arg, "=")
		switch name {
		case SuiteResponder, TestResponder:
			hasResponder = true
		case "format":
			hasFormat = true
		case IncludeHTML:
			hasHTML = true
		}
	}
	var query []string
	if !hasResponder {
		query = append(query, SuiteResponder)
	}
	query = append(query, args...)
	if !hasFormat {
		query = append(query, FormatXML)
	}
	if !hasHTML {
		query = append(query, IncludeHTML)
	}
	return strings.Join(query, "&")
}
