package fitgate

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/fitgate/flags"
	"github.com/ethereum-optimism/fitgate/runner"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	Suites                []string // Suite locators given with --suite
	SuitesFile            string   // Absolute path of the suites file, empty when none
	DefaultEndpoint       string
	DefaultTimeoutSeconds int
	ReportDir             string        // Absolute destination of report artifacts
	Overwrite             bool          // Replace existing artifacts
	RunInterval           time.Duration // Interval between runs
	RunOnce               bool          // Exit after one run
	Concurrency           int           // Suites run at the same time (0 = all)
	RetryDelay            time.Duration
	Process               runner.ProcessConfig
	PageOrder             runner.PageOrder
	HealthzAddr           string // Empty disables the healthz server
	MetricsConfig         opmetrics.CLIConfig
	Stdout                io.Writer // Destination of results tables, os.Stdout when nil
	Log                   log.Logger
}

// MetricsAddr is the listen address of the metrics server, empty when
// metrics are disabled.
func (c *Config) MetricsAddr() string {
	if !c.MetricsConfig.Enabled {
		return ""
	}
	return net.JoinHostPort(c.MetricsConfig.ListenAddr, strconv.Itoa(c.MetricsConfig.ListenPort))
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	var suitesFile string
	if f := ctx.String(flags.SuitesFile.Name); f != "" {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for suites file '%s': %w", f, err)
		}
		suitesFile = abs
	}

	reportDir := ctx.String(flags.ReportDir.Name)
	if reportDir == "" {
		reportDir = "reports"
	}
	reportDir, err := filepath.Abs(reportDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for report directory '%s': %w", reportDir, err)
	}

	timeout := ctx.Int(flags.TimeoutSeconds.Name)
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout-seconds must be positive, got %d", timeout)
	}
	concurrency := ctx.Int(flags.Concurrency.Name)
	if concurrency < 0 {
		return nil, fmt.Errorf("concurrency must not be negative, got %d", concurrency)
	}

	order, err := runner.ParsePageOrder(ctx.String(flags.PageOrder.Name))
	if err != nil {
		return nil, err
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)

	return &Config{
		Suites:                ctx.StringSlice(flags.Suites.Name),
		SuitesFile:            suitesFile,
		DefaultEndpoint:       ctx.String(flags.Endpoint.Name),
		DefaultTimeoutSeconds: timeout,
		ReportDir:             reportDir,
		Overwrite:             ctx.Bool(flags.Overwrite.Name),
		RunInterval:           runInterval,
		RunOnce:               runInterval == 0,
		Concurrency:           concurrency,
		RetryDelay:            ctx.Duration(flags.RetryDelay.Name),
		Process: runner.ProcessConfig{
			JavaBinary: ctx.String(flags.JavaBinary.Name),
			JavaOpts:   ctx.StringSlice(flags.JavaOpts.Name),
			RootDir:    ctx.String(flags.FitnesseRoot.Name),
			Port:       ctx.Int(flags.FitnessePort.Name),
		},
		PageOrder:     order,
		HealthzAddr:   ctx.String(flags.HealthzAddr.Name),
		MetricsConfig: metricsCfg,
		Stdout:        os.Stdout,
		Log:           log,
	}, nil
}
