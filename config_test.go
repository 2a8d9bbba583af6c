package fitgate

import (
	"flag"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/fitgate/flags"
	"github.com/ethereum-optimism/fitgate/runner"
)

func newCLIContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range flags.Flags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(&cli.App{Flags: flags.Flags}, set, nil)
}

func TestNewConfig_Defaults(t *testing.T) {
	logger := log.NewLogger(log.DiscardHandler())
	cfg, err := NewConfig(newCLIContext(t, "--suite", "FrontPage.SuiteA", "--endpoint", "http://localhost:8080"), logger)
	require.NoError(t, err)

	assert.Equal(t, []string{"FrontPage.SuiteA"}, cfg.Suites)
	assert.Empty(t, cfg.SuitesFile)
	assert.Equal(t, "http://localhost:8080", cfg.DefaultEndpoint)
	assert.Equal(t, 600, cfg.DefaultTimeoutSeconds)
	assert.True(t, filepath.IsAbs(cfg.ReportDir))
	assert.Equal(t, "reports", filepath.Base(cfg.ReportDir))
	assert.True(t, cfg.RunOnce)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, runner.OrderFailuresFirst, cfg.PageOrder)
	assert.Equal(t, "java", cfg.Process.JavaBinary)
	assert.Empty(t, cfg.MetricsAddr())
	assert.Same(t, logger, cfg.Log)
}

func TestNewConfig_Overrides(t *testing.T) {
	dir := t.TempDir()
	cfg, err := NewConfig(newCLIContext(t,
		"--suites-file", filepath.Join(dir, "suites.yaml"),
		"--report-dir", filepath.Join(dir, "out"),
		"--timeout-seconds", "30",
		"--run-interval", "5m",
		"--concurrency", "0",
		"--java-opt", "-Xmx1g",
		"--fitnesse-port", "9123",
		"--page-order", "name",
		"--overwrite",
		"--metrics.enabled",
		"--metrics.addr", "127.0.0.1",
		"--metrics.port", "7301",
	), log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "suites.yaml"), cfg.SuitesFile)
	assert.Equal(t, filepath.Join(dir, "out"), cfg.ReportDir)
	assert.Equal(t, 30, cfg.DefaultTimeoutSeconds)
	assert.False(t, cfg.RunOnce)
	assert.Equal(t, 5*time.Minute, cfg.RunInterval)
	assert.Equal(t, 0, cfg.Concurrency)
	assert.Equal(t, []string{"-Xmx1g"}, cfg.Process.JavaOpts)
	assert.Equal(t, 9123, cfg.Process.Port)
	assert.Equal(t, runner.OrderByName, cfg.PageOrder)
	assert.True(t, cfg.Overwrite)
	assert.Equal(t, "127.0.0.1:7301", cfg.MetricsAddr())
}

func TestNewConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"no suites", nil, "missing required flags"},
		{"zero timeout", []string{"--suite", "S", "--timeout-seconds", "0"}, "timeout-seconds must be positive"},
		{"negative concurrency", []string{"--suite", "S", "--concurrency", "-1"}, "concurrency must not be negative"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig(newCLIContext(t, tc.args...), log.NewLogger(log.DiscardHandler()))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}
