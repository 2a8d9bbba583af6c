package flags

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "FITGATE"

// Page orders accepted by --page-order
var pageOrders = []string{"reported", "failures-first", "name"}

var (
	Suites = &cli.StringSliceFlag{
		Name:    "suite",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUITE"),
		Usage:   "FitNesse suite page to run (eg. 'FrontPage.SuiteAcceptance'). May be repeated.",
	}
	SuitesFile = &cli.StringFlag{
		Name:    "suites-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUITES_FILE"),
		Usage:   "Path to a YAML file listing suites with per-suite endpoint and timeout (eg. 'suites.yaml')",
	}
	Endpoint = &cli.StringFlag{
		Name:    "endpoint",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ENDPOINT"),
		Usage:   "Default runner endpoint: a FitNesse URL (http://host:port), a results file (file:///path) or the path of fitnesse-standalone.jar",
	}
	TimeoutSeconds = &cli.IntFlag{
		Name:    "timeout-seconds",
		Value:   600,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT_SECONDS"),
		Usage:   "Default execution budget for a suite run, in seconds",
	}
	ReportDir = &cli.StringFlag{
		Name:    "report-dir",
		Value:   "reports",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT_DIR"),
		Usage:   "Directory receiving the report artifacts, one sub-directory per run",
	}
	Overwrite = &cli.BoolFlag{
		Name:    "overwrite",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OVERWRITE"),
		Usage:   "Replace an existing report artifact instead of failing",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Number of suites run at the same time (0 = all at once)",
	}
	RetryDelay = &cli.DurationFlag{
		Name:    "retry-delay",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RETRY_DELAY"),
		Usage:   "Pause before retrying a run whose runner connection dropped (0 = default)",
	}
	JavaBinary = &cli.StringFlag{
		Name:    "java-binary",
		Value:   "java",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "JAVA_BINARY"),
		Usage:   "Path to the java binary used to launch a FitNesse jar",
	}
	JavaOpts = &cli.StringSliceFlag{
		Name:    "java-opt",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "JAVA_OPT"),
		Usage:   "Extra JVM option passed before -jar (eg. '-Xmx1g'). May be repeated.",
	}
	FitnesseRoot = &cli.StringFlag{
		Name:    "fitnesse-root",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FITNESSE_ROOT"),
		Usage:   "FitNesse root directory (-d) when launching a jar",
	}
	FitnessePort = &cli.IntFlag{
		Name:    "fitnesse-port",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FITNESSE_PORT"),
		Usage:   "FitNesse port (-p) when launching a jar, 0 leaves it to FitNesse",
	}
	PageOrder = &cli.StringFlag{
		Name:    "page-order",
		Value:   "failures-first",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PAGE_ORDER"),
		Usage:   fmt.Sprintf("Order of pages in the results table, one of %v", pageOrders),
		Action: func(_ *cli.Context, v string) error {
			return validatePageOrder(v)
		},
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the healthz and status server in continuous mode, empty to disable",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	Suites,
	SuitesFile,
	Endpoint,
	TimeoutSeconds,
	ReportDir,
	Overwrite,
	RunInterval,
	Concurrency,
	RetryDelay,
	JavaBinary,
	JavaOpts,
	FitnesseRoot,
	FitnessePort,
	PageOrder,
	HealthzAddr,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func validatePageOrder(v string) error {
	for _, o := range pageOrders {
		if v == o {
			return nil
		}
	}
	return fmt.Errorf("page-order must be one of %v, got %q", pageOrders, v)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	if len(ctx.StringSlice(Suites.Name)) == 0 && ctx.String(SuitesFile.Name) == "" {
		return errors.New("one of --suite or --suites-file is required")
	}
	return opflags.CheckRequiredXor(ctx)
}
