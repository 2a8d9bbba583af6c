package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/fitgate"
	"github.com/ethereum-optimism/fitgate/exitcodes"
	"github.com/ethereum-optimism/fitgate/flags"
	"github.com/ethereum-optimism/fitgate/runner"
	"github.com/ethereum-optimism/fitgate/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "fitgate"
	app.Usage = "FitNesse acceptance suites as a build gate"
	app.Description = "fitgate runs FitNesse suites, publishes their reports and turns the outcome into a build verdict"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.Commands = []*cli.Command{
		{
			Name:      "show",
			Usage:     "Print the results table of a published report artifact",
			ArgsUsage: "<artifact.json>",
			Flags:     []cli.Flag{flags.PageOrder},
			Action:    show,
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			cli.HandleExitCoder(cli.Exit(err.Error(), fitgate.ExitCode(err)))
		}
	}

	// Start telemetry
	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	ctx := ctxinterrupt.WithSignalWaiterMain(context.Background())
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := fitgate.NewConfig(ctx, log)
	if err != nil {
		return nil, fitgate.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	gate, err := fitgate.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		return nil, fitgate.NewRuntimeError(fmt.Errorf("failed to create gate: %w", err))
	}

	return gate, nil
}

// show prints a published artifact. The exit code follows the verdict it
// records.
func show(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.Exit("usage: fitgate show <artifact.json>", exitcodes.RuntimeErr)
	}
	order, err := runner.ParsePageOrder(ctx.String(flags.PageOrder.Name))
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}
	outcome, err := fitgate.ShowArtifact(ctx.App.Writer, ctx.Args().First(), order)
	if err != nil {
		return fitgate.NewRuntimeError(err)
	}
	switch outcome.Verdict {
	case types.VerdictPass:
		return nil
	case types.VerdictFail:
		return cli.Exit("", exitcodes.TestFailure)
	default:
		return cli.Exit("", exitcodes.RuntimeErr)
	}
}
