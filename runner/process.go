package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/ethereum-optimism/fitgate/types"
)

// launch starts a FitNesse jar in command mode and collects the report it
// prints to stdout.
func (i *runInvoker) launch(ctx context.Context, jar, locator string) types.RawRunOutput {
	if jar == "" {
		return types.RawRunOutput{ExitStatus: types.ExitProcessError, Detail: "runner jar path is empty"}
	}
	info, err := os.Stat(jar)
	if err != nil {
		return types.RawRunOutput{ExitStatus: types.ExitProcessError, Detail: fmt.Sprintf("runner jar not available: %v", err)}
	}
	if info.IsDir() {
		return types.RawRunOutput{ExitStatus: types.ExitProcessError, Detail: fmt.Sprintf("runner jar %s is a directory", jar)}
	}

	page, args := splitLocator(locator)
	if page == "" {
		return types.RawRunOutput{ExitStatus: types.ExitProcessError, Detail: fmt.Sprintf("invalid suite locator %q", locator)}
	}

	cmdArgs := i.buildProcessArgs(jar, page+"?"+responderQuery(args))
	cmd := exec.CommandContext(ctx, i.process.JavaBinary, cmdArgs...)
	cmd.Dir = filepath.Dir(jar)
	cmd.WaitDelay = processWaitDelay
	configureProcessGroup(cmd)

	var stdout bytes.Buffer
	stderr := newTailBuffer(defaultStderrTailBytes)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	i.log.Debug("Launching runner process", "binary", i.process.JavaBinary, "args", cmdArgs, "dir", cmd.Dir)
	if err := cmd.Start(); err != nil {
		return types.RawRunOutput{ExitStatus: types.ExitProcessError, Detail: fmt.Sprintf("failed to start runner: %v", err)}
	}

	waitErr := cmd.Wait()
	return classifyProcessExit(waitErr, stdout.Bytes(), stderr.Snippet())
}

func (i *runInvoker) buildProcessArgs(jar, command string) []string {
	args := append([]string{}, i.process.JavaOpts...)
	args = append(args, JarFlag, jar)
	if i.process.RootDir != "" {
		args = append(args, RootDirFlag, i.process.RootDir)
	}
	if i.process.Port > 0 {
		args = append(args, PortFlag, strconv.Itoa(i.process.Port))
	}
	return append(args, OmitUpdates, CommandFlag, command)
}

// classifyProcessExit maps the result of Wait onto an exit status. FitNesse
// exits with the number of failed assertions in command mode, so a non-zero
// exit code with a report on stdout is a successful invocation.
func classifyProcessExit(waitErr error, stdout []byte, stderr string) types.RawRunOutput {
	withStderr := func(detail string) string {
		if stderr == "" {
			return detail
		}
		return detail + "\nstderr: " + stderr
	}

	if waitErr == nil {
		return types.RawRunOutput{ExitStatus: types.ExitSuccess, Bytes: stdout}
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			return types.RawRunOutput{
				ExitStatus: types.ExitProcessError,
				Detail:     withStderr(fmt.Sprintf("runner terminated: %v", exitErr)),
			}
		}
		if len(bytes.TrimSpace(stdout)) > 0 {
			return types.RawRunOutput{ExitStatus: types.ExitSuccess, Bytes: stdout}
		}
		return types.RawRunOutput{
			ExitStatus: types.ExitProcessError,
			Detail:     withStderr(fmt.Sprintf("runner exited with code %d without a report", code)),
		}
	}

	// Wait failed after the process ran: the stdout copy broke or did not
	// drain in time.
	return types.RawRunOutput{
		ExitStatus: types.ExitNetworkError,
		Detail:     withStderr(fmt.Sprintf("runner output stream failed: %v", waitErr)),
	}
}
