package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum-optimism/fitgate/types"
)

// readResultsFile loads a report FitNesse already wrote to disk. A directory
// endpoint holds one <suite page>.xml file per suite.
func (i *runInvoker) readResultsFile(ctx context.Context, path, locator string) types.RawRunOutput {
	info, err := os.Stat(path)
	if err != nil {
		return types.RawRunOutput{ExitStatus: types.ExitProcessError, Detail: fmt.Sprintf("results file not available: %v", err)}
	}
	if info.IsDir() {
		page, _ := splitLocator(locator)
		path = filepath.Join(path, page+".xml")
	}

	f, err := os.Open(path)
	if err != nil {
		return types.RawRunOutput{ExitStatus: types.ExitProcessError, Detail: fmt.Sprintf("results file not available: %v", err)}
	}
	defer f.Close()

	i.log.Debug("Reading results file", "path", path)
	data, err := io.ReadAll(&ctxReader{ctx: ctx, r: f})
	if err != nil {
		return types.RawRunOutput{
			ExitStatus: types.ExitNetworkError,
			Detail:     fmt.Sprintf("reading %s failed after %d bytes: %v", path, len(data), err),
		}
	}
	return types.RawRunOutput{ExitStatus: types.ExitSuccess, Bytes: data}
}

// ctxReader stops a long read once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
