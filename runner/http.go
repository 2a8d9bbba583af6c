package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum-optimism/fitgate/types"
)

// maxErrorBodyBytes caps how much of a non-200 response ends up in the
// diagnostic.
const maxErrorBodyBytes = 2048

// fetch asks a running FitNesse server for the suite report.
func (i *runInvoker) fetch(ctx context.Context, endpoint, locator string) types.RawRunOutput {
	target, err := suiteURL(endpoint, locator)
	if err != nil {
		return types.RawRunOutput{ExitStatus: types.ExitProcessError, Detail: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return types.RawRunOutput{ExitStatus: types.ExitProcessError, Detail: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("Accept", "application/xml, text/xml")

	i.log.Debug("Requesting suite report", "url", target)
	resp, err := i.client.Do(req)
	if err != nil {
		return types.RawRunOutput{
			ExitStatus: types.ExitProcessError,
			Detail:     fmt.Sprintf("runner unreachable at %s: %v", endpoint, err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return types.RawRunOutput{
			ExitStatus: types.ExitProcessError,
			Detail:     fmt.Sprintf("runner responded %s: %s", resp.Status, strings.TrimSpace(string(snippet))),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.RawRunOutput{
			ExitStatus: types.ExitNetworkError,
			Detail:     fmt.Sprintf("connection dropped after %d bytes: %v", len(body), err),
		}
	}
	return types.RawRunOutput{ExitStatus: types.ExitSuccess, Bytes: body}
}

// suiteURL joins the endpoint and the suite page path and appends the
// responder query, e.g. http://host:8080/FrontPage.SuiteA?suite&format=xml&includehtml.
func suiteURL(endpoint, locator string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("invalid runner endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid runner endpoint %q: missing host", endpoint)
	}
	page, args := splitLocator(locator)
	if page == "" {
		return "", fmt.Errorf("invalid suite locator %q", locator)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + page
	u.RawPath = ""
	u.RawQuery = responderQuery(args)
	u.Fragment = ""
	return u.String(), nil
}
