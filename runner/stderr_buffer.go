package runner

import (
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
)

const defaultStderrTailBytes = 16 * 1024

// tailBuffer keeps only the last N bytes written to it so a failing runner's
// stderr can be attached to the diagnostic without retaining all of it.
type tailBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
}

func newTailBuffer(maxBytes int) *tailBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultStderrTailBytes
	}
	return &tailBuffer{
		maxBytes: maxBytes,
		contents: make([]byte, 0, 1024),
	}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	b.contents = append(b.contents, p...)
	if len(b.contents) > b.maxBytes {
		b.contents = b.contents[len(b.contents)-b.maxBytes:]
	}
	return len(p), nil
}

func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.contents)) < b.total
}

// Snippet returns the retained tail with terminal escape sequences removed.
func (b *tailBuffer) Snippet() string {
	b.mu.Lock()
	contents := string(b.contents)
	b.mu.Unlock()

	snippet := strings.TrimSpace(stripansi.Strip(contents))
	if snippet != "" && b.Truncated() {
		snippet = "...\n" + snippet
	}
	return snippet
}
