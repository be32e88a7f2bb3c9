package sink

import (
	"bytes"
	"strings"
	"sync"
)

// stderrLimit caps the child process diagnostics kept for error messages.
const stderrLimit = 4096

// limitedBuffer keeps the last limit bytes written to it. It is safe for
// concurrent use because exec copies stderr from its own goroutine.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, err := b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
	}

	return n, err
}

func (b *limitedBuffer) String() string {
	if b == nil {
		return ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return strings.TrimSpace(b.buf.String())
}
