package engine

import (
	"io"
	"sync"
)

// tailBuffer keeps the last size bytes written to it.
type tailBuffer struct {
	mu   sync.Mutex
	b    []byte
	size int
}

func newTailBuffer(n int) *tailBuffer {
	if n <= 0 {
		n = defaultTailBytes
	}
	return &tailBuffer{b: make([]byte, 0, n), size: n}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(p) >= t.size {
		t.b = append(t.b[:0], p[len(p)-t.size:]...)
		return len(p), nil
	}
	if over := len(t.b) + len(p) - t.size; over > 0 {
		t.b = append(t.b[:0], t.b[over:]...)
	}
	t.b = append(t.b, p...)
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.b)
}

// lockedWriter serializes writes from the stdout and stderr copiers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Live consumer errors are ignored. The consumer itself must not block.
	_, _ = l.w.Write(p)
	return len(p), nil
}
