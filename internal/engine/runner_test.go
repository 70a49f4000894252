package engine

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func shell(t *testing.T, script string, timeout time.Duration) Invocation {
	t.Helper()
	return Invocation{
		Program: "/bin/sh",
		Args:    []string{"-c", script},
		Dir:     t.TempDir(),
		Env:     engineEnv(""),
		Timeout: timeout,
	}
}

func TestRunCapturesStreams(t *testing.T) {
	r := NewRunner(RunnerOptions{})
	live := &syncBuffer{}
	out, err := r.Run(context.Background(), shell(t, "echo meshing; echo warning >&2", 10*time.Second), live)
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "meshing\n", out.Stdout)
	assert.Equal(t, "warning\n", out.Stderr)
	assert.Contains(t, out.Output, "meshing")
	assert.Contains(t, out.Output, "warning")
	assert.Contains(t, live.String(), "meshing")
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	r := NewRunner(RunnerOptions{})
	out, err := r.Run(context.Background(), shell(t, "echo 'Error: bad geometry' >&2; exit 3", 10*time.Second), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, out.ExitCode)
	assert.Equal(t, "Error: bad geometry\n", out.Stderr)
}

func TestRunWorkingDirectory(t *testing.T) {
	r := NewRunner(RunnerOptions{})
	inv := shell(t, "pwd", 10*time.Second)
	out, err := r.Run(context.Background(), inv, nil)
	require.NoError(t, err)
	assert.Contains(t, strings.TrimSpace(out.Stdout), inv.Dir)
}

func TestRunTimeout(t *testing.T) {
	r := NewRunner(RunnerOptions{TerminationGrace: 100 * time.Millisecond})
	start := time.Now()
	out, err := r.Run(context.Background(), shell(t, "echo started; sleep 30", 200*time.Millisecond), nil)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.NotNil(t, out)
	assert.Contains(t, out.Stdout, "started")
}

func TestRunTimeoutEscalatesToKill(t *testing.T) {
	r := NewRunner(RunnerOptions{TerminationGrace: 100 * time.Millisecond})
	start := time.Now()
	_, err := r.Run(context.Background(), shell(t, "trap '' TERM; sleep 30", 200*time.Millisecond), nil)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunCanceled(t *testing.T) {
	r := NewRunner(RunnerOptions{TerminationGrace: 100 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	_, err := r.Run(ctx, shell(t, "sleep 30", time.Minute), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestRunMissingBinary(t *testing.T) {
	r := NewRunner(RunnerOptions{})
	_, err := r.Run(context.Background(), Invocation{Program: "/nonexistent/gmsh", Dir: t.TempDir()}, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestTailBufferKeepsSuffix(t *testing.T) {
	tb := newTailBuffer(5)
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	assert.Equal(t, "cdefg", tb.String())
	_, _ = tb.Write([]byte("0123456789"))
	assert.Equal(t, "56789", tb.String())
}
