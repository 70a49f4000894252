// Package synth turns natural-language prompts into Gmsh scripts, either with a
// loaded language model or with the deterministic template fallback.
package synth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sannainmf/GmshApp-Hexera/internal/logx"
	"github.com/Sannainmf/GmshApp-Hexera/pkg/model"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrModelNotLoaded is returned when synthesis needs a model and none is loaded.
	ErrModelNotLoaded = errors.New("model not loaded")
	// ErrNoBackend is returned by Load when no model backend is configured.
	ErrNoBackend = errors.New("no model backend configured")
)

// Source records where a script came from.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Limits bound a single generation.
type Limits struct {
	MaxTokens   int
	Temperature float64
}

// Model is a loaded text-generation capability.
type Model interface {
	Generate(ctx context.Context, prompt string, limits Limits) (string, error)
	Describe() model.ModelInfo
}

// Loader builds a Model, typically after probing its backend.
type Loader interface {
	Load(ctx context.Context) (Model, error)
}

// SynthesisError wraps a failed model invocation.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("script synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Result is a synthesized script and its provenance.
type Result struct {
	Script   string
	Source   Source
	Template string
}

// FallbackResult wraps the template engine output for prompt.
func FallbackResult(prompt string) Result {
	return Result{
		Script:   Fallback(prompt),
		Source:   SourceFallback,
		Template: TemplateName(prompt),
	}
}

type Options struct {
	// Loader is used by Load. Nil means the service runs template-only.
	Loader Loader
	// MaxConcurrent bounds simultaneous generations against the model.
	MaxConcurrent int64
	// Timeout bounds one synthesis, including time spent waiting for the model.
	Timeout time.Duration
}

// Synthesizer owns the (possibly absent) model and serializes access to it.
type Synthesizer struct {
	loader  Loader
	sem     *semaphore.Weighted
	timeout time.Duration

	mu       sync.RWMutex
	model    Model
	loadedAt time.Time
}

func New(opts Options) *Synthesizer {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	return &Synthesizer{
		loader:  opts.Loader,
		sem:     semaphore.NewWeighted(opts.MaxConcurrent),
		timeout: opts.Timeout,
	}
}

// Load (re)loads the model through the configured Loader.
func (s *Synthesizer) Load(ctx context.Context) error {
	if s.loader == nil {
		return ErrNoBackend
	}
	m, err := s.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	s.SetModel(m)
	logx.Component(ctx, "synthesizer").Info("model loaded", "model", m.Describe().Name, "backend", m.Describe().Backend)
	return nil
}

// SetModel installs m directly. A nil m unloads the current model.
func (s *Synthesizer) SetModel(m Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = m
	if m != nil {
		s.loadedAt = time.Now().UTC()
	} else {
		s.loadedAt = time.Time{}
	}
}

func (s *Synthesizer) Loaded() bool {
	return s.current() != nil
}

func (s *Synthesizer) Info() model.ModelInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil {
		return model.ModelInfo{Status: model.ModelStatusNotLoaded}
	}
	info := s.model.Describe()
	info.Status = model.ModelStatusLoaded
	loadedAt := s.loadedAt
	info.LoadedAt = &loadedAt
	return info
}

func (s *Synthesizer) current() Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// Synthesize generates a script with the loaded model. It never falls back on
// its own: callers decide what to do with ErrModelNotLoaded and *SynthesisError.
func (s *Synthesizer) Synthesize(ctx context.Context, prompt string, limits Limits) (Result, error) {
	m := s.current()
	if m == nil {
		return Result{}, ErrModelNotLoaded
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Result{}, &SynthesisError{Err: fmt.Errorf("waiting for model: %w", err)}
	}
	defer s.sem.Release(1)

	logger := logx.Component(ctx, "synthesizer")
	start := time.Now()
	raw, err := m.Generate(ctx, FormatPrompt(prompt), limits)
	if err != nil {
		return Result{}, &SynthesisError{Err: err}
	}

	script, hadMarker := ExtractScript(raw)
	if !hadMarker {
		logger.Debug("assistant marker absent, using raw continuation")
	}
	if script == "" {
		return Result{}, &SynthesisError{Err: errors.New("model returned an empty script")}
	}

	logger.Info("script synthesized",
		"max_tokens", limits.MaxTokens,
		"temperature", limits.Temperature,
		"script_bytes", len(script),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Result{Script: script, Source: SourceModel}, nil
}
