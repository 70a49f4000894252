package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Sannainmf/GmshApp-Hexera/internal/artifact"
	"github.com/Sannainmf/GmshApp-Hexera/internal/logx"
	"github.com/Sannainmf/GmshApp-Hexera/internal/metrics"
	"github.com/Sannainmf/GmshApp-Hexera/internal/sandbox"
	"github.com/Sannainmf/GmshApp-Hexera/internal/store"
	"github.com/Sannainmf/GmshApp-Hexera/internal/synth"
	"github.com/Sannainmf/GmshApp-Hexera/pkg/model"
	"github.com/google/uuid"
)

var (
	// ErrInvalidRequest wraps every request validation failure.
	ErrInvalidRequest = errors.New("invalid request")
	ErrRunNotFound    = errors.New("run not found")
)

// Synthesizer is the script generation capability used by the pipeline.
type Synthesizer interface {
	Load(ctx context.Context) error
	Loaded() bool
	Info() model.ModelInfo
	Synthesize(ctx context.Context, prompt string, limits synth.Limits) (synth.Result, error)
}

// Executor runs one script through the meshing engine.
type Executor interface {
	Execute(ctx context.Context, req sandbox.Request) (*sandbox.Result, error)
}

type PipelineConfig struct {
	DefaultMaxTokens      int
	MaxTokensLimit        int
	DefaultTemperature    float64
	FallbackEnabled       bool
	DefaultOutputFilename string
	// APIPrefix is prepended to download URLs, e.g. "/api/v1".
	APIPrefix string
}

type PipelineService struct {
	cfg       PipelineConfig
	synth     Synthesizer
	executor  Executor
	artifacts *artifact.Store
	runs      *store.RunStore
	metrics   *metrics.Collector
}

// NewPipelineService wires the pipeline. runs and collector may be nil.
func NewPipelineService(cfg PipelineConfig, synthesizer Synthesizer, executor Executor, artifacts *artifact.Store, runs *store.RunStore, collector *metrics.Collector) *PipelineService {
	if cfg.DefaultOutputFilename == "" {
		cfg.DefaultOutputFilename = "generated_mesh"
	}
	return &PipelineService{
		cfg:       cfg,
		synth:     synthesizer,
		executor:  executor,
		artifacts: artifacts,
		runs:      runs,
		metrics:   collector,
	}
}

func (s *PipelineService) ModelLoaded() bool {
	return s.synth.Loaded()
}

func (s *PipelineService) ModelInfo() model.ModelInfo {
	return s.synth.Info()
}

func (s *PipelineService) LoadModel(ctx context.Context) (model.ModelInfo, error) {
	err := s.synth.Load(ctx)
	if s.metrics != nil {
		s.metrics.SetModelLoaded(s.synth.Loaded())
	}
	if err != nil {
		return s.synth.Info(), err
	}
	return s.synth.Info(), nil
}

// Generate returns a model-written script. It never falls back to templates.
func (s *PipelineService) Generate(ctx context.Context, req *model.GenerationRequest) (*model.GenerateResponse, error) {
	limits, err := s.limits(req.MaxTokens, req.Temperature)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if !s.synth.Loaded() {
		return nil, synth.ErrModelNotLoaded
	}

	start := time.Now()
	res, err := s.synth.Synthesize(ctx, req.Prompt, limits)
	s.recordSynthesis(synth.SourceModel, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return &model.GenerateResponse{
		Script:          res.Script,
		Status:          string(model.RunStatusSuccess),
		Message:         "Script generated successfully",
		SynthesisSource: string(res.Source),
	}, nil
}

// Run synthesizes a script for req and executes it. The response is non-nil
// whenever the request was valid, including failed runs, and always carries
// the script that was (or would have been) executed.
func (s *PipelineService) Run(ctx context.Context, req *model.GenerationRequest, live io.Writer) (*model.ExecutionResponse, error) {
	limits, err := s.limits(req.MaxTokens, req.Temperature)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	name, err := s.outputName(req.OutputFilename, req.ElementSize)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		defer s.metrics.RunStarted()()
	}
	runID := uuid.New().String()
	ctx = logx.WithRunID(ctx, runID)
	logger := logx.Component(ctx, "pipeline")
	start := time.Now()

	res, err := s.synthesize(ctx, req, limits)
	if err != nil {
		resp := &model.ExecutionResponse{
			RunID:       runID,
			Status:      model.RunStatusError,
			Message:     err.Error(),
			OutputFiles: map[string]string{},
			ErrorKind:   ErrorKind(err),
			DurationMs:  time.Since(start).Milliseconds(),
		}
		logger.Warn("synthesis failed", "error", err)
		s.recordRun(ctx, model.RunKindPipeline, req.Prompt, name, synth.Result{}, resp, nil)
		return resp, err
	}
	logger.Info("script ready", "source", res.Source, "template", res.Template)

	return s.execute(ctx, runID, start, model.RunKindPipeline, req.Prompt, name, req.ElementSize, res, live)
}

// ExecuteScript runs a caller-supplied script, skipping synthesis.
func (s *PipelineService) ExecuteScript(ctx context.Context, req *model.ExecuteScriptRequest, live io.Writer) (*model.ExecutionResponse, error) {
	if strings.TrimSpace(req.ScriptContent) == "" {
		return nil, fmt.Errorf("%w: script_content is required", ErrInvalidRequest)
	}
	name, err := s.outputName(req.OutputFilename, req.ElementSize)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		defer s.metrics.RunStarted()()
	}
	res := synth.Result{Script: req.ScriptContent}
	return s.execute(ctx, uuid.New().String(), time.Now(), model.RunKindScript, "", name, req.ElementSize, res, live)
}

// synthesize applies the fallback policy: the model when it is loaded and
// healthy, otherwise the templates unless the caller or config forbids it.
func (s *PipelineService) synthesize(ctx context.Context, req *model.GenerationRequest, limits synth.Limits) (synth.Result, error) {
	logger := logx.Component(ctx, "pipeline")
	allowFallback := s.cfg.FallbackEnabled && !req.RequireModel

	start := time.Now()
	res, err := s.synth.Synthesize(ctx, req.Prompt, limits)
	if !errors.Is(err, synth.ErrModelNotLoaded) {
		s.recordSynthesis(synth.SourceModel, err, time.Since(start))
	}
	if err == nil {
		return res, nil
	}
	if !allowFallback {
		return synth.Result{}, err
	}

	if errors.Is(err, synth.ErrModelNotLoaded) {
		logger.Info("no model loaded, using template fallback")
	} else {
		logger.Warn("model synthesis failed, using template fallback", "error", err)
	}
	start = time.Now()
	res = synth.FallbackResult(req.Prompt)
	s.recordSynthesis(synth.SourceFallback, nil, time.Since(start))
	return res, nil
}

func (s *PipelineService) execute(ctx context.Context, runID string, start time.Time, kind model.RunKind, prompt, name string, elementSize *float64, script synth.Result, live io.Writer) (*model.ExecutionResponse, error) {
	ctx = logx.WithRunID(ctx, runID)
	logger := logx.Component(ctx, "pipeline")

	resp := &model.ExecutionResponse{
		RunID:           runID,
		GeneratedScript: script.Script,
		SynthesisSource: string(script.Source),
		Template:        script.Template,
		OutputFiles:     map[string]string{},
	}

	result, err := s.executor.Execute(ctx, sandbox.Request{
		RunID:       runID,
		Script:      script.Script,
		OutputName:  name,
		ElementSize: elementSize,
		Live:        live,
	})
	resp.DurationMs = time.Since(start).Milliseconds()

	var files []artifact.FileInfo
	if err != nil {
		resp.Status = model.RunStatusError
		resp.Message = err.Error()
		resp.ErrorKind = ErrorKind(err)
		var execErr *sandbox.ExecutionError
		if errors.As(err, &execErr) {
			resp.GmshOutput = execErr.Log
		}
		logger.Warn("execution failed", "error_kind", resp.ErrorKind, "error", err)
	} else {
		files = result.Files
		resp.Status = model.RunStatusSuccess
		resp.Message = "Mesh generated successfully"
		resp.GmshOutput = result.Log
		resp.OutputFiles = result.Artifacts
		resp.DownloadURLs = make(map[string]string, len(result.Files))
		for _, f := range result.Files {
			resp.DownloadURLs[sandbox.KindOf(name, f.Name)] = s.runFileURL(runID, f.Name)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordExecution(string(resp.Status), resp.ErrorKind, time.Since(start))
	}
	s.recordRun(ctx, kind, prompt, name, script, resp, files)
	return resp, err
}

func (s *PipelineService) runFileURL(runID, name string) string {
	return s.cfg.APIPrefix + "/runs/" + url.PathEscape(runID) + "/files/" + url.PathEscape(name)
}

func (s *PipelineService) limits(maxTokens int, temperature *float64) (synth.Limits, error) {
	limits := synth.Limits{MaxTokens: maxTokens, Temperature: s.cfg.DefaultTemperature}
	if limits.MaxTokens == 0 {
		limits.MaxTokens = s.cfg.DefaultMaxTokens
	}
	if limits.MaxTokens < 0 {
		return limits, fmt.Errorf("%w: max_tokens must be positive", ErrInvalidRequest)
	}
	if s.cfg.MaxTokensLimit > 0 && limits.MaxTokens > s.cfg.MaxTokensLimit {
		return limits, fmt.Errorf("%w: max_tokens must not exceed %d", ErrInvalidRequest, s.cfg.MaxTokensLimit)
	}
	if temperature != nil {
		limits.Temperature = *temperature
	}
	if limits.Temperature < 0 || limits.Temperature > 2 {
		return limits, fmt.Errorf("%w: temperature must be within [0, 2]", ErrInvalidRequest)
	}
	return limits, nil
}

func (s *PipelineService) outputName(name string, elementSize *float64) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = s.cfg.DefaultOutputFilename
	}
	if err := artifact.ValidateName(name); err != nil {
		return "", fmt.Errorf("%w: output_filename: %v", ErrInvalidRequest, err)
	}
	if elementSize != nil && *elementSize <= 0 {
		return "", fmt.Errorf("%w: element_size must be positive", ErrInvalidRequest)
	}
	return name, nil
}

func (s *PipelineService) recordSynthesis(source synth.Source, err error, d time.Duration) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.RecordSynthesis(string(source), outcome, d)
}

// recordRun persists the run. History is best effort: failures are logged.
func (s *PipelineService) recordRun(ctx context.Context, kind model.RunKind, prompt, name string, script synth.Result, resp *model.ExecutionResponse, files []artifact.FileInfo) {
	if s.runs == nil {
		return
	}
	rec := &store.RunRecord{
		ID:              resp.RunID,
		Kind:            string(kind),
		Status:          string(resp.Status),
		Prompt:          prompt,
		OutputFilename:  name,
		SynthesisSource: string(script.Source),
		Template:        script.Template,
		ErrorKind:       resp.ErrorKind,
		Message:         resp.Message,
		Script:          script.Script,
		Log:             resp.GmshOutput,
		DurationMs:      resp.DurationMs,
		CreatedAt:       time.Now().UTC(),
	}
	artifacts := make([]store.RunArtifactRecord, 0, len(files))
	for _, f := range files {
		artifacts = append(artifacts, store.RunArtifactRecord{
			Kind:      sandbox.KindOf(name, f.Name),
			Name:      f.Name,
			Size:      f.Size,
			CreatedAt: f.CreatedAt,
		})
	}
	// The request may already be canceled; history should still be written.
	if err := s.runs.Create(context.WithoutCancel(ctx), rec, artifacts); err != nil {
		logx.Component(ctx, "pipeline").Error("failed to record run", "error", err)
	}
}

// ErrorKind classifies a pipeline error for responses, metrics and history.
func ErrorKind(err error) string {
	var synthErr *synth.SynthesisError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, artifact.ErrInvalidName):
		return model.ErrorKindInvalid
	case errors.Is(err, synth.ErrModelNotLoaded), errors.Is(err, synth.ErrNoBackend):
		return model.ErrorKindModelNotLoaded
	case errors.As(err, &synthErr):
		return model.ErrorKindSynthesis
	case errors.Is(err, sandbox.ErrExecutionTimeout):
		return model.ErrorKindTimeout
	case errors.Is(err, sandbox.ErrEngine):
		return model.ErrorKindEngine
	case errors.Is(err, sandbox.ErrMissingOutput):
		return model.ErrorKindMissingOutput
	default:
		return model.ErrorKindInternal
	}
}
