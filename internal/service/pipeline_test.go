package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sannainmf/GmshApp-Hexera/internal/artifact"
	"github.com/Sannainmf/GmshApp-Hexera/internal/engine"
	"github.com/Sannainmf/GmshApp-Hexera/internal/metrics"
	"github.com/Sannainmf/GmshApp-Hexera/internal/sandbox"
	"github.com/Sannainmf/GmshApp-Hexera/internal/store"
	"github.com/Sannainmf/GmshApp-Hexera/internal/synth"
	"github.com/Sannainmf/GmshApp-Hexera/internal/testutil"
	"github.com/Sannainmf/GmshApp-Hexera/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedModel struct {
	output string
	err    error
}

func (m *scriptedModel) Generate(ctx context.Context, prompt string, limits synth.Limits) (string, error) {
	return m.output, m.err
}

func (m *scriptedModel) Describe() model.ModelInfo {
	return model.ModelInfo{Backend: "test", Name: "scripted"}
}

type fixture struct {
	svc       *PipelineService
	synth     *synth.Synthesizer
	artifacts *artifact.Store
	runs      *store.RunStore
}

func newFixture(t *testing.T, mutate func(*PipelineConfig, *sandbox.Config)) *fixture {
	t.Helper()
	if err := store.InitDB(filepath.Join(t.TempDir(), "gmshgen.db")); err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	t.Cleanup(func() { _ = store.CloseDB() })

	artifacts, err := artifact.NewStore(filepath.Join(t.TempDir(), "output"))
	require.NoError(t, err)

	pcfg := PipelineConfig{
		DefaultMaxTokens:   2000,
		MaxTokensLimit:     8192,
		DefaultTemperature: 0.7,
		FallbackEnabled:    true,
		APIPrefix:          "/api/v1",
	}
	scfg := sandbox.Config{Binary: testutil.FakeGmsh(t), Timeout: 10 * time.Second, WorkspaceDir: t.TempDir()}
	if mutate != nil {
		mutate(&pcfg, &scfg)
	}
	runner := engine.NewRunner(engine.RunnerOptions{TerminationGrace: 100 * time.Millisecond})
	sy := synth.New(synth.Options{})
	runs := store.NewRunStore()
	svc := NewPipelineService(pcfg, sy, sandbox.New(scfg, runner, artifacts), artifacts, runs, metrics.NewCollector("test"))
	return &fixture{svc: svc, synth: sy, artifacts: artifacts, runs: runs}
}

func TestRunFallsBackWithoutModel(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := f.svc.Run(context.Background(), &model.GenerationRequest{Prompt: "Create a simple 2D square mesh"}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuccess, resp.Status)
	assert.Equal(t, string(synth.SourceFallback), resp.SynthesisSource)
	assert.Equal(t, synth.TemplateSquare, resp.Template)
	assert.Equal(t, synth.Fallback("square"), resp.GeneratedScript)
	assert.Len(t, resp.OutputFiles, 2)
	assert.Equal(t, "/api/v1/runs/"+resp.RunID+"/files/generated_mesh.msh", resp.DownloadURLs[model.KindNativeMesh])

	files, err := f.svc.Files()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "generated_mesh.geo", files[0].Name)
	assert.Equal(t, "generated_mesh.msh", files[1].Name)

	run, err := f.svc.GetRun(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "square", run.Template)
	assert.Equal(t, model.RunStatusSuccess, run.Status)
	assert.Equal(t, resp.GeneratedScript, run.Script)
}

func TestRunUsesModelWhenLoaded(t *testing.T) {
	f := newFixture(t, nil)
	f.synth.SetModel(&scriptedModel{output: "<|im_start|>assistant\n// model script\nMesh 2;\n<|im_end|>"})

	resp, err := f.svc.Run(context.Background(), &model.GenerationRequest{Prompt: "a circle", OutputFilename: "disk"}, nil)
	require.NoError(t, err)
	assert.Equal(t, string(synth.SourceModel), resp.SynthesisSource)
	assert.Equal(t, "// model script\nMesh 2;", resp.GeneratedScript)
	assert.Empty(t, resp.Template)
}

func TestRunFallsBackOnModelFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.synth.SetModel(&scriptedModel{err: errors.New("backend down")})

	resp, err := f.svc.Run(context.Background(), &model.GenerationRequest{Prompt: "plate with a circular hole"}, nil)
	require.NoError(t, err)
	assert.Equal(t, string(synth.SourceFallback), resp.SynthesisSource)
	assert.Equal(t, synth.TemplateCircularHole, resp.Template)
}

func TestRunRequireModelAbortsBeforeExecution(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := f.svc.Run(context.Background(), &model.GenerationRequest{Prompt: "square", RequireModel: true}, nil)
	require.ErrorIs(t, err, synth.ErrModelNotLoaded)
	require.NotNil(t, resp)
	assert.Equal(t, model.RunStatusError, resp.Status)
	assert.Equal(t, model.ErrorKindModelNotLoaded, resp.ErrorKind)

	files, err := f.svc.Files()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunFallbackDisabledSurfacesSynthesisError(t *testing.T) {
	f := newFixture(t, func(p *PipelineConfig, _ *sandbox.Config) { p.FallbackEnabled = false })
	f.synth.SetModel(&scriptedModel{err: errors.New("backend down")})

	resp, err := f.svc.Run(context.Background(), &model.GenerationRequest{Prompt: "square"}, nil)
	var synthErr *synth.SynthesisError
	require.ErrorAs(t, err, &synthErr)
	assert.Equal(t, model.ErrorKindSynthesis, resp.ErrorKind)
}

func TestExecutionFailureKeepsScript(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := f.svc.ExecuteScript(context.Background(), &model.ExecuteScriptRequest{ScriptContent: testutil.MarkerFail, OutputFilename: "bad"}, nil)
	require.ErrorIs(t, err, sandbox.ErrEngine)
	assert.Equal(t, model.RunStatusError, resp.Status)
	assert.Equal(t, model.ErrorKindEngine, resp.ErrorKind)
	assert.Equal(t, testutil.MarkerFail, resp.GeneratedScript)
	assert.Contains(t, resp.Message, "Unknown command")
	assert.Contains(t, resp.GmshOutput, "Unknown command")

	run, err := f.svc.GetRun(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusError, run.Status)
	assert.Equal(t, model.ErrorKindEngine, run.ErrorKind)
}

func TestExecuteScriptTimeout(t *testing.T) {
	f := newFixture(t, func(_ *PipelineConfig, s *sandbox.Config) { s.Timeout = 200 * time.Millisecond })
	resp, err := f.svc.ExecuteScript(context.Background(), &model.ExecuteScriptRequest{ScriptContent: testutil.MarkerSleep}, nil)
	require.ErrorIs(t, err, sandbox.ErrExecutionTimeout)
	assert.Equal(t, model.ErrorKindTimeout, resp.ErrorKind)
}

func TestCollisionLastWriterWins(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first, err := f.svc.ExecuteScript(ctx, &model.ExecuteScriptRequest{ScriptContent: "// first\nMesh 2;\n", OutputFilename: "same"}, nil)
	require.NoError(t, err)
	_, err = f.svc.ExecuteScript(ctx, &model.ExecuteScriptRequest{ScriptContent: "// second\nMesh 2;\n", OutputFilename: "same"}, nil)
	require.NoError(t, err)

	current, err := f.svc.Resolve("same.geo")
	require.NoError(t, err)
	data, err := os.ReadFile(current.Path)
	require.NoError(t, err)
	assert.Equal(t, "// second\nMesh 2;\n", string(data))

	older, err := f.svc.ResolveRunFile(first.RunID, "same.geo")
	require.NoError(t, err)
	data, err = os.ReadFile(older.Path)
	require.NoError(t, err)
	assert.Equal(t, "// first\nMesh 2;\n", string(data))
}

func TestValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	hot := 2.5
	neg := -1.0
	cases := map[string]*model.GenerationRequest{
		"empty prompt":       {Prompt: "  "},
		"temperature":        {Prompt: "square", Temperature: &hot},
		"max tokens":         {Prompt: "square", MaxTokens: 100000},
		"negative tokens":    {Prompt: "square", MaxTokens: -1},
		"output traversal":   {Prompt: "square", OutputFilename: "../etc/passwd"},
		"negative elem size": {Prompt: "square", ElementSize: &neg},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			resp, err := f.svc.Run(ctx, req, nil)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Nil(t, resp)
		})
	}
}

func TestGenerateRequiresModel(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Generate(context.Background(), &model.GenerationRequest{Prompt: "square"})
	require.ErrorIs(t, err, synth.ErrModelNotLoaded)

	f.synth.SetModel(&scriptedModel{output: "Mesh 2;"})
	resp, err := f.svc.Generate(context.Background(), &model.GenerationRequest{Prompt: "square"})
	require.NoError(t, err)
	assert.Equal(t, "Mesh 2;", resp.Script)
	assert.Equal(t, "success", resp.Status)
}

func TestCleanupAndPreview(t *testing.T) {
	f := newFixture(t, func(_ *PipelineConfig, s *sandbox.Config) { s.SurfaceExport = true })
	ctx := context.Background()
	resp, err := f.svc.Run(ctx, &model.GenerationRequest{Prompt: "square", OutputFilename: "prev"}, nil)
	require.NoError(t, err)

	preview, err := f.svc.Preview(resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "stl", preview.Format)
	assert.Equal(t, "prev.stl", preview.Name)

	runFiles, err := f.svc.RunFiles(resp.RunID)
	require.NoError(t, err)
	assert.Len(t, runFiles, 3)

	n, err := f.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = f.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = f.svc.Preview(resp.RunID)
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	list, err := f.svc.Runs(ctx, store.RunQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, model.ErrorKindModelNotLoaded, ErrorKind(synth.ErrModelNotLoaded))
	assert.Equal(t, model.ErrorKindSynthesis, ErrorKind(&synth.SynthesisError{Err: errors.New("x")}))
	assert.Equal(t, model.ErrorKindMissingOutput, ErrorKind(&sandbox.ExecutionError{Kind: sandbox.KindMissingOutput}))
	assert.Equal(t, model.ErrorKindInternal, ErrorKind(errors.New("disk full")))
}

func TestPurgeHistory(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := f.svc.Run(context.Background(), &model.GenerationRequest{Prompt: "square"}, nil)
	require.NoError(t, err)

	n, err := f.svc.PurgeHistory(context.Background(), time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.svc.PurgeHistory(context.Background(), time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = f.svc.GetRun(context.Background(), resp.RunID)
	assert.ErrorIs(t, err, ErrRunNotFound)
}
