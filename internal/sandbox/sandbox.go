// Package sandbox runs a script through the meshing engine inside a throwaway
// workspace and publishes the results to the artifact store.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Sannainmf/GmshApp-Hexera/internal/artifact"
	"github.com/Sannainmf/GmshApp-Hexera/internal/engine"
	"github.com/Sannainmf/GmshApp-Hexera/internal/logx"
	"github.com/Sannainmf/GmshApp-Hexera/pkg/model"
	"github.com/google/uuid"
)

type Config struct {
	Binary  string
	Timeout time.Duration
	// SurfaceExport runs a second pass producing <name>.stl. Its failure is not fatal.
	SurfaceExport bool
	// WorkspaceDir is the parent of per-call workspaces. Empty means os.TempDir().
	WorkspaceDir string
}

type Request struct {
	RunID       string
	Script      string
	OutputName  string
	ElementSize *float64
	// Live, when set, receives engine output while it runs.
	Live io.Writer
}

type Result struct {
	RunID string
	Log   string
	// Artifacts maps artifact kind to its absolute path in the store.
	Artifacts map[string]string
	Files     []artifact.FileInfo
	Duration  time.Duration
}

type Sandbox struct {
	cfg    Config
	runner *engine.Runner
	store  *artifact.Store
}

func New(cfg Config, runner *engine.Runner, store *artifact.Store) *Sandbox {
	return &Sandbox{cfg: cfg, runner: runner, store: store}
}

// Execute performs exactly one engine run for req.
func (s *Sandbox) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := artifact.ValidateName(req.OutputName); err != nil {
		return nil, fmt.Errorf("invalid output name: %w", err)
	}
	if req.ElementSize != nil && *req.ElementSize <= 0 {
		return nil, fmt.Errorf("element size must be positive")
	}
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}

	if logx.RunIDFromContext(ctx) == "" {
		ctx = logx.WithRunID(ctx, req.RunID)
	}
	logger := logx.Component(ctx, "sandbox").With("output_name", req.OutputName)
	start := time.Now()

	ws, err := os.MkdirTemp(s.cfg.WorkspaceDir, "gmsh-"+req.OutputName+"-")
	if err != nil {
		return nil, &ExecutionError{Kind: KindInternal, Detail: "failed to create workspace", Err: err}
	}
	defer func() {
		if err := os.RemoveAll(ws); err != nil {
			logger.Warn("failed to remove workspace", "dir", ws, "error", err)
		}
	}()

	scriptPath := filepath.Join(ws, req.OutputName+engine.ScriptExt)
	if err := os.WriteFile(scriptPath, []byte(req.Script), 0o644); err != nil {
		return nil, &ExecutionError{Kind: KindInternal, Detail: "failed to write script", Err: err}
	}

	inv := engine.MeshInvocation(s.cfg.Binary, ws, req.OutputName, engine.NativeMeshExt, req.ElementSize, s.cfg.Timeout)
	out, err := s.runner.Run(ctx, inv, req.Live)
	if err := classify(out, err, s.cfg.Timeout); err != nil {
		logger.Warn("execution failed", "kind", err.Kind, "error", err.Error())
		return nil, err
	}
	log := out.Output

	primary := filepath.Join(ws, req.OutputName+engine.NativeMeshExt)
	if _, err := os.Stat(primary); err != nil {
		return nil, &ExecutionError{
			Kind:   KindMissingOutput,
			Detail: fmt.Sprintf("gmsh exited successfully but did not produce %s", filepath.Base(primary)),
			Log:    log,
		}
	}

	if s.cfg.SurfaceExport {
		log += s.exportSurface(ctx, ws, req)
	}

	paths, err := harvest(ws, req.OutputName)
	if err != nil {
		return nil, &ExecutionError{Kind: KindInternal, Detail: "failed to collect outputs", Log: log, Err: err}
	}

	files, err := s.store.Commit(req.RunID, paths)
	if err != nil {
		return nil, &ExecutionError{Kind: KindInternal, Detail: "failed to store outputs", Log: log, Err: err}
	}

	artifacts := make(map[string]string, len(files))
	for _, f := range files {
		artifacts[KindOf(req.OutputName, f.Name)] = f.Path
	}

	res := &Result{
		RunID:     req.RunID,
		Log:       log,
		Artifacts: artifacts,
		Files:     files,
		Duration:  time.Since(start),
	}
	logger.Info("execution succeeded", "files", len(files), "duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// classify turns a runner outcome into an ExecutionError, or nil on a clean exit.
func classify(out *engine.Outcome, err error, timeout time.Duration) *ExecutionError {
	var log string
	if out != nil {
		log = out.Output
	}
	switch {
	case errors.Is(err, engine.ErrTimeout):
		return &ExecutionError{
			Kind:   KindTimeout,
			Detail: fmt.Sprintf("gmsh execution timed out after %s", timeout),
			Log:    log,
		}
	case err != nil:
		return &ExecutionError{Kind: KindInternal, Detail: "gmsh execution failed", Log: log, Err: err}
	case out.ExitCode != 0:
		detail := strings.TrimSpace(out.Stderr)
		if detail == "" {
			detail = fmt.Sprintf("exit status %d", out.ExitCode)
		}
		return &ExecutionError{
			Kind:   KindEngine,
			Detail: "gmsh execution failed: " + detail,
			Log:    log,
		}
	}
	return nil
}

// exportSurface writes <name>.stl next to the native mesh. Failures are
// logged and the partial file removed. The engine output is returned for the run log.
func (s *Sandbox) exportSurface(ctx context.Context, ws string, req Request) string {
	logger := logx.Component(ctx, "sandbox")
	inv := engine.MeshInvocation(s.cfg.Binary, ws, req.OutputName, engine.SurfaceMeshExt, req.ElementSize, s.cfg.Timeout)
	out, err := s.runner.Run(ctx, inv, req.Live)
	if execErr := classify(out, err, s.cfg.Timeout); execErr != nil {
		logger.Warn("surface export skipped", "kind", execErr.Kind, "error", execErr.Error())
		_ = os.Remove(filepath.Join(ws, req.OutputName+engine.SurfaceMeshExt))
	}
	if out == nil {
		return ""
	}
	return out.Output
}

// harvest returns every regular <name>.* file in ws, sorted.
func harvest(ws, name string) ([]string, error) {
	entries, err := os.ReadDir(ws)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), name+".") {
			paths = append(paths, filepath.Join(ws, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// KindOf reports the artifact kind of file produced for outputName.
func KindOf(outputName, file string) string {
	switch ext := strings.TrimPrefix(file, outputName); ext {
	case engine.ScriptExt:
		return model.KindScript
	case engine.NativeMeshExt:
		return model.KindNativeMesh
	case engine.SurfaceMeshExt:
		return model.KindSurfaceMesh
	default:
		return model.KindExtPrefix + strings.TrimPrefix(ext, ".")
	}
}
