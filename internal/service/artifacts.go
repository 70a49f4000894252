package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sannainmf/GmshApp-Hexera/internal/artifact"
	"github.com/Sannainmf/GmshApp-Hexera/internal/engine"
	"github.com/Sannainmf/GmshApp-Hexera/internal/logx"
	"github.com/Sannainmf/GmshApp-Hexera/internal/store"
	"github.com/Sannainmf/GmshApp-Hexera/pkg/model"
)

// maxPreviewBytes bounds the mesh size returned hex-encoded by Preview.
const maxPreviewBytes = 16 << 20

var ErrPreviewTooLarge = errors.New("mesh too large to preview")

// Files lists the current artifact view.
func (s *PipelineService) Files() ([]model.OutputFile, error) {
	files, err := s.artifacts.List()
	if err != nil {
		return nil, err
	}
	return toOutputFiles(files), nil
}

// Resolve finds a file in the current artifact view.
func (s *PipelineService) Resolve(name string) (artifact.FileInfo, error) {
	return s.artifacts.Resolve(name)
}

// Cleanup deletes every stored artifact. Run history is kept.
func (s *PipelineService) Cleanup(ctx context.Context) (int, error) {
	n, err := s.artifacts.Cleanup()
	if s.metrics != nil {
		s.metrics.AddArtifactsDeleted(n)
	}
	if err != nil {
		return n, fmt.Errorf("failed to clean up artifacts: %w", err)
	}
	logx.Component(ctx, "pipeline").Info("artifacts cleaned up", "deleted", n)
	return n, nil
}

// PurgeHistory drops run records created before cutoff.
func (s *PipelineService) PurgeHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.runs == nil {
		return 0, nil
	}
	return s.runs.PurgeBefore(ctx, cutoff)
}

// StartHistoryJanitor purges history older than retention every interval
// until ctx is done.
func (s *PipelineService) StartHistoryJanitor(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 || s.runs == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.PurgeHistory(ctx, time.Now().UTC().Add(-retention))
				logger := logx.Component(ctx, "history_janitor")
				if err != nil {
					logger.Warn("failed to purge run history", "error", err)
				} else if n > 0 {
					logger.Info("run history purged", "deleted", n)
				}
			}
		}
	}()
}

// Runs lists run history, newest first.
func (s *PipelineService) Runs(ctx context.Context, query store.RunQuery) (*model.RunListResponse, error) {
	if s.runs == nil {
		return &model.RunListResponse{Items: []model.Run{}}, nil
	}
	recs, total, err := s.runs.List(ctx, query)
	if err != nil {
		return nil, err
	}
	items := make([]model.Run, 0, len(recs))
	for i := range recs {
		items = append(items, recordToRun(&recs[i], false))
	}
	return &model.RunListResponse{Items: items, Total: total}, nil
}

// GetRun returns one run including its script and engine log.
func (s *PipelineService) GetRun(ctx context.Context, id string) (*model.Run, error) {
	if s.runs == nil {
		return nil, ErrRunNotFound
	}
	rec, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRunNotFound
	}
	run := recordToRun(rec, true)
	return &run, nil
}

// RunFiles lists the files still stored for a run.
func (s *PipelineService) RunFiles(id string) ([]model.OutputFile, error) {
	files, err := s.artifacts.ListRun(id)
	if err != nil {
		return nil, err
	}
	return toOutputFiles(files), nil
}

func (s *PipelineService) ResolveRunFile(id, name string) (artifact.FileInfo, error) {
	return s.artifacts.ResolveRun(id, name)
}

// Preview returns a run's surface mesh (or native mesh when no surface was
// exported) hex-encoded for browser viewers.
func (s *PipelineService) Preview(id string) (*model.PreviewResponse, error) {
	files, err := s.artifacts.ListRun(id)
	if err != nil {
		return nil, err
	}
	var pick *artifact.FileInfo
	for _, ext := range []string{engine.SurfaceMeshExt, engine.NativeMeshExt} {
		for i := range files {
			if filepath.Ext(files[i].Name) == ext {
				pick = &files[i]
				break
			}
		}
		if pick != nil {
			break
		}
	}
	if pick == nil {
		return nil, artifact.ErrNotFound
	}
	if pick.Size > maxPreviewBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrPreviewTooLarge, pick.Size)
	}
	data, err := os.ReadFile(pick.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mesh: %w", err)
	}
	return &model.PreviewResponse{
		RunID:  id,
		Name:   pick.Name,
		Format: strings.TrimPrefix(filepath.Ext(pick.Name), "."),
		Size:   int64(len(data)),
		Data:   hex.EncodeToString(data),
	}, nil
}

func toOutputFiles(files []artifact.FileInfo) []model.OutputFile {
	out := make([]model.OutputFile, 0, len(files))
	for _, f := range files {
		out = append(out, model.OutputFile{Name: f.Name, Size: f.Size, CreatedAt: f.CreatedAt})
	}
	return out
}

func recordToRun(rec *store.RunRecord, detail bool) model.Run {
	run := model.Run{
		ID:              rec.ID,
		Kind:            model.RunKind(rec.Kind),
		Status:          model.RunStatus(rec.Status),
		Prompt:          rec.Prompt,
		OutputFilename:  rec.OutputFilename,
		SynthesisSource: rec.SynthesisSource,
		Template:        rec.Template,
		ErrorKind:       rec.ErrorKind,
		Message:         rec.Message,
		DurationMs:      rec.DurationMs,
		CreatedAt:       rec.CreatedAt,
	}
	if detail {
		run.Script = rec.Script
		run.Log = rec.Log
	}
	return run
}
