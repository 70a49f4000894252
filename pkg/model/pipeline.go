package model

import "time"

type ModelStatus string

const (
	ModelStatusLoaded    ModelStatus = "loaded"
	ModelStatusNotLoaded ModelStatus = "not_loaded"
)

// ModelInfo describes the generation capability currently backing the service.
type ModelInfo struct {
	Status   ModelStatus `json:"status"`
	Backend  string      `json:"backend,omitempty"`
	Name     string      `json:"model,omitempty"`
	LoadedAt *time.Time  `json:"loaded_at,omitempty"`
}

type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// Artifact kinds reported in ExecutionResponse.OutputFiles. Files with any other
// extension are reported as KindExtPrefix plus the extension, e.g. "ext:pos",
// so they can never shadow the named kinds.
const (
	KindScript      = "script"
	KindNativeMesh  = "native_mesh"
	KindSurfaceMesh = "surface_mesh"
	KindExtPrefix   = "ext:"
)

// Error kinds reported in ExecutionResponse.ErrorKind.
const (
	ErrorKindModelNotLoaded = "model_not_loaded"
	ErrorKindSynthesis      = "synthesis"
	ErrorKindInvalid        = "invalid_request"
	ErrorKindTimeout        = "timeout"
	ErrorKindEngine         = "engine"
	ErrorKindMissingOutput  = "missing_output"
	ErrorKindInternal       = "internal"
)

// GenerationRequest drives script generation and the full pipeline.
type GenerationRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	// MaxTokens defaults to the server's configured value when zero.
	MaxTokens int `json:"max_tokens"`
	// Temperature defaults to the server's configured value when nil.
	Temperature    *float64 `json:"temperature"`
	OutputFilename string   `json:"output_filename"`
	// ElementSize sets mesh density (min 0.5x, max 2x) when given.
	ElementSize *float64 `json:"element_size,omitempty"`
	// RequireModel disables the template fallback for this request.
	RequireModel bool `json:"require_model,omitempty"`
}

// ExecuteScriptRequest runs a caller-supplied script, skipping synthesis.
type ExecuteScriptRequest struct {
	ScriptContent  string   `json:"script_content" binding:"required"`
	OutputFilename string   `json:"output_filename"`
	ElementSize    *float64 `json:"element_size,omitempty"`
}

type GenerateResponse struct {
	Script          string `json:"script"`
	Status          string `json:"status"`
	Message         string `json:"message"`
	SynthesisSource string `json:"synthesis_source,omitempty"`
}

// ExecutionResponse is the unified result of a pipeline or script execution.
// A failed execution still carries the script that was run.
type ExecutionResponse struct {
	RunID           string            `json:"run_id"`
	Status          RunStatus         `json:"status"`
	Message         string            `json:"message"`
	GeneratedScript string            `json:"generated_script,omitempty"`
	SynthesisSource string            `json:"synthesis_source,omitempty"`
	Template        string            `json:"template,omitempty"`
	OutputFiles     map[string]string `json:"output_files"`
	DownloadURLs    map[string]string `json:"download_urls,omitempty"`
	GmshOutput      string            `json:"gmsh_output"`
	ErrorKind       string            `json:"error_kind,omitempty"`
	DurationMs      int64             `json:"duration_ms"`
}

type OutputFile struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type OutputFilesResponse struct {
	Files []OutputFile `json:"files"`
}

type CleanupResponse struct {
	Message string `json:"message"`
	Deleted int    `json:"deleted"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

type LoadModelResponse struct {
	Message string    `json:"message"`
	Model   ModelInfo `json:"model"`
}
