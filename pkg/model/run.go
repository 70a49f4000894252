package model

import "time"

// RunKind distinguishes prompt-driven runs from direct script executions.
type RunKind string

const (
	RunKindPipeline RunKind = "pipeline"
	RunKindScript   RunKind = "script"
)

// Run is one recorded pipeline invocation.
type Run struct {
	ID              string    `json:"id"`
	Kind            RunKind   `json:"kind"`
	Status          RunStatus `json:"status"`
	Prompt          string    `json:"prompt,omitempty"`
	OutputFilename  string    `json:"output_filename"`
	SynthesisSource string    `json:"synthesis_source,omitempty"`
	Template        string    `json:"template,omitempty"`
	ErrorKind       string    `json:"error_kind,omitempty"`
	Message         string    `json:"message,omitempty"`
	Script          string    `json:"script,omitempty"`
	Log             string    `json:"log,omitempty"`
	DurationMs      int64     `json:"duration_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

type RunListResponse struct {
	Items []Run `json:"items"`
	Total int   `json:"total"`
}

// PreviewResponse carries a run's mesh bytes hex-encoded for browser viewers.
type PreviewResponse struct {
	RunID  string `json:"run_id"`
	Name   string `json:"name"`
	Format string `json:"format"`
	Size   int64  `json:"size"`
	Data   string `json:"data"`
}

type StreamFrameType string

const (
	StreamFrameLog    StreamFrameType = "log"
	StreamFrameResult StreamFrameType = "result"
	StreamFrameError  StreamFrameType = "error"
)

// StreamFrame is one websocket message of /execute/stream.
type StreamFrame struct {
	Type   StreamFrameType    `json:"type"`
	Data   string             `json:"data,omitempty"`
	Result *ExecutionResponse `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// StreamRequest is the first client message on /execute/stream. Exactly one of
// Prompt or ScriptContent must be set.
type StreamRequest struct {
	GenerationRequest
	ScriptContent string `json:"script_content,omitempty"`
}
