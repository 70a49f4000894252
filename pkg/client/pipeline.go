package client

import (
	"context"
	"net/http"

	"github.com/Sannainmf/GmshApp-Hexera/pkg/model"
)

// Health reports liveness and whether a model is loaded.
func (c *Client) Health(ctx context.Context) (*model.HealthResponse, error) {
	var result model.HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "health", nil, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// LoadModel asks the server to (re)load its model backend.
func (c *Client) LoadModel(ctx context.Context) (*model.LoadModelResponse, error) {
	var result model.LoadModelResponse
	if err := c.doJSON(ctx, http.MethodPost, apiPath("load-model"), nil, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ModelInfo(ctx context.Context) (*model.ModelInfo, error) {
	var result model.ModelInfo
	if err := c.doJSON(ctx, http.MethodGet, apiPath("model-info"), nil, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// Generate returns a model-written script without running it. It fails with
// ErrUnavailable when no model is loaded.
func (c *Client) Generate(ctx context.Context, req *model.GenerationRequest) (*model.GenerateResponse, error) {
	var result model.GenerateResponse
	if err := c.doJSON(ctx, http.MethodPost, apiPath("generate"), req, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// Execute runs the full prompt-to-mesh pipeline. On failure the returned error
// carries the execution result; see ExecutionOf.
func (c *Client) Execute(ctx context.Context, req *model.GenerationRequest) (*model.ExecutionResponse, error) {
	var result model.ExecutionResponse
	if err := c.doJSON(ctx, http.MethodPost, apiPath("execute-gmsh"), req, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExecuteScript meshes a caller-supplied script.
func (c *Client) ExecuteScript(ctx context.Context, req *model.ExecuteScriptRequest) (*model.ExecutionResponse, error) {
	var result model.ExecutionResponse
	if err := c.doJSON(ctx, http.MethodPost, apiPath("execute-existing-script"), req, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}
