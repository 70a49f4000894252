package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Sannainmf/GmshApp-Hexera/pkg/model"
)

const (
	defaultCompletionsPath = "/v1/completions"
	defaultModelsPath      = "/v1/models"
	defaultHTTPTimeout     = 2 * time.Minute
	maxErrorBody           = 4 << 10
)

// HTTPConfig describes an OpenAI-compatible completion server (llama.cpp,
// vLLM, TGI) hosting the Gmsh model.
type HTTPConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
	// CompletionsPath defaults to /v1/completions.
	CompletionsPath string
	// ModelsPath defaults to /v1/models and is used as the load probe.
	ModelsPath string
}

// HTTPModel generates scripts through a raw-prompt completion endpoint.
type HTTPModel struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTPModel(cfg HTTPConfig, client *http.Client) *HTTPModel {
	if cfg.CompletionsPath == "" {
		cfg.CompletionsPath = defaultCompletionsPath
	}
	if cfg.ModelsPath == "" {
		cfg.ModelsPath = defaultModelsPath
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPModel{cfg: cfg, client: client}
}

type completionRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (m *HTTPModel) endpoint(path string) string {
	return strings.TrimRight(m.cfg.BaseURL, "/") + path
}

func (m *HTTPModel) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, m.endpoint(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if m.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	}
	return req, nil
}

// Ping checks that the backend answers its model listing endpoint.
func (m *HTTPModel) Ping(ctx context.Context) error {
	req, err := m.newRequest(ctx, http.MethodGet, m.cfg.ModelsPath, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("model backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model backend probe failed: status=%d msg=%s", resp.StatusCode, readErrorMessage(resp.Body))
	}
	return nil
}

func (m *HTTPModel) Generate(ctx context.Context, prompt string, limits Limits) (string, error) {
	payload, err := json.Marshal(completionRequest{
		Model:       m.cfg.Model,
		Prompt:      prompt,
		MaxTokens:   limits.MaxTokens,
		Temperature: limits.Temperature,
		Stop:        []string{turnEnd},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := m.newRequest(ctx, http.MethodPost, m.cfg.CompletionsPath, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion failed: status=%d msg=%s", resp.StatusCode, readErrorMessage(resp.Body))
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return out.Choices[0].Text, nil
}

func (m *HTTPModel) Describe() model.ModelInfo {
	return model.ModelInfo{
		Backend: m.cfg.BaseURL,
		Name:    m.cfg.Model,
	}
}

// readErrorMessage extracts {"error": "..."} or {"error": {"message": "..."}}
// from an upstream error body, falling back to the raw text.
func readErrorMessage(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var msg string
		if json.Unmarshal(envelope.Error, &msg) == nil {
			return msg
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return strings.TrimSpace(string(body))
}

// HTTPLoader builds an HTTPModel and probes it before reporting success.
type HTTPLoader struct {
	Config HTTPConfig
	Client *http.Client
}

func (l *HTTPLoader) Load(ctx context.Context) (Model, error) {
	if strings.TrimSpace(l.Config.BaseURL) == "" {
		return nil, ErrNoBackend
	}
	m := NewHTTPModel(l.Config, l.Client)
	if err := m.Ping(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
