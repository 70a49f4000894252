package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Sannainmf/GmshApp-Hexera/pkg/model"
)

var (
	// ErrNotFound is returned when a file or run does not exist.
	ErrNotFound = &APIError{StatusCode: http.StatusNotFound, Message: "resource not found"}

	// ErrBadRequest is returned when the request is invalid.
	ErrBadRequest = &APIError{StatusCode: http.StatusBadRequest, Message: "invalid request"}

	// ErrUnavailable is returned when no model is loaded or the server is draining.
	ErrUnavailable = &APIError{StatusCode: http.StatusServiceUnavailable, Message: "service unavailable"}

	// ErrTimeout is returned when the engine run exceeded its time limit.
	ErrTimeout = &APIError{StatusCode: http.StatusGatewayTimeout, Message: "execution timed out"}

	// ErrRateLimited is returned when the server throttled the caller.
	ErrRateLimited = &APIError{StatusCode: http.StatusTooManyRequests, Message: "rate limited"}
)

// APIError represents an error response from the API. For pipeline calls the
// server still returns the full execution result, which is kept in Execution.
type APIError struct {
	StatusCode int
	Message    string
	ErrorKind  string
	Execution  *model.ExecutionResponse
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.ErrorKind != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.ErrorKind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Is matches on status code.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode
}

func (e *APIError) Unwrap() error {
	return e.Err
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	ErrorKind string `json:"error_kind"`
	RunID     string `json:"run_id"`
}

func handleErrorResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Err:        err,
		}
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.Error != "":
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		case errResp.RunID != "":
			var exec model.ExecutionResponse
			_ = json.Unmarshal(body, &exec)
			return &APIError{
				StatusCode: resp.StatusCode,
				Message:    errResp.Message,
				ErrorKind:  errResp.ErrorKind,
				Execution:  &exec,
			}
		case errResp.Message != "":
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Message}
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// ExecutionOf returns the execution result carried by a failed pipeline call.
func ExecutionOf(err error) (*model.ExecutionResponse, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Execution != nil {
		return apiErr.Execution, true
	}
	return nil, false
}
