package handler

import (
	"errors"
	"net/http"

	"github.com/Sannainmf/GmshApp-Hexera/internal/artifact"
	"github.com/Sannainmf/GmshApp-Hexera/internal/sandbox"
	"github.com/Sannainmf/GmshApp-Hexera/internal/service"
	"github.com/Sannainmf/GmshApp-Hexera/internal/synth"
)

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var synthErr *synth.SynthesisError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, artifact.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, synth.ErrModelNotLoaded):
		return http.StatusServiceUnavailable
	case errors.As(err, &synthErr):
		return http.StatusInternalServerError
	case errors.Is(err, sandbox.ErrExecutionTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, sandbox.ErrEngine):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sandbox.ErrMissingOutput):
		return http.StatusBadGateway
	case errors.Is(err, artifact.ErrNotFound), errors.Is(err, service.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPreviewTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
