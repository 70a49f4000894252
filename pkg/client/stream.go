package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Sannainmf/GmshApp-Hexera/pkg/model"
	"github.com/gorilla/websocket"
)

// Stream runs a pipeline request over the websocket endpoint, copying engine
// output into live as it arrives. It returns the final execution result; a
// failed run is returned with a non-nil result and an *APIError.
func (c *Client) Stream(ctx context.Context, req *model.StreamRequest, live io.Writer) (*model.ExecutionResponse, error) {
	u := c.url(apiPath("execute", "stream"), nil)
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	header.Set("User-Agent", c.userAgent)
	if c.authToken != "" {
		header.Set("Authorization", "Bearer "+c.authToken)
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return nil, handleErrorResponse(resp)
			}
		}
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	if err := ws.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("failed to send stream request: %w", err)
	}

	for {
		var frame model.StreamFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("stream closed before result: %w", err)
		}
		switch frame.Type {
		case model.StreamFrameLog:
			if live != nil {
				if _, err := io.WriteString(live, frame.Data); err != nil {
					return nil, fmt.Errorf("failed to write engine output: %w", err)
				}
			}
		case model.StreamFrameResult:
			if frame.Result == nil {
				return nil, errors.New("stream result frame is empty")
			}
			if frame.Result.Status != model.RunStatusSuccess {
				return frame.Result, &APIError{
					StatusCode: statusForKind(frame.Result.ErrorKind),
					Message:    frame.Result.Message,
					ErrorKind:  frame.Result.ErrorKind,
					Execution:  frame.Result,
				}
			}
			return frame.Result, nil
		case model.StreamFrameError:
			return nil, &APIError{StatusCode: statusForStreamError(frame.Error), Message: frame.Error}
		}
	}
}

// statusForKind mirrors the server's HTTP mapping so stream failures match
// the same sentinel errors as the REST endpoints.
func statusForKind(kind string) int {
	switch kind {
	case model.ErrorKindInvalid:
		return http.StatusBadRequest
	case model.ErrorKindModelNotLoaded:
		return http.StatusServiceUnavailable
	case model.ErrorKindTimeout:
		return http.StatusGatewayTimeout
	case model.ErrorKindEngine:
		return http.StatusUnprocessableEntity
	case model.ErrorKindMissingOutput:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func statusForStreamError(msg string) int {
	if strings.HasPrefix(msg, "invalid request") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
