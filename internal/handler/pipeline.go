package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sannainmf/GmshApp-Hexera/internal/lifecycle"
	"github.com/Sannainmf/GmshApp-Hexera/internal/logx"
	"github.com/Sannainmf/GmshApp-Hexera/internal/service"
	"github.com/Sannainmf/GmshApp-Hexera/internal/synth"
	"github.com/Sannainmf/GmshApp-Hexera/pkg/model"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamRequestTimeout = 30 * time.Second
	streamQueueFrames    = 256
)

// streamWriteTimeout bounds each websocket write on /execute/stream.
var streamWriteTimeout = 10 * time.Second

var errStreamStalled = errors.New("stream client stopped reading")

type PipelineHandler struct {
	svc        *service.PipelineService
	drainState *lifecycle.DrainManager
	limiter    gin.HandlerFunc
}

// NewPipelineHandler builds the handler. limiter may be nil.
func NewPipelineHandler(svc *service.PipelineService, drainState *lifecycle.DrainManager, limiter gin.HandlerFunc) *PipelineHandler {
	return &PipelineHandler{svc: svc, drainState: drainState, limiter: limiter}
}

func (h *PipelineHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/load-model", h.LoadModel)
	r.GET("/model-info", h.ModelInfo)

	var guards []gin.HandlerFunc
	if h.drainState != nil {
		guards = append(guards, h.drainState.RejectWhileDraining())
	}
	if h.limiter != nil {
		guards = append(guards, h.limiter)
	}
	work := r.Group("", guards...)
	{
		work.POST("/generate", h.Generate)
		work.POST("/execute-gmsh", h.ExecuteGmsh)
		work.POST("/execute-existing-script", h.ExecuteExistingScript)
		work.GET("/execute/stream", h.ExecuteStream)
	}
}

func (h *PipelineHandler) LoadModel(c *gin.Context) {
	info, err := h.svc.LoadModel(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load model: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.LoadModelResponse{Message: "Model loaded successfully", Model: info})
}

func (h *PipelineHandler) ModelInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ModelInfo())
}

func (h *PipelineHandler) Generate(c *gin.Context) {
	var req model.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.svc.Generate(c.Request.Context(), &req)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, synth.ErrModelNotLoaded) {
			msg = "Model not loaded. Please load the model first."
		}
		c.JSON(statusFor(err), gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *PipelineHandler) ExecuteGmsh(c *gin.Context) {
	var req model.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	release := h.trackRun()
	defer release()

	resp, err := h.svc.Run(c.Request.Context(), &req, nil)
	writeExecution(c, resp, err)
}

func (h *PipelineHandler) ExecuteExistingScript(c *gin.Context) {
	var req model.ExecuteScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	release := h.trackRun()
	defer release()

	resp, err := h.svc.ExecuteScript(c.Request.Context(), &req, nil)
	writeExecution(c, resp, err)
}

// writeExecution sends the full execution response, with a status code that
// reflects the failure kind. Requests rejected before a run started get a
// plain error body.
func writeExecution(c *gin.Context, resp *model.ExecutionResponse, err error) {
	if resp == nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(statusFor(err), resp)
}

func (h *PipelineHandler) trackRun() func() {
	if h.drainState == nil {
		return func() {}
	}
	return h.drainState.TrackRun()
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled by middleware
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ExecuteStream runs one pipeline request over a websocket. The client sends a
// StreamRequest; the server answers with log frames while the engine runs and
// finishes with a single result (or error) frame.
func (h *PipelineHandler) ExecuteStream(c *gin.Context) {
	ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	release := func() {}
	if h.drainState != nil {
		release = h.drainState.TrackWebSocket()
	}
	defer release()

	logger := logx.Component(c.Request.Context(), "stream")
	out := newFrameWriter(ws)

	_ = ws.SetReadDeadline(time.Now().Add(streamRequestTimeout))
	var req model.StreamRequest
	if err := ws.ReadJSON(&req); err != nil {
		_ = out.finish(model.StreamFrame{Type: model.StreamFrameError, Error: "invalid request: " + err.Error()})
		return
	}
	_ = ws.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		// Any read failure means the client went away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	runRelease := h.trackRun()
	var resp *model.ExecutionResponse
	switch {
	case strings.TrimSpace(req.ScriptContent) != "" && strings.TrimSpace(req.Prompt) != "":
		err = fmt.Errorf("%w: set either prompt or script_content, not both", service.ErrInvalidRequest)
	case strings.TrimSpace(req.ScriptContent) != "":
		resp, err = h.svc.ExecuteScript(ctx, &model.ExecuteScriptRequest{
			ScriptContent:  req.ScriptContent,
			OutputFilename: req.OutputFilename,
			ElementSize:    req.ElementSize,
		}, out)
	default:
		gen := req.GenerationRequest
		resp, err = h.svc.Run(ctx, &gen, out)
	}
	runRelease()

	if resp == nil {
		_ = out.finish(model.StreamFrame{Type: model.StreamFrameError, Error: err.Error()})
		return
	}
	if err := out.finish(model.StreamFrame{Type: model.StreamFrameResult, Result: resp}); err != nil {
		logger.Warn("failed to send stream result", "run_id", resp.RunID, "error", err)
		return
	}
	_ = out.close()
}

// frameWriter turns engine output into log frames. Log frames go through a
// bounded queue drained by one pump goroutine; when the queue is full the
// frame is dropped, so the engine never waits on the client. Every socket
// write carries a deadline.
type frameWriter struct {
	ws *websocket.Conn

	mu      sync.Mutex
	closed  bool
	frames  chan []byte
	dropped int
	done    chan struct{}
	failed  atomic.Bool
}

func newFrameWriter(ws *websocket.Conn) *frameWriter {
	w := &frameWriter{
		ws:     ws,
		frames: make(chan []byte, streamQueueFrames),
		done:   make(chan struct{}),
	}
	go w.pump()
	return w
}

func (w *frameWriter) pump() {
	defer close(w.done)
	for msg := range w.frames {
		if w.failed.Load() {
			continue
		}
		if err := w.write(msg); err != nil {
			w.failed.Store(true)
		}
	}
}

func (w *frameWriter) write(msg []byte) error {
	if err := w.ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.TextMessage, msg)
}

// Write never blocks and never fails; output the client cannot keep up with
// is dropped.
func (w *frameWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.failed.Load() {
		return len(p), nil
	}
	if len(w.frames) == cap(w.frames) {
		w.dropped++
		return len(p), nil
	}
	msg, err := json.Marshal(model.StreamFrame{Type: model.StreamFrameLog, Data: string(p)})
	if err != nil {
		return len(p), nil
	}
	select {
	case w.frames <- msg:
	default:
		w.dropped++
	}
	return len(p), nil
}

// finish flushes queued log frames and writes the terminal frame.
func (w *frameWriter) finish(frame model.StreamFrame) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.frames)
	}
	dropped := w.dropped
	w.mu.Unlock()
	<-w.done

	if w.failed.Load() {
		return errStreamStalled
	}
	if dropped > 0 {
		note, _ := json.Marshal(model.StreamFrame{
			Type: model.StreamFrameLog,
			Data: fmt.Sprintf("[%d log chunks dropped: client too slow]\n", dropped),
		})
		if err := w.write(note); err != nil {
			return err
		}
	}
	msg, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return w.write(msg)
}

func (w *frameWriter) close() error {
	return w.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
}
