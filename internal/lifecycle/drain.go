package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	errDrainTimeout    = errors.New("timeout waiting for websocket sessions to drain")
	errRunDrainTimeout = errors.New("timeout waiting for in-flight runs to drain")
)

// DrainManager tracks draining state, in-flight pipeline runs and active
// websocket sessions.
type DrainManager struct {
	draining atomic.Bool

	wsActive atomic.Int64
	wsWG     sync.WaitGroup

	runsActive atomic.Int64
	runsWG     sync.WaitGroup
}

func NewDrainManager() *DrainManager {
	return &DrainManager{}
}

func (m *DrainManager) StartDraining() {
	m.draining.Store(true)
}

func (m *DrainManager) IsDraining() bool {
	return m.draining.Load()
}

func (m *DrainManager) ActiveWebSockets() int64 {
	return m.wsActive.Load()
}

func (m *DrainManager) ActiveRuns() int64 {
	return m.runsActive.Load()
}

// TrackWebSocket registers a websocket session and returns a release callback.
func (m *DrainManager) TrackWebSocket() func() {
	return track(&m.wsWG, &m.wsActive)
}

// TrackRun registers a pipeline run and returns a release callback.
func (m *DrainManager) TrackRun() func() {
	return track(&m.runsWG, &m.runsActive)
}

func track(wg *sync.WaitGroup, active *atomic.Int64) func() {
	wg.Add(1)
	active.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			active.Add(-1)
			wg.Done()
		})
	}
}

func (m *DrainManager) WaitWebSockets(ctx context.Context) error {
	return wait(ctx, &m.wsWG, errDrainTimeout)
}

func (m *DrainManager) WaitRuns(ctx context.Context) error {
	return wait(ctx, &m.runsWG, errRunDrainTimeout)
}

func wait(ctx context.Context, wg *sync.WaitGroup, timeoutErr error) error {
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	select {
	case <-ctx.Done():
		return timeoutErr
	case <-waitDone:
		return nil
	}
}

// RejectWhileDraining answers 503 for new work once draining has started.
func (m *DrainManager) RejectWhileDraining() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.IsDraining() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "server is draining"})
			return
		}
		c.Next()
	}
}
