package handler

import (
	"net/http"

	"github.com/Sannainmf/GmshApp-Hexera/internal/lifecycle"
	"github.com/Sannainmf/GmshApp-Hexera/internal/service"
	"github.com/Sannainmf/GmshApp-Hexera/pkg/model"
	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	svc        *service.PipelineService
	drainState *lifecycle.DrainManager
}

func NewHealthHandler(svc *service.PipelineService, drainState *lifecycle.DrainManager) *HealthHandler {
	return &HealthHandler{svc: svc, drainState: drainState}
}

func (h *HealthHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/readyz", h.Ready)
}

// Health reports liveness and whether a model is loaded.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, model.HealthResponse{
		Status:      "healthy",
		ModelLoaded: h.svc.ModelLoaded(),
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	if h.drainState != nil && h.drainState.IsDraining() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "draining"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
