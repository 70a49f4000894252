package handler

import (
	"net/http"
	"strconv"

	"github.com/Sannainmf/GmshApp-Hexera/internal/service"
	"github.com/Sannainmf/GmshApp-Hexera/internal/store"
	"github.com/Sannainmf/GmshApp-Hexera/pkg/model"
	"github.com/gin-gonic/gin"
)

// FilesHandler serves stored artifacts and run history.
type FilesHandler struct {
	svc *service.PipelineService
}

func NewFilesHandler(svc *service.PipelineService) *FilesHandler {
	return &FilesHandler{svc: svc}
}

func (h *FilesHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/output-files", h.ListFiles)
	r.GET("/download/:name", h.Download)
	r.DELETE("/cleanup", h.Cleanup)

	runs := r.Group("/runs")
	{
		runs.GET("", h.ListRuns)
		runs.GET("/:id", h.GetRun)
		runs.GET("/:id/files", h.ListRunFiles)
		runs.GET("/:id/files/:name", h.DownloadRunFile)
		runs.GET("/:id/preview", h.Preview)
	}
}

func (h *FilesHandler) ListFiles(c *gin.Context) {
	files, err := h.svc.Files()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.OutputFilesResponse{Files: files})
}

func (h *FilesHandler) Download(c *gin.Context) {
	f, err := h.svc.Resolve(c.Param("name"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", "application/octet-stream")
	c.FileAttachment(f.Path, f.Name)
}

func (h *FilesHandler) Cleanup(c *gin.Context) {
	n, err := h.svc.Cleanup(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.CleanupResponse{
		Message: "Cleaned up " + strconv.Itoa(n) + " files",
		Deleted: n,
	})
}

func (h *FilesHandler) ListRuns(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	resp, err := h.svc.Runs(c.Request.Context(), store.RunQuery{
		Status:         c.Query("status"),
		Source:         c.Query("source"),
		OutputFilename: c.Query("output_filename"),
		Page:           page,
		PageSize:       pageSize,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *FilesHandler) GetRun(c *gin.Context) {
	run, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *FilesHandler) ListRunFiles(c *gin.Context) {
	files, err := h.svc.RunFiles(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.OutputFilesResponse{Files: files})
}

func (h *FilesHandler) DownloadRunFile(c *gin.Context) {
	f, err := h.svc.ResolveRunFile(c.Param("id"), c.Param("name"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", "application/octet-stream")
	c.FileAttachment(f.Path, f.Name)
}

func (h *FilesHandler) Preview(c *gin.Context) {
	resp, err := h.svc.Preview(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}
