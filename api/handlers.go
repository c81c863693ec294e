package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/skolmuirgheasa/resquared-automation/models"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
	"github.com/skolmuirgheasa/resquared-automation/storage"
)

// CampaignRunner 执行 campaign,由 services/campaign.Runner 实现
type CampaignRunner interface {
	Run(ctx context.Context, req models.CampaignRequest) (*models.CampaignRun, error)
}

// RunStore 运行记录查询
type RunStore interface {
	GetRun(id string) (*models.CampaignRun, error)
	ListRuns(limit int) ([]*models.CampaignRun, error)
}

// BrowserStatus 浏览器后端状态
type BrowserStatus interface {
	IsRunning() bool
	Status() map[string]interface{}
}

type Handler struct {
	runner  CampaignRunner
	db      RunStore
	browser BrowserStatus
}

func NewHandler(runner CampaignRunner, db RunStore, browser BrowserStatus) *Handler {
	return &Handler{
		runner:  runner,
		db:      db,
		browser: browser,
	}
}

// ============= Campaign 相关 API =============

// RunCampaign 同步执行一次 campaign
func (h *Handler) RunCampaign(c *gin.Context) {
	var req models.CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	logger.Info(ctx, "[RunCampaign] received campaign for %s", req.TargetURL)

	run, err := h.runner.Run(ctx, req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		body := gin.H{"error": err.Error()}
		if run != nil {
			body["run_id"] = run.ID
			body["status"] = run.Status
			body["steps"] = run.Steps
		}
		c.JSON(http.StatusInternalServerError, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":        run.ID,
		"status":        run.Status,
		"summary":       run.Summary,
		"used_fallback": run.UsedFallback,
		"steps":         run.Steps,
	})
}

// ListCampaigns 列出最近的运行记录
func (h *Handler) ListCampaigns(c *gin.Context) {
	limit := 20
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	runs, err := h.db.ListRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list campaign runs: " + err.Error()})
		return
	}
	if runs == nil {
		runs = []*models.CampaignRun{}
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// GetCampaign 获取单个运行记录
func (h *Handler) GetCampaign(c *gin.Context) {
	run, err := h.db.GetRun(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetBrowserStatus 浏览器状态
func (h *Handler) GetBrowserStatus(c *gin.Context) {
	if h.browser == nil {
		c.JSON(http.StatusOK, gin.H{"is_running": false})
		return
	}
	c.JSON(http.StatusOK, h.browser.Status())
}
