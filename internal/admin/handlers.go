package admin

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
)

const (
	defaultTaskListLimit = 50
	maxTaskListLimit     = 500
)

type handler struct {
	engine        Engine
	dispatchLimit int
	log           *zap.Logger
}

func (h *handler) triggerPlanning(c *gin.Context) {
	stats, err := h.engine.TriggerDailyPlanning(c.Request.Context())
	if err != nil {
		h.log.Error("manual planning failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "planning failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "stats": stats})
}

func (h *handler) triggerDispatch(c *gin.Context) {
	limit := h.dispatchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	stats, err := h.engine.TriggerDispatch(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("manual dispatch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dispatch failed", "stats": stats})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "stats": stats})
}

type taskView struct {
	ID          int64          `json:"id"`
	UserID      int64          `json:"user_id"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	DueAt       time.Time      `json:"due_at"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	ResultCode  *string        `json:"result_code,omitempty"`
	PayloadKind string         `json:"payload_kind,omitempty"`
	Payload     domain.Payload `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func newTaskView(t domain.Task) taskView {
	v := taskView{
		ID:         t.ID,
		UserID:     t.UserID,
		Type:       string(t.Type),
		Status:     string(t.Status),
		DueAt:      t.DueAt,
		SentAt:     t.SentAt,
		ResultCode: t.ResultCode,
		Payload:    t.Payload,
		CreatedAt:  t.CreatedAt,
	}
	if t.Payload != nil {
		v.PayloadKind = t.Payload.Kind()
	}
	return v
}

func (h *handler) listTasks(c *gin.Context) {
	var userID int64
	if raw := c.Query("user_id"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		userID = n
	}

	status := domain.TaskStatus(c.Query("status"))
	switch status {
	case "", domain.StatusScheduled, domain.StatusDue, domain.StatusSent, domain.StatusFailed, domain.StatusCancelled:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	limit := defaultTaskListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxTaskListLimit)
	}

	tasks, err := h.engine.ListTasks(c.Request.Context(), userID, status, limit)
	if err != nil {
		h.log.Error("list tasks failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tasks failed"})
		return
	}
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, newTaskView(t))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": views, "count": len(views)})
}

type stopRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *handler) stopCadence(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		return
	}

	err = h.engine.StopCadence(c.Request.Context(), userID, req.Reason)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	case errors.Is(err, domain.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.log.Error("stop cadence failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stop cadence failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}
