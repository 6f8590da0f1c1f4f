// Package admin exposes the operator HTTP surface: manual CRM triggers, task
// history, health and metrics.
package admin

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stiapanreha-dev/BotOracle/internal/crm"
	"github.com/stiapanreha-dev/BotOracle/internal/domain"
)

// Engine is the CRM surface the operator can drive.
type Engine interface {
	TriggerDailyPlanning(ctx context.Context) (crm.PlanStats, error)
	TriggerDispatch(ctx context.Context, limit int) (crm.DispatchStats, error)
	ListTasks(ctx context.Context, userID int64, status domain.TaskStatus, limit int) ([]domain.Task, error)
	StopCadence(ctx context.Context, userID int64, reason string) error
}

// NewRouter builds the gin engine. Admin routes are mounted only when token
// is set; health and metrics are always public.
func NewRouter(engine Engine, token string, dispatchLimit int, log *zap.Logger) *gin.Engine {
	log = log.Named("admin")
	h := &handler{engine: engine, dispatchLimit: dispatchLimit, log: log}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if token == "" {
		log.Warn("ADMIN_TOKEN is empty, admin routes disabled")
		return router
	}

	adminRoutes := router.Group("/admin")
	adminRoutes.Use(requireToken(token))
	{
		adminRoutes.POST("/trigger/crm-planning", h.triggerPlanning)
		adminRoutes.POST("/trigger/crm-dispatch", h.triggerDispatch)
		adminRoutes.GET("/crm/tasks", h.listTasks)
		adminRoutes.POST("/crm/users/:id/stop", h.stopCadence)
	}
	return router
}

// requireToken accepts "Authorization: Bearer <token>" or "X-Admin-Token: <token>".
func requireToken(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got := c.GetHeader("X-Admin-Token")
		if auth := c.GetHeader("Authorization"); got == "" && strings.HasPrefix(auth, "Bearer ") {
			got = strings.TrimPrefix(auth, "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/metrics" || c.Request.URL.Path == "/healthz" {
			return
		}
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
