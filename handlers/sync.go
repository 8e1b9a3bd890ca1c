package handlers

import (
	"context"
	"net/http"

	"github.com/benzdriver/thinkforward-ai-sub003/internal/runlock"
	syncsvc "github.com/benzdriver/thinkforward-ai-sub003/internal/sync"
	"github.com/benzdriver/thinkforward-ai-sub003/pkg/logger"
	"github.com/benzdriver/thinkforward-ai-sub003/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// Runner is the single capability the handler needs from the sync engine.
type Runner interface {
	Run(ctx context.Context) syncsvc.Result
}

// SyncHandler exposes the scheduled user synchronization to a cron-style
// trigger. The caller authenticates with the X-Cron-Secret header.
type SyncHandler struct {
	runner Runner
	lock   *runlock.Lock
	secret string
}

func NewSyncHandler(runner Runner, lock *runlock.Lock, cronSecret string) *SyncHandler {
	return &SyncHandler{runner: runner, lock: lock, secret: cronSecret}
}

// Register routes under /api/sync. Vercel-style cron jobs fire GET requests,
// so the trigger accepts both GET and POST.
func (h *SyncHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/api/sync")
	g.Use(middleware.CronSecretMiddleware(h.secret))
	g.GET("/users", h.SyncUsers)
	g.POST("/users", h.SyncUsers)
}

// SyncUsers runs one synchronization pass and reports the stats. A directory
// outage maps to 502 with the partial stats; a concurrent run maps to 409.
func (h *SyncHandler) SyncUsers(c *gin.Context) {
	ctx := c.Request.Context()

	ok, err := h.lock.Acquire(ctx)
	if err != nil {
		logger.Errorf("user sync: acquiring run lock: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not acquire sync lock"})
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": "synchronization already in progress"})
		return
	}
	defer func() {
		if err := h.lock.Release(ctx); err != nil {
			logger.Warnf("user sync: releasing run lock: %v", err)
		}
	}()

	logger.Info("starting scheduled user synchronization")
	res := h.runner.Run(ctx)
	logger.Infof("user synchronization finished: checked=%d created=%d updated=%d errors=%d success=%v",
		res.Stats.Checked, res.Stats.Created, res.Stats.Updated, res.Stats.Errors, res.Success)

	if !res.Success {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"message": res.FailureReason,
			"stats":   res.Stats,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "user synchronization completed",
		"stats":   res.Stats,
	})
}
