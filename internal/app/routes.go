package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/futureofwork/core/internal/middleware"
	"github.com/futureofwork/core/internal/modules/account"
	"github.com/futureofwork/core/internal/modules/crontask"
	"github.com/futureofwork/core/internal/modules/feed"
	"github.com/futureofwork/core/internal/modules/security"
	"github.com/futureofwork/core/internal/pkg/ratelimit"
	"github.com/futureofwork/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1"

func (a *App) buildRouter() error {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	if err := r.SetTrustedProxies(a.cfg.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	// Blocked clients are turned away before their request is recorded.
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(a.logger),
		a.metrics.Middleware(),
		newCORS(a.cfg),
		a.security.Gate(),
		a.security.Monitor(),
		a.security.Tracker(),
	)

	r.GET("/health", a.health)

	throttles, err := middleware.NewThrottles(ratelimit.New(a.rc, ""), a.cfg.Throttles, a.logger.Named("Throttle"))
	if err != nil {
		return err
	}

	authMW := a.auth.Auth()
	adminMW := a.auth.PlatformAdmin()
	idempotent := middleware.Idempotence(a.rc.Raw())

	api := r.Group(apiPrefix)
	account.NewHandler(a.accounts, a.google()).RegisterRoutes(api, authMW, adminMW, throttles.Scope)
	security.NewHandler(a.security, a.accounts).RegisterRoutes(api, authMW, adminMW)
	feed.NewHandler(a.feed).RegisterRoutes(api, authMW, idempotent)
	crontask.NewHandler(a.sched, a.queue).RegisterRoutes(api, authMW, adminMW)

	a.router = r
	return nil
}

func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbOK := false
	if sqlDB, err := a.db.DB(); err == nil {
		dbOK = sqlDB.PingContext(ctx) == nil
	}
	redisErr := a.rc.Ping(ctx)
	if redisErr != nil {
		a.logger.Warn("health: redis ping failed", zap.Error(redisErr))
	}

	status, code := "ok", http.StatusOK
	if !dbOK || redisErr != nil {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":   status,
		"database": dbOK,
		"redis":    redisErr == nil,
	})
}
