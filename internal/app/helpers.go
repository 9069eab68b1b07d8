package app

import (
	"time"

	"github.com/futureofwork/core/internal/config"
	"github.com/futureofwork/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func applyRuntimeSettings(cfg *config.AppConfig, logger *zap.Logger) {
	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
		gin.DebugPrintRouteFunc = func(method, path, handler string, _ int) {
			logger.Debug("route", zap.String("method", method), zap.String("path", path), zap.String("handler", handler))
		}
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	response.HideInternalErrors = !cfg.IsDev()

	if cfg.JWT.Secret == cfg.Tokens.Secret {
		logger.Warn("jwt secret and account token secret are identical")
	}
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return d.Truncate(time.Second).String()
	case d < time.Hour:
		return d.Truncate(time.Minute).String()
	default:
		return d.Truncate(time.Hour).String()
	}
}
