package security

import (
	"context"

	"github.com/futureofwork/core/internal/middleware"
	"github.com/futureofwork/core/internal/pkg/pagination"
	"github.com/futureofwork/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

// SessionRevoker ends every refresh session of an account.
type SessionRevoker interface {
	LogoutAll(ctx context.Context, userID string) (int64, error)
}

type Handler struct {
	svc      *Service
	sessions SessionRevoker
}

func NewHandler(svc *Service, sessions SessionRevoker) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, adminMW gin.HandlerFunc) {
	a := rg.Group("/auth/sessions", authMW)
	a.GET("", h.listDevices)
	a.DELETE("", h.revokeAll)

	admin := rg.Group("/admin/security", authMW, adminMW)
	admin.GET("/activity", h.listActivity)
	admin.GET("/blacklist", h.listBlacklist)
	admin.POST("/blacklist", h.blacklist)
	admin.DELETE("/blacklist/:ip", h.whitelist)
}

func (h *Handler) listDevices(c *gin.Context) {
	rows, err := h.svc.Devices(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rows)
}

func (h *Handler) revokeAll(c *gin.Context) {
	n, err := h.sessions.LogoutAll(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"revoked": n})
}

func (h *Handler) listActivity(c *gin.Context) {
	rows, p, err := h.svc.ListActivity(c.Request.Context(), pagination.FromContext(c), c.Query("suspicious") == "true", c.Query("ip"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, rows, p)
}

func (h *Handler) listBlacklist(c *gin.Context) {
	rows, p, err := h.svc.ListBlacklist(c.Request.Context(), pagination.FromContext(c), c.Query("active") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, rows, p)
}

func (h *Handler) blacklist(c *gin.Context) {
	var dto BlacklistDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	entry, err := h.svc.Blacklist(c.Request.Context(), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

func (h *Handler) whitelist(c *gin.Context) {
	if err := h.svc.Whitelist(c.Request.Context(), c.Param("ip")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
