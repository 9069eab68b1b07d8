package feed

import (
	"strconv"

	"github.com/futureofwork/core/internal/middleware"
	"github.com/futureofwork/core/internal/pkg/pagination"
	"github.com/futureofwork/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the feed. idempotent guards writes that create rows.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, idempotent gin.HandlerFunc) {
	rg.GET("/posts", h.listPosts)
	rg.GET("/posts/:id", h.getPost)
	rg.GET("/posts/:id/comments", h.listComments)
	rg.GET("/posts/:id/shares", h.listShares)
	rg.GET("/posts/:id/stats", h.postStats)
	rg.GET("/users/:id/posts", h.userPosts)
	rg.GET("/users/:id/stats", h.userStats)

	a := rg.Group("", authMW)
	a.GET("/feed", h.feed)
	a.GET("/bookmarks", h.bookmarks)

	a.POST("/posts", idempotent, h.createPost)
	a.PATCH("/posts/:id", h.editPost)
	a.DELETE("/posts/:id", h.deletePost)

	a.POST("/posts/:id/comments", idempotent, h.addComment)
	a.PATCH("/comments/:id", h.editComment)
	a.DELETE("/comments/:id", h.deleteComment)

	a.POST("/posts/:id/like", h.like)
	a.DELETE("/posts/:id/like", h.unlike)
	a.POST("/posts/:id/bookmark", h.bookmark)
	a.DELETE("/posts/:id/bookmark", h.unbookmark)
	a.POST("/posts/:id/share", h.share)

	a.POST("/users/:id/follow", h.follow)
	a.DELETE("/users/:id/follow", h.unfollow)
}

func bind(c *gin.Context, dto interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dto); err != nil {
		response.BadRequest(c, "Malformed request body.")
		return false
	}
	return true
}

func (h *Handler) listPosts(c *gin.Context) {
	rows, p, err := h.svc.ListPosts(c.Request.Context(), pagination.FromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, rows, p)
}

func (h *Handler) getPost(c *gin.Context) {
	post, err := h.svc.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, post)
}

func (h *Handler) userPosts(c *gin.Context) {
	rows, p, err := h.svc.UserPosts(c.Request.Context(), c.Param("id"), pagination.FromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, rows, p)
}

func (h *Handler) feed(c *gin.Context) {
	rows, p, err := h.svc.Feed(c.Request.Context(), middleware.CurrentUserID(c), pagination.FromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, rows, p)
}

func (h *Handler) bookmarks(c *gin.Context) {
	rows, p, err := h.svc.Bookmarks(c.Request.Context(), middleware.CurrentUserID(c), pagination.FromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, rows, p)
}

func (h *Handler) createPost(c *gin.Context) {
	var dto PostDTO
	if !bind(c, &dto) {
		return
	}
	post, err := h.svc.CreatePost(c.Request.Context(), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, post)
}

func (h *Handler) editPost(c *gin.Context) {
	var dto PostDTO
	if !bind(c, &dto) {
		return
	}
	post, err := h.svc.EditPost(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, post)
}

func (h *Handler) deletePost(c *gin.Context) {
	if err := h.svc.DeletePost(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) listComments(c *gin.Context) {
	rows, p, err := h.svc.Comments(c.Request.Context(), c.Param("id"), pagination.FromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, rows, p)
}

func (h *Handler) addComment(c *gin.Context) {
	var dto CommentDTO
	if !bind(c, &dto) {
		return
	}
	cm, err := h.svc.AddComment(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cm)
}

func (h *Handler) editComment(c *gin.Context) {
	var dto CommentDTO
	if !bind(c, &dto) {
		return
	}
	cm, err := h.svc.EditComment(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cm)
}

func (h *Handler) deleteComment(c *gin.Context) {
	if err := h.svc.DeleteComment(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) like(c *gin.Context) {
	created, err := h.svc.Like(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"liked": true, "created": created})
}

func (h *Handler) unlike(c *gin.Context) {
	if err := h.svc.Unlike(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) bookmark(c *gin.Context) {
	created, err := h.svc.Bookmark(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"bookmarked": true, "created": created})
}

func (h *Handler) unbookmark(c *gin.Context) {
	if err := h.svc.Unbookmark(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) share(c *gin.Context) {
	sh, created, err := h.svc.Share(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if created {
		response.Created(c, sh)
		return
	}
	response.OK(c, sh)
}

func (h *Handler) listShares(c *gin.Context) {
	rows, err := h.svc.PostShares(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rows)
}

func (h *Handler) follow(c *gin.Context) {
	created, err := h.svc.Follow(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"following": true, "created": created})
}

func (h *Handler) unfollow(c *gin.Context) {
	if err := h.svc.Unfollow(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) userStats(c *gin.Context) {
	stat, err := h.svc.UserStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stat)
}

func (h *Handler) postStats(c *gin.Context) {
	days, _ := strconv.Atoi(c.Query("days"))
	rows, err := h.svc.PostDailyStats(c.Request.Context(), c.Param("id"), days)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rows)
}
