// Package crontask exposes the scheduler and the task queue to platform admins.
package crontask

import (
	"errors"

	pkgcron "github.com/futureofwork/core/internal/pkg/cron"
	"github.com/futureofwork/core/internal/pkg/response"
	"github.com/futureofwork/core/internal/pkg/taskqueue"
	"github.com/gin-gonic/gin"
)

// Handler wraps the scheduler for HTTP access.
type Handler struct {
	sched *pkgcron.Scheduler
	queue *taskqueue.Service
}

func NewHandler(sched *pkgcron.Scheduler, queue *taskqueue.Service) *Handler {
	return &Handler{sched: sched, queue: queue}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, adminMW gin.HandlerFunc) {
	g := rg.Group("/admin/cron", authMW, adminMW)
	g.GET("", h.list)
	g.POST("/:name/run", h.run)
	g.GET("/tasks/:taskId", h.getTask)
}

// GET /admin/cron
func (h *Handler) list(c *gin.Context) {
	response.OK(c, h.sched.List())
}

// POST /admin/cron/:name/run runs a job now and waits for it.
func (h *Handler) run(c *gin.Context) {
	name := c.Param("name")
	if !h.sched.Has(name) {
		response.NotFoundMsg(c, "Job not found.")
		return
	}
	if err := h.sched.Run(c.Request.Context(), name); err != nil {
		if errors.Is(err, pkgcron.ErrBusy) {
			response.Conflict(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Detail(c, "Job completed.")
}

// GET /admin/cron/tasks/:taskId
func (h *Handler) getTask(c *gin.Context) {
	task, err := h.queue.GetByID(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if task == nil {
		response.NotFoundMsg(c, "Task not found.")
		return
	}
	response.OK(c, task)
}
