package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/availability-api/internal/handler"
	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/internal/service/availability"
	apperrors "github.com/jwalitptl/availability-api/pkg/errors"
	"github.com/jwalitptl/availability-api/pkg/httputil"
)

// CalendarService is the administrative surface of the availability engine.
type CalendarService interface {
	ListCalendarsWithStatus(ctx context.Context) ([]*model.CalendarStatus, error)
	InitializeCalendar(ctx context.Context, key model.CalendarKey, name string, slots []model.TimeOfDay) (int64, error)
	SyncCalendar(ctx context.Context, key model.CalendarKey) (*availability.SyncResult, error)
	ExtendCalendar(ctx context.Context, calendarID int64, weeks int) (int, error)
	DeleteCalendar(ctx context.Context, calendarID int64) error
}

type JobRunner interface {
	Jobs() []model.JobInfo
	RunJob(ctx context.Context, name model.JobName) (*model.JobLog, error)
	RecentLogs(ctx context.Context, limit int) ([]*model.JobLog, error)
}

type Handler struct {
	calendars CalendarService
	jobs      JobRunner
}

func NewHandler(calendars CalendarService, jobs JobRunner) *Handler {
	return &Handler{calendars: calendars, jobs: jobs}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	calendars := r.Group("/calendars")
	{
		calendars.GET("", h.ListCalendars)
		calendars.POST("", h.InitializeCalendar)
		calendars.POST("/sync", h.SyncCalendar)
		calendars.POST("/:id/extend", h.ExtendCalendar)
		calendars.DELETE("/:id", h.DeleteCalendar)
	}

	jobs := r.Group("/jobs")
	{
		jobs.GET("", h.ListJobs)
		jobs.GET("/logs", h.JobLogs)
		jobs.POST("/:name/run", h.RunJob)
	}
}

func calendarID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid calendar ID", err))
		return 0, false
	}
	return id, true
}

func (h *Handler) ListCalendars(c *gin.Context) {
	calendars, err := h.calendars.ListCalendarsWithStatus(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, handler.Translate(err))
		return
	}
	httputil.RespondWithSuccess(c, calendars)
}

func (h *Handler) InitializeCalendar(c *gin.Context) {
	var req model.InitializeCalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, handler.BindError(err))
		return
	}

	slots := make([]model.TimeOfDay, 0, len(req.Slots))
	for _, s := range req.Slots {
		slots = append(slots, model.TimeOfDay(s))
	}

	id, err := h.calendars.InitializeCalendar(c.Request.Context(), req.Key(), req.Name, slots)
	if err != nil {
		httputil.RespondWithError(c, handler.Translate(err))
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, gin.H{"calendar_id": id, "calendar": req.Key()})
}

func (h *Handler) SyncCalendar(c *gin.Context) {
	var req model.SyncCalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, handler.BindError(err))
		return
	}

	result, err := h.calendars.SyncCalendar(c.Request.Context(), req.Key())
	if err != nil {
		httputil.RespondWithError(c, handler.Translate(err))
		return
	}
	httputil.RespondWithSuccess(c, result)
}

func (h *Handler) ExtendCalendar(c *gin.Context) {
	id, ok := calendarID(c)
	if !ok {
		return
	}

	req := model.ExtendCalendarRequest{Weeks: 1}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.RespondWithError(c, handler.BindError(err))
			return
		}
		if req.Weeks == 0 {
			req.Weeks = 1
		}
	}

	added, err := h.calendars.ExtendCalendar(c.Request.Context(), id, req.Weeks)
	if err != nil {
		httputil.RespondWithError(c, handler.Translate(err))
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"calendar_id": id, "added_dates": added})
}

func (h *Handler) DeleteCalendar(c *gin.Context) {
	id, ok := calendarID(c)
	if !ok {
		return
	}

	if err := h.calendars.DeleteCalendar(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, handler.Translate(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListJobs(c *gin.Context) {
	httputil.RespondWithSuccess(c, h.jobs.Jobs())
}

// RunJob triggers a job synchronously. A run that fails still answers 200
// with the recorded log entry; the failure is in its status.
func (h *Handler) RunJob(c *gin.Context) {
	name := model.JobName(c.Param("name"))
	if !name.Valid() {
		httputil.RespondWithError(c, apperrors.NotFound("job", nil))
		return
	}

	record, err := h.jobs.RunJob(c.Request.Context(), name)
	if record == nil {
		httputil.RespondWithError(c, handler.Translate(err))
		return
	}
	httputil.RespondWithSuccess(c, record)
}

func (h *Handler) JobLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid limit", err))
			return
		}
		limit = n
	}

	logs, err := h.jobs.RecentLogs(c.Request.Context(), limit)
	if err != nil {
		httputil.RespondWithError(c, handler.Translate(err))
		return
	}
	httputil.RespondWithSuccess(c, logs)
}
