package availability

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/availability-api/internal/handler"
	"github.com/jwalitptl/availability-api/internal/model"
	svc "github.com/jwalitptl/availability-api/internal/service/availability"
	"github.com/jwalitptl/availability-api/pkg/httputil"
)

type Service interface {
	GetAppointments(ctx context.Context, q svc.AppointmentsQuery) (*model.AppointmentsView, error)
	Book(ctx context.Context, key model.CalendarKey, date model.Date, at model.TimeOfDay) error
	Cancel(ctx context.Context, key model.CalendarKey, date model.Date, at model.TimeOfDay) error
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.GET("", h.GetAppointments)
		appointments.POST("/book", h.Book)
		appointments.POST("/cancel", h.Cancel)
	}
}

func (h *Handler) GetAppointments(c *gin.Context) {
	var req model.AppointmentQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.RespondWithError(c, handler.BindError(err))
		return
	}

	q := svc.AppointmentsQuery{
		DoctorID:      req.DoctorID,
		ClinicID:      req.ClinicID,
		TreatmentType: req.TreatmentType,
	}
	// Already validated by the civildate binding.
	if req.From != "" {
		from, _ := model.ParseDate(req.From)
		q.From = &from
	}
	if req.To != "" {
		to, _ := model.ParseDate(req.To)
		q.To = &to
	}

	view, err := h.service.GetAppointments(c.Request.Context(), q)
	if err != nil {
		httputil.RespondWithError(c, handler.Translate(err))
		return
	}
	httputil.RespondWithSuccess(c, view)
}

func (h *Handler) Book(c *gin.Context) {
	h.setBooked(c, h.service.Book)
}

func (h *Handler) Cancel(c *gin.Context) {
	h.setBooked(c, h.service.Cancel)
}

type slotAction func(ctx context.Context, key model.CalendarKey, date model.Date, at model.TimeOfDay) error

func (h *Handler) setBooked(c *gin.Context, action slotAction) {
	var req model.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, handler.BindError(err))
		return
	}
	date, _ := model.ParseDate(req.Date)
	at, _ := model.ParseTimeOfDay(req.Time)

	if err := action(c.Request.Context(), req.Key(), date, at); err != nil {
		httputil.RespondWithError(c, handler.Translate(err))
		return
	}
	httputil.RespondWithSuccess(c, gin.H{
		"calendar": req.Key(),
		"date":     date,
		"time":     at,
	})
}
