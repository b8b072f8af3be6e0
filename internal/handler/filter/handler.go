package filter

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/availability-api/internal/handler"
	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/pkg/httputil"
)

type Service interface {
	ResolveEffectiveSelection(ctx context.Context, settings model.FilterSettings, overrides model.Selection) model.Selection
	Options(ctx context.Context, settings model.FilterSettings, selection model.Selection) (*model.FilterOptions, error)
}

type Handler struct {
	service  Service
	settings model.FilterSettings
}

func NewHandler(service Service, settings model.FilterSettings) *Handler {
	return &Handler{service: service, settings: settings}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	filters := r.Group("/filters")
	{
		filters.GET("/options", h.GetOptions)
		filters.GET("/selection", h.GetSelection)
	}
}

func (h *Handler) selection(c *gin.Context) (model.Selection, bool) {
	var overrides model.Selection
	if err := c.ShouldBindQuery(&overrides); err != nil {
		httputil.RespondWithError(c, handler.BindError(err))
		return model.Selection{}, false
	}
	return h.service.ResolveEffectiveSelection(c.Request.Context(), h.settings, overrides), true
}

// GetOptions returns the choices for every selectable field given the
// effective selection.
func (h *Handler) GetOptions(c *gin.Context) {
	selection, ok := h.selection(c)
	if !ok {
		return
	}

	options, err := h.service.Options(c.Request.Context(), h.settings, selection)
	if err != nil {
		httputil.RespondWithError(c, handler.Translate(err))
		return
	}
	httputil.RespondWithSuccess(c, options)
}

func (h *Handler) GetSelection(c *gin.Context) {
	selection, ok := h.selection(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, selection)
}
