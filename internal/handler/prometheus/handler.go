package prometheus

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwalitptl/availability-api/pkg/metrics"
)

// Handler serves a dedicated registry instead of the global default one.
type Handler struct {
	registry *prometheus.Registry
}

// New builds a registry holding m and the Go runtime collectors.
func New(m *metrics.Metrics) (*Handler, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := m.Register(registry); err != nil {
		return nil, err
	}
	return &Handler{registry: registry}, nil
}

func (h *Handler) Registry() *prometheus.Registry {
	return h.registry
}

func (h *Handler) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
}
