package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tash-comp/rain-app/internal/observability"
)

// RouterConfig holds per-route limits for the provider endpoint.
type RouterConfig struct {
	Limiter        *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration // 0 disables the deadline
}

// NewRouter wires every route onto a gorilla/mux router.
func NewRouter(h *Handler, rc RouterConfig, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	router.HandleFunc("/location", h.PostLocation).Methods(http.MethodPost)
	router.HandleFunc("/location/permission", h.PutPermission).Methods(http.MethodPut)

	router.HandleFunc("/monitor", h.GetMonitor).Methods(http.MethodGet)
	router.HandleFunc("/monitor/start", h.PostMonitorStart).Methods(http.MethodPost)
	router.HandleFunc("/monitor/stop", h.PostMonitorStop).Methods(http.MethodPost)
	router.HandleFunc("/monitor/check", h.PostMonitorCheck).Methods(http.MethodPost)

	var weather http.Handler = http.HandlerFunc(h.GetWeather)
	if rc.RequestTimeout > 0 {
		weather = TimeoutMiddleware(rc.RequestTimeout)(weather)
	}
	weather = RateLimitMiddleware(rc.Limiter)(weather)
	router.Handle("/weather", weather).Methods(http.MethodGet)

	return router
}
