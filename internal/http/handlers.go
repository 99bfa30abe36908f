package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tash-comp/rain-app/internal/location"
	"github.com/tash-comp/rain-app/internal/models"
	"github.com/tash-comp/rain-app/internal/provider"
	"github.com/tash-comp/rain-app/internal/validation"
)

// MonitorController is the part of the rain monitor exposed over HTTP.
type MonitorController interface {
	Start() error
	Stop()
	CheckNow()
	State() models.MonitorState
	Interval() time.Duration
}

// LocationReceiver accepts device pushes. Nil when the service runs with a static location.
type LocationReceiver interface {
	Update(c models.Coordinate) error
	SetPermission(p location.Permission)
	Permission() location.Permission
}

// RainProvider serves snapshots for GET /weather. Nil when the built-in provider is disabled.
type RainProvider interface {
	Snapshot(ctx context.Context, coord models.Coordinate) (models.WeatherSnapshot, error)
}

// HealthConfig holds optional dependency checks for the health handler.
type HealthConfig struct {
	StartTime time.Time
	// CachePing, when set, is called to check cache reachability. Used for remote cache backends.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	monitor      MonitorController
	tracker      LocationReceiver
	provider     RainProvider
	healthConfig *HealthConfig
	logger       *zap.Logger

	shuttingDown     atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. tracker and provider may be nil.
func NewHandler(m MonitorController, tracker LocationReceiver, p RainProvider, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		monitor:      m,
		tracker:      tracker,
		provider:     p,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// SetShuttingDown flips /health to 503 so load balancers drain traffic before the server stops.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

type coordinateBody struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type permissionBody struct {
	Status string `json:"status"`
}

// monitorResponse is the public view of MonitorState.
type monitorResponse struct {
	IsMonitoring    bool                    `json:"isMonitoring"`
	LastRainStatus  bool                    `json:"lastRainStatus"`
	IntervalSeconds float64                 `json:"intervalSeconds"`
	LastSnapshot    *models.WeatherSnapshot `json:"lastSnapshot,omitempty"`
	LastLocation    *models.Coordinate      `json:"lastLocation,omitempty"`
	Permission      string                  `json:"permission,omitempty"`
}

// PostLocation handles POST /location with a device fix.
func (h *Handler) PostLocation(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeError(w, r, http.StatusConflict, "LOCATION_STATIC", "location is fixed by configuration")
		return
	}
	var body coordinateBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be JSON with latitude and longitude")
		return
	}
	if body.Latitude == nil || body.Longitude == nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATE", validation.ErrCoordinateMissing.Error())
		return
	}
	coord := models.Coordinate{Latitude: *body.Latitude, Longitude: *body.Longitude}
	if err := h.tracker.Update(coord); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATE", err.Error())
		return
	}
	requestLogger(r, h.logger).Debug("location updated",
		zap.Float64("latitude", coord.Latitude),
		zap.Float64("longitude", coord.Longitude))
	w.WriteHeader(http.StatusNoContent)
}

// PutPermission handles PUT /location/permission.
func (h *Handler) PutPermission(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeError(w, r, http.StatusConflict, "LOCATION_STATIC", "location is fixed by configuration")
		return
	}
	var body permissionBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be JSON with status")
		return
	}
	status, err := validation.ValidatePermission(body.Status)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PERMISSION", err.Error())
		return
	}
	h.tracker.SetPermission(location.Permission(status))
	requestLogger(r, h.logger).Info("location permission changed", zap.String("permission", status))
	w.WriteHeader(http.StatusNoContent)
}

// GetMonitor handles GET /monitor.
func (h *Handler) GetMonitor(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitorView())
}

// PostMonitorStart handles POST /monitor/start. Starting an active monitor is a no-op.
func (h *Handler) PostMonitorStart(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.Start(); err != nil {
		requestLogger(r, h.logger).Error("monitor start failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "MONITOR_START_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, h.monitorView())
}

// PostMonitorStop handles POST /monitor/stop. Stopping an idle monitor is a no-op.
func (h *Handler) PostMonitorStop(w http.ResponseWriter, r *http.Request) {
	h.monitor.Stop()
	writeJSON(w, http.StatusAccepted, h.monitorView())
}

// PostMonitorCheck handles POST /monitor/check. The cycle runs in the background; the
// response reflects state before it completes.
func (h *Handler) PostMonitorCheck(w http.ResponseWriter, r *http.Request) {
	h.monitor.CheckNow()
	writeJSON(w, http.StatusAccepted, h.monitorView())
}

func (h *Handler) monitorView() monitorResponse {
	st := h.monitor.State()
	resp := monitorResponse{
		IsMonitoring:    st.IsMonitoring,
		LastRainStatus:  st.LastRainStatus,
		IntervalSeconds: h.monitor.Interval().Seconds(),
		LastSnapshot:    st.LastSnapshot,
		LastLocation:    st.LastLocation,
	}
	if h.tracker != nil {
		resp.Permission = string(h.tracker.Permission())
	}
	return resp
}

// GetWeather handles GET /weather?latitude=&longitude= using the built-in provider.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeError(w, r, http.StatusNotFound, "PROVIDER_DISABLED", "built-in weather provider is disabled")
		return
	}
	q := r.URL.Query()
	coord, err := validation.ParseCoordinate(q.Get("latitude"), q.Get("longitude"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATE", err.Error())
		return
	}

	snap, err := h.provider.Snapshot(r.Context(), coord)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "rain-alert",
		"version":   "dev",
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		resp["uptimeSeconds"] = int64(time.Since(h.healthConfig.StartTime).Seconds())
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order: shutting-down > cache unreachable > healthy.
// The monitor being idle is reported in checks but is not unhealthy.
func (h *Handler) computeHealthStatus() healthResult {
	checks := map[string]string{"monitor": "idle"}
	if h.monitor != nil && h.monitor.State().IsMonitoring {
		checks["monitor"] = "active"
	}
	if h.shuttingDown.Load() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(); err != nil {
			checks["cache"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "cache_unreachable", checks}
		}
		checks["cache"] = "healthy"
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps provider failures: malformed upstream data is 502, a request deadline
// is 504, anything else is 503.
func writeServiceError(w http.ResponseWriter, r *http.Request, fallback *zap.Logger, err error) {
	requestLogger(r, fallback).Debug("upstream error", zap.Error(err))
	switch {
	case errors.Is(err, provider.ErrDecode):
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_MALFORMED", "Upstream returned malformed weather data")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Timed out fetching weather data")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	}
}
