package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/lismorewater/flowmon/internal/db"
	"github.com/lismorewater/flowmon/internal/health"
	"github.com/lismorewater/flowmon/internal/repository"
	"github.com/lismorewater/flowmon/tools/timeparser"
)

// Store is the read-only persistence surface the API serves from. The API
// never touches the scheduler or extractor.
type Store interface {
	ListDevices(ctx context.Context) ([]db.Device, error)
	QueryMeasurements(ctx context.Context, filter repository.QueryFilter) ([]repository.MeasurementRow, error)
	Stats(ctx context.Context) ([]repository.DeviceStats, error)
	DeviceCount(ctx context.Context) (int64, error)
	MeasurementCount(ctx context.Context) (int64, error)
}

const maxQueryLimit = 10000

// Handlers holds the API endpoint implementations.
type Handlers struct {
	store    Store
	tracker  *health.Tracker
	location *time.Location
	logger   *zap.Logger
}

// NewHandlers creates the API handlers.
func NewHandlers(store Store, tracker *health.Tracker, location *time.Location, logger *zap.Logger) *Handlers {
	return &Handlers{
		store:    store,
		tracker:  tracker,
		location: location,
		logger:   logger,
	}
}

// Register attaches the routes to the router.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/api/devices", h.handleDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/measurements", h.handleMeasurements).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", h.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/status", h.handleStatus).Methods(http.MethodGet)
}

type deviceResponse struct {
	DeviceID  string  `json:"device_id"`
	Name      string  `json:"name"`
	Location  *string `json:"location"`
	Endpoint  string  `json:"endpoint"`
	CreatedAt string  `json:"created_at"`
}

type measurementResponse struct {
	ID          int64    `json:"id"`
	DeviceID    string   `json:"device_id"`
	DeviceName  string   `json:"device_name"`
	ObservedAt  string   `json:"observed_at"`
	DepthMM     *float64 `json:"depth_mm"`
	VelocityMPS *float64 `json:"velocity_mps"`
	FlowLPS     *float64 `json:"flow_lps"`
	CreatedAt   string   `json:"created_at"`
}

type statsResponse struct {
	DeviceCount       int64                    `json:"device_count"`
	TotalMeasurements int64                    `json:"total_measurements"`
	Devices           []repository.DeviceStats `json:"devices"`
}

func (h *Handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.tracker.Healthy() {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
}

func (h *Handlers) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.store.ListDevices(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceResponse{
			DeviceID:  d.ID,
			Name:      d.Name,
			Location:  d.Location,
			Endpoint:  d.Endpoint,
			CreatedAt: d.CreatedAt.In(h.location).Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	filter := repository.QueryFilter{
		DeviceID: r.URL.Query().Get("device"),
	}

	if since := r.URL.Query().Get("since"); since != "" {
		t, err := timeparser.ParseQueryTimestamp(since, h.location)
		if err != nil {
			h.writeBadRequest(w, "invalid since parameter")
			return
		}
		filter.Since = t
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 || limit > maxQueryLimit {
			h.writeBadRequest(w, "invalid limit parameter")
			return
		}
		filter.Limit = limit
	}

	rows, err := h.store.QueryMeasurements(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]measurementResponse, 0, len(rows))
	for _, m := range rows {
		out = append(out, measurementResponse{
			ID:          m.ID,
			DeviceID:    m.DeviceID,
			DeviceName:  m.DeviceName,
			ObservedAt:  m.ObservedAt.In(h.location).Format(time.RFC3339),
			DepthMM:     m.DepthMM,
			VelocityMPS: m.VelocityMPS,
			FlowLPS:     m.FlowLPS,
			CreatedAt:   m.CreatedAt.In(h.location).Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	deviceCount, err := h.store.DeviceCount(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	total, err := h.store.MeasurementCount(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if stats == nil {
		stats = []repository.DeviceStats{}
	}

	h.writeJSON(w, http.StatusOK, statsResponse{
		DeviceCount:       deviceCount,
		TotalMeasurements: total,
		Devices:           stats,
	})
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()
	out := make([]health.DeviceStatus, 0, len(snapshot))
	for _, status := range snapshot {
		out = append(out, status)
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handlers) writeBadRequest(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
