package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/berlin-traffic-map/roadkpi/internal/kpi"
	"github.com/berlin-traffic-map/roadkpi/internal/models"
	"github.com/berlin-traffic-map/roadkpi/internal/store"
)

// SnapshotRepository defines the read operations the dashboard needs
type SnapshotRepository interface {
	Timestamps(ctx context.Context, vehicleType, kpiType string) ([]string, error)
	Frames(ctx context.Context, vehicleType, kpiType, start, end string) ([]models.Frame, error)
	Frame(ctx context.Context, key models.Key) (*models.Frame, error)
}

// SnapshotHandler handles HTTP requests for road KPI snapshots
type SnapshotHandler struct {
	repo SnapshotRepository
}

// NewSnapshotHandler creates a new handler with the given repository
func NewSnapshotHandler(repo SnapshotRepository) *SnapshotHandler {
	return &SnapshotHandler{repo: repo}
}

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// TimestampsResponse is the JSON response for GET /api/timestamps
type TimestampsResponse struct {
	VehicleType string   `json:"vehicle_type"`
	KPIType     string   `json:"kpi_type"`
	Timestamps  []string `json:"timestamps"`
	Count       int      `json:"count"`
}

// FramesResponse is the JSON response for GET /api/snapshots
type FramesResponse struct {
	VehicleType string         `json:"vehicle_type"`
	KPIType     string         `json:"kpi_type"`
	Start       string         `json:"start"`
	End         string         `json:"end"`
	Corrected   bool           `json:"range_corrected"`
	Frames      []models.Frame `json:"frames"`
	Count       int            `json:"count"`
}

// GetOptions handles GET /api/options
func (h *SnapshotHandler) GetOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, models.DashboardOptions())
}

// GetTimestamps handles GET /api/timestamps
// Query params: vehicle_type, kpi_type (defaults all / number_of_vehicles)
func (h *SnapshotHandler) GetTimestamps(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	d, ok := descriptorFromQuery(w, r)
	if !ok {
		return
	}

	timestamps, err := h.repo.Timestamps(ctx, string(d.Vehicle), string(d.Kind))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve timestamps", err)
		return
	}
	if timestamps == nil {
		timestamps = []string{}
	}

	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, TimestampsResponse{
		VehicleType: string(d.Vehicle),
		KPIType:     string(d.Kind),
		Timestamps:  timestamps,
		Count:       len(timestamps),
	})
}

// GetSnapshots handles GET /api/snapshots
// Query params: vehicle_type, kpi_type, start, end. A missing bound defaults to
// the first or last stored timestamp; start after end moves end to start.
func (h *SnapshotHandler) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	d, ok := descriptorFromQuery(w, r)
	if !ok {
		return
	}
	vehicleType, kpiType := string(d.Vehicle), string(d.Kind)

	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	for name, ts := range map[string]string{"start": start, "end": end} {
		if ts == "" {
			continue
		}
		if _, err := kpi.ParseTimestamp(ts); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: "Invalid " + name + " timestamp",
				Details: map[string]interface{}{
					name:     ts,
					"format": "YYYY-MM-DD HH:MM",
				},
			})
			return
		}
	}

	if start == "" || end == "" {
		timestamps, err := h.repo.Timestamps(ctx, vehicleType, kpiType)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to retrieve timestamps", err)
			return
		}
		if len(timestamps) == 0 {
			writeJSON(w, http.StatusOK, FramesResponse{
				VehicleType: vehicleType,
				KPIType:     kpiType,
				Start:       start,
				End:         end,
				Frames:      []models.Frame{},
			})
			return
		}
		if start == "" {
			start = timestamps[0]
		}
		if end == "" {
			end = timestamps[len(timestamps)-1]
		}
	}

	corrected := false
	if start > end {
		end = start
		corrected = true
	}

	frames, err := h.repo.Frames(ctx, vehicleType, kpiType, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve snapshots", err)
		return
	}
	if frames == nil {
		frames = []models.Frame{}
	}

	w.Header().Set("Cache-Control", "public, max-age=60")
	w.Header().Set("Vary", "Accept-Encoding")
	writeJSON(w, http.StatusOK, FramesResponse{
		VehicleType: vehicleType,
		KPIType:     kpiType,
		Start:       start,
		End:         end,
		Corrected:   corrected,
		Frames:      frames,
		Count:       len(frames),
	})
}

// GetSnapshot handles GET /api/snapshots/{timestamp}
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	d, ok := descriptorFromQuery(w, r)
	if !ok {
		return
	}

	timestamp := chi.URLParam(r, "timestamp")
	if _, err := kpi.ParseTimestamp(timestamp); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "Invalid timestamp",
			Details: map[string]interface{}{
				"timestamp": timestamp,
				"format":    "YYYY-MM-DD HH:MM",
			},
		})
		return
	}

	key := models.Key{Timestamp: timestamp, VehicleType: string(d.Vehicle), KPIType: string(d.Kind)}
	frame, err := h.repo.Frame(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error: "Snapshot not found",
			Details: map[string]interface{}{
				"timestamp":    timestamp,
				"vehicle_type": key.VehicleType,
				"kpi_type":     key.KPIType,
			},
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve snapshot", err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, frame)
}

// descriptorFromQuery validates vehicle_type and kpi_type, writing a 400 on failure
func descriptorFromQuery(w http.ResponseWriter, r *http.Request) (kpi.Descriptor, bool) {
	q := r.URL.Query()
	vehicleParam := q.Get("vehicle_type")
	if vehicleParam == "" {
		vehicleParam = string(kpi.VehicleAll)
	}
	kindParam := q.Get("kpi_type")
	if kindParam == "" {
		kindParam = string(kpi.NumberOfVehicles)
	}

	vehicle, err := kpi.ParseVehicleClass(vehicleParam)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid vehicle_type",
			Details: map[string]interface{}{"vehicle_type": vehicleParam},
		})
		return kpi.Descriptor{}, false
	}
	kind, err := kpi.ParseMetricKind(kindParam)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid kpi_type",
			Details: map[string]interface{}{"kpi_type": kindParam},
		})
		return kpi.Descriptor{}, false
	}

	d, _ := kpi.Lookup(vehicle, kind)
	return d, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Details: map[string]interface{}{
			"internal": err.Error(),
		},
	})
}
