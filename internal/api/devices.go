package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/telemetry"
)

// setStateRequest is the request body for PUT /devices/{id}/state.
type setStateRequest struct {
	IsOn *bool `json:"isOn"`
}

// seriesResponse is a chart series with its aggregate.
type seriesResponse struct {
	Window   telemetry.Window        `json:"window,omitempty"`
	Readings []device.VoltageReading `json:"readings"`
	Summary  telemetry.Summary       `json:"summary"`
}

// handleListDevices returns a room's devices, newest first.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := chi.URLParam(r, "id")
	if _, err := s.client.OwnedRoom(ctx, currentIdentity(r).ID, roomID); err != nil {
		writeDomainError(w, err, "room")
		return
	}
	devices, err := s.client.Devices.List(ctx, roomID)
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": nonNil(devices), "count": len(devices)})
}

// handleCreateDevice adds a device to a room. The room comes from the path.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := chi.URLParam(r, "id")
	if _, err := s.client.OwnedRoom(ctx, currentIdentity(r).ID, roomID); err != nil {
		writeDomainError(w, err, "room")
		return
	}

	var nd device.NewDevice
	if err := json.NewDecoder(r.Body).Decode(&nd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	nd.RoomID = roomID

	id, err := s.client.Devices.Create(ctx, nd)
	if err != nil {
		writeDomainError(w, err, "device")
		return
	}
	dev, err := s.client.Devices.Get(ctx, id)
	if err != nil {
		writeDomainError(w, err, "device")
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.client.OwnedDevice(r.Context(), currentIdentity(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleUpdateDevice partially updates a device. Moving it requires the
// target room to belong to the caller too.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentIdentity(r).ID
	id := chi.URLParam(r, "id")
	if _, err := s.client.OwnedDevice(ctx, userID, id); err != nil {
		writeDomainError(w, err, "device")
		return
	}

	var u device.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if u.RoomID != nil {
		if _, err := s.client.OwnedRoom(ctx, userID, *u.RoomID); err != nil {
			writeDomainError(w, err, "room")
			return
		}
	}

	if err := s.client.Devices.Update(ctx, id, u); err != nil {
		writeDomainError(w, err, "device")
		return
	}
	dev, err := s.client.Devices.Get(ctx, id)
	if err != nil {
		writeDomainError(w, err, "device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device. Its readings are kept.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.client.OwnedDevice(ctx, currentIdentity(r).ID, id); err != nil {
		writeDomainError(w, err, "device")
		return
	}
	if err := s.client.Devices.Delete(ctx, id); err != nil {
		writeDomainError(w, err, "device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetDeviceState switches a device on or off.
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.client.OwnedDevice(ctx, currentIdentity(r).ID, id); err != nil {
		writeDomainError(w, err, "device")
		return
	}

	var req setStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.IsOn == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "isOn is required")
		return
	}

	if err := s.client.Devices.Toggle(ctx, id, *req.IsOn); err != nil {
		writeDomainError(w, err, "device")
		return
	}
	dev, err := s.client.Devices.Get(ctx, id)
	if err != nil {
		writeDomainError(w, err, "device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleListReadings returns stored readings, newest first.
//
// Query parameters:
//   - limit: maximum readings (default 100, capped at 1000)
//   - window: daily, weekly or monthly; keeps only readings inside the
//     window ending now, oldest first
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.client.OwnedDevice(ctx, currentIdentity(r).ID, id); err != nil {
		writeDomainError(w, err, "device")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var window telemetry.Window
	if v := r.URL.Query().Get("window"); v != "" {
		wnd, err := telemetry.ParseWindow(v)
		if err != nil {
			writeDomainError(w, err, "readings")
			return
		}
		window = wnd
	}

	readings, err := s.client.Devices.Readings(ctx, id, limit)
	if err != nil {
		writeDomainError(w, err, "readings")
		return
	}
	if window != "" {
		readings = telemetry.InWindow(readings, window, time.Now())
	}
	writeJSON(w, http.StatusOK, seriesResponse{
		Window:   window,
		Readings: nonNil(readings),
		Summary:  telemetry.Summarize(readings),
	})
}

// handleBackfill builds a chart series for a window from the telemetry
// source. The series is not stored.
func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.client.OwnedDevice(ctx, currentIdentity(r).ID, id); err != nil {
		writeDomainError(w, err, "device")
		return
	}
	if s.telemetry == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "telemetry is not enabled")
		return
	}

	window, err := telemetry.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeDomainError(w, err, "series")
		return
	}

	readings, err := telemetry.Backfill(ctx, s.telemetry, id, window, time.Now())
	if err != nil {
		writeDomainError(w, err, "series")
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse{
		Window:   window,
		Readings: readings,
		Summary:  telemetry.Summarize(readings),
	})
}
