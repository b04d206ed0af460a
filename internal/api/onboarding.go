package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smarthome-core/internal/onboarding"
)

type onboardingResponse struct {
	ID     string            `json:"id"`
	Status onboarding.Status `json:"status"`
}

type selectRequest struct {
	SSID string `json:"ssid"`
}

type connectRequest struct {
	Password string `json:"password"`
}

// handleStartOnboarding opens an onboarding session for the caller.
func (s *Server) handleStartOnboarding(w http.ResponseWriter, r *http.Request) {
	if s.onboarding == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "onboarding is not enabled")
		return
	}
	id, flow := s.onboarding.Start(currentIdentity(r).ID)
	writeJSON(w, http.StatusCreated, onboardingResponse{ID: id, Status: flow.Status()})
}

// handleOnboardingStatus reports where a session stands.
func (s *Server) handleOnboardingStatus(w http.ResponseWriter, r *http.Request) {
	id, flow, ok := s.onboardingFlow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, onboardingResponse{ID: id, Status: flow.Status()})
}

// handleEndOnboarding abandons a session.
func (s *Server) handleEndOnboarding(w http.ResponseWriter, r *http.Request) {
	if s.onboarding == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "onboarding is not enabled")
		return
	}
	s.onboarding.End(chi.URLParam(r, "id"), currentIdentity(r).ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleOnboardingScan lists nearby networks.
func (s *Server) handleOnboardingScan(w http.ResponseWriter, r *http.Request) {
	id, flow, ok := s.onboardingFlow(w, r)
	if !ok {
		return
	}
	if _, err := flow.Scan(r.Context()); err != nil {
		writeDomainError(w, err, "onboarding session")
		return
	}
	writeJSON(w, http.StatusOK, onboardingResponse{ID: id, Status: flow.Status()})
}

// handleOnboardingSelect picks the device network to join.
func (s *Server) handleOnboardingSelect(w http.ResponseWriter, r *http.Request) {
	id, flow, ok := s.onboardingFlow(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := flow.Select(req.SSID); err != nil {
		writeDomainError(w, err, "onboarding session")
		return
	}
	writeJSON(w, http.StatusOK, onboardingResponse{ID: id, Status: flow.Status()})
}

// handleOnboardingConnect joins the selected device network.
func (s *Server) handleOnboardingConnect(w http.ResponseWriter, r *http.Request) {
	id, flow, ok := s.onboardingFlow(w, r)
	if !ok {
		return
	}
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := flow.Connect(r.Context(), req.Password); err != nil {
		writeDomainError(w, err, "onboarding session")
		return
	}
	writeJSON(w, http.StatusOK, onboardingResponse{ID: id, Status: flow.Status()})
}

// handleOnboardingConfigure names the device and creates it in one of the
// caller's rooms. The session ends once the device exists.
func (s *Server) handleOnboardingConfigure(w http.ResponseWriter, r *http.Request) {
	id, flow, ok := s.onboardingFlow(w, r)
	if !ok {
		return
	}
	var req onboarding.Configuration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx := r.Context()
	userID := currentIdentity(r).ID
	if _, err := s.client.OwnedRoom(ctx, userID, req.RoomID); err != nil {
		writeDomainError(w, err, "room")
		return
	}
	deviceID, err := flow.Configure(ctx, req)
	if err != nil {
		writeDomainError(w, err, "device")
		return
	}
	s.onboarding.End(id, userID)

	dev, err := s.client.Devices.Get(ctx, deviceID)
	if err != nil {
		writeDomainError(w, err, "device")
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

// onboardingFlow resolves the caller's session from the path, writing the
// error response when it cannot.
func (s *Server) onboardingFlow(w http.ResponseWriter, r *http.Request) (string, *onboarding.Flow, bool) {
	if s.onboarding == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "onboarding is not enabled")
		return "", nil, false
	}
	id := chi.URLParam(r, "id")
	flow, err := s.onboarding.Get(id, currentIdentity(r).ID)
	if err != nil {
		writeDomainError(w, err, "onboarding session")
		return "", nil, false
	}
	return id, flow, true
}
