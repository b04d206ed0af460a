package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smarthome-core/internal/location"
)

// createHomeRequest is the request body for POST /homes. The owner is
// always the caller.
type createHomeRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// createRoomRequest is the request body for POST /homes/{id}/rooms.
type createRoomRequest struct {
	Name string `json:"name"`
}

// handleListHomes returns the caller's homes, newest first.
func (s *Server) handleListHomes(w http.ResponseWriter, r *http.Request) {
	homes, err := s.client.Homes.List(r.Context(), currentIdentity(r).ID)
	if err != nil {
		writeInternalError(w, "failed to list homes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"homes": nonNil(homes), "count": len(homes)})
}

// handleCreateHome creates a home owned by the caller.
func (s *Server) handleCreateHome(w http.ResponseWriter, r *http.Request) {
	var req createHomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx := r.Context()
	id, err := s.client.Homes.Create(ctx, location.NewHome{
		Name:    req.Name,
		Address: req.Address,
		UserID:  currentIdentity(r).ID,
	})
	if err != nil {
		writeDomainError(w, err, "home")
		return
	}
	home, err := s.client.Homes.Get(ctx, id)
	if err != nil {
		writeDomainError(w, err, "home")
		return
	}
	writeJSON(w, http.StatusCreated, home)
}

// handleGetHome returns a home with its rooms and their devices.
func (s *Server) handleGetHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.client.OwnedHome(ctx, currentIdentity(r).ID, id); err != nil {
		writeDomainError(w, err, "home")
		return
	}
	tree, err := s.client.HomeTree(ctx, id)
	if err != nil {
		writeDomainError(w, err, "home")
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// handleUpdateHome renames or re-addresses a home.
func (s *Server) handleUpdateHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.client.OwnedHome(ctx, currentIdentity(r).ID, id); err != nil {
		writeDomainError(w, err, "home")
		return
	}

	var u location.HomeUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.client.Homes.Update(ctx, id, u); err != nil {
		writeDomainError(w, err, "home")
		return
	}
	home, err := s.client.Homes.Get(ctx, id)
	if err != nil {
		writeDomainError(w, err, "home")
		return
	}
	writeJSON(w, http.StatusOK, home)
}

// handleDeleteHome removes a home with its rooms and devices.
func (s *Server) handleDeleteHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.client.OwnedHome(ctx, currentIdentity(r).ID, id); err != nil {
		writeDomainError(w, err, "home")
		return
	}
	if err := s.client.Homes.Delete(ctx, id); err != nil {
		writeDomainError(w, err, "home")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListRooms returns a home's rooms, newest first.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	homeID := chi.URLParam(r, "id")
	if _, err := s.client.OwnedHome(ctx, currentIdentity(r).ID, homeID); err != nil {
		writeDomainError(w, err, "home")
		return
	}
	rooms, err := s.client.Rooms.List(ctx, homeID)
	if err != nil {
		writeInternalError(w, "failed to list rooms")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": nonNil(rooms), "count": len(rooms)})
}

// handleCreateRoom adds a room to a home.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	homeID := chi.URLParam(r, "id")
	if _, err := s.client.OwnedHome(ctx, currentIdentity(r).ID, homeID); err != nil {
		writeDomainError(w, err, "home")
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	id, err := s.client.Rooms.Create(ctx, location.NewRoom{Name: req.Name, HomeID: homeID})
	if err != nil {
		writeDomainError(w, err, "room")
		return
	}
	room, err := s.client.Rooms.Get(ctx, id)
	if err != nil {
		writeDomainError(w, err, "room")
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// handleGetRoom returns a single room.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.client.OwnedRoom(r.Context(), currentIdentity(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "room")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// handleUpdateRoom renames a room.
func (s *Server) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.client.OwnedRoom(ctx, currentIdentity(r).ID, id); err != nil {
		writeDomainError(w, err, "room")
		return
	}

	var u location.RoomUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.client.Rooms.Update(ctx, id, u); err != nil {
		writeDomainError(w, err, "room")
		return
	}
	room, err := s.client.Rooms.Get(ctx, id)
	if err != nil {
		writeDomainError(w, err, "room")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// handleDeleteRoom removes a room and its devices.
func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.client.OwnedRoom(ctx, currentIdentity(r).ID, id); err != nil {
		writeDomainError(w, err, "room")
		return
	}
	if err := s.client.Rooms.Delete(ctx, id); err != nil {
		writeDomainError(w, err, "room")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
