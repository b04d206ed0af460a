package location

import (
	"time"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
)

// Document field names shared with other packages.
const (
	FieldName    = "name"
	FieldAddress = "address"
	FieldUserID  = "userId"
	FieldHomeID  = "homeId"
)

// Home is a property owned by one user.
type Home struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Room is a space within a home.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	HomeID    string    `json:"homeId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewHome is the input for creating a home.
type NewHome struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	UserID  string `json:"userId"`
}

// HomeUpdate holds the fields to change on a home. Nil fields are left alone.
type HomeUpdate struct {
	Name    *string `json:"name,omitempty"`
	Address *string `json:"address,omitempty"`
}

// NewRoom is the input for creating a room.
type NewRoom struct {
	Name   string `json:"name"`
	HomeID string `json:"homeId"`
}

// RoomUpdate holds the fields to change on a room.
type RoomUpdate struct {
	Name *string `json:"name,omitempty"`
}

func homeFromRecord(rec docstore.Record) Home {
	return Home{
		ID:        rec.ID,
		Name:      rec.Fields.String(FieldName),
		Address:   rec.Fields.String(FieldAddress),
		UserID:    rec.Fields.String(FieldUserID),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func roomFromRecord(rec docstore.Record) Room {
	return Room{
		ID:        rec.ID,
		Name:      rec.Fields.String(FieldName),
		HomeID:    rec.Fields.String(FieldHomeID),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func homesFromRecords(recs []docstore.Record) []Home {
	homes := make([]Home, len(recs))
	for i, rec := range recs {
		homes[i] = homeFromRecord(rec)
	}
	return homes
}

func roomsFromRecords(recs []docstore.Record) []Room {
	rooms := make([]Room, len(recs))
	for i, rec := range recs {
		rooms[i] = roomFromRecord(rec)
	}
	return rooms
}
