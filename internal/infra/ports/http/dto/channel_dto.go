package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/qrave1/voicegrid/internal/domain/models"
)

type CreateChannelRequest struct {
	Name        string `json:"name"`
	IsPrivate   bool   `json:"is_private"`
	IsTemporary bool   `json:"is_temporary"`
	LifespanMs  int64  `json:"lifespan_ms"`
}

// Occupant - устройство, которое сейчас сидит в канале
type Occupant struct {
	UserID       uuid.UUID `json:"user_id"`
	ConnectionID string    `json:"connection_id"`
}

type ChannelResponse struct {
	ID          uuid.UUID  `json:"id"`
	WorkspaceID uuid.UUID  `json:"workspace_id"`
	CreatorID   uuid.UUID  `json:"creator_id"`
	Name        string     `json:"name"`
	IsPrivate   bool       `json:"is_private"`
	IsTemporary bool       `json:"is_temporary"`
	LifespanMs  int64      `json:"lifespan_ms"`
	Server      string     `json:"server"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Occupants   []Occupant `json:"occupants"`
}

func NewChannelResponseFromModel(ch *models.Channel, occupants []models.ConnectionRecord) ChannelResponse {
	resp := ChannelResponse{
		ID:          ch.ID,
		WorkspaceID: ch.WorkspaceID,
		CreatorID:   ch.CreatorID,
		Name:        ch.Name,
		IsPrivate:   ch.IsPrivate,
		IsTemporary: ch.IsTemporary,
		LifespanMs:  ch.LifespanMs,
		Server:      ch.Server,
		CreatedAt:   ch.CreatedAt,
		UpdatedAt:   ch.UpdatedAt,
		Occupants:   make([]Occupant, 0, len(occupants)),
	}

	for _, rec := range occupants {
		resp.Occupants = append(resp.Occupants, Occupant{UserID: rec.UserID, ConnectionID: rec.ConnectionID})
	}

	return resp
}

type ListChannelsResponse struct {
	Channels []ChannelResponse `json:"channels"`
}
