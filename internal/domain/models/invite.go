package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Invite - эфемерный звонок в канал, живет до ответа, отмены или таймаута.
type Invite struct {
	ID             uuid.UUID       `json:"id"`
	FromUserID     uuid.UUID       `json:"from_user_id"`
	ToUserID       uuid.UUID       `json:"to_user_id"`
	WorkspaceID    uuid.UUID       `json:"workspace_id"`
	ChannelID      uuid.UUID       `json:"channel_id"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ResponseNeeded bool            `json:"response_needed"`
}

// InviteKey - логическая идентичность инвайта для дедупликации.
type InviteKey struct {
	FromUserID uuid.UUID
	ToUserID   uuid.UUID
	ChannelID  uuid.UUID
}

func (i *Invite) Key() InviteKey {
	return InviteKey{FromUserID: i.FromUserID, ToUserID: i.ToUserID, ChannelID: i.ChannelID}
}
