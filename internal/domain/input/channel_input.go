package input

import "github.com/google/uuid"

type CreateChannelInput struct {
	CreatorID   uuid.UUID `json:"creator_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Name        string    `json:"name"`
	IsPrivate   bool      `json:"is_private"`
	IsTemporary bool      `json:"is_temporary"`
	LifespanMs  int64     `json:"lifespan_ms"`
}

type DeleteChannelInput struct {
	ActorID   uuid.UUID `json:"actor_id"`
	ChannelID uuid.UUID `json:"channel_id"`
}
