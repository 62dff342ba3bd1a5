package models

import (
	"time"

	"github.com/google/uuid"
)

type Channel struct {
	ID          uuid.UUID `json:"id" db:"id"`
	WorkspaceID uuid.UUID `json:"workspace_id" db:"workspace_id"`
	CreatorID   uuid.UUID `json:"creator_id" db:"creator_id"`
	Name        string    `json:"name" db:"name"`
	IsPrivate   bool      `json:"is_private" db:"is_private"`
	IsTemporary bool      `json:"is_temporary" db:"is_temporary"`

	// LifespanMs - сколько временный канал живет после создания, 0 - удаляется сразу
	LifespanMs int64 `json:"lifespan_ms" db:"lifespan_ms"`

	ChannelJanus `json:"janus"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ChannelJanus - комнаты канала на SFU ноде.
type ChannelJanus struct {
	Server      string `json:"server" db:"janus_server"`
	AudioRoomID int64  `json:"audio_room_id" db:"audio_room_id"`
	VideoRoomID int64  `json:"video_room_id" db:"video_room_id"`
	TextRoomID  int64  `json:"text_room_id" db:"text_room_id"`
	Secret      string `json:"-" db:"janus_secret"`
}

func NewChannel(workspaceID, creatorID uuid.UUID, name string) *Channel {
	return &Channel{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		CreatorID:   creatorID,
		Name:        name,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func (c *Channel) Lifespan() time.Duration {
	return time.Duration(c.LifespanMs) * time.Millisecond
}

func (c *Channel) HasRooms() bool {
	return c.Server != ""
}

// RoomID возвращает id комнаты канала для плагина.
func (c *ChannelJanus) RoomID(plugin Plugin) int64 {
	switch plugin {
	case PluginAudioBridge:
		return c.AudioRoomID
	case PluginVideoRoom:
		return c.VideoRoomID
	case PluginTextRoom:
		return c.TextRoomID
	default:
		return 0
	}
}
