package models

import (
	"time"

	"github.com/google/uuid"
)

type OnlineStatus string

const (
	StatusOnline  OnlineStatus = "online"
	StatusIdle    OnlineStatus = "idle"
	StatusOffline OnlineStatus = "offline"
	StatusSleep   OnlineStatus = "sleep"
)

func (s OnlineStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusIdle, StatusOffline, StatusSleep:
		return true
	default:
		return false
	}
}

// Priority - порядок при агрегации статуса: online > idle (sleep) > offline.
func (s OnlineStatus) Priority() int {
	switch s {
	case StatusOnline:
		return 2
	case StatusIdle, StatusSleep:
		return 1
	default:
		return 0
	}
}

// Aggregate возвращает статус для показа другим пользователям.
func (s OnlineStatus) Aggregate() OnlineStatus {
	switch s.Priority() {
	case 2:
		return StatusOnline
	case 1:
		return StatusIdle
	default:
		return StatusOffline
	}
}

// ConnectionRecord - одно живое устройство (сокет) пользователя в воркспейсе.
type ConnectionRecord struct {
	ConnectionID string        `json:"connection_id"`
	UserID       uuid.UUID     `json:"user_id"`
	WorkspaceID  uuid.UUID     `json:"workspace_id"`
	ChannelID    uuid.NullUUID `json:"channel_id"`
	OnlineStatus OnlineStatus  `json:"online_status"`

	// IsMain - устройство, которое владеет присутствием пользователя в канале
	IsMain bool `json:"is_main"`

	JanusServerAuthToken  string `json:"-"`
	JanusChannelAuthToken string `json:"-"`

	LocalTimeZone string    `json:"local_time_zone"`
	ConnectedAt   time.Time `json:"connected_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (r *ConnectionRecord) InChannel(channelID uuid.UUID) bool {
	return r.ChannelID.Valid && r.ChannelID.UUID == channelID
}

func (r *ConnectionRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// ClearChannel убирает устройство из канала вместе с токеном комнаты.
func (r *ConnectionRecord) ClearChannel() {
	r.ChannelID = uuid.NullUUID{}
	r.JanusChannelAuthToken = ""
}
