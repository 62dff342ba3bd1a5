package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/voicegrid/internal/domain/models"
)

// Исходящие события для устройств
const (
	AuthSuccess           = "auth-success"
	OnlineStatusChanged   = "online-status-changed"
	UserSelectedChannel   = "user-selected-channel"
	UserUnselectedChannel = "user-unselected-channel"
	ChangedDevice         = "changed-device"
	ChannelCreated        = "channel-created"
	ChannelDeleted        = "channel-deleted"
	Invite                = "invite"
	InviteResponse        = "invite-response"
	InviteCancelled       = "invite-cancelled"
	SocketAPIError        = "socket-api-error"
	Pong                  = "pong"
)

// Входящие запросы от устройств
const (
	KeepAlive          = "keep-alive"
	SelectChannel      = "select-channel"
	UnselectChannel    = "unselect-channel"
	UpdateOnlineStatus = "update-online-status"
	SendInvite         = "send-invite"
	RespondInvite      = "respond-invite"
)

// ResponseNoResponse - ответ, который получает отправитель инвайта по таймауту
const ResponseNoResponse = "no-response"

// Message - общее событие
type Message struct {
	Type        string          `json:"type"`
	Transaction string          `json:"transaction,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// ErrorEventType - тип события ошибки, привязанный к транзакции запроса, если она есть.
func ErrorEventType(transaction string) string {
	if transaction == "" {
		return SocketAPIError
	}

	return SocketAPIError + "-" + transaction
}

type AuthSuccessEvent struct {
	ConnectionID         string             `json:"connection_id"`
	UserID               uuid.UUID          `json:"user_id"`
	WorkspaceID          uuid.UUID          `json:"workspace_id"`
	ChannelID            uuid.NullUUID      `json:"channel_id"`
	JanusServerAuthToken string             `json:"janus_server_auth_token"`
	JanusNodes           []models.JanusNode `json:"janus_nodes"`
	IceServers           []webrtc.ICEServer `json:"ice_servers,omitempty"`
}

type OnlineStatusChangedEvent struct {
	UserID       uuid.UUID           `json:"user_id"`
	WorkspaceID  uuid.UUID           `json:"workspace_id"`
	OnlineStatus models.OnlineStatus `json:"online_status"`
}

type ChannelSelectionEvent struct {
	UserID       uuid.UUID `json:"user_id"`
	ChannelID    uuid.UUID `json:"channel_id"`
	WorkspaceID  uuid.UUID `json:"workspace_id"`
	ConnectionID string    `json:"connection_id"`
}

// SelectedChannelResult - ответ устройству, выбравшему канал
type SelectedChannelResult struct {
	ChannelID             uuid.UUID           `json:"channel_id"`
	Janus                 models.ChannelJanus `json:"janus"`
	JanusPublicURL        string              `json:"janus_public_url"`
	JanusPublicWS         string              `json:"janus_public_ws"`
	JanusChannelAuthToken string              `json:"janus_channel_auth_token"`
}

type ChangedDeviceEvent struct {
	ChannelID       uuid.UUID `json:"channel_id"`
	NewConnectionID string    `json:"new_connection_id"`
}

type ChannelEvent struct {
	Channel *models.Channel `json:"channel"`
}

type ChannelDeletedEvent struct {
	ChannelID   uuid.UUID `json:"channel_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
}

type InviteEvent struct {
	Invite *models.Invite `json:"invite"`
}

type InviteResponseEvent struct {
	InviteID  uuid.UUID       `json:"invite_id"`
	ChannelID uuid.UUID       `json:"channel_id"`
	ToUserID  uuid.UUID       `json:"to_user_id"`
	Response  string          `json:"response"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type InviteCancelledEvent struct {
	InviteID  uuid.UUID `json:"invite_id"`
	ChannelID uuid.UUID `json:"channel_id"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Тела входящих запросов

type SelectChannelRequest struct {
	ChannelID uuid.UUID `json:"channel_id"`
}

type UpdateOnlineStatusRequest struct {
	Status models.OnlineStatus `json:"status"`
	Cause  string              `json:"cause"`
}

type SendInviteRequest struct {
	ToUserID       uuid.UUID       `json:"to_user_id"`
	ChannelID      uuid.UUID       `json:"channel_id"`
	Payload        json.RawMessage `json:"payload"`
	ResponseNeeded bool            `json:"response_needed"`
}

type RespondInviteRequest struct {
	InviteID uuid.UUID       `json:"invite_id"`
	Response string          `json:"response"`
	Payload  json.RawMessage `json:"payload"`
}
