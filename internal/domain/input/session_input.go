package input

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ConnectInput - устройство прошло аутентификацию и открыло сокет.
type ConnectInput struct {
	UserID               uuid.UUID
	WorkspaceID          uuid.UUID
	ConnectionID         string
	PreviousConnectionID string
	LocalTimeZone        string
}

type SendInviteInput struct {
	FromUserID     uuid.UUID
	ToUserID       uuid.UUID
	WorkspaceID    uuid.UUID
	ChannelID      uuid.UUID
	Payload        json.RawMessage
	ResponseNeeded bool
}

// StatusCause - причина смены статуса устройства
type StatusCause string

const (
	CauseUser       StatusCause = "user"
	CauseInactivity StatusCause = "inactivity"
	CauseSleep      StatusCause = "sleep"
)
