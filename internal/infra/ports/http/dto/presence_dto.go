package dto

import (
	"sort"

	"github.com/google/uuid"

	"github.com/qrave1/voicegrid/internal/domain/models"
)

type UserPresence struct {
	UserID       uuid.UUID           `json:"user_id"`
	OnlineStatus models.OnlineStatus `json:"online_status"`
}

type PresenceResponse struct {
	WorkspaceID uuid.UUID      `json:"workspace_id"`
	Users       []UserPresence `json:"users"`
}

func NewPresenceResponse(workspaceID uuid.UUID, statuses map[uuid.UUID]models.OnlineStatus) PresenceResponse {
	resp := PresenceResponse{
		WorkspaceID: workspaceID,
		Users:       make([]UserPresence, 0, len(statuses)),
	}

	for userID, status := range statuses {
		resp.Users = append(resp.Users, UserPresence{UserID: userID, OnlineStatus: status})
	}

	sort.Slice(resp.Users, func(i, j int) bool {
		return resp.Users[i].UserID.String() < resp.Users[j].UserID.String()
	})

	return resp
}
