package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/voicegrid/internal/infra/adapters/postgres/repository"
	"github.com/qrave1/voicegrid/internal/infra/appctx"
	"github.com/qrave1/voicegrid/internal/infra/ports/http/dto"
	"github.com/qrave1/voicegrid/internal/usecase"
)

type PresenceHandler struct {
	presenceUsecase usecase.PresenceUsecase
	workspaceRepo   repository.WorkspaceRepository
}

func NewPresenceHandler(presenceUsecase usecase.PresenceUsecase, workspaceRepo repository.WorkspaceRepository) *PresenceHandler {
	return &PresenceHandler{presenceUsecase: presenceUsecase, workspaceRepo: workspaceRepo}
}

// WorkspacePresence - статусы всех пользователей воркспейса с живыми устройствами
func (h *PresenceHandler) WorkspacePresence(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user"})
	}

	workspaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid workspace id"})
	}

	if _, err = h.workspaceRepo.GetMemberRole(c.Request().Context(), workspaceID, userID); err != nil {
		return respondError(c, "check workspace member", err)
	}

	statuses := h.presenceUsecase.WorkspaceStatuses(c.Request().Context(), workspaceID)

	return c.JSON(http.StatusOK, dto.NewPresenceResponse(workspaceID, statuses))
}
