package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/voicegrid/internal/domain/input"
	"github.com/qrave1/voicegrid/internal/infra/adapters/memory"
	"github.com/qrave1/voicegrid/internal/infra/appctx"
	"github.com/qrave1/voicegrid/internal/infra/ports/http/dto"
	"github.com/qrave1/voicegrid/internal/usecase"
)

type ChannelHandler struct {
	channelUsecase usecase.ChannelUsecase
	registry       memory.ConnectionRepository
}

func NewChannelHandler(channelUsecase usecase.ChannelUsecase, registry memory.ConnectionRepository) *ChannelHandler {
	return &ChannelHandler{channelUsecase: channelUsecase, registry: registry}
}

func (h *ChannelHandler) ListChannelsHandler(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user"})
	}

	workspaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid workspace id"})
	}

	channels, err := h.channelUsecase.ListChannels(c.Request().Context(), workspaceID, userID)
	if err != nil {
		return respondError(c, "list channels", err)
	}

	resp := dto.ListChannelsResponse{
		Channels: make([]dto.ChannelResponse, 0, len(channels)),
	}

	for _, ch := range channels {
		occupants := h.registry.ListByChannel(c.Request().Context(), ch.ID)
		resp.Channels = append(resp.Channels, dto.NewChannelResponseFromModel(ch, occupants))
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *ChannelHandler) CreateChannelHandler(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user"})
	}

	workspaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid workspace id"})
	}

	var req dto.CreateChannelRequest
	if err = c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	channel, err := h.channelUsecase.CreateChannel(c.Request().Context(), &input.CreateChannelInput{
		CreatorID:   userID,
		WorkspaceID: workspaceID,
		Name:        req.Name,
		IsPrivate:   req.IsPrivate,
		IsTemporary: req.IsTemporary,
		LifespanMs:  req.LifespanMs,
	})
	if err != nil {
		return respondError(c, "create channel", err)
	}

	return c.JSON(http.StatusCreated, dto.NewChannelResponseFromModel(channel, nil))
}

func (h *ChannelHandler) DeleteChannelHandler(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user"})
	}

	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid channel id"})
	}

	err = h.channelUsecase.DeleteChannel(c.Request().Context(), &input.DeleteChannelInput{
		ActorID:   userID,
		ChannelID: channelID,
	})
	if err != nil {
		return respondError(c, "delete channel", err)
	}

	return c.NoContent(http.StatusOK)
}
