package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qrave1/voicegrid/internal/application/constant"
	"github.com/qrave1/voicegrid/internal/domain/errs"
	"github.com/qrave1/voicegrid/internal/domain/events"
	"github.com/qrave1/voicegrid/internal/domain/input"
	"github.com/qrave1/voicegrid/internal/domain/models"
	"github.com/qrave1/voicegrid/internal/infra/adapters/eventbus"
	"github.com/qrave1/voicegrid/internal/infra/adapters/postgres/repository"
)

type ChannelUsecase interface {
	CreateChannel(ctx context.Context, input *input.CreateChannelInput) (*models.Channel, error)
	GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	// ListChannels - каналы воркспейса, которые видит пользователь
	ListChannels(ctx context.Context, workspaceID, userID uuid.UUID) ([]*models.Channel, error)
	DeleteChannel(ctx context.Context, input *input.DeleteChannelInput) error
}

type channelUsecase struct {
	channelRepo   repository.ChannelRepository
	workspaceRepo repository.WorkspaceRepository

	rooms    RoomUsecase
	sessions SessionUsecase
	bus      eventbus.Bus

	now func() time.Time
}

func NewChannelUsecase(
	channelRepo repository.ChannelRepository,
	workspaceRepo repository.WorkspaceRepository,
	rooms RoomUsecase,
	sessions SessionUsecase,
	bus eventbus.Bus,
	now func() time.Time,
) ChannelUsecase {
	if now == nil {
		now = time.Now
	}

	return &channelUsecase{
		channelRepo:   channelRepo,
		workspaceRepo: workspaceRepo,
		rooms:         rooms,
		sessions:      sessions,
		bus:           bus,
		now:           now,
	}
}

func (uc *channelUsecase) CreateChannel(ctx context.Context, input *input.CreateChannelInput) (*models.Channel, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errs.InvalidRequest("name is required")
	}

	if input.LifespanMs < 0 {
		return nil, errs.InvalidRequest("lifespan_ms must not be negative")
	}

	if _, err := uc.workspaceRepo.GetMemberRole(ctx, input.WorkspaceID, input.CreatorID); err != nil {
		return nil, fmt.Errorf("check workspace member: %w", err)
	}

	channel := models.NewChannel(input.WorkspaceID, input.CreatorID, name)
	channel.CreatedAt = uc.now()
	channel.UpdatedAt = channel.CreatedAt
	channel.IsPrivate = input.IsPrivate
	channel.IsTemporary = input.IsTemporary
	if channel.IsTemporary {
		channel.LifespanMs = input.LifespanMs
	}

	node, err := uc.rooms.SelectNode()
	if err != nil {
		return nil, fmt.Errorf("select janus node: %w", err)
	}

	if err = uc.rooms.CreateRooms(ctx, node, channel); err != nil {
		uc.compensate(ctx, channel, node.Name)
		return nil, fmt.Errorf("create rooms: %w", err)
	}

	if err = uc.channelRepo.Create(ctx, channel); err != nil {
		uc.compensate(ctx, channel, node.Name)
		return nil, fmt.Errorf("create channel: %w", err)
	}

	// создатель приватного канала сразу его участник
	if channel.IsPrivate {
		if err = uc.channelRepo.AddMember(ctx, channel.ID, input.CreatorID); err != nil {
			return nil, fmt.Errorf("add creator to channel: %w", err)
		}
	}

	uc.bus.Publish(ctx, eventbus.WorkspaceRoom(channel.WorkspaceID), events.ChannelCreated, events.ChannelEvent{Channel: channel})

	slog.Info(
		"channel created",
		slog.String(constant.ChannelID, channel.ID.String()),
		slog.String(constant.Node, node.Name),
	)

	return channel, nil
}

// compensate удаляет то, что успело создаться на ноде.
func (uc *channelUsecase) compensate(ctx context.Context, channel *models.Channel, node string) {
	if err := uc.rooms.DestroyRooms(ctx, channel); err != nil {
		slog.Error("destroy partially created rooms", slog.Any(constant.Error, err), slog.String(constant.Node, node))
		uc.rooms.ReleaseNode(node)
	}
}

func (uc *channelUsecase) GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	return uc.channelRepo.GetByID(ctx, id)
}

func (uc *channelUsecase) ListChannels(ctx context.Context, workspaceID, userID uuid.UUID) ([]*models.Channel, error) {
	role, err := uc.workspaceRepo.GetMemberRole(ctx, workspaceID, userID)
	if err != nil {
		return nil, fmt.Errorf("check workspace member: %w", err)
	}

	channels, err := uc.channelRepo.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	visible := make([]*models.Channel, 0, len(channels))
	for _, ch := range channels {
		if ch.IsPrivate && !role.CanManageChannels() {
			isMember, err := uc.channelRepo.IsMember(ctx, ch.ID, userID)
			if err != nil {
				return nil, fmt.Errorf("check channel member: %w", err)
			}

			if !isMember {
				continue
			}
		}

		visible = append(visible, ch)
	}

	return visible, nil
}

func (uc *channelUsecase) DeleteChannel(ctx context.Context, input *input.DeleteChannelInput) error {
	channel, err := uc.channelRepo.GetByID(ctx, input.ChannelID)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}

	role, err := uc.workspaceRepo.GetMemberRole(ctx, channel.WorkspaceID, input.ActorID)
	if err != nil {
		return errs.ErrForbidden
	}

	if channel.CreatorID != input.ActorID && !role.CanManageChannels() {
		return errs.ErrForbidden
	}

	if err = uc.sessions.TeardownChannel(ctx, channel.ID); err != nil {
		return fmt.Errorf("teardown channel: %w", err)
	}

	return nil
}
