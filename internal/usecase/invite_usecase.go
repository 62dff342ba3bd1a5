package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qrave1/voicegrid/internal/application/constant"
	"github.com/qrave1/voicegrid/internal/application/metric"
	"github.com/qrave1/voicegrid/internal/domain/errs"
	"github.com/qrave1/voicegrid/internal/domain/events"
	"github.com/qrave1/voicegrid/internal/domain/input"
	"github.com/qrave1/voicegrid/internal/domain/models"
	"github.com/qrave1/voicegrid/internal/infra/adapters/eventbus"
	"github.com/qrave1/voicegrid/internal/infra/adapters/memory"
	"github.com/qrave1/voicegrid/internal/infra/adapters/postgres/repository"
)

// Исходы инвайтов для метрик
const (
	inviteSent      = "sent"
	inviteAnswered  = "answered"
	inviteTimedOut  = "timeout"
	inviteCancelled = "cancelled"
)

// InviteUsecase - эфемерные звонки в канал с ответом, таймаутом и отменой.
type InviteUsecase interface {
	Send(ctx context.Context, in *input.SendInviteInput) (uuid.UUID, error)
	Respond(ctx context.Context, responderID, inviteID uuid.UUID, response string, payload json.RawMessage) error
	// CancelForChannel отменяет все ожидающие инвайты в канал
	CancelForChannel(ctx context.Context, channelID uuid.UUID)
	Get(inviteID uuid.UUID) (models.Invite, bool)
}

type pendingInvite struct {
	invite models.Invite
	timer  *time.Timer
}

type inviteUsecase struct {
	registry      memory.ConnectionRepository
	channelRepo   repository.ChannelRepository
	workspaceRepo repository.WorkspaceRepository
	bus           eventbus.Bus

	timeout time.Duration
	now     func() time.Time

	invites map[uuid.UUID]*pendingInvite
	byKey   map[models.InviteKey]uuid.UUID
	mu      sync.Mutex
}

func NewInviteUsecase(
	registry memory.ConnectionRepository,
	channelRepo repository.ChannelRepository,
	workspaceRepo repository.WorkspaceRepository,
	bus eventbus.Bus,
	timeout time.Duration,
	now func() time.Time,
) InviteUsecase {
	if now == nil {
		now = time.Now
	}

	return &inviteUsecase{
		registry:      registry,
		channelRepo:   channelRepo,
		workspaceRepo: workspaceRepo,
		bus:           bus,
		timeout:       timeout,
		now:           now,
		invites:       make(map[uuid.UUID]*pendingInvite),
		byKey:         make(map[models.InviteKey]uuid.UUID),
	}
}

func (uc *inviteUsecase) Send(ctx context.Context, in *input.SendInviteInput) (uuid.UUID, error) {
	if in.FromUserID == in.ToUserID {
		return uuid.Nil, errs.InvalidRequest("cannot invite yourself")
	}

	var devices []models.ConnectionRecord
	for _, rec := range uc.registry.ListByUser(ctx, in.ToUserID) {
		if rec.WorkspaceID == in.WorkspaceID {
			devices = append(devices, rec)
		}
	}

	if len(devices) == 0 {
		return uuid.Nil, errs.ErrUserNotConnected
	}

	channel, err := uc.channelRepo.GetByID(ctx, in.ChannelID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("get channel: %w", err)
	}

	if channel.WorkspaceID != in.WorkspaceID {
		return uuid.Nil, errs.ErrChannelNotFound
	}

	// членство раздает только тот, кто сам может войти в канал
	if err = uc.authorizeSender(ctx, in.FromUserID, channel); err != nil {
		return uuid.Nil, err
	}

	key := models.InviteKey{FromUserID: in.FromUserID, ToUserID: in.ToUserID, ChannelID: in.ChannelID}

	if id, ok := uc.outstanding(key); ok {
		return id, nil
	}

	isMember, err := uc.channelRepo.IsMember(ctx, in.ChannelID, in.ToUserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("check channel member: %w", err)
	}

	// приглашение в канал дает членство в нем
	if !isMember {
		if err = uc.channelRepo.AddMember(ctx, in.ChannelID, in.ToUserID); err != nil {
			return uuid.Nil, fmt.Errorf("add channel member: %w", err)
		}
	}

	invite := models.Invite{
		ID:             uuid.New(),
		FromUserID:     in.FromUserID,
		ToUserID:       in.ToUserID,
		WorkspaceID:    in.WorkspaceID,
		ChannelID:      in.ChannelID,
		Payload:        in.Payload,
		CreatedAt:      uc.now(),
		ResponseNeeded: in.ResponseNeeded,
	}

	if invite.ResponseNeeded {
		uc.mu.Lock()
		// пока шли в базу, такой же инвайт мог успеть появиться
		if id, ok := uc.byKey[key]; ok {
			uc.mu.Unlock()
			return id, nil
		}

		id := invite.ID
		uc.invites[id] = &pendingInvite{
			invite: invite,
			timer:  time.AfterFunc(uc.timeout, func() { uc.expire(id) }),
		}
		uc.byKey[key] = id
		uc.mu.Unlock()
	}

	for _, device := range devices {
		uc.bus.Emit(ctx, device.ConnectionID, events.Invite, events.InviteEvent{Invite: &invite})
	}

	metric.RecordInvite(inviteSent)

	return invite.ID, nil
}

func (uc *inviteUsecase) authorizeSender(ctx context.Context, senderID uuid.UUID, channel *models.Channel) error {
	role, err := uc.workspaceRepo.GetMemberRole(ctx, channel.WorkspaceID, senderID)
	if err != nil {
		return fmt.Errorf("check workspace member: %w", err)
	}

	if !channel.IsPrivate || role.CanManageChannels() {
		return nil
	}

	isMember, err := uc.channelRepo.IsMember(ctx, channel.ID, senderID)
	if err != nil {
		return fmt.Errorf("check channel member: %w", err)
	}

	if !isMember {
		return errs.ErrNotChannelMember
	}

	return nil
}

func (uc *inviteUsecase) outstanding(key models.InviteKey) (uuid.UUID, bool) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	id, ok := uc.byKey[key]

	return id, ok
}

func (uc *inviteUsecase) Respond(
	ctx context.Context,
	responderID, inviteID uuid.UUID,
	response string,
	payload json.RawMessage,
) error {
	uc.mu.Lock()
	pending, ok := uc.invites[inviteID]
	if !ok {
		uc.mu.Unlock()
		return errs.ErrInviteNotFound
	}

	if pending.invite.ToUserID != responderID {
		uc.mu.Unlock()
		return errs.ErrForbidden
	}

	uc.removeLocked(pending)
	uc.mu.Unlock()

	uc.bus.Publish(ctx, eventbus.UserRoom(pending.invite.FromUserID), events.InviteResponse, events.InviteResponseEvent{
		InviteID:  inviteID,
		ChannelID: pending.invite.ChannelID,
		ToUserID:  responderID,
		Response:  response,
		Payload:   payload,
	})

	metric.RecordInvite(inviteAnswered)

	return nil
}

func (uc *inviteUsecase) CancelForChannel(ctx context.Context, channelID uuid.UUID) {
	uc.mu.Lock()
	var cancelled []models.Invite
	for _, pending := range uc.invites {
		if pending.invite.ChannelID == channelID {
			uc.removeLocked(pending)
			cancelled = append(cancelled, pending.invite)
		}
	}
	uc.mu.Unlock()

	for _, invite := range cancelled {
		uc.bus.Publish(ctx, eventbus.UserRoom(invite.ToUserID), events.InviteCancelled, events.InviteCancelledEvent{
			InviteID:  invite.ID,
			ChannelID: invite.ChannelID,
		})

		metric.RecordInvite(inviteCancelled)
	}
}

func (uc *inviteUsecase) Get(inviteID uuid.UUID) (models.Invite, bool) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	pending, ok := uc.invites[inviteID]
	if !ok {
		return models.Invite{}, false
	}

	return pending.invite, true
}

// expire срабатывает по таймеру. Если инвайт уже разрешен, ничего не делает.
func (uc *inviteUsecase) expire(inviteID uuid.UUID) {
	uc.mu.Lock()
	pending, ok := uc.invites[inviteID]
	if !ok {
		uc.mu.Unlock()
		return
	}

	uc.removeLocked(pending)
	uc.mu.Unlock()

	slog.Debug("invite timed out", slog.String(constant.InviteID, inviteID.String()))

	uc.bus.Publish(context.Background(), eventbus.UserRoom(pending.invite.FromUserID), events.InviteResponse, events.InviteResponseEvent{
		InviteID:  inviteID,
		ChannelID: pending.invite.ChannelID,
		ToUserID:  pending.invite.ToUserID,
		Response:  events.ResponseNoResponse,
	})

	metric.RecordInvite(inviteTimedOut)
}

func (uc *inviteUsecase) removeLocked(pending *pendingInvite) {
	pending.timer.Stop()
	delete(uc.invites, pending.invite.ID)
	delete(uc.byKey, pending.invite.Key())
}
