package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qrave1/voicegrid/internal/domain/errs"
	"github.com/qrave1/voicegrid/internal/domain/events"
	"github.com/qrave1/voicegrid/internal/domain/input"
	"github.com/qrave1/voicegrid/internal/domain/models"
	"github.com/qrave1/voicegrid/internal/infra/adapters/eventbus"
	"github.com/qrave1/voicegrid/internal/infra/adapters/memory"
)

// PresenceUsecase - агрегированный статус пользователя по всем его устройствам в воркспейсе.
type PresenceUsecase interface {
	EffectiveStatus(ctx context.Context, userID, workspaceID uuid.UUID) models.OnlineStatus
	SetStatus(ctx context.Context, connectionID string, status models.OnlineStatus, cause input.StatusCause) error
	// Recompute пересчитывает статус и рассылает его, если он изменился
	Recompute(ctx context.Context, userID, workspaceID uuid.UUID) error
	WorkspaceStatuses(ctx context.Context, workspaceID uuid.UUID) map[uuid.UUID]models.OnlineStatus
}

type presenceKey struct {
	userID      uuid.UUID
	workspaceID uuid.UUID
}

type presenceUsecase struct {
	registry memory.ConnectionRepository
	bus      eventbus.Bus
	locks    *memory.KeyLocker[presenceKey]

	// published - последний разосланный статус, offline не хранится
	published map[presenceKey]models.OnlineStatus
	mu        sync.Mutex
}

func NewPresenceUsecase(registry memory.ConnectionRepository, bus eventbus.Bus, lockTimeout time.Duration) PresenceUsecase {
	return &presenceUsecase{
		registry:  registry,
		bus:       bus,
		locks:     memory.NewKeyLocker[presenceKey](lockTimeout),
		published: make(map[presenceKey]models.OnlineStatus),
	}
}

func (uc *presenceUsecase) EffectiveStatus(ctx context.Context, userID, workspaceID uuid.UUID) models.OnlineStatus {
	status := models.StatusOffline

	for _, rec := range uc.registry.ListByUser(ctx, userID) {
		if rec.WorkspaceID != workspaceID {
			continue
		}

		if rec.OnlineStatus.Priority() > status.Priority() {
			status = rec.OnlineStatus
		}
	}

	return status.Aggregate()
}

func (uc *presenceUsecase) SetStatus(
	ctx context.Context,
	connectionID string,
	status models.OnlineStatus,
	cause input.StatusCause,
) error {
	if !status.Valid() {
		return errs.InvalidRequest(fmt.Sprintf("unknown status %q", status))
	}

	rec, ok := uc.registry.Get(ctx, connectionID)
	if !ok {
		return errs.ErrConnectionNotFound
	}

	key := presenceKey{userID: rec.UserID, workspaceID: rec.WorkspaceID}

	unlock, err := uc.locks.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("lock presence: %w", err)
	}
	defer unlock()

	// уснувшее устройство помечается отдельно, чтобы keep-alive мог его разбудить
	if status == models.StatusIdle && cause == input.CauseSleep {
		status = models.StatusSleep
	}

	_, err = uc.registry.Update(ctx, connectionID, func(r *models.ConnectionRecord) error {
		r.OnlineStatus = status
		return nil
	})
	if err != nil {
		return fmt.Errorf("update connection status: %w", err)
	}

	uc.publishIfChangedLocked(ctx, key)

	return nil
}

func (uc *presenceUsecase) Recompute(ctx context.Context, userID, workspaceID uuid.UUID) error {
	key := presenceKey{userID: userID, workspaceID: workspaceID}

	unlock, err := uc.locks.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("lock presence: %w", err)
	}
	defer unlock()

	uc.publishIfChangedLocked(ctx, key)

	return nil
}

// publishIfChangedLocked вызывается под блокировкой ключа.
func (uc *presenceUsecase) publishIfChangedLocked(ctx context.Context, key presenceKey) {
	status := uc.EffectiveStatus(ctx, key.userID, key.workspaceID)

	uc.mu.Lock()
	previous, ok := uc.published[key]
	if !ok {
		previous = models.StatusOffline
	}

	if previous == status {
		uc.mu.Unlock()
		return
	}

	if status == models.StatusOffline {
		delete(uc.published, key)
	} else {
		uc.published[key] = status
	}
	uc.mu.Unlock()

	uc.bus.Publish(ctx, eventbus.WorkspaceRoom(key.workspaceID), events.OnlineStatusChanged, events.OnlineStatusChangedEvent{
		UserID:       key.userID,
		WorkspaceID:  key.workspaceID,
		OnlineStatus: status,
	})
}

func (uc *presenceUsecase) WorkspaceStatuses(ctx context.Context, workspaceID uuid.UUID) map[uuid.UUID]models.OnlineStatus {
	result := make(map[uuid.UUID]models.OnlineStatus)

	for _, rec := range uc.registry.ListByWorkspace(ctx, workspaceID) {
		current, ok := result[rec.UserID]
		if !ok || rec.OnlineStatus.Priority() > current.Priority() {
			result[rec.UserID] = rec.OnlineStatus.Aggregate()
		}
	}

	return result
}
