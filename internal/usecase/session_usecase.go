package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/voicegrid/internal/application/constant"
	"github.com/qrave1/voicegrid/internal/domain/errs"
	"github.com/qrave1/voicegrid/internal/domain/events"
	"github.com/qrave1/voicegrid/internal/domain/input"
	"github.com/qrave1/voicegrid/internal/domain/models"
	"github.com/qrave1/voicegrid/internal/infra/adapters/eventbus"
	"github.com/qrave1/voicegrid/internal/infra/adapters/janus"
	"github.com/qrave1/voicegrid/internal/infra/adapters/memory"
	"github.com/qrave1/voicegrid/internal/infra/adapters/postgres/repository"
)

// SessionUsecase - выбор каналов устройствами и жизненный цикл подключений.
type SessionUsecase interface {
	Connect(ctx context.Context, in *input.ConnectInput) (*events.AuthSuccessEvent, error)
	KeepAlive(ctx context.Context, connectionID string) error

	Select(ctx context.Context, connectionID string, channelID uuid.UUID) (*events.SelectedChannelResult, error)
	Unselect(ctx context.Context, connectionID string) error

	Disconnect(ctx context.Context, connectionID string) error
	// HandleExpired - обработчик истечения TTL записи в реестре
	HandleExpired(record models.ConnectionRecord)

	// TeardownChannel выселяет всех из канала, удаляет комнаты и сам канал
	TeardownChannel(ctx context.Context, channelID uuid.UUID) error
}

type sessionUsecase struct {
	registry      memory.ConnectionRepository
	channelRepo   repository.ChannelRepository
	workspaceRepo repository.WorkspaceRepository

	rooms    RoomUsecase
	presence PresenceUsecase
	invites  InviteUsecase
	bus      eventbus.Bus

	channelLocks *memory.KeyLocker[uuid.UUID]
	userLocks    *memory.KeyLocker[presenceKey]

	iceServers []webrtc.ICEServer
	now        func() time.Time

	// lifespanTimers - отложенное удаление опустевших временных каналов
	lifespanTimers map[uuid.UUID]*time.Timer
	timersMu       sync.Mutex
}

func NewSessionUsecase(
	registry memory.ConnectionRepository,
	channelRepo repository.ChannelRepository,
	workspaceRepo repository.WorkspaceRepository,
	rooms RoomUsecase,
	presence PresenceUsecase,
	invites InviteUsecase,
	bus eventbus.Bus,
	lockTimeout time.Duration,
	iceServers []webrtc.ICEServer,
	now func() time.Time,
) SessionUsecase {
	if now == nil {
		now = time.Now
	}

	return &sessionUsecase{
		registry:       registry,
		channelRepo:    channelRepo,
		workspaceRepo:  workspaceRepo,
		rooms:          rooms,
		presence:       presence,
		invites:        invites,
		bus:            bus,
		channelLocks:   memory.NewKeyLocker[uuid.UUID](lockTimeout),
		userLocks:      memory.NewKeyLocker[presenceKey](lockTimeout),
		iceServers:     iceServers,
		now:            now,
		lifespanTimers: make(map[uuid.UUID]*time.Timer),
	}
}

func (uc *sessionUsecase) Connect(ctx context.Context, in *input.ConnectInput) (*events.AuthSuccessEvent, error) {
	if _, err := uc.workspaceRepo.GetMemberRole(ctx, in.WorkspaceID, in.UserID); err != nil {
		return nil, fmt.Errorf("check workspace member: %w", err)
	}

	unlock, err := uc.userLocks.Lock(ctx, presenceKey{userID: in.UserID, workspaceID: in.WorkspaceID})
	if err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}
	defer unlock()

	rec, resumed, err := uc.resume(ctx, in)
	if err != nil {
		return nil, err
	}

	if !resumed {
		rec, err = uc.register(ctx, in)
		if err != nil {
			return nil, err
		}
	}

	uc.bus.Join(rec.ConnectionID, eventbus.WorkspaceRoom(rec.WorkspaceID))
	uc.bus.Join(rec.ConnectionID, eventbus.UserRoom(rec.UserID))
	if rec.ChannelID.Valid {
		uc.bus.Join(rec.ConnectionID, eventbus.ChannelRoom(rec.ChannelID.UUID))
	}

	if err = uc.presence.Recompute(ctx, rec.UserID, rec.WorkspaceID); err != nil {
		slog.Error("recompute presence", slog.Any(constant.Error, err), slog.String(constant.UserID, rec.UserID.String()))
	}

	auth := &events.AuthSuccessEvent{
		ConnectionID:         rec.ConnectionID,
		UserID:               rec.UserID,
		WorkspaceID:          rec.WorkspaceID,
		ChannelID:            rec.ChannelID,
		JanusServerAuthToken: rec.JanusServerAuthToken,
		JanusNodes:           uc.rooms.Nodes(),
		IceServers:           uc.iceServers,
	}

	uc.bus.Emit(ctx, rec.ConnectionID, events.AuthSuccess, auth)

	return auth, nil
}

// resume переносит живую запись прошлого сокета на новый connection id.
func (uc *sessionUsecase) resume(ctx context.Context, in *input.ConnectInput) (models.ConnectionRecord, bool, error) {
	if in.PreviousConnectionID == "" || in.PreviousConnectionID == in.ConnectionID {
		return models.ConnectionRecord{}, false, nil
	}

	previous, ok := uc.registry.Get(ctx, in.PreviousConnectionID)
	if !ok || previous.UserID != in.UserID || previous.WorkspaceID != in.WorkspaceID {
		return models.ConnectionRecord{}, false, nil
	}

	if _, err := uc.registry.RenameConnectionID(ctx, in.PreviousConnectionID, in.ConnectionID); err != nil {
		if errors.Is(err, errs.ErrConnectionNotFound) {
			return models.ConnectionRecord{}, false, nil
		}

		return models.ConnectionRecord{}, false, fmt.Errorf("rename connection: %w", err)
	}

	rec, err := uc.registry.Update(ctx, in.ConnectionID, func(r *models.ConnectionRecord) error {
		if r.OnlineStatus == models.StatusSleep {
			r.OnlineStatus = models.StatusOnline
		}
		if in.LocalTimeZone != "" {
			r.LocalTimeZone = in.LocalTimeZone
		}

		return nil
	})
	if err != nil {
		return models.ConnectionRecord{}, false, fmt.Errorf("wake connection: %w", err)
	}

	slog.Info(
		"connection resumed",
		slog.String(constant.ConnectionID, rec.ConnectionID),
		slog.String(constant.UserID, rec.UserID.String()),
	)

	return rec, true, nil
}

func (uc *sessionUsecase) register(ctx context.Context, in *input.ConnectInput) (models.ConnectionRecord, error) {
	others := uc.userDevices(ctx, in.UserID, in.WorkspaceID, in.ConnectionID)

	var serverToken string
	for _, other := range others {
		if other.JanusServerAuthToken != "" {
			serverToken = other.JanusServerAuthToken
			break
		}
	}

	if serverToken == "" {
		serverToken = uuid.NewString()
		if err := uc.rooms.AddServerAuthToken(ctx, serverToken); err != nil {
			return models.ConnectionRecord{}, fmt.Errorf("add server auth token: %w", err)
		}
	}

	rec := uc.registry.Put(ctx, models.ConnectionRecord{
		ConnectionID:         in.ConnectionID,
		UserID:               in.UserID,
		WorkspaceID:          in.WorkspaceID,
		OnlineStatus:         models.StatusOnline,
		IsMain:               len(others) == 0,
		JanusServerAuthToken: serverToken,
		LocalTimeZone:        in.LocalTimeZone,
		ConnectedAt:          uc.now(),
	})

	return rec, nil
}

func (uc *sessionUsecase) KeepAlive(ctx context.Context, connectionID string) error {
	rec, ok := uc.registry.Touch(ctx, connectionID)
	if !ok {
		return errs.ErrConnectionNotFound
	}

	if rec.OnlineStatus == models.StatusSleep {
		if err := uc.presence.SetStatus(ctx, connectionID, models.StatusOnline, input.CauseUser); err != nil {
			return fmt.Errorf("wake connection: %w", err)
		}
	}

	return nil
}

func (uc *sessionUsecase) Select(
	ctx context.Context,
	connectionID string,
	channelID uuid.UUID,
) (*events.SelectedChannelResult, error) {
	rec, ok := uc.registry.Get(ctx, connectionID)
	if !ok {
		return nil, errs.ErrConnectionNotFound
	}

	channel, err := uc.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}

	if channel.WorkspaceID != rec.WorkspaceID {
		return nil, errs.ErrChannelNotFound
	}

	if err = uc.authorize(ctx, rec.UserID, channel); err != nil {
		return nil, err
	}

	if rec.InChannel(channelID) {
		return uc.selectedResult(channel, rec.JanusChannelAuthToken)
	}

	// сначала то, что может отказать: комнаты и токен. Старый канал пока не трогаем
	token, minted, err := uc.prepareSelect(ctx, rec, channelID)
	if err != nil {
		return nil, err
	}

	if err = uc.displace(ctx, rec, channelID); err != nil {
		if minted {
			uc.revokeToken(ctx, channel, token)
		}

		return nil, err
	}

	unlock, err := uc.channelLocks.Lock(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("lock channel: %w", err)
	}
	defer unlock()

	// канал могли удалить вместе с комнатами, пока освобождали старый
	current, err := uc.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		if minted && !errors.Is(err, errs.ErrChannelNotFound) {
			uc.revokeToken(ctx, channel, token)
		}

		return nil, fmt.Errorf("get channel: %w", err)
	}
	channel = current

	// переиспользованный токен мог быть отозван, если другое устройство успело выйти
	if !minted && !uc.tokenHeld(ctx, rec.UserID, channelID, connectionID, token) {
		token = uuid.NewString()
		if err = uc.rooms.ManageAuthTokens(ctx, janus.TokenAdd, []string{token}, channel); err != nil {
			return nil, fmt.Errorf("grant channel token: %w", err)
		}
		minted = true
	}

	_, err = uc.registry.Update(ctx, connectionID, func(r *models.ConnectionRecord) error {
		r.ChannelID = uuid.NullUUID{UUID: channelID, Valid: true}
		r.JanusChannelAuthToken = token
		r.IsMain = true
		return nil
	})
	if err != nil {
		if minted {
			uc.revokeToken(ctx, channel, token)
		}

		return nil, fmt.Errorf("update connection: %w", err)
	}

	// main у пользователя в воркспейсе один
	for _, other := range uc.userDevices(ctx, rec.UserID, rec.WorkspaceID, connectionID) {
		displaced := other.InChannel(channelID)

		_, err = uc.registry.Update(ctx, other.ConnectionID, func(r *models.ConnectionRecord) error {
			r.IsMain = false
			if displaced {
				r.ClearChannel()
			}
			return nil
		})
		if err != nil {
			continue
		}

		if displaced {
			uc.bus.Leave(other.ConnectionID, eventbus.ChannelRoom(channelID))
			uc.bus.Emit(ctx, other.ConnectionID, events.ChangedDevice, events.ChangedDeviceEvent{
				ChannelID:       channelID,
				NewConnectionID: connectionID,
			})
		}
	}

	uc.bus.Join(connectionID, eventbus.ChannelRoom(channelID))
	uc.bus.Publish(ctx, eventbus.ChannelRoom(channelID), events.UserSelectedChannel, events.ChannelSelectionEvent{
		UserID:       rec.UserID,
		ChannelID:    channelID,
		WorkspaceID:  rec.WorkspaceID,
		ConnectionID: connectionID,
	})

	uc.cancelLifespanTimer(channelID)

	return uc.selectedResult(channel, token)
}

// prepareSelect поднимает комнаты канала и выдает токен пользователя, не меняя реестр.
func (uc *sessionUsecase) prepareSelect(
	ctx context.Context,
	rec models.ConnectionRecord,
	channelID uuid.UUID,
) (string, bool, error) {
	unlock, err := uc.channelLocks.Lock(ctx, channelID)
	if err != nil {
		return "", false, fmt.Errorf("lock channel: %w", err)
	}
	defer unlock()

	// канал мог быть удален, пока ждали блокировку
	channel, err := uc.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return "", false, fmt.Errorf("get channel: %w", err)
	}

	if err = uc.ensureRooms(ctx, channel); err != nil {
		return "", false, fmt.Errorf("ensure rooms: %w", err)
	}

	for _, other := range uc.userDevicesInChannel(ctx, rec.UserID, channelID, rec.ConnectionID) {
		if other.JanusChannelAuthToken != "" {
			return other.JanusChannelAuthToken, false, nil
		}
	}

	token := uuid.NewString()
	if err = uc.rooms.ManageAuthTokens(ctx, janus.TokenAdd, []string{token}, channel); err != nil {
		return "", false, fmt.Errorf("grant channel token: %w", err)
	}

	return token, true, nil
}

// displace выводит устройство и другие устройства пользователя из прежних каналов.
func (uc *sessionUsecase) displace(ctx context.Context, rec models.ConnectionRecord, channelID uuid.UUID) error {
	// устройство не может быть в двух каналах сразу
	if rec.ChannelID.Valid {
		if err := uc.unselectRecord(ctx, rec); err != nil && !errors.Is(err, errs.ErrChannelNotSelected) {
			return fmt.Errorf("unselect previous channel: %w", err)
		}
	}

	// другие устройства пользователя в других каналах уступают место этому
	for _, other := range uc.userDevices(ctx, rec.UserID, rec.WorkspaceID, rec.ConnectionID) {
		if !other.ChannelID.Valid || other.InChannel(channelID) {
			continue
		}

		if err := uc.unselectRecord(ctx, other); err != nil && !errors.Is(err, errs.ErrChannelNotSelected) {
			return fmt.Errorf("unselect displaced device: %w", err)
		}

		uc.bus.Emit(ctx, other.ConnectionID, events.ChangedDevice, events.ChangedDeviceEvent{
			ChannelID:       other.ChannelID.UUID,
			NewConnectionID: rec.ConnectionID,
		})
	}

	return nil
}

func (uc *sessionUsecase) tokenHeld(ctx context.Context, userID, channelID uuid.UUID, exclude, token string) bool {
	for _, other := range uc.userDevicesInChannel(ctx, userID, channelID, exclude) {
		if other.JanusChannelAuthToken == token {
			return true
		}
	}

	return false
}

func (uc *sessionUsecase) authorize(ctx context.Context, userID uuid.UUID, channel *models.Channel) error {
	if _, err := uc.workspaceRepo.GetMemberRole(ctx, channel.WorkspaceID, userID); err != nil {
		return fmt.Errorf("check workspace member: %w", err)
	}

	if !channel.IsPrivate {
		return nil
	}

	isMember, err := uc.channelRepo.IsMember(ctx, channel.ID, userID)
	if err != nil {
		return fmt.Errorf("check channel member: %w", err)
	}

	if !isMember {
		return errs.ErrNotChannelMember
	}

	return nil
}

// ensureRooms восстанавливает комнаты канала, если его нода пропала. Вызывается под блокировкой канала.
func (uc *sessionUsecase) ensureRooms(ctx context.Context, channel *models.Channel) error {
	if channel.HasRooms() {
		if _, ok := uc.rooms.Node(channel.Server); ok {
			return nil
		}

		if err := uc.rooms.RefreshNodes(ctx); err != nil {
			slog.Error("refresh janus nodes", slog.Any(constant.Error, err))
		}

		if _, ok := uc.rooms.Node(channel.Server); ok {
			return nil
		}
	}

	node, err := uc.rooms.SelectNode()
	if err != nil {
		return fmt.Errorf("select node: %w", err)
	}

	if err = uc.rooms.CreateRooms(ctx, node, channel); err != nil {
		uc.compensateRooms(ctx, channel, node.Name)
		return fmt.Errorf("create rooms: %w", err)
	}

	if err = uc.channelRepo.UpdateJanus(ctx, channel.ID, channel.ChannelJanus); err != nil {
		uc.compensateRooms(ctx, channel, node.Name)
		return fmt.Errorf("save channel rooms: %w", err)
	}

	slog.Info(
		"channel rooms recreated",
		slog.String(constant.ChannelID, channel.ID.String()),
		slog.String(constant.Node, node.Name),
	)

	return nil
}

func (uc *sessionUsecase) compensateRooms(ctx context.Context, channel *models.Channel, node string) {
	if err := uc.rooms.DestroyRooms(ctx, channel); err != nil {
		slog.Error("destroy partially created rooms", slog.Any(constant.Error, err), slog.String(constant.Node, node))
		uc.rooms.ReleaseNode(node)
	}
}

func (uc *sessionUsecase) selectedResult(channel *models.Channel, token string) (*events.SelectedChannelResult, error) {
	node, ok := uc.rooms.Node(channel.Server)
	if !ok {
		return nil, fmt.Errorf("janus node %q: %w", channel.Server, ErrJanusNodeUnavailable)
	}

	return &events.SelectedChannelResult{
		ChannelID:             channel.ID,
		Janus:                 channel.ChannelJanus,
		JanusPublicURL:        node.PublicURL,
		JanusPublicWS:         node.PublicWS,
		JanusChannelAuthToken: token,
	}, nil
}

func (uc *sessionUsecase) Unselect(ctx context.Context, connectionID string) error {
	rec, ok := uc.registry.Get(ctx, connectionID)
	if !ok {
		return errs.ErrConnectionNotFound
	}

	if !rec.ChannelID.Valid {
		return errs.ErrChannelNotSelected
	}

	return uc.unselectRecord(ctx, rec)
}

// unselectRecord выводит устройство из канала. Запись может уже отсутствовать в реестре,
// тогда используются значения из rec.
func (uc *sessionUsecase) unselectRecord(ctx context.Context, rec models.ConnectionRecord) error {
	channelID := rec.ChannelID.UUID

	unlock, err := uc.channelLocks.Lock(ctx, channelID)
	if err != nil {
		return fmt.Errorf("lock channel: %w", err)
	}
	defer unlock()

	_, err = uc.registry.Update(ctx, rec.ConnectionID, func(r *models.ConnectionRecord) error {
		if !r.InChannel(channelID) {
			return errs.ErrChannelNotSelected
		}

		r.ClearChannel()
		return nil
	})
	// если записи уже нет, выводим по последнему известному состоянию
	if err != nil && !errors.Is(err, errs.ErrConnectionNotFound) {
		return err
	}

	channel, err := uc.channelRepo.GetByID(ctx, channelID)
	if err != nil && !errors.Is(err, errs.ErrChannelNotFound) {
		return fmt.Errorf("get channel: %w", err)
	}

	var revokeErr error
	if channel != nil && rec.JanusChannelAuthToken != "" &&
		len(uc.userDevicesInChannel(ctx, rec.UserID, channelID, rec.ConnectionID)) == 0 {
		if err = uc.rooms.ManageAuthTokens(ctx, janus.TokenRemove, []string{rec.JanusChannelAuthToken}, channel); err != nil {
			revokeErr = fmt.Errorf("revoke channel token: %w", err)
		}
	}

	uc.bus.Publish(ctx, eventbus.ChannelRoom(channelID), events.UserUnselectedChannel, events.ChannelSelectionEvent{
		UserID:       rec.UserID,
		ChannelID:    channelID,
		WorkspaceID:  rec.WorkspaceID,
		ConnectionID: rec.ConnectionID,
	})
	uc.bus.Leave(rec.ConnectionID, eventbus.ChannelRoom(channelID))

	if channel != nil && channel.IsTemporary && len(uc.registry.ListByChannel(ctx, channelID)) == 0 {
		deadline := channel.CreatedAt.Add(channel.Lifespan())

		if channel.LifespanMs == 0 || !uc.now().Before(deadline) {
			if err = uc.teardownLocked(ctx, channel); err != nil {
				return errors.Join(revokeErr, fmt.Errorf("teardown temporary channel: %w", err))
			}
		} else {
			uc.scheduleLifespanTimer(channelID, deadline.Sub(uc.now()))
		}
	}

	return revokeErr
}

func (uc *sessionUsecase) revokeToken(ctx context.Context, channel *models.Channel, token string) {
	if err := uc.rooms.ManageAuthTokens(ctx, janus.TokenRemove, []string{token}, channel); err != nil {
		slog.Error("revoke channel token", slog.Any(constant.Error, err), slog.String(constant.ChannelID, channel.ID.String()))
	}
}

func (uc *sessionUsecase) Disconnect(ctx context.Context, connectionID string) error {
	rec, ok := uc.registry.Get(ctx, connectionID)
	if !ok {
		return errs.ErrConnectionNotFound
	}

	return uc.disconnectRecord(ctx, rec)
}

func (uc *sessionUsecase) HandleExpired(record models.ConnectionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slog.Info(
		"connection expired",
		slog.String(constant.ConnectionID, record.ConnectionID),
		slog.String(constant.UserID, record.UserID.String()),
	)

	if err := uc.disconnectRecord(ctx, record); err != nil {
		slog.Error("disconnect expired connection", slog.Any(constant.Error, err), slog.String(constant.ConnectionID, record.ConnectionID))
	}
}

func (uc *sessionUsecase) disconnectRecord(ctx context.Context, rec models.ConnectionRecord) error {
	unlock, err := uc.userLocks.Lock(ctx, presenceKey{userID: rec.UserID, workspaceID: rec.WorkspaceID})
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	defer unlock()

	var result error

	// не main устройство не выселяет пользователя из канала
	if rec.ChannelID.Valid && rec.IsMain {
		if err = uc.unselectRecord(ctx, rec); err != nil && !errors.Is(err, errs.ErrChannelNotSelected) {
			result = fmt.Errorf("unselect on disconnect: %w", err)
		}
	}

	uc.registry.Delete(ctx, rec.ConnectionID)

	remaining := uc.userDevices(ctx, rec.UserID, rec.WorkspaceID, rec.ConnectionID)

	if rec.IsMain && len(remaining) > 0 && !hasMain(remaining) {
		promoted := remaining[0]
		if _, err = uc.registry.Update(ctx, promoted.ConnectionID, func(r *models.ConnectionRecord) error {
			r.IsMain = true
			return nil
		}); err == nil {
			slog.Info("main connection promoted", slog.String(constant.ConnectionID, promoted.ConnectionID))
		}
	}

	if len(remaining) == 0 && rec.JanusServerAuthToken != "" {
		if err = uc.rooms.RemoveServerAuthToken(ctx, rec.JanusServerAuthToken); err != nil {
			result = errors.Join(result, fmt.Errorf("remove server auth token: %w", err))
		}
	}

	if err = uc.presence.Recompute(ctx, rec.UserID, rec.WorkspaceID); err != nil {
		result = errors.Join(result, err)
	}

	return result
}

func hasMain(records []models.ConnectionRecord) bool {
	for _, rec := range records {
		if rec.IsMain {
			return true
		}
	}

	return false
}

func (uc *sessionUsecase) TeardownChannel(ctx context.Context, channelID uuid.UUID) error {
	unlock, err := uc.channelLocks.Lock(ctx, channelID)
	if err != nil {
		return fmt.Errorf("lock channel: %w", err)
	}
	defer unlock()

	channel, err := uc.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}

	return uc.teardownLocked(ctx, channel)
}

// teardownLocked вызывается под блокировкой канала.
func (uc *sessionUsecase) teardownLocked(ctx context.Context, channel *models.Channel) error {
	room := eventbus.ChannelRoom(channel.ID)

	for _, occupant := range uc.registry.ListByChannel(ctx, channel.ID) {
		_, err := uc.registry.Update(ctx, occupant.ConnectionID, func(r *models.ConnectionRecord) error {
			r.ClearChannel()
			return nil
		})
		if err != nil {
			continue
		}

		uc.bus.Leave(occupant.ConnectionID, room)
	}

	if channel.HasRooms() {
		if err := uc.rooms.DestroyRooms(ctx, channel); err != nil {
			return fmt.Errorf("destroy rooms: %w", err)
		}
	}

	if err := uc.channelRepo.Delete(ctx, channel.ID); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}

	uc.cancelLifespanTimer(channel.ID)
	uc.invites.CancelForChannel(ctx, channel.ID)

	uc.bus.Publish(ctx, eventbus.WorkspaceRoom(channel.WorkspaceID), events.ChannelDeleted, events.ChannelDeletedEvent{
		ChannelID:   channel.ID,
		WorkspaceID: channel.WorkspaceID,
	})

	slog.Info("channel torn down", slog.String(constant.ChannelID, channel.ID.String()))

	return nil
}

func (uc *sessionUsecase) scheduleLifespanTimer(channelID uuid.UUID, after time.Duration) {
	uc.timersMu.Lock()
	defer uc.timersMu.Unlock()

	if timer, ok := uc.lifespanTimers[channelID]; ok {
		timer.Stop()
	}

	uc.lifespanTimers[channelID] = time.AfterFunc(after, func() {
		uc.expireLifespan(channelID)
	})
}

func (uc *sessionUsecase) cancelLifespanTimer(channelID uuid.UUID) {
	uc.timersMu.Lock()
	defer uc.timersMu.Unlock()

	if timer, ok := uc.lifespanTimers[channelID]; ok {
		timer.Stop()
		delete(uc.lifespanTimers, channelID)
	}
}

func (uc *sessionUsecase) expireLifespan(channelID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	unlock, err := uc.channelLocks.Lock(ctx, channelID)
	if err != nil {
		slog.Error("lock channel", slog.Any(constant.Error, err), slog.String(constant.ChannelID, channelID.String()))
		return
	}
	defer unlock()

	uc.timersMu.Lock()
	delete(uc.lifespanTimers, channelID)
	uc.timersMu.Unlock()

	channel, err := uc.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return
	}

	// пока ждали, в канал могли зайти
	if len(uc.registry.ListByChannel(ctx, channelID)) > 0 {
		return
	}

	if err = uc.teardownLocked(ctx, channel); err != nil {
		slog.Error("teardown expired channel", slog.Any(constant.Error, err), slog.String(constant.ChannelID, channelID.String()))
	}
}

// userDevices - живые устройства пользователя в воркспейсе, кроме exclude.
func (uc *sessionUsecase) userDevices(ctx context.Context, userID, workspaceID uuid.UUID, exclude string) []models.ConnectionRecord {
	var result []models.ConnectionRecord
	for _, rec := range uc.registry.ListByUser(ctx, userID) {
		if rec.WorkspaceID == workspaceID && rec.ConnectionID != exclude {
			result = append(result, rec)
		}
	}

	return result
}

func (uc *sessionUsecase) userDevicesInChannel(ctx context.Context, userID, channelID uuid.UUID, exclude string) []models.ConnectionRecord {
	var result []models.ConnectionRecord
	for _, rec := range uc.registry.ListByUser(ctx, userID) {
		if rec.InChannel(channelID) && rec.ConnectionID != exclude {
			result = append(result, rec)
		}
	}

	return result
}
