package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/voicegrid/internal/domain/input"
	"github.com/qrave1/voicegrid/internal/domain/models"
	"github.com/qrave1/voicegrid/internal/infra/adapters/memory"
	"github.com/qrave1/voicegrid/internal/testfixtures"
)

type harness struct {
	t   *testing.T
	ctx context.Context

	clock    *testfixtures.Clock
	registry memory.ConnectionRepository
	nodes    memory.JanusNodeRepository
	store    *testfixtures.Store
	bus      *testfixtures.RecordingBus
	gateway  *testfixtures.Gateway
	source   *testfixtures.NodeSource

	rooms    RoomUsecase
	presence PresenceUsecase
	invites  InviteUsecase
	sessions SessionUsecase
	channels ChannelUsecase

	workspaceID uuid.UUID
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithTimeout(t, time.Second)
}

func newHarnessWithTimeout(t *testing.T, inviteTimeout time.Duration) *harness {
	t.Helper()

	h := &harness{
		t:           t,
		ctx:         context.Background(),
		clock:       testfixtures.NewClock(time.Time{}),
		nodes:       memory.NewJanusNodeRepository(),
		store:       testfixtures.NewStore(),
		bus:         testfixtures.NewRecordingBus(),
		gateway:     testfixtures.NewGateway(),
		workspaceID: uuid.New(),
	}

	h.registry = memory.NewConnectionRepository(time.Minute, h.clock.NowFunc())

	h.source = testfixtures.NewNodeSource(
		models.JanusNode{Name: "sfu-1", PublicURL: "https://sfu-1/janus", PublicWS: "wss://sfu-1/ws"},
		models.JanusNode{Name: "sfu-2", PublicURL: "https://sfu-2/janus", PublicWS: "wss://sfu-2/ws"},
	)

	h.rooms = NewRoomUsecase(h.source, h.gateway, h.nodes)
	require.NoError(t, h.rooms.LoadNodes(h.ctx))

	h.presence = NewPresenceUsecase(h.registry, h.bus, time.Second)
	h.invites = NewInviteUsecase(h.registry, h.store, h.store.Workspaces(), h.bus, inviteTimeout, h.clock.NowFunc())
	h.sessions = NewSessionUsecase(
		h.registry,
		h.store,
		h.store.Workspaces(),
		h.rooms,
		h.presence,
		h.invites,
		h.bus,
		time.Second,
		nil,
		h.clock.NowFunc(),
	)
	h.registry.SetExpiryHandler(h.sessions.HandleExpired)
	h.channels = NewChannelUsecase(h.store, h.store.Workspaces(), h.rooms, h.sessions, h.bus, h.clock.NowFunc())

	return h
}

// member добавляет нового пользователя в воркспейс.
func (h *harness) member(role models.Role) uuid.UUID {
	userID := uuid.New()
	h.store.AddWorkspaceMember(h.workspaceID, userID, role)

	return userID
}

// connect открывает новое устройство пользователя.
func (h *harness) connect(userID uuid.UUID) string {
	h.t.Helper()

	connectionID := uuid.NewString()

	_, err := h.sessions.Connect(h.ctx, &input.ConnectInput{
		UserID:       userID,
		WorkspaceID:  h.workspaceID,
		ConnectionID: connectionID,
	})
	require.NoError(h.t, err)

	return connectionID
}

func (h *harness) createChannel(creatorID uuid.UUID, mutate func(*input.CreateChannelInput)) *models.Channel {
	h.t.Helper()

	in := &input.CreateChannelInput{
		CreatorID:   creatorID,
		WorkspaceID: h.workspaceID,
		Name:        "general",
	}
	if mutate != nil {
		mutate(in)
	}

	channel, err := h.channels.CreateChannel(h.ctx, in)
	require.NoError(h.t, err)

	return channel
}

func (h *harness) record(connectionID string) models.ConnectionRecord {
	h.t.Helper()

	rec, ok := h.registry.Get(h.ctx, connectionID)
	require.True(h.t, ok, "connection %s must exist", connectionID)

	return rec
}

func (h *harness) channelCount() int {
	total := 0
	for _, node := range h.rooms.Nodes() {
		total += node.ChannelCount
	}

	return total
}

func roomKey(channel *models.Channel, plugin models.Plugin) testfixtures.RoomKey {
	return testfixtures.RoomKey{Node: channel.Server, Plugin: plugin, Room: channel.RoomID(plugin)}
}
