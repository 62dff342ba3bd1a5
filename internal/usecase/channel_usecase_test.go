package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/voicegrid/internal/domain/errs"
	"github.com/qrave1/voicegrid/internal/domain/events"
	"github.com/qrave1/voicegrid/internal/domain/input"
	"github.com/qrave1/voicegrid/internal/domain/models"
	"github.com/qrave1/voicegrid/internal/infra/adapters/eventbus"
	"github.com/qrave1/voicegrid/internal/infra/adapters/janus"
)

func TestChannelUsecase_CreateChannel(t *testing.T) {
	h := newHarness(t)
	creator := h.member(models.RoleMember)

	channel := h.createChannel(creator, func(in *input.CreateChannelInput) {
		in.Name = "  design review  "
		in.IsPrivate = true
	})

	assert.Equal(t, "design review", channel.Name)
	assert.True(t, channel.HasRooms())
	assert.Equal(t, 3, h.gateway.Creates())
	assert.Equal(t, 1, h.channelCount())

	for _, plugin := range models.RoomPlugins {
		assert.True(t, h.gateway.RoomExists(roomKey(channel, plugin)))
	}

	stored, err := h.channels.GetChannel(h.ctx, channel.ID)
	require.NoError(t, err)
	assert.Equal(t, channel.ChannelJanus, stored.ChannelJanus)

	isMember, err := h.store.IsMember(h.ctx, channel.ID, creator)
	require.NoError(t, err)
	assert.True(t, isMember)

	created := h.bus.Published(eventbus.WorkspaceRoom(h.workspaceID), events.ChannelCreated)
	require.Len(t, created, 1)
	assert.Equal(t, channel.ID, created[0].Payload.(events.ChannelEvent).Channel.ID)
}

func TestChannelUsecase_CreateChannelValidation(t *testing.T) {
	h := newHarness(t)
	creator := h.member(models.RoleMember)

	tests := []struct {
		name  string
		input input.CreateChannelInput
		code  string
	}{
		{
			name:  "empty name",
			input: input.CreateChannelInput{CreatorID: creator, WorkspaceID: h.workspaceID, Name: "   "},
			code:  errs.CodeInvalidRequest,
		},
		{
			name: "negative lifespan",
			input: input.CreateChannelInput{
				CreatorID:   creator,
				WorkspaceID: h.workspaceID,
				Name:        "tmp",
				IsTemporary: true,
				LifespanMs:  -1,
			},
			code: errs.CodeInvalidRequest,
		},
		{
			name:  "not a workspace member",
			input: input.CreateChannelInput{CreatorID: h.workspaceID, WorkspaceID: h.workspaceID, Name: "x"},
			code:  errs.CodeNotWorkspaceMember,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.channels.CreateChannel(h.ctx, &tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.code, errs.CodeOf(err))
		})
	}

	assert.Zero(t, h.gateway.Creates())
	assert.Zero(t, h.channelCount())
}

func TestChannelUsecase_CreateChannelCompensates(t *testing.T) {
	h := newHarness(t)
	creator := h.member(models.RoleMember)
	h.gateway.FailCreate[models.PluginVideoRoom] = &janus.Error{Code: 500, Reason: "internal"}

	_, err := h.channels.CreateChannel(h.ctx, &input.CreateChannelInput{
		CreatorID:   creator,
		WorkspaceID: h.workspaceID,
		Name:        "broken",
	})
	require.Error(t, err)

	// аудио комната успела создаться и была удалена
	assert.Equal(t, 1, h.gateway.Creates())
	assert.Equal(t, 1, h.gateway.Deletes())
	assert.Zero(t, h.channelCount())

	channels, err := h.channels.ListChannels(h.ctx, h.workspaceID, creator)
	require.NoError(t, err)
	assert.Empty(t, channels)
	assert.Empty(t, h.bus.OfType(events.ChannelCreated))
}

func TestChannelUsecase_CreateChannelWhenGatewayDown(t *testing.T) {
	h := newHarness(t)
	creator := h.member(models.RoleMember)
	h.gateway.FailOpen = &janus.Error{Code: 503, Reason: "unavailable"}

	_, err := h.channels.CreateChannel(h.ctx, &input.CreateChannelInput{
		CreatorID:   creator,
		WorkspaceID: h.workspaceID,
		Name:        "offline",
	})
	require.Error(t, err)

	// комнаты удалить не удалось, но нода все равно освобождена
	assert.Zero(t, h.channelCount())
}

func TestChannelUsecase_ListChannelsHidesPrivate(t *testing.T) {
	h := newHarness(t)
	owner := h.member(models.RoleOwner)
	member := h.member(models.RoleMember)
	admin := h.member(models.RoleAdmin)

	public := h.createChannel(owner, func(in *input.CreateChannelInput) { in.Name = "public" })
	private := h.createChannel(owner, func(in *input.CreateChannelInput) {
		in.Name = "private"
		in.IsPrivate = true
	})

	visible, err := h.channels.ListChannels(h.ctx, h.workspaceID, member)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, public.ID, visible[0].ID)

	visible, err = h.channels.ListChannels(h.ctx, h.workspaceID, admin)
	require.NoError(t, err)
	assert.Len(t, visible, 2)

	require.NoError(t, h.store.AddMember(h.ctx, private.ID, member))

	visible, err = h.channels.ListChannels(h.ctx, h.workspaceID, member)
	require.NoError(t, err)
	assert.Len(t, visible, 2)
}

func TestChannelUsecase_DeleteChannel(t *testing.T) {
	h := newHarness(t)
	creator := h.member(models.RoleMember)
	other := h.member(models.RoleMember)
	admin := h.member(models.RoleAdmin)

	channel := h.createChannel(creator, nil)

	occupant := h.connect(other)
	_, err := h.sessions.Select(h.ctx, occupant, channel.ID)
	require.NoError(t, err)

	err = h.channels.DeleteChannel(h.ctx, &input.DeleteChannelInput{ActorID: other, ChannelID: channel.ID})
	assert.ErrorIs(t, err, errs.ErrForbidden)
	assert.Zero(t, h.store.Deletes())

	require.NoError(t, h.channels.DeleteChannel(h.ctx, &input.DeleteChannelInput{ActorID: admin, ChannelID: channel.ID}))

	assert.Equal(t, 1, h.store.Deletes())
	assert.Equal(t, 3, h.gateway.Deletes())
	assert.Zero(t, h.channelCount())
	assert.False(t, h.record(occupant).ChannelID.Valid)
	assert.False(t, h.bus.InRoom(occupant, eventbus.ChannelRoom(channel.ID)))
	assert.Len(t, h.bus.Published(eventbus.WorkspaceRoom(h.workspaceID), events.ChannelDeleted), 1)

	err = h.channels.DeleteChannel(h.ctx, &input.DeleteChannelInput{ActorID: creator, ChannelID: channel.ID})
	assert.ErrorIs(t, err, errs.ErrChannelNotFound)
}
