package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/voicegrid/internal/domain/errs"
	"github.com/qrave1/voicegrid/internal/domain/events"
	"github.com/qrave1/voicegrid/internal/domain/input"
	"github.com/qrave1/voicegrid/internal/domain/models"
	"github.com/qrave1/voicegrid/internal/infra/adapters/eventbus"
	"github.com/qrave1/voicegrid/internal/testfixtures"
)

func statusEvents(h *harness) []models.OnlineStatus {
	var result []models.OnlineStatus
	for _, e := range h.bus.Published(eventbus.WorkspaceRoom(h.workspaceID), events.OnlineStatusChanged) {
		result = append(result, e.Payload.(events.OnlineStatusChangedEvent).OnlineStatus)
	}

	return result
}

func TestPresenceUsecase_ConnectPublishesOnline(t *testing.T) {
	h := newHarness(t)
	user := h.member(models.RoleMember)

	h.connect(user)
	h.connect(user)

	// второе устройство статус не меняет
	assert.Equal(t, []models.OnlineStatus{models.StatusOnline}, statusEvents(h))
	assert.Equal(t, models.StatusOnline, h.presence.EffectiveStatus(h.ctx, user, h.workspaceID))
}

func TestPresenceUsecase_AggregatesDevices(t *testing.T) {
	h := newHarness(t)
	user := h.member(models.RoleMember)

	phone := h.connect(user)
	laptop := h.connect(user)

	require.NoError(t, h.presence.SetStatus(h.ctx, phone, models.StatusIdle, input.CauseInactivity))
	assert.Equal(t, models.StatusOnline, h.presence.EffectiveStatus(h.ctx, user, h.workspaceID))

	require.NoError(t, h.presence.SetStatus(h.ctx, laptop, models.StatusIdle, input.CauseUser))
	assert.Equal(t, models.StatusIdle, h.presence.EffectiveStatus(h.ctx, user, h.workspaceID))

	require.NoError(t, h.presence.SetStatus(h.ctx, phone, models.StatusOnline, input.CauseUser))

	assert.Equal(t,
		[]models.OnlineStatus{models.StatusOnline, models.StatusIdle, models.StatusOnline},
		statusEvents(h),
	)
}

func TestPresenceUsecase_SleepIsStoredAndShownAsIdle(t *testing.T) {
	h := newHarness(t)
	user := h.member(models.RoleMember)
	conn := h.connect(user)

	require.NoError(t, h.presence.SetStatus(h.ctx, conn, models.StatusIdle, input.CauseSleep))

	assert.Equal(t, models.StatusSleep, h.record(conn).OnlineStatus)
	assert.Equal(t, models.StatusIdle, h.presence.EffectiveStatus(h.ctx, user, h.workspaceID))

	// keep-alive будит уснувшее устройство
	require.NoError(t, h.sessions.KeepAlive(h.ctx, conn))

	assert.Equal(t, models.StatusOnline, h.record(conn).OnlineStatus)
	assert.Equal(t, models.StatusOnline, h.presence.EffectiveStatus(h.ctx, user, h.workspaceID))
}

func TestPresenceUsecase_SetStatusValidation(t *testing.T) {
	h := newHarness(t)
	user := h.member(models.RoleMember)
	conn := h.connect(user)

	err := h.presence.SetStatus(h.ctx, conn, models.OnlineStatus("away"), input.CauseUser)
	assert.Equal(t, errs.CodeInvalidRequest, errs.CodeOf(err))

	err = h.presence.SetStatus(h.ctx, "missing", models.StatusIdle, input.CauseUser)
	assert.ErrorIs(t, err, errs.ErrConnectionNotFound)
}

func TestPresenceUsecase_WorkspaceStatuses(t *testing.T) {
	h := newHarness(t)
	alice := h.member(models.RoleMember)
	bob := h.member(models.RoleMember)
	carol := h.member(models.RoleMember)

	h.connect(alice)
	bobConn := h.connect(bob)
	require.NoError(t, h.presence.SetStatus(h.ctx, bobConn, models.StatusIdle, input.CauseSleep))

	statuses := h.presence.WorkspaceStatuses(h.ctx, h.workspaceID)

	assert.Equal(t, models.StatusOnline, statuses[alice])
	assert.Equal(t, models.StatusIdle, statuses[bob])
	_, ok := statuses[carol]
	assert.False(t, ok)
}

func TestPresenceUsecase_ExpiredDeviceKeepsUserOnline(t *testing.T) {
	h := newHarness(t)
	user := h.member(models.RoleMember)

	phone := h.connect(user)
	h.clock.Advance(30 * time.Second)
	laptop := h.connect(user)
	h.clock.Advance(40 * time.Second)

	expired := h.registry.Sweep(h.ctx)
	require.Len(t, expired, 1)
	assert.Equal(t, phone, expired[0].ConnectionID)

	assert.Eventually(t, func() bool {
		rec, ok := h.registry.Get(h.ctx, laptop)
		return ok && rec.IsMain
	}, testfixtures.WaitFor, testfixtures.Tick)

	assert.Equal(t, models.StatusOnline, h.presence.EffectiveStatus(h.ctx, user, h.workspaceID))
	assert.Equal(t, []models.OnlineStatus{models.StatusOnline}, statusEvents(h))

	require.NoError(t, h.sessions.Disconnect(h.ctx, laptop))

	assert.Equal(t, models.StatusOffline, h.presence.EffectiveStatus(h.ctx, user, h.workspaceID))
	assert.Equal(t, []models.OnlineStatus{models.StatusOnline, models.StatusOffline}, statusEvents(h))
}
