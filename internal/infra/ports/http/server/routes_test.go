package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/voicegrid/internal/application/config"
	"github.com/qrave1/voicegrid/internal/domain/errs"
	"github.com/qrave1/voicegrid/internal/domain/events"
	"github.com/qrave1/voicegrid/internal/domain/models"
	"github.com/qrave1/voicegrid/internal/infra/adapters/eventbus"
	"github.com/qrave1/voicegrid/internal/infra/adapters/memory"
	"github.com/qrave1/voicegrid/internal/infra/ports/http/dto"
	"github.com/qrave1/voicegrid/internal/infra/ports/http/handlers"
	"github.com/qrave1/voicegrid/internal/testfixtures"
	"github.com/qrave1/voicegrid/internal/usecase"
)

const testSecret = "test-secret"

type testEnv struct {
	srv         *httptest.Server
	store       *testfixtures.Store
	registry    memory.ConnectionRepository
	workspaceID uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Debug:         true,
		JWTSecret:     testSecret,
		CoturnServer:  config.CoturnConfig{Secret: "turn-secret"},
		TurnUDPServer: webrtc.ICEServer{URLs: []string{"turn:turn.local:3478?transport=udp"}},
		TurnTCPServer: webrtc.ICEServer{URLs: []string{"turn:turn.local:3478?transport=tcp"}},
	}

	store := testfixtures.NewStore()
	registry := memory.NewConnectionRepository(time.Minute, nil)

	rooms := usecase.NewRoomUsecase(
		testfixtures.NewNodeSource(models.JanusNode{Name: "sfu-1", PublicURL: "https://sfu-1/janus", PublicWS: "wss://sfu-1/ws"}),
		testfixtures.NewGateway(),
		memory.NewJanusNodeRepository(),
	)
	require.NoError(t, rooms.LoadNodes(context.Background()))

	hub := eventbus.NewHub()
	presence := usecase.NewPresenceUsecase(registry, hub, time.Second)
	invites := usecase.NewInviteUsecase(registry, store, store.Workspaces(), hub, time.Minute, nil)
	sessions := usecase.NewSessionUsecase(
		registry,
		store,
		store.Workspaces(),
		rooms,
		presence,
		invites,
		hub,
		time.Second,
		[]webrtc.ICEServer{cfg.TurnUDPServer},
		nil,
	)
	registry.SetExpiryHandler(sessions.HandleExpired)
	channels := usecase.NewChannelUsecase(store, store.Workspaces(), rooms, sessions, hub, nil)

	e := New(
		cfg,
		handlers.NewChannelHandler(channels, registry),
		handlers.NewPresenceHandler(presence, store.Workspaces()),
		handlers.NewIceHandler(cfg),
		handlers.NewWebSocketHandler(cfg, hub, sessions, presence, invites),
	)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &testEnv{
		srv:         srv,
		store:       store,
		registry:    registry,
		workspaceID: uuid.New(),
	}
}

func (env *testEnv) member(role models.Role) uuid.UUID {
	userID := uuid.New()
	env.store.AddWorkspaceMember(env.workspaceID, userID, role)

	return userID
}

func signToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	return token
}

func (env *testEnv) do(t *testing.T, method, path string, userID uuid.UUID, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "jwt", Value: signToken(t, userID)})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, raw
}

func (env *testEnv) dial(t *testing.T, userID uuid.UUID, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/v1/ws?workspace_id=" + env.workspaceID.String() + query

	header := http.Header{}
	header.Set("Cookie", "jwt="+signToken(t, userID))

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

// next читает сообщения, пока не придет нужный тип.
func next(t *testing.T, conn *websocket.Conn, eventType string) events.Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	for {
		var msg events.Message
		require.NoError(t, conn.ReadJSON(&msg))

		if msg.Type == eventType {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, eventType, transaction string, data any) {
	t.Helper()

	msg := events.Message{Type: eventType, Transaction: transaction}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		msg.Data = raw
	}

	require.NoError(t, conn.WriteJSON(msg))
}

func TestRoutes_Unauthorized(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/v1/ice")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoutes_IceServers(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/api/v1/ice", uuid.New(), nil)
	require.Equal(t, http.StatusOK, status)

	var server webrtc.ICEServer
	require.NoError(t, json.Unmarshal(body, &server))

	assert.Len(t, server.URLs, 2)
	assert.NotEmpty(t, server.Username)
	assert.NotEmpty(t, server.Credential)
}

func TestRoutes_ChannelLifecycle(t *testing.T) {
	env := newTestEnv(t)
	creator := env.member(models.RoleMember)
	other := env.member(models.RoleMember)

	channelsPath := "/api/v1/workspaces/" + env.workspaceID.String() + "/channels"

	status, body := env.do(t, http.MethodPost, channelsPath, creator, dto.CreateChannelRequest{Name: "general"})
	require.Equal(t, http.StatusCreated, status)

	var created dto.ChannelResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "general", created.Name)
	assert.Equal(t, "sfu-1", created.Server)

	status, body = env.do(t, http.MethodGet, channelsPath, other, nil)
	require.Equal(t, http.StatusOK, status)

	var list dto.ListChannelsResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Channels, 1)
	assert.Equal(t, created.ID, list.Channels[0].ID)

	status, body = env.do(t, http.MethodDelete, "/api/v1/channels/"+created.ID.String(), other, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, string(body), errs.CodeForbidden)

	status, _ = env.do(t, http.MethodDelete, "/api/v1/channels/"+created.ID.String(), creator, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodDelete, "/api/v1/channels/"+created.ID.String(), creator, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRoutes_CreateChannelValidation(t *testing.T) {
	env := newTestEnv(t)
	channelsPath := "/api/v1/workspaces/" + env.workspaceID.String() + "/channels"

	status, _ := env.do(t, http.MethodPost, channelsPath, uuid.New(), dto.CreateChannelRequest{Name: "general"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(t, http.MethodPost, channelsPath, env.member(models.RoleMember), dto.CreateChannelRequest{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodGet, "/api/v1/workspaces/not-a-uuid/channels", uuid.New(), nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRoutes_WebSocketSession(t *testing.T) {
	env := newTestEnv(t)
	user := env.member(models.RoleMember)

	status, body := env.do(t, http.MethodPost, "/api/v1/workspaces/"+env.workspaceID.String()+"/channels", user,
		dto.CreateChannelRequest{Name: "general"})
	require.Equal(t, http.StatusCreated, status)

	var channel dto.ChannelResponse
	require.NoError(t, json.Unmarshal(body, &channel))

	conn := env.dial(t, user, "&tz=Europe/Moscow")

	var auth events.AuthSuccessEvent
	require.NoError(t, json.Unmarshal(next(t, conn, events.AuthSuccess).Data, &auth))
	assert.Equal(t, user, auth.UserID)
	assert.NotEmpty(t, auth.JanusServerAuthToken)
	require.Len(t, auth.JanusNodes, 1)

	send(t, conn, events.SelectChannel, "1", events.SelectChannelRequest{ChannelID: channel.ID})

	reply := next(t, conn, events.SelectChannel)
	assert.Equal(t, "1", reply.Transaction)

	var selected events.SelectedChannelResult
	require.NoError(t, json.Unmarshal(reply.Data, &selected))
	assert.Equal(t, channel.ID, selected.ChannelID)
	assert.Equal(t, "https://sfu-1/janus", selected.JanusPublicURL)
	assert.NotEmpty(t, selected.JanusChannelAuthToken)

	rec, ok := env.registry.Get(context.Background(), auth.ConnectionID)
	require.True(t, ok)
	assert.True(t, rec.InChannel(channel.ID))
	assert.Equal(t, "Europe/Moscow", rec.LocalTimeZone)

	status, body = env.do(t, http.MethodGet, "/api/v1/workspaces/"+env.workspaceID.String()+"/presence", user, nil)
	require.Equal(t, http.StatusOK, status)

	var presence dto.PresenceResponse
	require.NoError(t, json.Unmarshal(body, &presence))
	require.Len(t, presence.Users, 1)
	assert.Equal(t, models.StatusOnline, presence.Users[0].OnlineStatus)

	send(t, conn, events.KeepAlive, "2", nil)
	assert.Equal(t, "2", next(t, conn, events.Pong).Transaction)

	send(t, conn, events.UnselectChannel, "3", nil)
	assert.Equal(t, "3", next(t, conn, events.UnselectChannel).Transaction)

	send(t, conn, events.UnselectChannel, "4", nil)

	var failure events.ErrorEvent
	require.NoError(t, json.Unmarshal(next(t, conn, events.ErrorEventType("4")).Data, &failure))
	assert.Equal(t, errs.CodeChannelNotSelected, failure.Code)

	send(t, conn, "teleport", "5", nil)
	require.NoError(t, json.Unmarshal(next(t, conn, events.ErrorEventType("5")).Data, &failure))
	assert.Equal(t, errs.CodeInvalidRequest, failure.Code)

	require.NoError(t, conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
	))

	assert.Eventually(t, func() bool {
		_, ok := env.registry.Get(context.Background(), auth.ConnectionID)
		return !ok
	}, testfixtures.WaitFor, testfixtures.Tick)
}

func TestRoutes_WebSocketResumeAfterDrop(t *testing.T) {
	env := newTestEnv(t)
	user := env.member(models.RoleMember)

	conn := env.dial(t, user, "")

	var auth events.AuthSuccessEvent
	require.NoError(t, json.Unmarshal(next(t, conn, events.AuthSuccess).Data, &auth))

	// обрыв без close frame
	require.NoError(t, conn.UnderlyingConn().Close())
	time.Sleep(50 * time.Millisecond)

	_, ok := env.registry.Get(context.Background(), auth.ConnectionID)
	require.True(t, ok)

	resumed := env.dial(t, user, "&previous_connection_id="+auth.ConnectionID)

	var again events.AuthSuccessEvent
	require.NoError(t, json.Unmarshal(next(t, resumed, events.AuthSuccess).Data, &again))

	assert.NotEqual(t, auth.ConnectionID, again.ConnectionID)
	assert.Equal(t, auth.JanusServerAuthToken, again.JanusServerAuthToken)

	records := env.registry.ListByUser(context.Background(), user)
	require.Len(t, records, 1)
	assert.Equal(t, again.ConnectionID, records[0].ConnectionID)
}

func TestRoutes_WebSocketRequiresWorkspace(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/v1/ws"

	header := http.Header{}
	header.Set("Cookie", "jwt="+signToken(t, uuid.New()))

	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoutes_WebSocketRejectsStranger(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t, uuid.New(), "")

	var failure events.ErrorEvent
	require.NoError(t, json.Unmarshal(next(t, conn, events.SocketAPIError).Data, &failure))
	assert.Equal(t, errs.CodeNotWorkspaceMember, failure.Code)
}
