package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/voicegrid/internal/application/config"
	"github.com/qrave1/voicegrid/internal/application/constant"
	"github.com/qrave1/voicegrid/internal/domain/errs"
	"github.com/qrave1/voicegrid/internal/domain/events"
	"github.com/qrave1/voicegrid/internal/domain/input"
	"github.com/qrave1/voicegrid/internal/infra/adapters/eventbus"
	"github.com/qrave1/voicegrid/internal/infra/appctx"
	"github.com/qrave1/voicegrid/internal/usecase"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// device - аутентифицированный сокет
type device struct {
	connectionID string
	userID       uuid.UUID
	workspaceID  uuid.UUID
}

type WebSocketHandler struct {
	upgrader *websocket.Upgrader

	hub eventbus.Hub

	sessionUsecase  usecase.SessionUsecase
	presenceUsecase usecase.PresenceUsecase
	inviteUsecase   usecase.InviteUsecase
}

func NewWebSocketHandler(
	cfg *config.Config,
	hub eventbus.Hub,
	sessionUsecase usecase.SessionUsecase,
	presenceUsecase usecase.PresenceUsecase,
	inviteUsecase usecase.InviteUsecase,
) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		hub:             hub,
		sessionUsecase:  sessionUsecase,
		presenceUsecase: presenceUsecase,
		inviteUsecase:   inviteUsecase,
	}
}

func (h *WebSocketHandler) Handle(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user"})
	}

	workspaceID, err := uuid.Parse(c.QueryParam("workspace_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid workspace id"})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("websocket upgrade", slog.Any(constant.Error, err))
		return nil
	}
	defer ws.Close()

	dev := device{
		connectionID: uuid.NewString(),
		userID:       userID,
		workspaceID:  workspaceID,
	}

	// после разрыва сокета запись должна дожить до своего TTL
	ctx := context.WithoutCancel(c.Request().Context())

	h.hub.Register(dev.connectionID, ws)
	defer h.hub.Unregister(dev.connectionID)

	_, err = h.sessionUsecase.Connect(ctx, &input.ConnectInput{
		UserID:               userID,
		WorkspaceID:          workspaceID,
		ConnectionID:         dev.connectionID,
		PreviousConnectionID: c.QueryParam("previous_connection_id"),
		LocalTimeZone:        c.QueryParam("tz"),
	})
	if err != nil {
		h.replyError(dev, "", err)
		return nil
	}

	if err = ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return nil
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go h.pingLoop(ws, done)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			h.handleClose(ctx, dev, err)
			return nil
		}

		var msg events.Message
		if err = json.Unmarshal(raw, &msg); err != nil {
			h.replyError(dev, "", errs.InvalidRequest("malformed message"))
			continue
		}

		result, err := h.handleMessage(ctx, dev, &msg)
		if err != nil {
			h.replyError(dev, msg.Transaction, err)
			continue
		}

		h.reply(dev, &msg, result)
	}
}

func (h *WebSocketHandler) pingLoop(ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// WriteControl можно звать параллельно с записями хаба
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Debug("ping failed", slog.Any(constant.Error, err))
				return
			}
		case <-done:
			return
		}
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, dev device, msg *events.Message) (any, error) {
	switch msg.Type {
	case events.KeepAlive:
		return nil, h.sessionUsecase.KeepAlive(ctx, dev.connectionID)

	case events.SelectChannel:
		req, err := decode[events.SelectChannelRequest](msg.Data)
		if err != nil {
			return nil, err
		}

		return h.sessionUsecase.Select(ctx, dev.connectionID, req.ChannelID)

	case events.UnselectChannel:
		return nil, h.sessionUsecase.Unselect(ctx, dev.connectionID)

	case events.UpdateOnlineStatus:
		req, err := decode[events.UpdateOnlineStatusRequest](msg.Data)
		if err != nil {
			return nil, err
		}

		return nil, h.presenceUsecase.SetStatus(ctx, dev.connectionID, req.Status, input.StatusCause(req.Cause))

	case events.SendInvite:
		req, err := decode[events.SendInviteRequest](msg.Data)
		if err != nil {
			return nil, err
		}

		id, err := h.inviteUsecase.Send(ctx, &input.SendInviteInput{
			FromUserID:     dev.userID,
			ToUserID:       req.ToUserID,
			WorkspaceID:    dev.workspaceID,
			ChannelID:      req.ChannelID,
			Payload:        req.Payload,
			ResponseNeeded: req.ResponseNeeded,
		})
		if err != nil {
			return nil, err
		}

		return map[string]uuid.UUID{"invite_id": id}, nil

	case events.RespondInvite:
		req, err := decode[events.RespondInviteRequest](msg.Data)
		if err != nil {
			return nil, err
		}

		return nil, h.inviteUsecase.Respond(ctx, dev.userID, req.InviteID, req.Response, req.Payload)

	default:
		return nil, errs.InvalidRequest("unknown message type " + msg.Type)
	}
}

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, errs.InvalidRequest("malformed data")
	}

	return v, nil
}

// reply отвечает на запрос тем же типом и транзакцией, keep-alive получает pong.
func (h *WebSocketHandler) reply(dev device, req *events.Message, result any) {
	msg := events.Message{Type: req.Type, Transaction: req.Transaction}
	if req.Type == events.KeepAlive {
		msg.Type = events.Pong
	}

	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			h.replyError(dev, req.Transaction, err)
			return
		}
		msg.Data = data
	}

	h.hub.Send(dev.connectionID, msg)
}

func (h *WebSocketHandler) replyError(dev device, transaction string, err error) {
	public := errs.Public(err)
	if public.Code == errs.CodeInternal {
		slog.Error(
			"handle websocket request",
			slog.Any(constant.Error, err),
			slog.String(constant.ConnectionID, dev.connectionID),
			slog.String(constant.UserID, dev.userID.String()),
		)
	}

	data, _ := json.Marshal(events.ErrorEvent{Code: public.Code, Message: public.Message})

	h.hub.Send(dev.connectionID, events.Message{
		Type:        events.ErrorEventType(transaction),
		Transaction: transaction,
		Data:        data,
	})
}

// handleClose: при штатном закрытии устройство уходит сразу,
// при обрыве запись ждет переподключения до истечения TTL.
func (h *WebSocketHandler) handleClose(ctx context.Context, dev device, err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) &&
		(closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
		slog.Info(
			"device disconnected",
			slog.String(constant.ConnectionID, dev.connectionID),
			slog.String(constant.UserID, dev.userID.String()),
		)

		if err = h.sessionUsecase.Disconnect(ctx, dev.connectionID); err != nil && !errors.Is(err, errs.ErrConnectionNotFound) {
			slog.Error("disconnect device", slog.Any(constant.Error, err), slog.String(constant.ConnectionID, dev.connectionID))
		}

		return
	}

	slog.Warn(
		"websocket dropped",
		slog.Any(constant.Error, err),
		slog.String(constant.ConnectionID, dev.connectionID),
	)
}
