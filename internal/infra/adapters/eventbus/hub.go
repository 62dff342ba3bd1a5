package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/qrave1/voicegrid/internal/application/constant"
	"github.com/qrave1/voicegrid/internal/application/metric"
	"github.com/qrave1/voicegrid/internal/domain/events"
)

// Bus - fan-out событий устройствам, сгруппированным в комнаты.
type Bus interface {
	Join(connectionID, room string)
	Leave(connectionID, room string)

	// Publish доставляет событие всем устройствам комнаты
	Publish(ctx context.Context, room, eventType string, payload any)
	// Emit доставляет событие одному устройству
	Emit(ctx context.Context, connectionID, eventType string, payload any)
}

// Conn - то, что хабу нужно от сокета. *websocket.Conn подходит.
type Conn interface {
	WriteJSON(v any) error
}

// Hub - Bus поверх живых сокетов процесса.
type Hub interface {
	Bus

	Register(connectionID string, conn Conn)
	Unregister(connectionID string)

	// Send пишет готовое сообщение устройству, используется для ответов на запросы
	Send(connectionID string, msg events.Message)
}

func WorkspaceRoom(id uuid.UUID) string { return "workspace:" + id.String() }
func ChannelRoom(id uuid.UUID) string   { return "channel:" + id.String() }
func UserRoom(id uuid.UUID) string      { return "user:" + id.String() }

type safeConn struct {
	conn Conn
	mu   sync.Mutex
}

type hub struct {
	// conns хранит map[connection_id]conn, rooms - map[room]set[connection_id]
	conns map[string]*safeConn
	rooms map[string]map[string]struct{}
	// memberOf - обратный индекс для Unregister
	memberOf map[string]map[string]struct{}

	mu sync.RWMutex
}

func NewHub() Hub {
	return &hub{
		conns:    make(map[string]*safeConn, 10),
		rooms:    make(map[string]map[string]struct{}),
		memberOf: make(map[string]map[string]struct{}),
	}
}

func (h *hub) Register(connectionID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.conns[connectionID]; !exists {
		metric.IncrementWSActiveConnections()
	}

	h.conns[connectionID] = &safeConn{conn: conn}
}

func (h *hub) Unregister(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.conns[connectionID]; !exists {
		return
	}

	delete(h.conns, connectionID)
	metric.DecrementWSActiveConnections()

	for room := range h.memberOf[connectionID] {
		h.leaveLocked(connectionID, room)
	}
	delete(h.memberOf, connectionID)
}

func (h *hub) Join(connectionID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[room] = members
	}
	members[connectionID] = struct{}{}

	joined, ok := h.memberOf[connectionID]
	if !ok {
		joined = make(map[string]struct{})
		h.memberOf[connectionID] = joined
	}
	joined[room] = struct{}{}
}

func (h *hub) Leave(connectionID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(connectionID, room)
	delete(h.memberOf[connectionID], room)
}

func (h *hub) leaveLocked(connectionID, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}

	delete(members, connectionID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *hub) Publish(ctx context.Context, room, eventType string, payload any) {
	msg, ok := newMessage(eventType, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	targets := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		targets = append(targets, id)
	}
	h.mu.RUnlock()

	for _, id := range targets {
		h.Send(id, msg)
	}
}

func (h *hub) Emit(ctx context.Context, connectionID, eventType string, payload any) {
	msg, ok := newMessage(eventType, payload)
	if !ok {
		return
	}

	h.Send(connectionID, msg)
}

func (h *hub) Send(connectionID string, msg events.Message) {
	h.mu.RLock()
	sc, ok := h.conns[connectionID]
	h.mu.RUnlock()

	if !ok {
		return
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if err := sc.conn.WriteJSON(msg); err != nil {
		slog.Error(
			"write to websocket",
			slog.Any(constant.Error, err),
			slog.String(constant.ConnectionID, connectionID),
		)
	}
}

func newMessage(eventType string, payload any) (events.Message, bool) {
	msg := events.Message{Type: eventType}

	if payload == nil {
		return msg, true
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event", slog.Any(constant.Error, err), slog.String("type", eventType))
		return msg, false
	}
	msg.Data = data

	return msg, true
}
