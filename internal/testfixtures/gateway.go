package testfixtures

import (
	"context"
	"fmt"
	"sync"

	"github.com/qrave1/voicegrid/internal/domain/models"
	"github.com/qrave1/voicegrid/internal/infra/adapters/janus"
)

// RoomKey - комната плагина на ноде.
type RoomKey struct {
	Node   string
	Plugin models.Plugin
	Room   int64
}

// Gateway - SFU в памяти. Ведет себя как Janus: повторное создание комнаты дает
// janus.ErrAlreadyExists, удаление отсутствующей - janus.ErrRoomAlreadyDeleted.
type Gateway struct {
	mu sync.Mutex

	rooms   map[RoomKey]map[string]struct{}
	tokens  map[string]map[string]struct{}
	creates int
	deletes int
	calls   int

	// FailCreate - ошибка создания комнаты по плагину
	FailCreate map[models.Plugin]error
	// FailAllowed - ошибка изменения allow-list по плагину
	FailAllowed map[models.Plugin]error
	FailOpen    error
}

func NewGateway() *Gateway {
	return &Gateway{
		rooms:       make(map[RoomKey]map[string]struct{}),
		tokens:      make(map[string]map[string]struct{}),
		FailCreate:  make(map[models.Plugin]error),
		FailAllowed: make(map[models.Plugin]error),
	}
}

func (g *Gateway) Open(ctx context.Context, node models.JanusNode) (janus.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++
	if g.FailOpen != nil {
		return nil, g.FailOpen
	}

	return &fakeSession{gw: g, node: node.Name}, nil
}

func (g *Gateway) AddToken(ctx context.Context, node models.JanusNode, token string, plugins []models.Plugin) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++
	if _, ok := g.tokens[node.Name]; !ok {
		g.tokens[node.Name] = make(map[string]struct{})
	}
	g.tokens[node.Name][token] = struct{}{}

	return nil
}

func (g *Gateway) RemoveToken(ctx context.Context, node models.JanusNode, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++
	delete(g.tokens[node.Name], token)

	return nil
}

// HasServerToken - зарегистрирован ли токен на ноде.
func (g *Gateway) HasServerToken(node, token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.tokens[node][token]

	return ok
}

// RoomExists - есть ли комната на ноде.
func (g *Gateway) RoomExists(key RoomKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.rooms[key]

	return ok
}

// Allowed - текущий allow-list комнаты.
func (g *Gateway) Allowed(key RoomKey) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	result := make([]string, 0, len(g.rooms[key]))
	for token := range g.rooms[key] {
		result = append(result, token)
	}

	return result
}

// Creates - число успешно созданных комнат.
func (g *Gateway) Creates() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.creates
}

// Deletes - число удаленных комнат.
func (g *Gateway) Deletes() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.deletes
}

// Calls - общее число обращений к SFU.
func (g *Gateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.calls
}

type fakeSession struct {
	gw   *Gateway
	node string
}

func (s *fakeSession) Attach(ctx context.Context, plugin models.Plugin) (janus.Handle, error) {
	s.gw.mu.Lock()
	defer s.gw.mu.Unlock()

	s.gw.calls++

	return &fakeHandle{gw: s.gw, node: s.node, plugin: plugin}, nil
}

func (s *fakeSession) Close(ctx context.Context) error {
	return nil
}

type fakeHandle struct {
	gw     *Gateway
	node   string
	plugin models.Plugin
}

func (h *fakeHandle) key(room janus.Room) RoomKey {
	return RoomKey{Node: h.node, Plugin: h.plugin, Room: room.ID}
}

func (h *fakeHandle) CreateRoom(ctx context.Context, room janus.Room) error {
	h.gw.mu.Lock()
	defer h.gw.mu.Unlock()

	h.gw.calls++
	if err := h.gw.FailCreate[h.plugin]; err != nil {
		return err
	}

	if _, ok := h.gw.rooms[h.key(room)]; ok {
		return janus.ErrAlreadyExists
	}

	h.gw.rooms[h.key(room)] = make(map[string]struct{})
	h.gw.creates++

	return nil
}

func (h *fakeHandle) DestroyRoom(ctx context.Context, room janus.Room) error {
	h.gw.mu.Lock()
	defer h.gw.mu.Unlock()

	h.gw.calls++
	if _, ok := h.gw.rooms[h.key(room)]; !ok {
		return janus.ErrRoomAlreadyDeleted
	}

	delete(h.gw.rooms, h.key(room))
	h.gw.deletes++

	return nil
}

func (h *fakeHandle) Allowed(ctx context.Context, action janus.TokenAction, room janus.Room, tokens []string) error {
	h.gw.mu.Lock()
	defer h.gw.mu.Unlock()

	h.gw.calls++
	if err := h.gw.FailAllowed[h.plugin]; err != nil {
		return err
	}

	allowed, ok := h.gw.rooms[h.key(room)]
	if !ok {
		return fmt.Errorf("%s room %d: %w", h.plugin, room.ID, janus.ErrRoomAlreadyDeleted)
	}

	for _, token := range tokens {
		switch action {
		case janus.TokenAdd:
			allowed[token] = struct{}{}
		case janus.TokenRemove:
			delete(allowed, token)
		}
	}

	return nil
}

// NodeSource - фиксированный список нод.
type NodeSource struct {
	mu    sync.Mutex
	nodes []models.JanusNode
	err   error
}

func NewNodeSource(nodes ...models.JanusNode) *NodeSource {
	return &NodeSource{nodes: nodes}
}

func (s *NodeSource) Set(nodes []models.JanusNode, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = nodes
	s.err = err
}

func (s *NodeSource) Nodes(ctx context.Context) ([]models.JanusNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}

	return append([]models.JanusNode(nil), s.nodes...), nil
}
