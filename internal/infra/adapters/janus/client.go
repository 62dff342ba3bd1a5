package janus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/qrave1/voicegrid/internal/domain/models"
)

// Gateway - control API SFU нод: сессии и хэндлы плагинов плюс admin API токенов.
type Gateway interface {
	Open(ctx context.Context, node models.JanusNode) (Session, error)

	// AddToken регистрирует токен на ноде с доступом к плагинам
	AddToken(ctx context.Context, node models.JanusNode, token string, plugins []models.Plugin) error
	RemoveToken(ctx context.Context, node models.JanusNode, token string) error
}

type Session interface {
	Attach(ctx context.Context, plugin models.Plugin) (Handle, error)
	Close(ctx context.Context) error
}

type Handle interface {
	CreateRoom(ctx context.Context, room Room) error
	DestroyRoom(ctx context.Context, room Room) error
	// Allowed меняет allow-list токенов комнаты
	Allowed(ctx context.Context, action TokenAction, room Room, tokens []string) error
}

type TokenAction string

const (
	TokenAdd    TokenAction = "add"
	TokenRemove TokenAction = "remove"
)

type Room struct {
	ID          int64
	Secret      string
	Description string
}

type gateway struct {
	client *http.Client
}

func NewGateway(timeout time.Duration) Gateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &gateway{client: &http.Client{Timeout: timeout}}
}

// NewGatewayWithClient нужен, когда http.Client настраивается снаружи (тесты, TLS).
func NewGatewayWithClient(client *http.Client) Gateway {
	return &gateway{client: client}
}

type request struct {
	Janus       string         `json:"janus"`
	Transaction string         `json:"transaction"`
	Token       string         `json:"token,omitempty"`
	Plugin      string         `json:"plugin,omitempty"`
	Body        map[string]any `json:"body,omitempty"`
}

type response struct {
	Janus       string `json:"janus"`
	Transaction string `json:"transaction"`
	Data        struct {
		ID int64 `json:"id"`
	} `json:"data"`
	Error *struct {
		Code   int    `json:"code"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
	PluginData struct {
		Plugin string          `json:"plugin"`
		Data   json.RawMessage `json:"data"`
	} `json:"plugindata"`
}

type pluginResult struct {
	ErrorCode int    `json:"error_code"`
	Error     string `json:"error"`
}

func (g *gateway) Open(ctx context.Context, node models.JanusNode) (Session, error) {
	resp, err := g.do(ctx, node.URL, request{Janus: "create", Token: node.AuthToken})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &session{
		gw:    g,
		url:   node.URL + "/" + strconv.FormatInt(resp.Data.ID, 10),
		node:  node,
		token: node.AuthToken,
	}, nil
}

func (g *gateway) AddToken(ctx context.Context, node models.JanusNode, token string, plugins []models.Plugin) error {
	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		names = append(names, string(p))
	}

	_, err := g.doAdmin(ctx, node, map[string]any{
		"janus":   "add_token",
		"token":   token,
		"plugins": names,
	})
	if err != nil {
		return fmt.Errorf("add token: %w", err)
	}

	return nil
}

func (g *gateway) RemoveToken(ctx context.Context, node models.JanusNode, token string) error {
	_, err := g.doAdmin(ctx, node, map[string]any{
		"janus": "remove_token",
		"token": token,
	})
	if err != nil {
		return fmt.Errorf("remove token: %w", err)
	}

	return nil
}

func (g *gateway) doAdmin(ctx context.Context, node models.JanusNode, body map[string]any) (*response, error) {
	body["transaction"] = uuid.NewString()
	body["admin_secret"] = node.AdminSecret

	return g.post(ctx, node.AdminURL, body)
}

func (g *gateway) do(ctx context.Context, url string, req request) (*response, error) {
	req.Transaction = uuid.NewString()

	return g.post(ctx, url, req)
}

func (g *gateway) post(ctx context.Context, url string, body any) (*response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, &Error{Code: httpResp.StatusCode, Reason: "unexpected http status"}
	}

	var resp response
	if err = json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.Janus == "error" {
		if resp.Error != nil {
			return nil, &Error{Code: resp.Error.Code, Reason: resp.Error.Reason}
		}

		return nil, &Error{Reason: "unknown error"}
	}

	return &resp, nil
}

type session struct {
	gw    *gateway
	url   string
	node  models.JanusNode
	token string
}

func (s *session) Attach(ctx context.Context, plugin models.Plugin) (Handle, error) {
	resp, err := s.gw.do(ctx, s.url, request{Janus: "attach", Plugin: string(plugin), Token: s.token})
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", plugin, err)
	}

	return &handle{
		session:  s,
		url:      s.url + "/" + strconv.FormatInt(resp.Data.ID, 10),
		plugin:   plugin,
		adminKey: s.node.PluginKey(plugin),
	}, nil
}

func (s *session) Close(ctx context.Context) error {
	if _, err := s.gw.do(ctx, s.url, request{Janus: "destroy", Token: s.token}); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}

	return nil
}

type handle struct {
	session  *session
	url      string
	plugin   models.Plugin
	adminKey string
}

func (h *handle) CreateRoom(ctx context.Context, room Room) error {
	body := map[string]any{
		"request":   "create",
		"room":      room.ID,
		"secret":    room.Secret,
		"permanent": false,
	}
	if room.Description != "" {
		body["description"] = room.Description
	}
	if h.adminKey != "" {
		body["admin_key"] = h.adminKey
	}
	// пустой allow-list включает проверку токенов у комнаты
	if h.plugin != models.PluginTextRoom {
		body["allowed"] = []string{}
	}

	return h.message(ctx, body)
}

func (h *handle) DestroyRoom(ctx context.Context, room Room) error {
	return h.message(ctx, map[string]any{
		"request":   "destroy",
		"room":      room.ID,
		"secret":    room.Secret,
		"permanent": false,
	})
}

func (h *handle) Allowed(ctx context.Context, action TokenAction, room Room, tokens []string) error {
	return h.message(ctx, map[string]any{
		"request": "allowed",
		"room":    room.ID,
		"secret":  room.Secret,
		"action":  string(action),
		"allowed": tokens,
	})
}

func (h *handle) message(ctx context.Context, body map[string]any) error {
	resp, err := h.session.gw.do(ctx, h.url, request{Janus: "message", Token: h.session.token, Body: body})
	if err != nil {
		return fmt.Errorf("%s %s: %w", h.plugin, body["request"], err)
	}

	if len(resp.PluginData.Data) == 0 {
		return nil
	}

	var result pluginResult
	if err = json.Unmarshal(resp.PluginData.Data, &result); err != nil {
		return fmt.Errorf("decode plugin data: %w", err)
	}

	if result.ErrorCode != 0 {
		return pluginError(h.plugin, result.ErrorCode, result.Error)
	}

	return nil
}
