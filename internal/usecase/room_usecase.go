package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/qrave1/voicegrid/internal/application/constant"
	"github.com/qrave1/voicegrid/internal/domain/models"
	"github.com/qrave1/voicegrid/internal/infra/adapters/janus"
	"github.com/qrave1/voicegrid/internal/infra/adapters/memory"
)

var ErrJanusNodeUnavailable = errors.New("janus node is not available")

// maxRoomID держит id комнат в пределах, которые клиенты в браузере читают без потерь
const maxRoomID = 1<<53 - 1

// RoomUsecase - оркестратор комнат на SFU нодах.
type RoomUsecase interface {
	// LoadNodes поднимает инвентарь нод на старте, любая ошибка фатальна
	LoadNodes(ctx context.Context) error
	RefreshNodes(ctx context.Context) error
	Nodes() []models.JanusNode
	Node(name string) (models.JanusNode, bool)
	Ready() error

	// SelectNode выбирает наименее загруженную ноду и сразу учитывает на ней канал
	SelectNode() (models.JanusNode, error)
	// ReleaseNode снимает канал с ноды без удаления комнат
	ReleaseNode(name string)
	// RestoreLoad учитывает на нодах каналы, созданные до рестарта
	RestoreLoad(counts map[string]int)

	CreateRooms(ctx context.Context, node models.JanusNode, channel *models.Channel) error
	DestroyRooms(ctx context.Context, channel *models.Channel) error

	ManageAuthTokens(ctx context.Context, action janus.TokenAction, tokens []string, channel *models.Channel) error
	AddServerAuthToken(ctx context.Context, token string) error
	RemoveServerAuthToken(ctx context.Context, token string) error
}

type roomUsecase struct {
	source  janus.NodeSource
	gateway janus.Gateway
	nodes   memory.JanusNodeRepository

	refreshMu sync.Mutex
}

func NewRoomUsecase(source janus.NodeSource, gateway janus.Gateway, nodes memory.JanusNodeRepository) RoomUsecase {
	return &roomUsecase{
		source:  source,
		gateway: gateway,
		nodes:   nodes,
	}
}

func (uc *roomUsecase) LoadNodes(ctx context.Context) error {
	if err := uc.RefreshNodes(ctx); err != nil {
		return err
	}

	slog.Info("janus nodes loaded", slog.Int(constant.Count, len(uc.nodes.List())))

	return nil
}

func (uc *roomUsecase) RefreshNodes(ctx context.Context) error {
	uc.refreshMu.Lock()
	defer uc.refreshMu.Unlock()

	discovered, err := uc.source.Nodes(ctx)
	if err != nil {
		return fmt.Errorf("discover janus nodes: %w", err)
	}

	if len(discovered) == 0 {
		return janus.ErrNoNodes
	}

	for i := range discovered {
		node := &discovered[i]

		// известная нода сохраняет свой токен
		if known, ok := uc.nodes.Get(node.Name); ok && known.AuthToken != "" {
			node.AuthToken = known.AuthToken
			continue
		}

		token := uuid.NewString()
		if err = uc.gateway.AddToken(ctx, *node, token, models.RoomPlugins); err != nil {
			return fmt.Errorf("register token on node %s: %w", node.Name, err)
		}
		node.AuthToken = token
	}

	uc.nodes.Replace(discovered)

	return nil
}

func (uc *roomUsecase) Nodes() []models.JanusNode {
	return uc.nodes.List()
}

func (uc *roomUsecase) Node(name string) (models.JanusNode, bool) {
	return uc.nodes.Get(name)
}

func (uc *roomUsecase) RestoreLoad(counts map[string]int) {
	for name, n := range counts {
		if _, ok := uc.nodes.Get(name); !ok {
			// комнаты таких каналов пересоздадутся при первом входе
			slog.Warn("channels on unknown janus node", slog.String(constant.Node, name), slog.Int(constant.Count, n))
			continue
		}

		for range n {
			uc.nodes.Assign(name)
		}
	}
}

func (uc *roomUsecase) Ready() error {
	if len(uc.nodes.List()) == 0 {
		return memory.ErrNoJanusNodes
	}

	return nil
}

func (uc *roomUsecase) SelectNode() (models.JanusNode, error) {
	return uc.nodes.Acquire()
}

func (uc *roomUsecase) ReleaseNode(name string) {
	uc.nodes.Release(name)
}

func (uc *roomUsecase) CreateRooms(ctx context.Context, node models.JanusNode, channel *models.Channel) error {
	if channel.Secret == "" {
		channel.Secret = uuid.NewString()
	}

	channel.ChannelJanus = models.ChannelJanus{
		Server:      node.Name,
		AudioRoomID: newRoomID(),
		VideoRoomID: newRoomID(),
		TextRoomID:  newRoomID(),
		Secret:      channel.Secret,
	}

	sess, err := uc.gateway.Open(ctx, node)
	if err != nil {
		return fmt.Errorf("open janus session: %w", err)
	}
	defer uc.closeSession(ctx, sess, node.Name)

	for _, plugin := range models.RoomPlugins {
		h, err := sess.Attach(ctx, plugin)
		if err != nil {
			return fmt.Errorf("attach plugin: %w", err)
		}

		room := janus.Room{ID: channel.RoomID(plugin), Secret: channel.Secret, Description: channel.Name}

		err = h.CreateRoom(ctx, room)
		if errors.Is(err, janus.ErrAlreadyExists) {
			slog.Warn(
				"janus room already exists",
				slog.String(constant.Node, node.Name),
				slog.String(constant.Plugin, string(plugin)),
				slog.Int64(constant.Room, room.ID),
			)
			continue
		}
		if err != nil {
			return fmt.Errorf("create %s room: %w", plugin, err)
		}
	}

	return nil
}

func (uc *roomUsecase) DestroyRooms(ctx context.Context, channel *models.Channel) error {
	node, ok := uc.nodes.Get(channel.Server)
	if !ok {
		// нода пропала вместе со своими комнатами
		slog.Warn("destroy rooms on unknown janus node", slog.String(constant.Node, channel.Server))
		return nil
	}

	sess, err := uc.gateway.Open(ctx, node)
	if err != nil {
		return fmt.Errorf("open janus session: %w", err)
	}
	defer uc.closeSession(ctx, sess, node.Name)

	for _, plugin := range models.RoomPlugins {
		h, err := sess.Attach(ctx, plugin)
		if err != nil {
			return fmt.Errorf("attach plugin: %w", err)
		}

		err = h.DestroyRoom(ctx, janus.Room{ID: channel.RoomID(plugin), Secret: channel.Secret})
		if err != nil && !errors.Is(err, janus.ErrRoomAlreadyDeleted) {
			return fmt.Errorf("destroy %s room: %w", plugin, err)
		}
	}

	uc.nodes.Release(node.Name)

	return nil
}

func (uc *roomUsecase) ManageAuthTokens(
	ctx context.Context,
	action janus.TokenAction,
	tokens []string,
	channel *models.Channel,
) error {
	node, ok := uc.nodes.Get(channel.Server)
	if !ok {
		return fmt.Errorf("janus node %q: %w", channel.Server, ErrJanusNodeUnavailable)
	}

	sess, err := uc.gateway.Open(ctx, node)
	if err != nil {
		return fmt.Errorf("open janus session: %w", err)
	}
	defer uc.closeSession(ctx, sess, node.Name)

	g, gctx := errgroup.WithContext(ctx)
	for _, plugin := range models.TokenPlugins {
		g.Go(func() error {
			h, err := sess.Attach(gctx, plugin)
			if err != nil {
				return fmt.Errorf("attach plugin: %w", err)
			}

			room := janus.Room{ID: channel.RoomID(plugin), Secret: channel.Secret}
			if err = h.Allowed(gctx, action, room, tokens); err != nil {
				return fmt.Errorf("%s tokens on %s room: %w", action, plugin, err)
			}

			return nil
		})
	}

	return g.Wait()
}

func (uc *roomUsecase) AddServerAuthToken(ctx context.Context, token string) error {
	return uc.eachNode(ctx, func(ctx context.Context, node models.JanusNode) error {
		if err := uc.gateway.AddToken(ctx, node, token, models.RoomPlugins); err != nil {
			return fmt.Errorf("add server token on %s: %w", node.Name, err)
		}

		return nil
	})
}

func (uc *roomUsecase) RemoveServerAuthToken(ctx context.Context, token string) error {
	return uc.eachNode(ctx, func(ctx context.Context, node models.JanusNode) error {
		if err := uc.gateway.RemoveToken(ctx, node, token); err != nil {
			return fmt.Errorf("remove server token on %s: %w", node.Name, err)
		}

		return nil
	})
}

func (uc *roomUsecase) eachNode(ctx context.Context, fn func(context.Context, models.JanusNode) error) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, node := range uc.nodes.List() {
		g.Go(func() error {
			return fn(gctx, node)
		})
	}

	return g.Wait()
}

func (uc *roomUsecase) closeSession(ctx context.Context, sess janus.Session, node string) {
	if err := sess.Close(ctx); err != nil {
		slog.Warn("close janus session", slog.Any(constant.Error, err), slog.String(constant.Node, node))
	}
}

func newRoomID() int64 {
	return rand.Int64N(maxRoomID) + 1
}
