package testfixtures

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/qrave1/voicegrid/internal/domain/errs"
	"github.com/qrave1/voicegrid/internal/domain/models"
)

// Store - in-memory замена postgres репозиториев каналов и воркспейсов.
type Store struct {
	mu sync.Mutex

	channels   map[uuid.UUID]models.Channel
	members    map[uuid.UUID]map[uuid.UUID]struct{}
	workspaces map[uuid.UUID]models.Workspace
	roles      map[uuid.UUID]map[uuid.UUID]models.Role

	deletes int
}

func NewStore() *Store {
	return &Store{
		channels:   make(map[uuid.UUID]models.Channel),
		members:    make(map[uuid.UUID]map[uuid.UUID]struct{}),
		workspaces: make(map[uuid.UUID]models.Workspace),
		roles:      make(map[uuid.UUID]map[uuid.UUID]models.Role),
	}
}

// AddWorkspaceMember создает воркспейс при необходимости и добавляет в него пользователя.
func (s *Store) AddWorkspaceMember(workspaceID, userID uuid.UUID, role models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workspaces[workspaceID]; !ok {
		s.workspaces[workspaceID] = models.Workspace{ID: workspaceID, Name: "workspace", CreatedAt: ReferenceTime()}
	}

	if _, ok := s.roles[workspaceID]; !ok {
		s.roles[workspaceID] = make(map[uuid.UUID]models.Role)
	}
	s.roles[workspaceID][userID] = role
}

// PutChannel кладет канал как есть, минуя оркестратор.
func (s *Store) PutChannel(channel models.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.channels[channel.ID] = channel
}

// Deletes - сколько раз удалялись каналы.
func (s *Store) Deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deletes
}

func (s *Store) Create(ctx context.Context, channel *models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.channels[channel.ID] = *channel

	return nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channel, ok := s.channels[id]
	if !ok {
		return nil, errs.ErrChannelNotFound
	}

	return &channel, nil
}

func (s *Store) UpdateJanus(ctx context.Context, id uuid.UUID, janus models.ChannelJanus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	channel, ok := s.channels[id]
	if !ok {
		return errs.ErrChannelNotFound
	}

	channel.ChannelJanus = janus
	s.channels[id] = channel

	return nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.channels, id)
	delete(s.members, id)
	s.deletes++

	return nil
}

func (s *Store) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Channel
	for _, channel := range s.channels {
		if channel.WorkspaceID == workspaceID {
			ch := channel
			result = append(result, &ch)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

func (s *Store) CountByServer(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, channel := range s.channels {
		if channel.Server != "" {
			counts[channel.Server]++
		}
	}

	return counts, nil
}

func (s *Store) AddMember(ctx context.Context, channelID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[channelID]; !ok {
		s.members[channelID] = make(map[uuid.UUID]struct{})
	}
	s.members[channelID][userID] = struct{}{}

	return nil
}

func (s *Store) IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.members[channelID][userID]

	return ok, nil
}

func (s *Store) ListMembers(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]uuid.UUID, 0, len(s.members[channelID]))
	for id := range s.members[channelID] {
		result = append(result, id)
	}

	return result, nil
}

// WorkspaceStore - вид на Store как на репозиторий воркспейсов.
// Отдельный тип нужен, потому что GetByID у двух репозиториев разный.
type WorkspaceStore struct {
	*Store
}

func (s *Store) Workspaces() WorkspaceStore {
	return WorkspaceStore{Store: s}
}

func (w WorkspaceStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	workspace, ok := w.workspaces[id]
	if !ok {
		return nil, errs.New(errs.CodeNotWorkspaceMember, "workspace not found")
	}

	return &workspace, nil
}

func (w WorkspaceStore) GetMemberRole(ctx context.Context, workspaceID, userID uuid.UUID) (models.Role, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	role, ok := w.roles[workspaceID][userID]
	if !ok {
		return "", errs.ErrNotWorkspaceMember
	}

	return role, nil
}
