package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qrave1/voicegrid/internal/application/metric"
	"github.com/qrave1/voicegrid/internal/domain/errs"
	"github.com/qrave1/voicegrid/internal/domain/models"
)

// ConnectionRepository - реестр живых устройств с TTL.
// Все методы возвращают копии записей, мутировать запись можно только через Update.
type ConnectionRepository interface {
	// Put создает или заменяет запись и продлевает TTL
	Put(ctx context.Context, record models.ConnectionRecord) models.ConnectionRecord
	Get(ctx context.Context, connectionID string) (models.ConnectionRecord, bool)
	Delete(ctx context.Context, connectionID string) (models.ConnectionRecord, bool)

	// Update атомарно меняет запись. Если fn вернула ошибку, запись не меняется
	Update(ctx context.Context, connectionID string, fn func(*models.ConnectionRecord) error) (models.ConnectionRecord, error)
	// Touch продлевает TTL
	Touch(ctx context.Context, connectionID string) (models.ConnectionRecord, bool)
	// RenameConnectionID переносит запись на новый ключ без окна, где записи нет
	RenameConnectionID(ctx context.Context, oldID, newID string) (models.ConnectionRecord, error)

	ListByUser(ctx context.Context, userID uuid.UUID) []models.ConnectionRecord
	ListByChannel(ctx context.Context, channelID uuid.UUID) []models.ConnectionRecord
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) []models.ConnectionRecord

	// Sweep удаляет все истекшие записи и передает их в обработчик истечения
	Sweep(ctx context.Context) []models.ConnectionRecord
	SetExpiryHandler(handler func(models.ConnectionRecord))
}

type connectionRepository struct {
	ttl time.Duration
	now func() time.Time

	// records хранит map[connection_id]record, byUser - индекс map[user_id]set[connection_id]
	records map[string]*models.ConnectionRecord
	byUser  map[uuid.UUID]map[string]struct{}

	onExpire func(models.ConnectionRecord)

	mu sync.Mutex
}

func NewConnectionRepository(ttl time.Duration, now func() time.Time) ConnectionRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if now == nil {
		now = time.Now
	}

	return &connectionRepository{
		ttl:     ttl,
		now:     now,
		records: make(map[string]*models.ConnectionRecord),
		byUser:  make(map[uuid.UUID]map[string]struct{}),
	}
}

func (r *connectionRepository) SetExpiryHandler(handler func(models.ConnectionRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onExpire = handler
}

func (r *connectionRepository) Put(ctx context.Context, record models.ConnectionRecord) models.ConnectionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.records[record.ConnectionID]; ok && old.UserID != record.UserID {
		r.unindexLocked(old)
	}

	record.ExpiresAt = r.now().Add(r.ttl)
	stored := record
	r.records[record.ConnectionID] = &stored
	r.indexLocked(&stored)

	return stored
}

func (r *connectionRepository) Get(ctx context.Context, connectionID string) (models.ConnectionRecord, bool) {
	var expired []models.ConnectionRecord
	defer func() { r.notifyExpired(expired) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.liveLocked(connectionID, &expired)
	if !ok {
		return models.ConnectionRecord{}, false
	}

	return *rec, true
}

func (r *connectionRepository) Delete(ctx context.Context, connectionID string) (models.ConnectionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[connectionID]
	if !ok {
		return models.ConnectionRecord{}, false
	}

	r.removeLocked(rec)

	return *rec, true
}

func (r *connectionRepository) Update(
	ctx context.Context,
	connectionID string,
	fn func(*models.ConnectionRecord) error,
) (models.ConnectionRecord, error) {
	var expired []models.ConnectionRecord
	defer func() { r.notifyExpired(expired) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.liveLocked(connectionID, &expired)
	if !ok {
		return models.ConnectionRecord{}, errs.ErrConnectionNotFound
	}

	updated := *rec
	if err := fn(&updated); err != nil {
		return *rec, err
	}

	// ключ и владелец записи через Update не меняются
	updated.ConnectionID = rec.ConnectionID
	updated.UserID = rec.UserID
	*rec = updated

	return *rec, nil
}

func (r *connectionRepository) Touch(ctx context.Context, connectionID string) (models.ConnectionRecord, bool) {
	var expired []models.ConnectionRecord
	defer func() { r.notifyExpired(expired) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.liveLocked(connectionID, &expired)
	if !ok {
		return models.ConnectionRecord{}, false
	}

	rec.ExpiresAt = r.now().Add(r.ttl)

	return *rec, true
}

func (r *connectionRepository) RenameConnectionID(ctx context.Context, oldID, newID string) (models.ConnectionRecord, error) {
	var expired []models.ConnectionRecord
	defer func() { r.notifyExpired(expired) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.liveLocked(oldID, &expired)
	if !ok {
		return models.ConnectionRecord{}, errs.ErrConnectionNotFound
	}

	if oldID == newID {
		return *rec, nil
	}

	if existing, ok := r.records[newID]; ok {
		r.removeLocked(existing)
	}

	r.removeLocked(rec)

	moved := *rec
	moved.ConnectionID = newID
	moved.ExpiresAt = r.now().Add(r.ttl)
	r.records[newID] = &moved
	r.indexLocked(&moved)

	return moved, nil
}

func (r *connectionRepository) ListByUser(ctx context.Context, userID uuid.UUID) []models.ConnectionRecord {
	var expired []models.ConnectionRecord
	defer func() { r.notifyExpired(expired) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		ids = append(ids, id)
	}

	var result []models.ConnectionRecord
	for _, id := range ids {
		if rec, ok := r.liveLocked(id, &expired); ok {
			result = append(result, *rec)
		}
	}

	sortByConnectedAt(result)

	return result
}

func (r *connectionRepository) ListByChannel(ctx context.Context, channelID uuid.UUID) []models.ConnectionRecord {
	return r.filter(func(rec *models.ConnectionRecord) bool {
		return rec.InChannel(channelID)
	})
}

func (r *connectionRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) []models.ConnectionRecord {
	return r.filter(func(rec *models.ConnectionRecord) bool {
		return rec.WorkspaceID == workspaceID
	})
}

func (r *connectionRepository) Sweep(ctx context.Context) []models.ConnectionRecord {
	var expired []models.ConnectionRecord
	defer func() { r.notifyExpired(expired) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, rec := range r.records {
		if rec.Expired(now) {
			r.removeLocked(rec)
			expired = append(expired, *rec)
		}
	}

	return expired
}

func (r *connectionRepository) filter(match func(*models.ConnectionRecord) bool) []models.ConnectionRecord {
	var expired []models.ConnectionRecord
	defer func() { r.notifyExpired(expired) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	var result []models.ConnectionRecord
	for _, rec := range r.records {
		if rec.Expired(now) {
			r.removeLocked(rec)
			expired = append(expired, *rec)
			continue
		}

		if match(rec) {
			result = append(result, *rec)
		}
	}

	sortByConnectedAt(result)

	return result
}

// liveLocked возвращает запись, если она жива. Истекшая запись удаляется и попадает в expired.
func (r *connectionRepository) liveLocked(connectionID string, expired *[]models.ConnectionRecord) (*models.ConnectionRecord, bool) {
	rec, ok := r.records[connectionID]
	if !ok {
		return nil, false
	}

	if rec.Expired(r.now()) {
		r.removeLocked(rec)
		*expired = append(*expired, *rec)
		return nil, false
	}

	return rec, true
}

func (r *connectionRepository) removeLocked(rec *models.ConnectionRecord) {
	delete(r.records, rec.ConnectionID)
	r.unindexLocked(rec)
}

func (r *connectionRepository) indexLocked(rec *models.ConnectionRecord) {
	ids, ok := r.byUser[rec.UserID]
	if !ok {
		ids = make(map[string]struct{})
		r.byUser[rec.UserID] = ids
	}

	ids[rec.ConnectionID] = struct{}{}
}

func (r *connectionRepository) unindexLocked(rec *models.ConnectionRecord) {
	ids, ok := r.byUser[rec.UserID]
	if !ok {
		return
	}

	delete(ids, rec.ConnectionID)
	if len(ids) == 0 {
		delete(r.byUser, rec.UserID)
	}
}

// notifyExpired вызывается без блокировки, обработчик может снова ходить в реестр.
func (r *connectionRepository) notifyExpired(expired []models.ConnectionRecord) {
	if len(expired) == 0 {
		return
	}

	r.mu.Lock()
	handler := r.onExpire
	r.mu.Unlock()

	for _, rec := range expired {
		metric.IncrementConnectionsExpired()

		if handler != nil {
			go handler(rec)
		}
	}
}

func sortByConnectedAt(records []models.ConnectionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ConnectedAt.Equal(records[j].ConnectedAt) {
			return records[i].ConnectionID < records[j].ConnectionID
		}

		return records[i].ConnectedAt.Before(records[j].ConnectedAt)
	})
}
