package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/qrave1/voicegrid/internal/domain/errs"
	"github.com/qrave1/voicegrid/internal/domain/models"
)

type ChannelRepository interface {
	Create(ctx context.Context, channel *models.Channel) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	// UpdateJanus сохраняет комнаты канала после пересоздания на другой ноде
	UpdateJanus(ctx context.Context, id uuid.UUID, janus models.ChannelJanus) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*models.Channel, error)
	// CountByServer - число каналов с комнатами на каждой ноде
	CountByServer(ctx context.Context) (map[string]int, error)

	AddMember(ctx context.Context, channelID, userID uuid.UUID) error
	IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error)
	ListMembers(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error)
}

type channelRepo struct {
	db *sqlx.DB
}

func NewChannelRepo(db *sqlx.DB) ChannelRepository {
	return &channelRepo{db: db}
}

const channelColumns = `id, workspace_id, creator_id, name, is_private, is_temporary, lifespan_ms,
	janus_server, audio_room_id, video_room_id, text_room_id, janus_secret, created_at, updated_at`

func (r *channelRepo) Create(ctx context.Context, channel *models.Channel) error {
	_, err := r.db.NamedExecContext(
		ctx,
		`INSERT INTO channels (`+channelColumns+`)
		VALUES (:id, :workspace_id, :creator_id, :name, :is_private, :is_temporary, :lifespan_ms,
			:janus_server, :audio_room_id, :video_room_id, :text_room_id, :janus_secret, :created_at, :updated_at)`,
		channel,
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}

	return nil
}

func (r *channelRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	var channel models.Channel

	err := r.db.GetContext(ctx, &channel, "SELECT "+channelColumns+" FROM channels WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrChannelNotFound
		}

		return nil, fmt.Errorf("get channel: %w", err)
	}

	return &channel, nil
}

func (r *channelRepo) UpdateJanus(ctx context.Context, id uuid.UUID, janus models.ChannelJanus) error {
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE channels
		SET janus_server = $1, audio_room_id = $2, video_room_id = $3, text_room_id = $4, janus_secret = $5, updated_at = $6
		WHERE id = $7`,
		janus.Server,
		janus.AudioRoomID,
		janus.VideoRoomID,
		janus.TextRoomID,
		janus.Secret,
		time.Now(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update channel janus: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrChannelNotFound
	}

	return nil
}

func (r *channelRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM channels WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}

	return nil
}

func (r *channelRepo) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*models.Channel, error) {
	var channels []*models.Channel

	err := r.db.SelectContext(
		ctx,
		&channels,
		"SELECT "+channelColumns+" FROM channels WHERE workspace_id = $1 ORDER BY created_at",
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	return channels, nil
}

func (r *channelRepo) CountByServer(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Server   string `db:"janus_server"`
		Channels int    `db:"channels"`
	}

	err := r.db.SelectContext(
		ctx,
		&rows,
		"SELECT janus_server, count(*) AS channels FROM channels WHERE janus_server <> '' GROUP BY janus_server",
	)
	if err != nil {
		return nil, fmt.Errorf("count channels by server: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Server] = row.Channels
	}

	return counts, nil
}

func (r *channelRepo) AddMember(ctx context.Context, channelID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO channel_members (channel_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		channelID,
		userID,
	)
	if err != nil {
		return fmt.Errorf("add channel member: %w", err)
	}

	return nil
}

func (r *channelRepo) IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	var exists bool

	err := r.db.GetContext(
		ctx,
		&exists,
		"SELECT EXISTS(SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2)",
		channelID,
		userID,
	)
	if err != nil {
		return false, fmt.Errorf("check channel member: %w", err)
	}

	return exists, nil
}

func (r *channelRepo) ListMembers(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error) {
	var members []uuid.UUID

	err := r.db.SelectContext(ctx, &members, "SELECT user_id FROM channel_members WHERE channel_id = $1", channelID)
	if err != nil {
		return nil, fmt.Errorf("list channel members: %w", err)
	}

	return members, nil
}
