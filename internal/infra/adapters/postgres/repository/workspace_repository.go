package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/qrave1/voicegrid/internal/domain/errs"
	"github.com/qrave1/voicegrid/internal/domain/models"
)

type WorkspaceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
	// GetMemberRole возвращает errs.ErrNotWorkspaceMember, если пользователя нет в воркспейсе
	GetMemberRole(ctx context.Context, workspaceID, userID uuid.UUID) (models.Role, error)
}

type workspaceRepo struct {
	db *sqlx.DB
}

func NewWorkspaceRepo(db *sqlx.DB) WorkspaceRepository {
	return &workspaceRepo{db: db}
}

func (r *workspaceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	var workspace models.Workspace

	err := r.db.GetContext(ctx, &workspace, "SELECT id, name, created_at FROM workspaces WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.CodeNotWorkspaceMember, "workspace not found")
		}

		return nil, fmt.Errorf("get workspace: %w", err)
	}

	return &workspace, nil
}

func (r *workspaceRepo) GetMemberRole(ctx context.Context, workspaceID, userID uuid.UUID) (models.Role, error) {
	var role models.Role

	err := r.db.GetContext(
		ctx,
		&role,
		"SELECT role FROM workspace_members WHERE workspace_id = $1 AND user_id = $2",
		workspaceID,
		userID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errs.ErrNotWorkspaceMember
		}

		return "", fmt.Errorf("get workspace member role: %w", err)
	}

	return role, nil
}
