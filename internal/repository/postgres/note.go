package postgres

import (
	"context"

	"github.com/flexprice/paypal-ipn/internal/domain/note"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/postgres"
	"github.com/flexprice/paypal-ipn/internal/types"
)

type noteRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewNoteRepository(db *postgres.DB, logger *logger.Logger) note.Repository {
	return &noteRepository{db: db, logger: logger}
}

func (r *noteRepository) Create(ctx context.Context, n *note.Note) error {
	query := `
		INSERT INTO notes (
			id, entity_type, entity_id, content,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :entity_type, :entity_id, :content,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, n); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to add note").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *noteRepository) List(ctx context.Context, entityType types.NoteEntityType, entityID int64) ([]*note.Note, error) {
	query := `
		SELECT id, entity_type, entity_id, content,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		FROM notes
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3 AND status = $4
		ORDER BY created_at ASC`

	var notes []*note.Note
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &notes, query,
		types.GetTenantID(ctx), entityType, entityID, types.StatusPublished); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list notes").
			Mark(ierr.ErrDatabase)
	}
	return notes, nil
}
