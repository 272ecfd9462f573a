package note

import (
	"context"

	"github.com/flexprice/paypal-ipn/internal/types"
)

// Note is an append-only audit entry shown on a subscription or order
type Note struct {
	ID         string               `db:"id" json:"id"`
	EntityType types.NoteEntityType `db:"entity_type" json:"entity_type"`
	EntityID   int64                `db:"entity_id" json:"entity_id"`
	Content    string               `db:"content" json:"content"`
	types.BaseModel
}

// New builds a note for the given record
func New(ctx context.Context, entityType types.NoteEntityType, entityID int64, content string) *Note {
	return &Note{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NOTE),
		EntityType: entityType,
		EntityID:   entityID,
		Content:    content,
		BaseModel:  types.GetDefaultBaseModel(ctx),
	}
}

type Repository interface {
	Create(ctx context.Context, note *Note) error
	List(ctx context.Context, entityType types.NoteEntityType, entityID int64) ([]*Note, error)
}
