package testutil

import (
	"context"

	"github.com/flexprice/paypal-ipn/internal/domain/note"
	"github.com/flexprice/paypal-ipn/internal/types"
	"github.com/samber/lo"
)

var _ note.Repository = (*InMemoryNoteStore)(nil)

// InMemoryNoteStore implements note.Repository. Create fails for the notes
// FailCreate returns an error for.
type InMemoryNoteStore struct {
	*InMemoryStore[string, *note.Note]
	FailCreate func(n *note.Note) error
}

func NewInMemoryNoteStore() *InMemoryNoteStore {
	return &InMemoryNoteStore{
		InMemoryStore: NewInMemoryStore[string, *note.Note](),
	}
}

type noteFilter struct {
	entityType types.NoteEntityType
	entityID   int64
}

func noteFilterFn(ctx context.Context, n *note.Note, filter interface{}) bool {
	f, ok := filter.(noteFilter)
	if !ok {
		return true
	}
	return CheckTenantFilter(ctx, n.TenantID) && n.EntityType == f.entityType && n.EntityID == f.entityID
}

// notes are created in quick succession, ulid ids keep them ordered
func noteSortFn(i, j *note.Note) bool {
	return i.ID < j.ID
}

func (s *InMemoryNoteStore) Create(ctx context.Context, n *note.Note) error {
	if s.FailCreate != nil {
		if err := s.FailCreate(n); err != nil {
			return err
		}
	}
	return s.InMemoryStore.Create(ctx, n.ID, n)
}

func (s *InMemoryNoteStore) List(ctx context.Context, entityType types.NoteEntityType, entityID int64) ([]*note.Note, error) {
	return s.InMemoryStore.List(ctx, noteFilter{entityType: entityType, entityID: entityID}, noteFilterFn, noteSortFn)
}

// Contents returns the text of every note on a record, oldest first
func (s *InMemoryNoteStore) Contents(ctx context.Context, entityType types.NoteEntityType, entityID int64) []string {
	notes, _ := s.List(ctx, entityType, entityID)
	return lo.Map(notes, func(n *note.Note, _ int) string { return n.Content })
}
