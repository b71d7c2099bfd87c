// Package merge implements save-or-update reconciliation of an incoming
// study graph into a persisted one. It realigns positional collections by
// external identifier, preserves the identity of unchanged objects, and
// flags exactly the entities that changed so a later pass can stamp them.
package merge

import (
	"context"

	"github.com/google/uuid"

	"github.com/tonimelisma/phylomerge/internal/model"
)

// EntityLookup resolves persisted entities that lie outside the managed graph
// being merged. The store implements it inside the merge transaction.
type EntityLookup interface {
	// FindByExternalID locates a persisted entity of the given kind. Returns
	// an error wrapping model.ErrNotFound when no such entity exists.
	FindByExternalID(ctx context.Context, kind model.Kind, externalID string) (*Ref, error)

	// FindLookupValue locates an append-only attachment type by value.
	// Returns an error wrapping model.ErrNotFound when absent.
	FindLookupValue(ctx context.Context, namespace, label string) (*model.AttachmentType, error)
}

// Ref locates a persisted entity without loading it.
type Ref struct {
	Kind            model.Kind
	ExternalID      string
	OwnerExternalID string
	StudyExternalID string
}

// IDMinter produces new external identifiers.
type IDMinter func() string

// NewUUID mints random UUIDv4 external identifiers.
func NewUUID() string {
	return uuid.NewString()
}
