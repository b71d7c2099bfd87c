package changes

import (
	"context"
	"errors"
	"fmt"

	"github.com/tonimelisma/phylomerge/internal/model"
)

// Reader loads the persisted study that contains an entity.
type Reader interface {
	LoadStudyContaining(ctx context.Context, externalID string) (*model.Study, error)
}

// Query answers change-since questions against a Reader.
type Query struct {
	reader Reader
}

// NewQuery returns a Query over reader.
func NewQuery(reader Reader) *Query {
	return &Query{reader: reader}
}

// ChangedSince reports every entity under the study, OTU set or matrix
// identified by rootExternalID whose version is greater than baseline.
func (q *Query) ChangedSince(ctx context.Context, rootExternalID string, baseline int64) (*ChangeSet, error) {
	study, err := q.reader.LoadStudyContaining(ctx, rootExternalID)
	if err != nil {
		return nil, err
	}

	root, err := Find(study, rootExternalID)
	if err != nil {
		return nil, err
	}

	return Collect(root, baseline)
}

var errFound = errors.New("found")

// Find returns the entity under study carrying externalID.
func Find(study *model.Study, externalID string) (model.Entity, error) {
	var hit model.Entity

	err := model.WalkPostOrder(study, func(e model.Entity) error {
		if e.Info().ExternalID == externalID && e.Kind() != model.KindAttachmentType {
			hit = e
			return errFound
		}

		return nil
	})

	switch {
	case errors.Is(err, errFound):
		return hit, nil
	case err != nil:
		return nil, fmt.Errorf("changes: searching study: %w", err)
	default:
		return nil, model.NotFound("", externalID)
	}
}
