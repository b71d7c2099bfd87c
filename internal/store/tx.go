package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/phylomerge/internal/merge"
	"github.com/tonimelisma/phylomerge/internal/model"
)

const (
	sqlNextVersion = `UPDATE version_counter SET last_version = last_version + 1
		WHERE id = 1 RETURNING last_version`

	sqlFindStudyRef = `SELECT external_id, '', external_id FROM studies WHERE external_id = ?`

	sqlFindAttachmentType = `SELECT id, external_id, version, namespace, label
		FROM attachment_types WHERE namespace = ? AND label = ?`
)

// Tx is a unit of work. It resolves identifiers outside the loaded graph for
// the reconciler and issues version stamps from the database counter.
type Tx struct {
	tx     *sql.Tx
	logger *slog.Logger
}

// kindTable maps an entity kind to its table and, for owned kinds, the table
// and column of its owner.
type kindTable struct {
	table       string
	ownerTable  string
	ownerColumn string
}

var kindTables = map[model.Kind]kindTable{
	model.KindOtuSet:      {"otu_sets", "studies", "study_id"},
	model.KindOtu:         {"otus", "otu_sets", "otu_set_id"},
	model.KindMatrix:      {"matrices", "otu_sets", "otu_set_id"},
	model.KindCharacter:   {"characters", "matrices", "matrix_id"},
	model.KindRow:         {"matrix_rows", "matrices", "matrix_id"},
	model.KindSequenceSet: {"sequence_sets", "otu_sets", "otu_set_id"},
	model.KindSequence:    {"sequences", "sequence_sets", "sequence_set_id"},
	model.KindTreeSet:     {"tree_sets", "otu_sets", "otu_set_id"},
	model.KindTree:        {"trees", "tree_sets", "tree_set_id"},
	model.KindAttachment:  {"attachments", "", ""},
}

// searchOrder lists kinds searched when the kind of an identifier is unknown.
var searchOrder = []model.Kind{
	model.KindStudy, model.KindOtuSet, model.KindMatrix, model.KindOtu,
	model.KindCharacter, model.KindRow, model.KindSequenceSet, model.KindSequence,
	model.KindTreeSet, model.KindTree, model.KindAttachment,
}

func refQuery(kind model.Kind) (string, bool) {
	if kind == model.KindStudy {
		return sqlFindStudyRef, true
	}

	kt, ok := kindTables[kind]
	if !ok {
		return "", false
	}

	if kt.ownerTable == "" {
		return fmt.Sprintf(`SELECT t.external_id, '', s.external_id FROM %s t
			JOIN studies s ON s.id = t.study_id WHERE t.external_id = ?`, kt.table), true
	}

	return fmt.Sprintf(`SELECT t.external_id, o.external_id, s.external_id FROM %s t
		JOIN %s o ON o.id = t.%s
		JOIN studies s ON s.id = t.study_id WHERE t.external_id = ?`,
		kt.table, kt.ownerTable, kt.ownerColumn), true
}

func findRef(ctx context.Context, q querier, kind model.Kind, externalID string) (*merge.Ref, error) {
	query, ok := refQuery(kind)
	if !ok {
		return nil, model.NotFound(kind, externalID)
	}

	ref := &merge.Ref{Kind: kind}

	err := q.QueryRowContext(ctx, query, externalID).Scan(&ref.ExternalID, &ref.OwnerExternalID, &ref.StudyExternalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound(kind, externalID)
	}

	if err != nil {
		return nil, fmt.Errorf("store: finding %s %q: %w", kind, externalID, err)
	}

	return ref, nil
}

// findAnyKind searches every owned table for externalID.
func findAnyKind(ctx context.Context, q querier, externalID string) (*merge.Ref, error) {
	for _, kind := range searchOrder {
		ref, err := findRef(ctx, q, kind, externalID)
		if err == nil {
			return ref, nil
		}

		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}

	return nil, model.NotFound("", externalID)
}

// FindByExternalID locates a persisted entity of the given kind, whichever
// study it lives in.
func (t *Tx) FindByExternalID(ctx context.Context, kind model.Kind, externalID string) (*merge.Ref, error) {
	return findRef(ctx, t.tx, kind, externalID)
}

// FindLookupValue returns the stored attachment type with the given value.
func (t *Tx) FindLookupValue(ctx context.Context, namespace, label string) (*model.AttachmentType, error) {
	at := &model.AttachmentType{}

	err := t.tx.QueryRowContext(ctx, sqlFindAttachmentType, namespace, label).
		Scan(&at.ID, &at.ExternalID, &at.Version, &at.Namespace, &at.Label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound(model.KindAttachmentType, namespace+"/"+label)
	}

	if err != nil {
		return nil, fmt.Errorf("store: finding attachment type %s/%s: %w", namespace, label, err)
	}

	return at, nil
}

// NextVersion allocates the next stamp from the in-database counter. The
// increment commits or rolls back with the rest of the transaction.
func (t *Tx) NextVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := t.tx.QueryRowContext(ctx, sqlNextVersion).Scan(&v); err != nil {
		return 0, fmt.Errorf("store: allocating version: %w", err)
	}

	return v, nil
}

// LoadStudy reads a study for merging. Returns a not-found error when no
// study has the identifier.
func (t *Tx) LoadStudy(ctx context.Context, externalID string) (*model.Study, error) {
	return loadStudy(ctx, t.tx, externalID)
}

// SaveStudy writes a stamped study back. Every entity must be clean.
func (t *Tx) SaveStudy(ctx context.Context, study *model.Study) error {
	w := &writer{ctx: ctx, q: t.tx}
	if err := w.save(study); err != nil {
		return err
	}

	t.logger.Debug("study saved",
		slog.String("study", study.ExternalID),
		slog.Int64("version", study.Version),
		slog.Int("rows_written", w.written),
	)

	return nil
}
