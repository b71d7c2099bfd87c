package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/phylomerge/internal/model"
)

// Reconciler merges incoming study graphs into managed ones. It holds no
// per-merge state and is safe for concurrent use on distinct graphs; merges
// of the same study must be serialized by the caller.
type Reconciler struct {
	lookup EntityLookup
	mint   IDMinter
	logger *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithMinter replaces the UUID minter, mostly for deterministic tests.
func WithMinter(mint IDMinter) Option {
	return func(r *Reconciler) {
		r.mint = mint
	}
}

// NewReconciler returns a Reconciler resolving out-of-graph references
// through lookup.
func NewReconciler(lookup EntityLookup, logger *slog.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Reconciler{lookup: lookup, mint: NewUUID, logger: logger}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ReconcileStudy merges incoming into managed and returns the managed study.
// Pass a nil managed study for a study that has never been persisted; its
// incoming external identifier must then be empty. The whole incoming graph
// is validated and every reference resolved before anything is mutated, so
// on error managed is untouched.
func (r *Reconciler) ReconcileStudy(ctx context.Context, managed, incoming *model.Study) (*model.Study, *Report, error) {
	s := r.newSession(ctx)

	switch {
	case managed != nil:
		if incoming.ExternalID != managed.ExternalID {
			return nil, nil, model.Validationf(model.KindStudy, incoming.ExternalID,
				"does not match persisted study %q", managed.ExternalID)
		}

		if err := s.indexManaged(managed); err != nil {
			return nil, nil, err
		}
	case incoming.ExternalID != "":
		if err := s.resolveDetachedRoot(model.KindStudy, incoming.ExternalID); err != nil {
			return nil, nil, err
		}
	}

	if err := s.prepare(incoming); err != nil {
		return nil, nil, err
	}

	if managed == nil {
		managed = model.NewStudy(incoming.Label)
		managed.ExternalID = s.mint()
		model.MarkNew(managed)
		s.report.created(model.KindStudy, 1)
	}

	if err := s.applyStudy(managed, incoming); err != nil {
		return nil, nil, err
	}

	if err := s.finish(managed); err != nil {
		return nil, nil, err
	}

	r.logger.Info("study reconciled",
		slog.String("study", managed.ExternalID),
		slog.Bool("changed", s.report.Changed()),
	)

	return managed, s.report, nil
}

// ReconcileOtuSet merges a single incoming OTU set into its persisted
// counterpart. The managed OTU set must exist; new OTU sets enter through
// ReconcileStudy.
func (r *Reconciler) ReconcileOtuSet(ctx context.Context, managed, incoming *model.OtuSet) (*Report, error) {
	if managed == nil {
		return nil, model.NotFound(model.KindOtuSet, incoming.ExternalID)
	}

	if incoming.ExternalID != managed.ExternalID {
		return nil, model.Validationf(model.KindOtuSet, incoming.ExternalID,
			"does not match persisted otu set %q", managed.ExternalID)
	}

	s := r.newSession(ctx)

	var root model.Entity = managed
	if study := managed.Study(); study != nil {
		root = study
	}

	if err := s.indexManaged(root); err != nil {
		return nil, err
	}

	if err := s.prepare(incoming); err != nil {
		return nil, err
	}

	if err := s.applyOtuSet(managed, incoming); err != nil {
		return nil, err
	}

	if err := s.finish(root); err != nil {
		return nil, err
	}

	r.logger.Info("otu set reconciled",
		slog.String("otu_set", managed.ExternalID),
		slog.Bool("changed", s.report.Changed()),
	)

	return s.report, nil
}

// session carries the state of one merge.
type session struct {
	ctx      context.Context
	lookup   EntityLookup
	mint     IDMinter
	logger   *slog.Logger
	report   *Report
	index    map[string]model.Entity
	types    map[model.LookupKey]*model.AttachmentType
	matrices *MatrixReconciler
}

func (r *Reconciler) newSession(ctx context.Context) *session {
	report := newReport()

	return &session{
		ctx:      ctx,
		lookup:   r.lookup,
		mint:     r.mint,
		logger:   r.logger,
		report:   report,
		index:    make(map[string]model.Entity),
		types:    make(map[model.LookupKey]*model.AttachmentType),
		matrices: &MatrixReconciler{mint: r.mint, logger: r.logger, report: report},
	}
}

// indexManaged records every identifiable entity of the managed graph and
// the attachment types it already references.
func (s *session) indexManaged(root model.Entity) error {
	return model.WalkPostOrder(root, func(e model.Entity) error {
		if a, ok := e.(*model.Attachment); ok && a.Type != nil {
			s.types[a.Type.Key()] = a.Type
		}

		if id := e.Info().ExternalID; id != "" && matchedByID(e.Kind()) {
			s.index[id] = e
		}

		return nil
	})
}

// resolveDetachedRoot handles an incoming root that carries an identifier
// but has no loaded managed counterpart.
func (s *session) resolveDetachedRoot(kind model.Kind, id string) error {
	ref, err := s.lookup.FindByExternalID(s.ctx, kind, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.NotFound(kind, id)
		}

		return fmt.Errorf("merge: resolving %s %q: %w", kind, id, err)
	}

	return model.Validationf(kind, id, "persisted in study %q but not loaded for merge", ref.StudyExternalID)
}

// finish fills the update counts from the dirty flags left on the graph.
func (s *session) finish(root model.Entity) error {
	if study, ok := root.(*model.Study); ok {
		s.report.StudyExternalID = study.ExternalID
	}

	dirty := make(map[model.Kind]int)
	seen := make(map[model.Entity]bool)

	err := model.WalkPostOrder(root, func(e model.Entity) error {
		if e.Info().IsDirty() && !seen[e] {
			seen[e] = true
			dirty[e.Kind()]++
		}

		return nil
	})
	if err != nil {
		return err
	}

	for kind, n := range dirty {
		s.report.updated(kind, n-s.report.Created[kind])
	}

	return nil
}

// matchedByID reports whether entities of kind are matched by external
// identifier. Rows and sequences are keyed by OTU, cells by position, and
// attachment types by value.
func matchedByID(kind model.Kind) bool {
	switch kind {
	case model.KindRow, model.KindCell, model.KindSequence, model.KindAttachmentType:
		return false
	default:
		return true
	}
}
