// Package engine is the service layer around the merge core. It owns the
// transaction boundary, serializes merges that target the same study, stamps
// versions once a merge succeeds and records metrics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/tonimelisma/phylomerge/internal/changes"
	"github.com/tonimelisma/phylomerge/internal/merge"
	"github.com/tonimelisma/phylomerge/internal/model"
	"github.com/tonimelisma/phylomerge/internal/store"
	"github.com/tonimelisma/phylomerge/internal/version"
)

const defaultWorkers = 4

// Engine runs merges against a store.
type Engine struct {
	store   *store.Store
	source  version.Source
	mint    merge.IDMinter
	workers int
	metrics *Metrics
	logger  *slog.Logger

	// locks holds one mutex per study external identifier.
	locks *xsync.MapOf[string, *sync.Mutex]
}

// Option configures an Engine.
type Option func(*Engine)

// WithVersionSource stamps versions from src instead of the store's
// transactional counter.
func WithVersionSource(src version.Source) Option {
	return func(e *Engine) { e.source = src }
}

// WithWorkers bounds the number of studies merged concurrently by
// ReconcileAll.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithMetrics records merge metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMinter overrides how external identifiers are minted.
func WithMinter(mint merge.IDMinter) Option {
	return func(e *Engine) { e.mint = mint }
}

// New returns an engine over st.
func New(st *store.Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store:   st,
		mint:    merge.NewUUID,
		workers: defaultWorkers,
		metrics: NewMetrics(nil),
		logger:  logger,
		locks:   xsync.NewMapOf[string, *sync.Mutex](),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// lock serializes work on one study. Studies that do not exist yet have no
// identifier to contend on and are not locked.
func (e *Engine) lock(studyID string) func() {
	if studyID == "" {
		return func() {}
	}

	mu, _ := e.locks.LoadOrCompute(studyID, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()

	return mu.Unlock
}

// ReconcileStudy merges incoming into the stored study with the same
// external identifier, or creates a new study when the identifier is empty.
// The merge, version assignment and save commit together or not at all.
func (e *Engine) ReconcileStudy(ctx context.Context, incoming *model.Study) (*merge.Report, error) {
	unlock := e.lock(incoming.ExternalID)
	defer unlock()

	start := time.Now()

	var report *merge.Report

	err := e.store.RunInTx(ctx, func(tx *store.Tx) error {
		managed, err := e.loadManaged(ctx, tx, incoming.ExternalID)
		if err != nil {
			return err
		}

		merged, rep, err := merge.NewReconciler(tx, e.logger, merge.WithMinter(e.mint)).
			ReconcileStudy(ctx, managed, incoming)
		if err != nil {
			return err
		}

		if err := e.stampAndSave(ctx, tx, merged, rep); err != nil {
			return err
		}

		report = rep

		return nil
	})

	e.finish(err, time.Since(start), report)

	if err != nil {
		return nil, err
	}

	return report, nil
}

// ReconcileOtuSet merges a single OTU set into its stored counterpart, which
// may live in any study.
func (e *Engine) ReconcileOtuSet(ctx context.Context, incoming *model.OtuSet) (*merge.Report, error) {
	var ref *merge.Ref

	err := e.store.RunInTx(ctx, func(tx *store.Tx) error {
		var err error
		ref, err = tx.FindByExternalID(ctx, model.KindOtuSet, incoming.ExternalID)

		return err
	})
	if err != nil {
		e.finish(err, 0, nil)
		return nil, err
	}

	unlock := e.lock(ref.StudyExternalID)
	defer unlock()

	start := time.Now()

	var report *merge.Report

	err = e.store.RunInTx(ctx, func(tx *store.Tx) error {
		study, err := tx.LoadStudy(ctx, ref.StudyExternalID)
		if err != nil {
			return err
		}

		managed, err := changes.Find(study, incoming.ExternalID)
		if err != nil {
			return err
		}

		os, ok := managed.(*model.OtuSet)
		if !ok {
			return model.Consistencyf(model.KindOtuSet, incoming.ExternalID, "resolved to a %s", managed.Kind())
		}

		rep, err := merge.NewReconciler(tx, e.logger, merge.WithMinter(e.mint)).ReconcileOtuSet(ctx, os, incoming)
		if err != nil {
			return err
		}

		rep.StudyExternalID = study.ExternalID

		if err := e.stampAndSave(ctx, tx, study, rep); err != nil {
			return err
		}

		report = rep

		return nil
	})

	e.finish(err, time.Since(start), report)

	if err != nil {
		return nil, err
	}

	return report, nil
}

func (e *Engine) loadManaged(ctx context.Context, tx *store.Tx, studyID string) (*model.Study, error) {
	if studyID == "" {
		return nil, nil
	}

	managed, err := tx.LoadStudy(ctx, studyID)
	if errors.Is(err, model.ErrNotFound) {
		// The reconciler reports unknown identifiers itself.
		return nil, nil
	}

	return managed, err
}

// stampAndSave assigns versions to everything the merge flagged and writes
// the study back. A merge that changed nothing writes nothing.
func (e *Engine) stampAndSave(ctx context.Context, tx *store.Tx, study *model.Study, rep *merge.Report) error {
	source := e.source
	if source == nil {
		source = tx
	}

	n, err := version.NewAssigner(source, e.logger).Assign(ctx, study)
	if err != nil {
		return err
	}

	rep.Stamped = n

	if n == 0 {
		return nil
	}

	if err := tx.SaveStudy(ctx, study); err != nil {
		return fmt.Errorf("engine: saving study %q: %w", study.ExternalID, err)
	}

	return nil
}

func (e *Engine) finish(err error, elapsed time.Duration, report *merge.Report) {
	e.metrics.observe(err, elapsed, report)

	if err != nil {
		e.logger.Warn("merge failed",
			slog.String("outcome", Outcome(err)),
			slog.String("error", err.Error()),
		)

		return
	}

	e.logger.Info("merge committed",
		slog.String("study", report.StudyExternalID),
		slog.Int("stamped", report.Stamped),
		slog.Duration("elapsed", elapsed),
	)
}

// ChangedSince returns everything under the entity rootID whose version is
// newer than baseline.
func (e *Engine) ChangedSince(ctx context.Context, rootID string, baseline int64) (*changes.ChangeSet, error) {
	return changes.NewQuery(e.store).ChangedSince(ctx, rootID, baseline)
}

// Study returns the stored study with the given identifier.
func (e *Engine) Study(ctx context.Context, studyID string) (*model.Study, error) {
	return e.store.LoadStudy(ctx, studyID)
}

// Studies lists every stored study.
func (e *Engine) Studies(ctx context.Context) ([]store.StudySummary, error) {
	return e.store.ListStudies(ctx)
}
