package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/phylomerge/internal/merge"
	"github.com/tonimelisma/phylomerge/internal/model"
)

// BatchResult is the outcome of one document of a batch.
type BatchResult struct {
	Index  int
	Report *merge.Report
	Err    error
}

// ReconcileAll merges every document, running distinct studies in parallel
// (bounded by the worker count) and documents for the same study one after
// another in input order. Validation and not-found errors are recorded in
// the result for their document; any other error cancels the batch and is
// returned.
func (e *Engine) ReconcileAll(ctx context.Context, docs []*model.Study) ([]BatchResult, error) {
	results := make([]BatchResult, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	var mu sync.Mutex

	for _, group := range groupByStudy(docs) {
		g.Go(func() error {
			for _, i := range group {
				if err := gctx.Err(); err != nil {
					return err
				}

				report, err := e.ReconcileStudy(gctx, docs[i])
				if err != nil && !skippable(err) {
					return err
				}

				if err != nil {
					e.logger.Warn("batch document skipped",
						slog.Int("index", i),
						slog.String("study", docs[i].ExternalID),
						slog.String("error", err.Error()),
					)
				}

				mu.Lock()
				results[i] = BatchResult{Index: i, Report: report, Err: err}
				mu.Unlock()
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	return results, nil
}

// groupByStudy partitions document indexes by study identifier, preserving
// input order. Every new study (empty identifier) forms its own group.
func groupByStudy(docs []*model.Study) [][]int {
	var groups [][]int

	byID := make(map[string]int)

	for i, doc := range docs {
		if doc.ExternalID == "" {
			groups = append(groups, []int{i})
			continue
		}

		g, ok := byID[doc.ExternalID]
		if !ok {
			g = len(groups)
			byID[doc.ExternalID] = g
			groups = append(groups, nil)
		}

		groups[g] = append(groups[g], i)
	}

	return groups
}

func skippable(err error) bool {
	return errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrNotFound)
}
