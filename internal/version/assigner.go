package version

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/phylomerge/internal/model"
)

// Assigner stamps every dirty entity reachable from a root. It must run
// inside the same transaction as the merge it follows, so a failure rolls
// back structure and stamps together.
type Assigner struct {
	source Source
	logger *slog.Logger
}

// NewAssigner returns an Assigner drawing stamps from source.
func NewAssigner(source Source, logger *slog.Logger) *Assigner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Assigner{source: source, logger: logger}
}

// Assign walks root depth-first, children before owners, and gives each
// dirty entity its own stamp, clearing the flag. A matrix's pending column
// slots take the matrix's new stamp. Clean entities keep their version.
// Because owners are stamped after their children, an owner's version is
// never below any child's. Returns the number of stamps issued.
func (a *Assigner) Assign(ctx context.Context, root model.Entity) (int, error) {
	stamped := 0

	err := model.WalkPostOrder(root, func(e model.Entity) error {
		info := e.Info()
		if !info.IsDirty() {
			return nil
		}

		v, err := a.source.NextVersion(ctx)
		if err != nil {
			return fmt.Errorf("version: stamping %s %q: %w", e.Kind(), info.ExternalID, err)
		}

		info.Stamp(v)
		stamped++

		if m, ok := e.(*model.Matrix); ok {
			m.ResolvePendingColumns(v)
		}

		return nil
	})
	if err != nil {
		return stamped, err
	}

	a.logger.Debug("assigned versions",
		slog.String("root", root.Info().ExternalID),
		slog.Int("stamped", stamped),
		slog.Int64("root_version", root.Info().Version),
	)

	return stamped, nil
}
