package merge

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/tonimelisma/phylomerge/internal/model"
)

// MatrixContext carries what a matrix merge needs from its already
// reconciled OTU set: the managed OTU set itself and the mapping from every
// incoming OTU to its managed counterpart.
type MatrixContext struct {
	OtuSet *model.OtuSet
	Otus   map[*model.Otu]*model.Otu
}

// MatrixReconciler merges one incoming matrix into its managed counterpart.
type MatrixReconciler struct {
	mint   IDMinter
	logger *slog.Logger
	report *Report
}

// NewMatrixReconciler returns a reconciler that mints identifiers with mint
// (NewUUID when nil).
func NewMatrixReconciler(mint IDMinter, logger *slog.Logger) *MatrixReconciler {
	if mint == nil {
		mint = NewUUID
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &MatrixReconciler{mint: mint, logger: logger, report: newReport()}
}

// Reconcile validates incoming in full and then merges it into managed. A
// nil managed matrix is created inside mctx.OtuSet. Nothing is mutated when
// validation fails.
func (r *MatrixReconciler) Reconcile(
	ctx context.Context, managed, incoming *model.Matrix, mctx MatrixContext,
) (*model.Matrix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := ValidateMatrix(incoming, slices.Collect(maps.Keys(mctx.Otus))); err != nil {
		return nil, err
	}

	fresh := managed == nil
	if fresh {
		// Detached until the column plan succeeds.
		managed = model.NewMatrix(incoming.Type, incoming.Label)
		managed.ExternalID = r.mint()
	} else if managed.Type != incoming.Type {
		return nil, model.Validationf(model.KindMatrix, managed.ExternalID,
			"matrix type cannot change from %s to %s", managed.Type, incoming.Type)
	}

	plan, err := r.planColumns(managed, incoming)
	if err != nil {
		return nil, err
	}

	if fresh {
		mctx.OtuSet.SetMatrices(append(mctx.OtuSet.Matrices, managed))
		model.MarkNew(managed)
		r.report.created(model.KindMatrix, 1)
	}

	if err := r.apply(managed, incoming, mctx, plan); err != nil {
		return nil, err
	}

	return managed, nil
}

// planColumns checks incoming character identifiers against managed without
// touching either. Molecular matrices share one character and need no plan.
func (r *MatrixReconciler) planColumns(managed, incoming *model.Matrix) (*Plan[*model.Character], error) {
	if managed.Type.Molecular() {
		return nil, nil
	}

	return r.characterRealigner(managed).Plan(managed.Characters, incoming.Characters)
}

// ValidateMatrix checks everything about incoming that could make a merge
// fail halfway: molecular homogeneity, one row per OTU, row length, cell
// cardinality and state membership against the incoming characters.
func ValidateMatrix(incoming *model.Matrix, otus []*model.Otu) error {
	id := incoming.ExternalID

	if _, err := model.ParseMatrixType(string(incoming.Type)); err != nil {
		return model.Validationf(model.KindMatrix, id, "%v", err)
	}

	if err := validateColumns(incoming); err != nil {
		return err
	}

	known := make(map[*model.Otu]bool, len(otus))
	for _, otu := range otus {
		known[otu] = true
	}

	for _, otu := range incoming.RowOtus() {
		if !known[otu] {
			return model.Validationf(model.KindMatrix, id, "row for otu %q outside the otu set", otu.Label)
		}
	}

	width := incoming.ColumnCount()

	for _, otu := range otus {
		row := incoming.Row(otu)
		if row == nil {
			return model.Validationf(model.KindMatrix, id, "no row for otu %q", otu.Label)
		}

		if len(row.Cells) != width {
			return model.Validationf(model.KindRow, row.ExternalID,
				"otu %q has %d cells, matrix has %d columns", otu.Label, len(row.Cells), width)
		}

		for j, cell := range row.Cells {
			if err := model.CheckCell(cell.Type, cell.States(), incoming.Characters[j]); err != nil {
				return fmt.Errorf("otu %q column %d: %w", otu.Label, j, err)
			}
		}
	}

	return nil
}

func validateColumns(incoming *model.Matrix) error {
	id := incoming.ExternalID

	for j, ch := range incoming.Characters {
		if ch == nil {
			return model.Validationf(model.KindMatrix, id, "column %d has no character", j)
		}
	}

	if !incoming.Type.Molecular() {
		for _, ch := range incoming.Characters {
			if ch.Molecule() != "" {
				return model.Validationf(model.KindCharacter, ch.ExternalID,
					"%s character in a standard matrix", ch.Molecule())
			}
		}

		return nil
	}

	if len(incoming.Characters) == 0 {
		return nil
	}

	first := incoming.Characters[0]
	for _, ch := range incoming.Characters[1:] {
		if !ch.Equivalent(first) {
			return model.Validationf(model.KindMatrix, id, "heterogeneous molecular characters")
		}
	}

	if first.Molecule() != incoming.Type {
		return model.Validationf(model.KindMatrix, id,
			"molecular columns must use the %s character", incoming.Type)
	}

	return nil
}

// apply merges a validated incoming matrix. Steps run in dependency order:
// columns, then rows, then cell layout, then cell values.
func (r *MatrixReconciler) apply(
	managed, incoming *model.Matrix, mctx MatrixContext, plan *Plan[*model.Character],
) error {
	managed.SetLabel(incoming.Label)
	managed.SetDescription(incoming.Description)

	source := r.realignColumns(managed, incoming, plan)

	r.realignRows(managed, source)

	width := managed.ColumnCount()
	for _, row := range managed.Rows() {
		if len(row.Cells) != width {
			return model.Consistencyf(model.KindRow, row.ExternalID,
				"row has %d cells after realignment, matrix has %d columns", len(row.Cells), width)
		}
	}

	return r.copyCells(managed, incoming, mctx)
}

// realignColumns brings the managed character list in line with incoming and
// returns the column mapping: source[j] is the old index of new column j, or
// -1 for a new column.
func (r *MatrixReconciler) realignColumns(managed, incoming *model.Matrix, plan *Plan[*model.Character]) []int {
	if plan == nil {
		return r.realignMolecularColumns(managed, incoming)
	}

	a := plan.Apply()

	r.report.record(model.KindCharacter, a.Created(), len(a.Removed))
	r.logger.Debug("realigned characters",
		slog.String("matrix", managed.ExternalID),
		slog.Int("columns", len(a.Result)),
		slog.Int("created", a.Created()),
		slog.Int("removed", len(a.Removed)),
		slog.Bool("changed", a.Changed),
	)

	return a.Source
}

func (r *MatrixReconciler) characterRealigner(managed *model.Matrix) *Realigner[*model.Character] {
	return &Realigner[*model.Character]{
		Kind:  model.KindCharacter,
		Owner: managed,
		Mint:  r.mint,
		Create: func(in *model.Character) *model.Character {
			return model.NewCharacter(in.Label, maps.Clone(in.States))
		},
		Update: func(m, in *model.Character) {
			m.SetLabel(in.Label)
			m.SetStates(in.States)
		},
		Attach: func(a *Alignment[*model.Character]) {
			managed.SetColumns(a.Result, r.remapVersions(managed, a.Source), r.pendingFor(managed, a.Source))
		},
	}
}

// realignMolecularColumns keeps the single shared molecule character and
// maps columns positionally: existing columns stay where they are and the
// tail is added or truncated.
func (r *MatrixReconciler) realignMolecularColumns(managed, incoming *model.Matrix) []int {
	oldLen := managed.ColumnCount()
	newLen := incoming.ColumnCount()

	source := make([]int, newLen)
	for j := range source {
		source[j] = -1
		if j < oldLen {
			source[j] = j
		}
	}

	var shared *model.Character
	if oldLen > 0 {
		shared = managed.Characters[0]
	}

	created := shared == nil && newLen > 0
	if created {
		shared = model.NewMolecularCharacter(managed.Type)
		shared.ExternalID = r.mint()
	}

	chars := make([]*model.Character, newLen)
	for j := range chars {
		chars[j] = shared
	}

	managed.SetColumns(chars, r.remapVersions(managed, source), r.pendingFor(managed, source))

	if created {
		model.MarkNew(shared)
		r.report.created(model.KindCharacter, 1)
	}

	// The shared character goes with the last column.
	if shared != nil && newLen == 0 {
		detach(shared)
		r.report.record(model.KindCharacter, 0, 1)
	}

	if oldLen != newLen {
		model.MarkDirty(managed)
	}

	return source
}

func (r *MatrixReconciler) remapVersions(managed *model.Matrix, source []int) []int64 {
	versions, _ := Remap(managed.ColumnVersions, source, func(int) int64 { return 0 })
	return versions
}

// pendingFor flags every column that is new or changed index, plus columns
// that were already awaiting a stamp.
func (r *MatrixReconciler) pendingFor(managed *model.Matrix, source []int) []bool {
	pending := make([]bool, len(source))
	for j, src := range source {
		pending[j] = src != j || managed.ColumnPending(src)
	}

	return pending
}

// realignRows drops rows of OTUs that left the OTU set, creates empty rows
// for new OTUs and remaps every surviving row's cells onto the new columns.
func (r *MatrixReconciler) realignRows(managed *model.Matrix, source []int) {
	otus := managed.OtuSet().Otus

	present := make(map[*model.Otu]bool, len(otus))
	for _, otu := range otus {
		present[otu] = true
	}

	membershipChanged := false

	for _, otu := range managed.RowOtus() {
		if present[otu] {
			continue
		}

		managed.RemoveRow(otu)
		membershipChanged = true
		r.report.record(model.KindRow, 0, 1)
	}

	width := len(source)

	for _, otu := range otus {
		row := managed.Row(otu)
		if row == nil {
			row = model.NewRow()
			row.ExternalID = r.mint()

			cells := make([]*model.Cell, width)
			for j := range cells {
				cells[j] = model.NewCell()
			}

			row.SetCells(cells)
			managed.PutRow(otu, row)
			model.MarkNew(row)

			for _, c := range cells {
				model.MarkNew(c)
			}

			membershipChanged = true
			r.report.record(model.KindRow, 1, 0)
			r.report.created(model.KindCell, width)

			continue
		}

		cells, removed := Remap(row.Cells, source, func(int) *model.Cell { return model.NewCell() })
		for _, c := range removed {
			c.Detach()
		}

		reshaped := layoutChanged(len(row.Cells), source)
		row.SetCells(cells)

		for j, src := range source {
			if src < 0 {
				model.MarkNew(cells[j])
				r.report.created(model.KindCell, 1)
			}
		}

		r.report.record(model.KindCell, 0, len(removed))

		if reshaped {
			model.MarkDirty(row)
		}
	}

	if membershipChanged {
		model.MarkDirty(managed)
		for j := range width {
			managed.InvalidateColumn(j)
		}
	}
}

// copyCells copies every incoming cell value onto the managed cell at the
// same (OTU, column). Cell.Set flags the cell and its column on change.
func (r *MatrixReconciler) copyCells(managed, incoming *model.Matrix, mctx MatrixContext) error {
	changed := 0

	for in, otu := range mctx.Otus {
		src := incoming.Row(in)
		dst := managed.Row(otu)

		if src == nil || dst == nil {
			return model.Consistencyf(model.KindMatrix, managed.ExternalID, "row for otu %q vanished", otu.Label)
		}

		for j, cell := range dst.Cells {
			ok, err := cell.Set(src.Cells[j].Type, src.Cells[j].States())
			if err != nil {
				return fmt.Errorf("otu %q column %d: %w", otu.Label, j, err)
			}

			if ok {
				changed++
			}
		}
	}

	r.logger.Debug("copied cells",
		slog.String("matrix", managed.ExternalID),
		slog.Int("changed", changed),
		slog.Any("pending_columns", managed.PendingColumns()),
	)

	return nil
}
