package merge

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/phylomerge/internal/model"
)

// testLogger returns an slog.Logger at Debug level that writes to t.Log,
// so every realignment decision appears in test output with -v.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T.Log to io.Writer for slog output.
type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// fakeLookup resolves identifiers that live outside the managed graph.
type fakeLookup struct {
	refs  map[string]*Ref
	types map[model.LookupKey]*model.AttachmentType
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		refs:  make(map[string]*Ref),
		types: make(map[model.LookupKey]*model.AttachmentType),
	}
}

func (f *fakeLookup) FindByExternalID(_ context.Context, kind model.Kind, id string) (*Ref, error) {
	if ref, ok := f.refs[id]; ok && ref.Kind == kind {
		return ref, nil
	}

	return nil, model.NotFound(kind, id)
}

func (f *fakeLookup) FindLookupValue(_ context.Context, namespace, label string) (*model.AttachmentType, error) {
	if t, ok := f.types[model.LookupKey{Namespace: namespace, Label: label}]; ok {
		return t, nil
	}

	return nil, model.NotFound(model.KindAttachmentType, namespace+"/"+label)
}

// countingMinter hands out predictable identifiers and counts them.
type countingMinter struct {
	n int
}

func (m *countingMinter) mint() string {
	m.n++
	return fmt.Sprintf("new-%d", m.n)
}

// newTestReconciler returns a reconciler with a fresh fake lookup and a
// counting minter.
func newTestReconciler(t *testing.T) (*Reconciler, *fakeLookup, *countingMinter) {
	t.Helper()

	lookup := newFakeLookup()
	minter := &countingMinter{}

	return NewReconciler(lookup, testLogger(t), WithMinter(minter.mint)), lookup, minter
}

// studyLayout describes a study with one OTU set and one standard matrix whose
// characters all define states 0, 1 and 2. Cells hold single state 0 unless
// overridden in cells, keyed by (otu id, character id).
type studyLayout struct {
	otus  []string
	chars []string
	cells map[[2]string]int
}

func buildStudy(layout studyLayout) *model.Study {
	study := model.NewStudy("study")
	study.ExternalID = "s1"

	os := model.NewOtuSet("otus")
	os.ExternalID = "os1"
	study.AddOtuSet(os)

	m := model.NewMatrix(model.MatrixStandard, "morphology")
	m.ExternalID = "m1"
	os.AddMatrix(m)

	for _, id := range layout.chars {
		c := model.NewCharacter("char "+id, map[int]string{0: "zero", 1: "one", 2: "two"})
		c.ExternalID = id
		m.AddCharacter(c)
	}

	for _, id := range layout.otus {
		otu := model.NewOtu("taxon " + id)
		otu.ExternalID = id
		os.AddOtu(otu)

		row := model.NewRow()
		row.ExternalID = "row-" + id

		for _, c := range layout.chars {
			row.AddCell(model.RestoreCell(model.CellSingle, []int{layout.cells[[2]string{id, c}]}))
		}

		m.PutRow(otu, row)
	}

	return study
}

// persisted stamps every entity of study with version 1, as if it had just
// been loaded from the store.
func persisted(t *testing.T, study *model.Study) *model.Study {
	t.Helper()

	require.NoError(t, model.WalkPostOrder(study, func(e model.Entity) error {
		e.Info().Stamp(1)
		if m, ok := e.(*model.Matrix); ok {
			m.ResolvePendingColumns(1)
		}

		return nil
	}))

	return study
}

// dirtyEntities returns every dirty entity under root.
func dirtyEntities(t *testing.T, root model.Entity) []model.Entity {
	t.Helper()

	var out []model.Entity

	require.NoError(t, model.WalkPostOrder(root, func(e model.Entity) error {
		if e.Info().IsDirty() {
			out = append(out, e)
		}

		return nil
	}))

	return out
}

func otuByID(os *model.OtuSet, id string) *model.Otu {
	for _, otu := range os.Otus {
		if otu.ExternalID == id {
			return otu
		}
	}

	return nil
}

func matrixOf(study *model.Study) *model.Matrix {
	return study.OtuSets[0].Matrices[0]
}
