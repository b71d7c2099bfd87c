package version

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/phylomerge/internal/model"
)

// buildStudy returns a study with two OTUs and two 2x2 standard matrices,
// every entity stamped at version 1.
func buildStudy(t *testing.T) (*model.Study, *model.OtuSet, []*model.Matrix) {
	t.Helper()

	study := model.NewStudy("study")
	os := model.NewOtuSet("otus")
	study.AddOtuSet(os)

	otus := []*model.Otu{model.NewOtu("A"), model.NewOtu("B")}
	for _, otu := range otus {
		os.AddOtu(otu)
	}

	var matrices []*model.Matrix

	for _, label := range []string{"m1", "m2"} {
		m := model.NewMatrix(model.MatrixStandard, label)
		os.AddMatrix(m)
		m.AddCharacter(model.NewCharacter("c0", map[int]string{0: "a", 1: "b"}))
		m.AddCharacter(model.NewCharacter("c1", map[int]string{0: "a", 1: "b"}))

		for _, otu := range otus {
			row := model.NewRow()
			row.AddCell(model.NewCell())
			row.AddCell(model.NewCell())
			m.PutRow(otu, row)
		}

		matrices = append(matrices, m)
	}

	require.NoError(t, model.WalkPostOrder(study, func(e model.Entity) error {
		e.Info().Stamp(1)
		return nil
	}))

	return study, os, matrices
}

func TestAssign_VersionCascade(t *testing.T) {
	study, os, matrices := buildStudy(t)
	m, sibling := matrices[0], matrices[1]
	rows := m.Rows()
	cell := rows[1].Cells[0]

	changed, err := cell.SetUncertainWithStates(0, 1)
	require.NoError(t, err)
	require.True(t, changed)

	stamped, err := NewAssigner(NewCounter(1), nil).Assign(context.Background(), study)
	require.NoError(t, err)
	assert.Equal(t, 5, stamped)

	chain := []model.Entity{cell, rows[1], m, os, study}
	for i, e := range chain {
		assert.Greater(t, e.Info().Version, int64(1), "%s", e.Kind())
		assert.False(t, e.Info().IsDirty())

		if i > 0 {
			assert.Greater(t, e.Info().Version, chain[i-1].Info().Version,
				"%s must be stamped after %s", e.Kind(), chain[i-1].Kind())
		}
	}

	assert.Equal(t, int64(1), rows[0].Version)
	assert.Equal(t, int64(1), rows[1].Cells[1].Version)
	assert.Equal(t, int64(1), sibling.Version)
	assert.Equal(t, int64(1), os.Otus[0].Version)

	assert.Equal(t, []int64{m.Version, 0}, m.ColumnVersions)
	assert.Empty(t, m.PendingColumns())
}

func TestAssign_CleanGraphIssuesNothing(t *testing.T) {
	study, _, _ := buildStudy(t)
	counter := NewCounter(1)

	stamped, err := NewAssigner(counter, nil).Assign(context.Background(), study)

	require.NoError(t, err)
	assert.Zero(t, stamped)
	assert.Equal(t, int64(1), counter.Last())
}

func TestAssign_SharedAttachmentTypeStampedOnce(t *testing.T) {
	study, os, _ := buildStudy(t)

	typ := model.NewAttachmentType("dc", "creator")
	a1 := model.NewAttachment(typ, "x")
	a2 := model.NewAttachment(typ, "y")
	study.SetAttachments([]*model.Attachment{a1})
	os.SetAttachments([]*model.Attachment{a2})

	for _, e := range []model.Entity{typ, a1, a2} {
		model.MarkNew(e)
	}

	stamped, err := NewAssigner(NewCounter(1), nil).Assign(context.Background(), study)
	require.NoError(t, err)

	// type, two attachments, the otu set and the study
	assert.Equal(t, 5, stamped)
	assert.Less(t, typ.Version, a1.Version)
	assert.Less(t, typ.Version, a2.Version)
}

type failingSource struct{}

func (failingSource) NextVersion(context.Context) (int64, error) {
	return 0, errors.New("sequence exhausted")
}

func TestAssign_SourceError(t *testing.T) {
	study, _, matrices := buildStudy(t)
	model.MarkDirty(matrices[0])

	_, err := NewAssigner(failingSource{}, nil).Assign(context.Background(), study)

	require.ErrorContains(t, err, "sequence exhausted")
	assert.ErrorContains(t, err, "stamping matrix")
}
