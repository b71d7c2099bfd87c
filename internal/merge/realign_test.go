package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/phylomerge/internal/model"
)

func otuRealigner(os *model.OtuSet, minter *countingMinter) *Realigner[*model.Otu] {
	return &Realigner[*model.Otu]{
		Kind:   model.KindOtu,
		Owner:  os,
		Mint:   minter.mint,
		Create: func(in *model.Otu) *model.Otu { return model.NewOtu(in.Label) },
		Update: func(m, in *model.Otu) { m.SetLabel(in.Label) },
		Attach: func(a *Alignment[*model.Otu]) { os.SetOtus(a.Result) },
	}
}

func managedOtuSet(t *testing.T, ids ...string) *model.OtuSet {
	t.Helper()

	os := model.NewOtuSet("otus")
	os.ExternalID = "os"

	for _, id := range ids {
		otu := model.NewOtu("taxon " + id)
		otu.ExternalID = id
		os.AddOtu(otu)
	}

	require.NoError(t, model.WalkPostOrder(os, func(e model.Entity) error {
		e.Info().Stamp(1)
		return nil
	}))

	return os
}

func incomingOtus(ids ...string) []*model.Otu {
	out := make([]*model.Otu, len(ids))
	for i, id := range ids {
		out[i] = model.NewOtu("taxon " + id)
		out[i].ExternalID = id
	}

	return out
}

func TestRealigner_ReusesMatchedInstances(t *testing.T) {
	os := managedOtuSet(t, "A", "B", "C")
	before := append([]*model.Otu(nil), os.Otus...)
	minter := &countingMinter{}

	a, err := otuRealigner(os, minter).Realign(os.Otus, incomingOtus("A", "B", "C"))
	require.NoError(t, err)

	for i := range before {
		assert.Same(t, before[i], a.Result[i])
		assert.False(t, a.Result[i].IsDirty())
	}

	assert.False(t, a.Changed)
	assert.Empty(t, a.Removed)
	assert.False(t, os.IsDirty())
	assert.Zero(t, minter.n)
}

func TestRealigner_Reorders(t *testing.T) {
	os := managedOtuSet(t, "A", "B", "C")
	a0, b0, c0 := os.Otus[0], os.Otus[1], os.Otus[2]

	a, err := otuRealigner(os, &countingMinter{}).Realign(os.Otus, incomingOtus("C", "A", "B"))
	require.NoError(t, err)

	assert.Equal(t, []*model.Otu{c0, a0, b0}, os.Otus)
	assert.Equal(t, []int{2, 0, 1}, a.Source)
	assert.True(t, a.Changed)
	assert.True(t, os.IsDirty())
	assert.False(t, c0.IsDirty(), "moving an element does not change it")
}

func TestRealigner_InsertsAndRemoves(t *testing.T) {
	os := managedOtuSet(t, "A", "B", "C")
	b0 := os.Otus[1]
	minter := &countingMinter{}

	in := incomingOtus("A", "", "C")
	in[1].Label = "fresh"

	a, err := otuRealigner(os, minter).Realign(os.Otus, in)
	require.NoError(t, err)

	require.Len(t, os.Otus, 3)
	assert.Equal(t, "new-1", os.Otus[1].ExternalID)
	assert.Equal(t, "fresh", os.Otus[1].Label)
	assert.True(t, os.Otus[1].IsDirty())
	assert.Same(t, os, os.Otus[1].OtuSet())
	assert.Equal(t, 1, a.Created())

	require.Len(t, a.Removed, 1)
	assert.Same(t, b0, a.Removed[0])
	assert.Nil(t, b0.OtuSet())
	assert.True(t, os.IsDirty())
}

func TestRealigner_CopiesFieldsOntoMatched(t *testing.T) {
	os := managedOtuSet(t, "A")
	in := incomingOtus("A")
	in[0].Label = "renamed"

	_, err := otuRealigner(os, &countingMinter{}).Realign(os.Otus, in)
	require.NoError(t, err)

	assert.Equal(t, "renamed", os.Otus[0].Label)
	assert.True(t, os.Otus[0].IsDirty())
	assert.True(t, os.IsDirty(), "label change cascades to the owner")
}

func TestRealigner_PlanErrorsLeaveManagedUntouched(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		wantErr error
	}{
		{"duplicate identifier", []string{"A", "A"}, model.ErrValidation},
		{"unknown identifier", []string{"A", "Z"}, model.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os := managedOtuSet(t, "A", "B")
			before := append([]*model.Otu(nil), os.Otus...)

			_, err := otuRealigner(os, &countingMinter{}).Plan(os.Otus, incomingOtus(tt.in...))

			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, os.Otus)
			assert.False(t, os.IsDirty())
		})
	}
}

func TestRemap(t *testing.T) {
	created := 0

	result, removed := Remap([]string{"x", "y", "z"}, []int{2, -1, 0}, func(j int) string {
		created++
		return "new"
	})

	assert.Equal(t, []string{"z", "new", "x"}, result)
	assert.Equal(t, []string{"y"}, removed)
	assert.Equal(t, 1, created)
}

func TestLayoutChanged(t *testing.T) {
	assert.False(t, layoutChanged(3, []int{0, 1, 2}))
	assert.True(t, layoutChanged(3, []int{0, 2}))
	assert.True(t, layoutChanged(2, []int{1, 0}))
	assert.True(t, layoutChanged(2, []int{0, 1, -1}))
}
