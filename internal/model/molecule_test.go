package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMatrixType(t *testing.T) {
	for _, in := range []string{"standard", "DNA", "protein"} {
		_, err := ParseMatrixType(in)
		assert.NoError(t, err, in)
	}

	_, err := ParseMatrixType("rna")
	assert.Error(t, err)
}

func TestMoleculeState(t *testing.T) {
	n, ok := MoleculeState(MatrixDNA, "g")
	require.True(t, ok)
	assert.Equal(t, 2, n)

	_, ok = MoleculeState(MatrixDNA, "N")
	assert.False(t, ok, "ambiguity codes are not states")

	n, ok = MoleculeState(MatrixProtein, "W")
	require.True(t, ok)
	assert.Equal(t, 18, n)

	_, ok = MoleculeState(MatrixStandard, "A")
	assert.False(t, ok)
}

func TestMolecularCharacter(t *testing.T) {
	dna := NewMolecularCharacter(MatrixDNA)

	assert.Equal(t, MatrixDNA, dna.Molecule())
	assert.Equal(t, []int{0, 1, 2, 3}, dna.StateNumbers())
	assert.True(t, dna.Equivalent(NewMolecularCharacter(MatrixDNA)))
	assert.False(t, dna.Equivalent(NewMolecularCharacter(MatrixProtein)))
	assert.Len(t, NewMolecularCharacter(MatrixProtein).States, 20)
}

func TestCheckSequence(t *testing.T) {
	assert.NoError(t, CheckSequence(MatrixDNA, "ACGT-nry?"))
	assert.Error(t, CheckSequence(MatrixDNA, "ACGTX"))
	assert.NoError(t, CheckSequence(MatrixProtein, "MKV*X-"))
	assert.Error(t, CheckSequence(MatrixProtein, "MK1"))
	assert.Error(t, CheckSequence(MatrixStandard, "A"))
}

func TestSequenceSet_Validate(t *testing.T) {
	a, b := NewOtu("a"), NewOtu("b")

	t.Run("aligned equal length", func(t *testing.T) {
		ss := NewSequenceSet(MatrixDNA, "aln", true)
		ss.PutSequence(a, NewSequence("", "ACGT"))
		ss.PutSequence(b, NewSequence("", "AC-T"))
		assert.NoError(t, ss.Validate())
	})

	t.Run("aligned length mismatch", func(t *testing.T) {
		ss := NewSequenceSet(MatrixDNA, "aln", true)
		ss.PutSequence(a, NewSequence("", "ACGT"))
		ss.PutSequence(b, NewSequence("", "ACG"))
		assert.ErrorIs(t, ss.Validate(), ErrValidation)
	})

	t.Run("raw lengths vary", func(t *testing.T) {
		ss := NewSequenceSet(MatrixDNA, "raw", false)
		ss.PutSequence(a, NewSequence("", "ACGT"))
		ss.PutSequence(b, NewSequence("", "ACG"))
		assert.NoError(t, ss.Validate())
	})

	t.Run("illegal symbol", func(t *testing.T) {
		ss := NewSequenceSet(MatrixProtein, "p", false)
		ss.PutSequence(a, NewSequence("", "MK9"))
		assert.ErrorIs(t, ss.Validate(), ErrValidation)
	})
}

func TestSequenceSet_RemoveSequence(t *testing.T) {
	a := NewOtu("a")
	ss := NewSequenceSet(MatrixDNA, "raw", false)
	seq := NewSequence("", "AC")
	ss.PutSequence(a, seq)

	removed := ss.RemoveSequence(a)

	assert.Same(t, seq, removed)
	assert.Nil(t, removed.Owner())
	assert.Empty(t, ss.SequenceOtus())
	assert.Nil(t, ss.RemoveSequence(a))
}

func TestCheckNewick(t *testing.T) {
	assert.NoError(t, CheckNewick("((a,b),c);"))
	assert.ErrorIs(t, CheckNewick(""), ErrValidation)
	assert.ErrorIs(t, CheckNewick("(a,b)"), ErrValidation)
	assert.ErrorIs(t, CheckNewick("((a,b);"), ErrValidation)
	assert.ErrorIs(t, CheckNewick("a,b));"), ErrValidation)
}

func TestMatrix_RowsFollowOtuOrder(t *testing.T) {
	_, os, m := buildGraph(t)
	a, b := os.Otus[0], os.Otus[1]

	os.SetOtus([]*Otu{b, a})

	rows := m.Rows()
	require.Len(t, rows, 2)
	assert.Same(t, b, rows[0].Otu)
	assert.Equal(t, 0, m.RowIndex(b))

	removed := m.RemoveRow(b)
	assert.Nil(t, removed.Owner())
	assert.Len(t, m.Rows(), 1)
}

func TestMatrix_PendingColumns(t *testing.T) {
	_, _, m := buildGraph(t)

	m.InvalidateColumn(1)
	m.InvalidateColumn(7) // out of range: ignored

	assert.Equal(t, []int{1}, m.PendingColumns())
	assert.True(t, m.ColumnPending(1))

	m.ResolvePendingColumns(11)

	assert.Empty(t, m.PendingColumns())
	assert.Equal(t, []int64{0, 11}, m.ColumnVersions)
}
