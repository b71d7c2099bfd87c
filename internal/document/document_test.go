package document

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/phylomerge/internal/model"
)

const sampleDoc = `{
  "id": "s1",
  "label": "Bees",
  "attachments": [{"namespace": "dc", "type": "creator", "value": "Ada"}],
  "otu_sets": [{
    "id": "os1",
    "label": "taxa",
    "otus": [
      {"id": "o1", "label": "Apis"},
      {"label": "Bombus", "attachments": [{"namespace": "dc", "type": "source", "value": "field"}]}
    ],
    "matrices": [
      {
        "id": "m1",
        "type": "standard",
        "label": "morphology",
        "characters": [
          {"id": "c1", "label": "wings", "states": {"0": "absent", "1": "present"}},
          {"label": "legs", "states": {"0": "four", "1": "six", "2": "eight"}}
        ],
        "rows": [
          {"otu": 1, "cells": ["(0 1)", "-"]},
          {"id": "r1", "otu": 0, "cells": ["1", "{1 2}"]}
        ]
      },
      {
        "type": "dna",
        "label": "coi",
        "rows": [
          {"otu": 0, "cells": ["A", "c", "?"]},
          {"otu": 1, "cells": ["(A G)", "T", "-"]}
        ]
      }
    ],
    "sequence_sets": [{
      "type": "dna",
      "label": "barcodes",
      "aligned": true,
      "sequences": [{"otu": 1, "name": "b", "value": "ACGT"}]
    }],
    "tree_sets": [{"label": "trees", "trees": [{"label": "best", "newick": "(Apis,Bombus);"}]}]
  }]
}`

func TestDecode_BuildsIncomingGraph(t *testing.T) {
	s, err := Decode(strings.NewReader(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, "s1", s.ExternalID)
	require.Len(t, s.Attachments, 1)
	assert.Equal(t, model.LookupKey{Namespace: "dc", Label: "creator"}, s.Attachments[0].Type.Key())

	os := s.OtuSets[0]
	require.Len(t, os.Otus, 2)
	assert.Empty(t, os.Otus[1].ExternalID)
	assert.Len(t, os.Otus[1].Attachments, 1)

	morph := os.Matrices[0]
	require.Equal(t, 2, morph.ColumnCount())
	assert.Equal(t, "c1", morph.Characters[0].ExternalID)

	apis := morph.Row(os.Otus[0])
	require.NotNil(t, apis)
	assert.Equal(t, "r1", apis.ExternalID)
	assert.Equal(t, model.CellSingle, apis.Cells[0].Type)
	assert.Equal(t, model.CellUncertain, apis.Cells[1].Type)
	assert.Equal(t, []int{1, 2}, apis.Cells[1].States())

	bombus := morph.Row(os.Otus[1])
	assert.Equal(t, model.CellPolymorphic, bombus.Cells[0].Type)
	assert.Equal(t, model.CellInapplicable, bombus.Cells[1].Type)

	dna := os.Matrices[1]
	require.Equal(t, 3, dna.ColumnCount(), "width inferred from the first row")
	assert.Same(t, dna.Characters[0], dna.Characters[2])
	assert.Equal(t, []int{1}, dna.Row(os.Otus[0]).Cells[1].States(), "symbols are case-insensitive")
	assert.Equal(t, []int{0, 2}, dna.Row(os.Otus[1]).Cells[0].States())

	assert.Equal(t, "ACGT", os.SequenceSets[0].Sequence(os.Otus[1]).Value)
	assert.Nil(t, os.SequenceSets[0].Sequence(os.Otus[0]))
	assert.Equal(t, "(Apis,Bombus);", os.TreeSets[0].Trees[0].Newick)

	require.NoError(t, model.WalkPostOrder(s, func(e model.Entity) error {
		assert.False(t, e.Info().IsDirty(), "%s %q", e.Kind(), e.Info().ExternalID)
		return nil
	}))
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"not json", `{`, "decoding document"},
		{"unknown field", `{"label": "x", "colour": "red"}`, "colour"},
		{"bad matrix type", `{"label": "x", "otu_sets": [{"label": "t", "matrices": [{"type": "rna", "label": "m"}]}]}`, "rna"},
		{
			"otu index out of range",
			`{"label": "x", "otu_sets": [{"label": "t", "otus": [{"label": "a"}],
			  "matrices": [{"type": "standard", "label": "m", "rows": [{"otu": 3, "cells": []}]}]}]}`,
			"otu index 3",
		},
		{
			"second row for one otu",
			`{"label": "x", "otu_sets": [{"label": "t", "otus": [{"label": "a"}],
			  "matrices": [{"type": "standard", "label": "m", "rows": [{"otu": 0, "cells": []}, {"otu": 0, "cells": []}]}]}]}`,
			"second row",
		},
		{
			"bad cell token",
			`{"label": "x", "otu_sets": [{"label": "t", "otus": [{"label": "a"}],
			  "matrices": [{"type": "standard", "label": "m", "characters": [{"label": "c"}],
			  "rows": [{"otu": 0, "cells": ["x"]}]}]}]}`,
			"row 0 cell 0",
		},
		{
			"molecular with two characters",
			`{"label": "x", "otu_sets": [{"label": "t", "matrices": [{"type": "dna", "label": "m",
			  "characters": [{"id": "a"}, {"id": "b"}]}]}]}`,
			"lists 2 characters",
		},
		{
			"second sequence for one otu",
			`{"label": "x", "otu_sets": [{"label": "t", "otus": [{"label": "a"}],
			  "sequence_sets": [{"type": "dna", "label": "s", "sequences": [{"otu": 0, "value": "A"}, {"otu": 0, "value": "C"}]}]}]}`,
			"second sequence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))

			require.ErrorIs(t, err, model.ErrValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseCell(t *testing.T) {
	tests := []struct {
		mt         model.MatrixType
		token      string
		wantType   model.CellType
		wantStates []int
	}{
		{model.MatrixStandard, "?", model.CellUnassigned, nil},
		{model.MatrixStandard, "-", model.CellInapplicable, nil},
		{model.MatrixStandard, " 3 ", model.CellSingle, []int{3}},
		{model.MatrixStandard, "(2 0)", model.CellPolymorphic, []int{2, 0}},
		{model.MatrixStandard, "{0 1}", model.CellUncertain, []int{0, 1}},
		{model.MatrixDNA, "g", model.CellSingle, []int{2}},
		{model.MatrixDNA, "{A T}", model.CellUncertain, []int{0, 3}},
		{model.MatrixProtein, "W", model.CellSingle, []int{18}},
	}

	for _, tt := range tests {
		t.Run(string(tt.mt)+" "+tt.token, func(t *testing.T) {
			typ, states, err := ParseCell(tt.mt, tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantStates, states)
		})
	}

	for _, bad := range []string{"x", "-1", "(0 x)", "1.5"} {
		_, _, err := ParseCell(model.MatrixStandard, bad)
		assert.Error(t, err, bad)
	}

	_, _, err := ParseCell(model.MatrixDNA, "Z")
	assert.Error(t, err)
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		mt   model.MatrixType
		cell *model.Cell
		want string
	}{
		{model.MatrixStandard, model.RestoreCell(model.CellUnassigned, nil), "?"},
		{model.MatrixStandard, model.RestoreCell(model.CellInapplicable, nil), "-"},
		{model.MatrixStandard, model.RestoreCell(model.CellSingle, []int{4}), "4"},
		{model.MatrixStandard, model.RestoreCell(model.CellPolymorphic, []int{2, 0}), "(0 2)"},
		{model.MatrixDNA, model.RestoreCell(model.CellUncertain, []int{0, 3}), "{A T}"},
		{model.MatrixDNA, model.RestoreCell(model.CellSingle, []int{1}), "C"},
	}

	for _, tt := range tests {
		got := FormatCell(tt.mt, tt.cell)
		assert.Equal(t, tt.want, got)

		typ, states, err := ParseCell(tt.mt, got)
		require.NoError(t, err)
		assert.True(t, model.RestoreCell(typ, states).Equal(tt.cell), "%q parses back", got)
	}
}

func TestEncode_RoundTrips(t *testing.T) {
	s, err := Decode(strings.NewReader(sampleDoc))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, s))

	again, err := Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, FromModel(s), FromModel(again))
}

func TestFromModel_CarriesVersions(t *testing.T) {
	s, err := Decode(strings.NewReader(sampleDoc))
	require.NoError(t, err)

	require.NoError(t, model.WalkPostOrder(s, func(e model.Entity) error {
		e.Info().Stamp(7)
		if m, ok := e.(*model.Matrix); ok {
			m.ResolvePendingColumns(7)
			m.InvalidateColumn(0)
			m.ResolvePendingColumns(7)
		}

		return nil
	}))

	doc := FromModel(s)
	assert.Equal(t, int64(7), doc.Version)

	m := doc.OtuSets[0].Matrices[0]
	assert.Equal(t, int64(7), m.Version)
	assert.Equal(t, []int64{7, 0}, m.ColumnVersions)
	assert.Equal(t, 0, m.Rows[0].Otu, "rows follow otu order")

	dna := doc.OtuSets[0].Matrices[1]
	assert.Equal(t, 3, dna.Columns)
	require.Len(t, dna.Characters, 1)
	assert.Equal(t, []string{"A", "C", "?"}, dna.Rows[0].Cells)
}
