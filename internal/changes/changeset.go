// Package changes answers incremental-sync queries: which entities under a
// root carry a version newer than a client's baseline. It is a pure read
// over stored version stamps and never re-runs a merge.
package changes

import (
	"cmp"
	"encoding/json"
	"maps"
	"slices"

	"github.com/tonimelisma/phylomerge/internal/model"
)

// EntityVersion identifies one changed entity.
type EntityVersion struct {
	Kind       model.Kind `json:"kind"`
	ExternalID string     `json:"id"`
	Version    int64      `json:"version"`
}

func versionOf(e model.Entity) EntityVersion {
	info := e.Info()
	return EntityVersion{Kind: e.Kind(), ExternalID: info.ExternalID, Version: info.Version}
}

// ChangeSet lists, per granularity, the entities under Root whose version is
// greater than Baseline. Unchanged entities are omitted.
type ChangeSet struct {
	Root     string `json:"root"`
	Baseline int64  `json:"baseline"`
	// Current is the root's own version, the baseline for the next query.
	Current int64 `json:"current"`

	Study        *EntityVersion     `json:"study,omitempty"`
	OtuSets      []EntityVersion    `json:"otu_sets,omitempty"`
	Otus         []EntityVersion    `json:"otus,omitempty"`
	Matrices     []*MatrixChanges   `json:"matrices,omitempty"`
	SequenceSets []*SequenceChanges `json:"sequence_sets,omitempty"`
	TreeSets     []*TreeChanges     `json:"tree_sets,omitempty"`
	Attachments  []AttachmentChange `json:"attachments,omitempty"`
}

// Empty reports whether nothing under the root changed.
func (cs *ChangeSet) Empty() bool {
	return cs.Study == nil && len(cs.OtuSets) == 0 && len(cs.Matrices) == 0
}

// Matrix returns the changes recorded for the matrix with the given
// identifier, or nil.
func (cs *ChangeSet) Matrix(externalID string) *MatrixChanges {
	for _, m := range cs.Matrices {
		if m.ExternalID == externalID {
			return m
		}
	}

	return nil
}

// CellKey addresses a cell by row index (OTU order) and column index.
type CellKey struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// RowChange is a changed row.
type RowChange struct {
	EntityVersion
	OtuExternalID string `json:"otu"`
	Index         int    `json:"index"`
}

// ColumnChange is a column whose version slot moved past the baseline.
type ColumnChange struct {
	Index               int    `json:"index"`
	CharacterExternalID string `json:"character"`
	Version             int64  `json:"version"`
}

// MatrixChanges carries the fine-grained changes of one matrix. Cells is a
// sparse map holding only changed cells.
type MatrixChanges struct {
	EntityVersion
	Characters []EntityVersion
	Columns    []ColumnChange
	Rows       []RowChange
	Cells      map[CellKey]int64
}

type cellVersion struct {
	CellKey
	Version int64 `json:"version"`
}

// MarshalJSON renders Cells as a list ordered by row, then column.
func (m *MatrixChanges) MarshalJSON() ([]byte, error) {
	cells := make([]cellVersion, 0, len(m.Cells))
	for _, k := range slices.SortedFunc(maps.Keys(m.Cells), compareCellKeys) {
		cells = append(cells, cellVersion{CellKey: k, Version: m.Cells[k]})
	}

	return json.Marshal(struct {
		EntityVersion
		Characters []EntityVersion `json:"characters,omitempty"`
		Columns    []ColumnChange  `json:"columns,omitempty"`
		Rows       []RowChange     `json:"rows,omitempty"`
		Cells      []cellVersion   `json:"cells,omitempty"`
	}{m.EntityVersion, m.Characters, m.Columns, m.Rows, cells})
}

func compareCellKeys(a, b CellKey) int {
	if c := cmp.Compare(a.Row, b.Row); c != 0 {
		return c
	}

	return cmp.Compare(a.Column, b.Column)
}

// SequenceChanges carries a changed sequence set and its changed sequences,
// keyed by OTU identifier.
type SequenceChanges struct {
	EntityVersion
	Sequences map[string]int64 `json:"sequences,omitempty"`
}

// TreeChanges carries a changed tree set and its changed trees.
type TreeChanges struct {
	EntityVersion
	Trees []EntityVersion `json:"trees,omitempty"`
}

// AttachmentChange is a changed attachment and the entity carrying it.
type AttachmentChange struct {
	EntityVersion
	OwnerKind       model.Kind `json:"owner_kind"`
	OwnerExternalID string     `json:"owner"`
}
