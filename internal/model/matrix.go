package model

import (
	"maps"
	"slices"
)

// Matrix owns an ordered list of columns (characters), a parallel column
// version vector, and one row per OTU of its OTU set. Rows are keyed by Otu
// rather than position so that reordering OTUs never moves row storage.
//
// Standard matrices carry one Character per column. Molecular matrices point
// every column at a single shared molecule character.
type Matrix struct {
	VersionInfo
	Type        MatrixType
	Label       string
	Description string
	Characters  []*Character
	Attachments []*Attachment

	// ColumnVersions[i] is the stamp at which column i last changed.
	ColumnVersions []int64
	// pending[i] is set when column i needs a new stamp.
	pending []bool

	rows     map[*Otu]*Row
	rowOrder []*Otu
	otuSet   *OtuSet
}

// NewMatrix returns a detached, clean matrix with no columns or rows.
func NewMatrix(t MatrixType, label string) *Matrix {
	return &Matrix{
		Type:  t,
		Label: NormalizeLabel(label),
		rows:  make(map[*Otu]*Row),
	}
}

// Kind identifies matrices.
func (m *Matrix) Kind() Kind { return KindMatrix }

// Owner returns the owning OTU set, or nil when detached.
func (m *Matrix) Owner() Entity {
	if m.otuSet == nil {
		return nil
	}

	return m.otuSet
}

// OtuSet returns the owning OTU set, or nil when detached.
func (m *Matrix) OtuSet() *OtuSet { return m.otuSet }

// Detach severs the back-reference to the owning OTU set.
func (m *Matrix) Detach() { m.otuSet = nil }

// SetLabel updates the label, marking the matrix dirty on change.
func (m *Matrix) SetLabel(label string) bool {
	return setString(m, &m.Label, label)
}

// SetDescription updates the description, marking the matrix dirty on change.
func (m *Matrix) SetDescription(description string) bool {
	return setString(m, &m.Description, description)
}

// AttachmentList returns the matrix attachments.
func (m *Matrix) AttachmentList() []*Attachment { return m.Attachments }

// SetAttachments replaces the attachment list and adopts every member.
func (m *Matrix) SetAttachments(list []*Attachment) {
	m.Attachments = list
	adoptAttachments(m, list)
}

// ColumnCount returns the number of columns.
func (m *Matrix) ColumnCount() int {
	return len(m.Characters)
}

// SetColumns replaces the column list together with its version vector and
// pending flags. Nil versions or pending slices are treated as all-zero.
func (m *Matrix) SetColumns(chars []*Character, versions []int64, pending []bool) {
	if versions == nil {
		versions = make([]int64, len(chars))
	}

	if pending == nil {
		pending = make([]bool, len(chars))
	}

	m.Characters = chars
	m.ColumnVersions = versions
	m.pending = pending

	for _, c := range chars {
		c.matrix = m
	}
}

// AddCharacter appends a column without flagging anything.
func (m *Matrix) AddCharacter(c *Character) {
	m.SetColumns(
		append(m.Characters, c),
		append(m.ColumnVersions, 0),
		append(m.pending, false),
	)
}

// InvalidateColumn marks column i as needing a new stamp. Out-of-range
// indexes are ignored.
func (m *Matrix) InvalidateColumn(i int) {
	if i >= 0 && i < len(m.pending) {
		m.pending[i] = true
	}
}

// ColumnPending reports whether column i awaits a new stamp.
func (m *Matrix) ColumnPending(i int) bool {
	return i >= 0 && i < len(m.pending) && m.pending[i]
}

// PendingColumns returns the indexes of all columns awaiting a new stamp.
func (m *Matrix) PendingColumns() []int {
	var out []int

	for i, p := range m.pending {
		if p {
			out = append(out, i)
		}
	}

	return out
}

// ResolvePendingColumns gives every pending column the supplied stamp.
func (m *Matrix) ResolvePendingColumns(version int64) {
	for i, p := range m.pending {
		if p {
			m.ColumnVersions[i] = version
			m.pending[i] = false
		}
	}
}

// Row returns the row for otu, or nil.
func (m *Matrix) Row(otu *Otu) *Row {
	return m.rows[otu]
}

// PutRow stores row under otu and adopts it.
func (m *Matrix) PutRow(otu *Otu, row *Row) {
	if m.rows == nil {
		m.rows = make(map[*Otu]*Row)
	}

	if _, ok := m.rows[otu]; !ok {
		m.rowOrder = append(m.rowOrder, otu)
	}

	row.Otu = otu
	row.matrix = m
	m.rows[otu] = row
}

// RemoveRow drops and detaches the row for otu, returning it (or nil).
func (m *Matrix) RemoveRow(otu *Otu) *Row {
	row, ok := m.rows[otu]
	if !ok {
		return nil
	}

	delete(m.rows, otu)
	m.rowOrder = slices.DeleteFunc(m.rowOrder, func(o *Otu) bool { return o == otu })
	row.matrix = nil

	return row
}

// RowOtus returns the OTUs that currently have rows, in insertion order.
func (m *Matrix) RowOtus() []*Otu {
	return slices.Clone(m.rowOrder)
}

// Rows returns the rows ordered by the owning OTU set's OTU order. Detached
// matrices return rows in insertion order.
func (m *Matrix) Rows() []*Row {
	order := m.rowOrder
	if m.otuSet != nil {
		order = m.otuSet.Otus
	}

	rows := make([]*Row, 0, len(m.rows))
	for _, otu := range order {
		if row, ok := m.rows[otu]; ok {
			rows = append(rows, row)
		}
	}

	return rows
}

// RowIndex returns the position of otu's row in OTU-set order, or -1.
func (m *Matrix) RowIndex(otu *Otu) int {
	if m.otuSet == nil {
		return slices.Index(m.rowOrder, otu)
	}

	return m.otuSet.IndexOfOtu(otu)
}

// Character is a matrix column: an ordered table of state numbers to labels.
// Molecular characters are shared by all columns of their matrix and carry
// the fixed molecule alphabet as their states.
type Character struct {
	VersionInfo
	Label  string
	States map[int]string

	molecule MatrixType
	matrix   *Matrix
}

// NewCharacter returns a detached standard character.
func NewCharacter(label string, states map[int]string) *Character {
	if states == nil {
		states = make(map[int]string)
	}

	return &Character{Label: NormalizeLabel(label), States: states}
}

// NewMolecularCharacter returns the implicit character for a molecular type.
func NewMolecularCharacter(t MatrixType) *Character {
	return &Character{Label: string(t), States: MoleculeStates(t), molecule: t}
}

// RestoreMolecule marks a hydrated character as the implicit character of a
// molecular matrix.
func (c *Character) RestoreMolecule(t MatrixType) { c.molecule = t }

// Kind identifies characters.
func (c *Character) Kind() Kind { return KindCharacter }

// Owner returns the owning matrix, or nil when detached.
func (c *Character) Owner() Entity {
	if c.matrix == nil {
		return nil
	}

	return c.matrix
}

// Matrix returns the owning matrix, or nil when detached.
func (c *Character) Matrix() *Matrix { return c.matrix }

// Detach severs the back-reference to the owning matrix.
func (c *Character) Detach() { c.matrix = nil }

// Molecule returns the molecular type, or "" for standard characters.
func (c *Character) Molecule() MatrixType { return c.molecule }

// HasState reports whether state number n is defined.
func (c *Character) HasState(n int) bool {
	_, ok := c.States[n]
	return ok
}

// StateNumbers returns the defined state numbers in ascending order.
func (c *Character) StateNumbers() []int {
	return slices.Sorted(maps.Keys(c.States))
}

// SetLabel updates the label, marking the character dirty on change.
func (c *Character) SetLabel(label string) bool {
	return setString(c, &c.Label, label)
}

// SetStates replaces the state table, marking the character dirty on change.
func (c *Character) SetStates(states map[int]string) bool {
	normalized := make(map[int]string, len(states))
	for n, label := range states {
		normalized[n] = NormalizeLabel(label)
	}

	if maps.Equal(c.States, normalized) {
		return false
	}

	c.States = normalized
	MarkDirty(c)

	return true
}

// Equivalent reports whether two characters describe the same column
// semantics: same molecule, label and state table.
func (c *Character) Equivalent(o *Character) bool {
	if c == o {
		return true
	}

	if c == nil || o == nil {
		return false
	}

	return c.molecule == o.molecule && c.Label == o.Label && maps.Equal(c.States, o.States)
}

// Row holds one cell per matrix column for a single OTU.
type Row struct {
	VersionInfo
	Otu   *Otu
	Cells []*Cell

	matrix *Matrix
}

// NewRow returns a detached, empty row.
func NewRow() *Row {
	return &Row{}
}

// Kind identifies rows.
func (r *Row) Kind() Kind { return KindRow }

// Owner returns the owning matrix, or nil when detached.
func (r *Row) Owner() Entity {
	if r.matrix == nil {
		return nil
	}

	return r.matrix
}

// Matrix returns the owning matrix, or nil when detached.
func (r *Row) Matrix() *Matrix { return r.matrix }

// SetCells replaces the cell list and adopts every cell at its new position.
func (r *Row) SetCells(cells []*Cell) {
	r.Cells = cells
	for i, c := range cells {
		c.row = r
		c.position = i
	}
}

// AddCell appends a cell without flagging anything.
func (r *Row) AddCell(c *Cell) {
	r.SetCells(append(r.Cells, c))
}
