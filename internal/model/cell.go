package model

import (
	"fmt"
	"slices"
)

// CellType classifies the content of a matrix cell.
type CellType string

// Cell types as stored in the cells.cell_type column.
const (
	CellUnassigned   CellType = "unassigned"
	CellSingle       CellType = "single"
	CellPolymorphic  CellType = "polymorphic"
	CellUncertain    CellType = "uncertain"
	CellInapplicable CellType = "inapplicable"
)

// ParseCellType converts a stored string to a CellType.
func ParseCellType(s string) (CellType, error) {
	switch t := CellType(s); t {
	case CellUnassigned, CellSingle, CellPolymorphic, CellUncertain, CellInapplicable:
		return t, nil
	default:
		return "", fmt.Errorf("unknown cell type %q", s)
	}
}

// Cell is one (row, column) value: a type plus the set of state numbers it
// references. SINGLE holds exactly one state, POLYMORPHIC and UNCERTAIN at
// least two, UNASSIGNED and INAPPLICABLE none.
type Cell struct {
	VersionInfo
	Type CellType

	states   []int // sorted, unique
	row      *Row
	position int
}

// NewCell returns a detached unassigned cell.
func NewCell() *Cell {
	return &Cell{Type: CellUnassigned}
}

// RestoreCell builds a cell from stored values without validation.
func RestoreCell(t CellType, states []int) *Cell {
	return &Cell{Type: t, states: normalizeStates(states)}
}

// Kind identifies cells.
func (c *Cell) Kind() Kind { return KindCell }

// Owner returns the owning row, or nil when detached.
func (c *Cell) Owner() Entity {
	if c.row == nil {
		return nil
	}

	return c.row
}

// Row returns the owning row, or nil when detached.
func (c *Cell) Row() *Row { return c.row }

// Position returns the column index of the cell within its row.
func (c *Cell) Position() int { return c.position }

// Detach severs the back-reference to the owning row.
func (c *Cell) Detach() { c.row = nil }

// States returns a copy of the referenced state numbers in ascending order.
func (c *Cell) States() []int {
	return slices.Clone(c.states)
}

// Character returns the character of the column the cell sits in, or nil
// when the cell is detached.
func (c *Cell) Character() *Character {
	if c.row == nil || c.row.matrix == nil {
		return nil
	}

	chars := c.row.matrix.Characters
	if c.position < 0 || c.position >= len(chars) {
		return nil
	}

	return chars[c.position]
}

// Equal reports whether two cells hold the same type and states.
func (c *Cell) Equal(o *Cell) bool {
	return c.Type == o.Type && slices.Equal(c.states, o.states)
}

// SetUnassigned clears the cell.
func (c *Cell) SetUnassigned() bool {
	changed, _ := c.Set(CellUnassigned, nil)
	return changed
}

// SetInapplicable marks the column as not applying to this OTU.
func (c *Cell) SetInapplicable() bool {
	changed, _ := c.Set(CellInapplicable, nil)
	return changed
}

// SetSingleWithState assigns exactly one state.
func (c *Cell) SetSingleWithState(state int) (bool, error) {
	return c.Set(CellSingle, []int{state})
}

// SetPolymorphicWithStates assigns two or more simultaneously present states.
func (c *Cell) SetPolymorphicWithStates(states ...int) (bool, error) {
	return c.Set(CellPolymorphic, states)
}

// SetUncertainWithStates assigns two or more alternative states.
func (c *Cell) SetUncertainWithStates(states ...int) (bool, error) {
	return c.Set(CellUncertain, states)
}

// Set validates and assigns type and states. The cell is left untouched when
// validation fails. On change the cell is marked dirty, which cascades to
// its row and matrix, and its column version slot is invalidated.
func (c *Cell) Set(t CellType, states []int) (bool, error) {
	states = normalizeStates(states)
	if err := CheckCell(t, states, c.Character()); err != nil {
		return false, err
	}

	if c.Type == t && slices.Equal(c.states, states) {
		return false, nil
	}

	c.Type = t
	c.states = states
	MarkDirty(c)

	if c.row != nil && c.row.matrix != nil {
		c.row.matrix.InvalidateColumn(c.position)
	}

	return true, nil
}

// CheckCell validates cardinality of states against t and, when ch is not
// nil, membership of every state in ch's state table.
func CheckCell(t CellType, states []int, ch *Character) error {
	n := len(normalizeStates(states))
	if n != len(states) {
		return Validationf(KindCell, "", "duplicate state numbers %v", states)
	}

	switch t {
	case CellUnassigned, CellInapplicable:
		if n != 0 {
			return Validationf(KindCell, "", "%s cell must not reference states, got %d", t, n)
		}
	case CellSingle:
		if n != 1 {
			return Validationf(KindCell, "", "single cell must reference exactly one state, got %d", n)
		}
	case CellPolymorphic, CellUncertain:
		if n < 2 {
			return Validationf(KindCell, "", "%s cell must reference at least two states, got %d", t, n)
		}
	default:
		return Validationf(KindCell, "", "unknown cell type %q", t)
	}

	if ch == nil {
		return nil
	}

	for _, s := range states {
		if !ch.HasState(s) {
			return Validationf(KindCharacter, ch.ExternalID, "state %d is not defined", s)
		}
	}

	return nil
}

func normalizeStates(states []int) []int {
	if len(states) == 0 {
		return nil
	}

	out := slices.Clone(states)
	slices.Sort(out)

	return slices.Compact(out)
}
