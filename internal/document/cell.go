package document

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tonimelisma/phylomerge/internal/model"
)

// ParseCell reads one cell token:
//
//	?        unassigned
//	-        inapplicable
//	s        single state
//	(s s..)  polymorphic
//	{s s..}  uncertain
//
// States are state numbers in standard matrices and molecule symbols (A, C,
// G, T for DNA) in molecular ones.
func ParseCell(t model.MatrixType, token string) (model.CellType, []int, error) {
	token = strings.TrimSpace(token)

	switch {
	case token == "?":
		return model.CellUnassigned, nil, nil
	case token == "-":
		return model.CellInapplicable, nil, nil
	case strings.HasPrefix(token, "(") && strings.HasSuffix(token, ")"):
		states, err := parseStates(t, token[1:len(token)-1])
		return model.CellPolymorphic, states, err
	case strings.HasPrefix(token, "{") && strings.HasSuffix(token, "}"):
		states, err := parseStates(t, token[1:len(token)-1])
		return model.CellUncertain, states, err
	default:
		n, err := parseState(t, token)
		if err != nil {
			return "", nil, err
		}

		return model.CellSingle, []int{n}, nil
	}
}

func parseStates(t model.MatrixType, s string) ([]int, error) {
	fields := strings.Fields(s)
	states := make([]int, 0, len(fields))

	for _, f := range fields {
		n, err := parseState(t, f)
		if err != nil {
			return nil, err
		}

		states = append(states, n)
	}

	return states, nil
}

func parseState(t model.MatrixType, s string) (int, error) {
	if t.Molecular() {
		n, ok := model.MoleculeState(t, s)
		if !ok {
			return 0, fmt.Errorf("%q is not a %s state", s, t)
		}

		return n, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%q is not a state number", s)
	}

	return n, nil
}

// FormatCell renders a cell in the notation ParseCell reads.
func FormatCell(t model.MatrixType, c *model.Cell) string {
	switch c.Type {
	case model.CellUnassigned:
		return "?"
	case model.CellInapplicable:
		return "-"
	case model.CellPolymorphic:
		return "(" + formatStates(t, c.States()) + ")"
	case model.CellUncertain:
		return "{" + formatStates(t, c.States()) + "}"
	default:
		return formatStates(t, c.States())
	}
}

func formatStates(t model.MatrixType, states []int) string {
	symbols := model.MoleculeStates(t)
	parts := make([]string, len(states))

	for i, n := range states {
		if sym, ok := symbols[n]; ok {
			parts[i] = sym
		} else {
			parts[i] = strconv.Itoa(n)
		}
	}

	return strings.Join(parts, " ")
}
