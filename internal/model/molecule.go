package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MatrixType selects the cell-kind strategy of a matrix: which states a
// column may hold and whether all columns share one implicit character.
// Sequence sets reuse the molecular values.
type MatrixType string

// Matrix and sequence types as stored in the database.
const (
	MatrixStandard MatrixType = "standard"
	MatrixDNA      MatrixType = "dna"
	MatrixProtein  MatrixType = "protein"
)

// ParseMatrixType converts a stored or submitted string to a MatrixType.
func ParseMatrixType(s string) (MatrixType, error) {
	switch t := MatrixType(strings.ToLower(s)); t {
	case MatrixStandard, MatrixDNA, MatrixProtein:
		return t, nil
	default:
		return "", fmt.Errorf("unknown matrix type %q", s)
	}
}

// Molecular reports whether every column of a matrix of this type refers to
// the same implicit molecule character.
func (t MatrixType) Molecular() bool {
	return t == MatrixDNA || t == MatrixProtein
}

// dnaStates and proteinStates define the state tables of the implicit
// molecular characters. State numbers index into the symbol strings.
const (
	dnaStates     = "ACGT"
	proteinStates = "ACDEFGHIKLMNPQRSTVWY"
)

// Legal sequence symbols beyond the state tables: IUPAC ambiguity codes,
// gap and missing.
const (
	dnaSequenceAlphabet     = dnaStates + "URYKMSWBDHVN-?"
	proteinSequenceAlphabet = proteinStates + "BZXJUO*-?"
)

// MoleculeStates returns the state table for a molecular type, or nil for
// standard matrices.
func MoleculeStates(t MatrixType) map[int]string {
	var symbols string

	switch t {
	case MatrixDNA:
		symbols = dnaStates
	case MatrixProtein:
		symbols = proteinStates
	default:
		return nil
	}

	states := make(map[int]string, len(symbols))
	for i, r := range symbols {
		states[i] = string(r)
	}

	return states
}

// MoleculeState maps a molecular symbol (case-insensitive) to its state number.
func MoleculeState(t MatrixType, symbol string) (int, bool) {
	var symbols string

	switch t {
	case MatrixDNA:
		symbols = dnaStates
	case MatrixProtein:
		symbols = proteinStates
	default:
		return 0, false
	}

	if utf8.RuneCountInString(symbol) != 1 {
		return 0, false
	}

	i := strings.Index(symbols, strings.ToUpper(symbol))
	if i < 0 {
		return 0, false
	}

	return i, true
}

// CheckSequence validates that every symbol of value belongs to the legal
// alphabet for t.
func CheckSequence(t MatrixType, value string) error {
	var alphabet string

	switch t {
	case MatrixDNA:
		alphabet = dnaSequenceAlphabet
	case MatrixProtein:
		alphabet = proteinSequenceAlphabet
	default:
		return fmt.Errorf("sequences require a molecular type, got %q", t)
	}

	for i, r := range value {
		if !strings.ContainsRune(alphabet, toUpperASCII(r)) {
			return fmt.Errorf("illegal %s symbol %q at position %d", t, r, i)
		}
	}

	return nil
}

func toUpperASCII(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}

	return r
}
