package model

import "strings"

// TreeSet is an ordered list of trees over the OTUs of its OTU set.
type TreeSet struct {
	VersionInfo
	Label string
	Trees []*Tree

	otuSet *OtuSet
}

// NewTreeSet returns a detached, empty tree set.
func NewTreeSet(label string) *TreeSet {
	return &TreeSet{Label: NormalizeLabel(label)}
}

// Kind identifies tree sets.
func (ts *TreeSet) Kind() Kind { return KindTreeSet }

// Owner returns the owning OTU set, or nil when detached.
func (ts *TreeSet) Owner() Entity {
	if ts.otuSet == nil {
		return nil
	}

	return ts.otuSet
}

// Detach severs the back-reference to the owning OTU set.
func (ts *TreeSet) Detach() { ts.otuSet = nil }

// SetLabel updates the label, marking the tree set dirty on change.
func (ts *TreeSet) SetLabel(label string) bool {
	return setString(ts, &ts.Label, label)
}

// SetTrees replaces the tree list and adopts every member.
func (ts *TreeSet) SetTrees(trees []*Tree) {
	ts.Trees = trees
	for _, t := range trees {
		t.treeSet = ts
	}
}

// AddTree appends a tree without flagging anything.
func (ts *TreeSet) AddTree(t *Tree) {
	ts.SetTrees(append(ts.Trees, t))
}

// Tree holds a labelled topology in Newick notation.
type Tree struct {
	VersionInfo
	Label  string
	Newick string

	treeSet *TreeSet
}

// NewTree returns a detached tree.
func NewTree(label, newick string) *Tree {
	return &Tree{Label: NormalizeLabel(label), Newick: newick}
}

// Kind identifies trees.
func (t *Tree) Kind() Kind { return KindTree }

// Owner returns the owning tree set, or nil when detached.
func (t *Tree) Owner() Entity {
	if t.treeSet == nil {
		return nil
	}

	return t.treeSet
}

// Detach severs the back-reference to the owning tree set.
func (t *Tree) Detach() { t.treeSet = nil }

// SetLabel updates the label, marking the tree dirty on change.
func (t *Tree) SetLabel(label string) bool {
	return setString(t, &t.Label, label)
}

// SetNewick replaces the topology, marking the tree dirty on change.
func (t *Tree) SetNewick(newick string) bool {
	if t.Newick == newick {
		return false
	}

	t.Newick = newick
	MarkDirty(t)

	return true
}

// CheckNewick performs the structural checks the merge relies on: non-empty,
// terminated by ';', balanced parentheses.
func CheckNewick(newick string) error {
	s := strings.TrimSpace(newick)
	if s == "" {
		return Validationf(KindTree, "", "empty newick")
	}

	if !strings.HasSuffix(s, ";") {
		return Validationf(KindTree, "", "newick must end with ';'")
	}

	depth := 0

	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return Validationf(KindTree, "", "unbalanced parentheses in newick")
			}
		}
	}

	if depth != 0 {
		return Validationf(KindTree, "", "unbalanced parentheses in newick")
	}

	return nil
}
