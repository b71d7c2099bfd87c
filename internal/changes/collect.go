package changes

import (
	"github.com/tonimelisma/phylomerge/internal/model"
)

// Collect builds the change set for root, which must be a study, OTU set or
// matrix. An owner is always stamped after its children, so a subtree whose
// root is not newer than baseline holds nothing newer either and is skipped
// without being visited.
func Collect(root model.Entity, baseline int64) (*ChangeSet, error) {
	cs := &ChangeSet{
		Root:     root.Info().ExternalID,
		Baseline: baseline,
		Current:  root.Info().Version,
	}

	c := collector{cs: cs, baseline: baseline}

	switch v := root.(type) {
	case *model.Study:
		c.study(v)
	case *model.OtuSet:
		c.otuSet(v)
	case *model.Matrix:
		c.matrix(v)
	default:
		return nil, model.Validationf(root.Kind(), root.Info().ExternalID,
			"changes are tracked per study, otu set or matrix")
	}

	return cs, nil
}

type collector struct {
	cs       *ChangeSet
	baseline int64
}

func (c *collector) newer(e model.Entity) bool {
	return e.Info().Version > c.baseline
}

func (c *collector) study(s *model.Study) {
	if !c.newer(s) {
		return
	}

	ev := versionOf(s)
	c.cs.Study = &ev

	for _, os := range s.OtuSets {
		c.otuSet(os)
	}

	c.attachments(s, s.Attachments)
}

func (c *collector) otuSet(os *model.OtuSet) {
	if !c.newer(os) {
		return
	}

	c.cs.OtuSets = append(c.cs.OtuSets, versionOf(os))

	for _, otu := range os.Otus {
		if c.newer(otu) {
			c.cs.Otus = append(c.cs.Otus, versionOf(otu))
			c.attachments(otu, otu.Attachments)
		}
	}

	for _, m := range os.Matrices {
		c.matrix(m)
	}

	for _, ss := range os.SequenceSets {
		c.sequenceSet(ss)
	}

	for _, ts := range os.TreeSets {
		c.treeSet(ts)
	}

	c.attachments(os, os.Attachments)
}

func (c *collector) matrix(m *model.Matrix) {
	if !c.newer(m) {
		return
	}

	mc := &MatrixChanges{
		EntityVersion: versionOf(m),
		Cells:         make(map[CellKey]int64),
	}

	seen := make(map[*model.Character]bool)

	for j, ch := range m.Characters {
		if v := m.ColumnVersions[j]; v > c.baseline {
			mc.Columns = append(mc.Columns, ColumnChange{Index: j, CharacterExternalID: ch.ExternalID, Version: v})
		}

		if !seen[ch] && c.newer(ch) {
			mc.Characters = append(mc.Characters, versionOf(ch))
		}

		seen[ch] = true
	}

	for i, row := range m.Rows() {
		if !c.newer(row) {
			continue
		}

		mc.Rows = append(mc.Rows, RowChange{EntityVersion: versionOf(row), OtuExternalID: row.Otu.ExternalID, Index: i})

		for j, cell := range row.Cells {
			if c.newer(cell) {
				mc.Cells[CellKey{Row: i, Column: j}] = cell.Version
			}
		}
	}

	c.cs.Matrices = append(c.cs.Matrices, mc)
	c.attachments(m, m.Attachments)
}

func (c *collector) sequenceSet(ss *model.SequenceSet) {
	if !c.newer(ss) {
		return
	}

	sc := &SequenceChanges{EntityVersion: versionOf(ss), Sequences: make(map[string]int64)}

	for _, seq := range ss.Sequences() {
		if c.newer(seq) {
			sc.Sequences[seq.Otu.ExternalID] = seq.Version
		}
	}

	c.cs.SequenceSets = append(c.cs.SequenceSets, sc)
}

func (c *collector) treeSet(ts *model.TreeSet) {
	if !c.newer(ts) {
		return
	}

	tc := &TreeChanges{EntityVersion: versionOf(ts)}

	for _, tree := range ts.Trees {
		if c.newer(tree) {
			tc.Trees = append(tc.Trees, versionOf(tree))
		}
	}

	c.cs.TreeSets = append(c.cs.TreeSets, tc)
}

func (c *collector) attachments(owner model.Entity, list []*model.Attachment) {
	for _, a := range list {
		if c.newer(a) {
			c.cs.Attachments = append(c.cs.Attachments, AttachmentChange{
				EntityVersion:   versionOf(a),
				OwnerKind:       owner.Kind(),
				OwnerExternalID: owner.Info().ExternalID,
			})
		}
	}
}
