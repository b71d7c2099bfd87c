package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tonimelisma/phylomerge/internal/model"
)

const (
	sqlInsertStudy = `INSERT INTO studies (external_id, version, label) VALUES (?, ?, ?)`
	sqlUpdateStudy = `UPDATE studies SET version = ?, label = ? WHERE id = ?`

	sqlInsertOtuSet = `INSERT INTO otu_sets
		(id, external_id, version, study_id, position, label, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlInsertOtu = `INSERT INTO otus
		(id, external_id, version, study_id, otu_set_id, position, label)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlInsertMatrix = `INSERT INTO matrices
		(id, external_id, version, study_id, otu_set_id, position, matrix_type, label, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlInsertCharacter = `INSERT INTO characters
		(id, external_id, version, study_id, matrix_id, label, molecule, states)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlInsertColumn = `INSERT INTO matrix_columns
		(matrix_id, position, study_id, character_id, version)
		VALUES (?, ?, ?, ?, ?)`
	sqlInsertRow = `INSERT INTO matrix_rows
		(id, external_id, version, study_id, matrix_id, otu_id)
		VALUES (?, ?, ?, ?, ?, ?)`
	sqlInsertCell = `INSERT INTO cells
		(id, version, study_id, row_id, position, cell_type, states)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlInsertSequenceSet = `INSERT INTO sequence_sets
		(id, external_id, version, study_id, otu_set_id, position, matrix_type, label, aligned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlInsertSequence = `INSERT INTO sequences
		(id, external_id, version, study_id, sequence_set_id, otu_id, name, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlInsertTreeSet = `INSERT INTO tree_sets
		(id, external_id, version, study_id, otu_set_id, position, label)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlInsertTree = `INSERT INTO trees
		(id, external_id, version, study_id, tree_set_id, position, label, newick)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlInsertAttachment = `INSERT INTO attachments
		(id, external_id, version, study_id, owner_kind, owner_id, position, attachment_type_id, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlInsertAttachmentType = `INSERT INTO attachment_types (external_id, version, namespace, label)
		VALUES (?, ?, ?, ?) ON CONFLICT (namespace, label) DO NOTHING`

	sqlRaiseCounter = `UPDATE version_counter SET last_version = MAX(last_version, ?) WHERE id = 1`
)

// studyTables lists every study-scoped table, children before owners.
var studyTables = []string{
	"attachments", "cells", "matrix_rows", "matrix_columns", "characters",
	"sequences", "sequence_sets", "trees", "tree_sets", "matrices", "otus", "otu_sets",
}

// writer rewrites one study. Entities keep their storage IDs; entities
// created by the merge receive fresh ones.
type writer struct {
	ctx     context.Context
	q       querier
	studyID int64
	written int
}

func (w *writer) save(study *model.Study) error {
	err := model.WalkPostOrder(study, func(e model.Entity) error {
		if e.Info().IsDirty() {
			return model.Consistencyf(e.Kind(), e.Info().ExternalID, "saving an unstamped entity")
		}

		return nil
	})
	if err != nil {
		return err
	}

	if err := w.study(study); err != nil {
		return err
	}

	for _, table := range studyTables {
		// Table names come from a fixed list.
		if _, err := w.q.ExecContext(w.ctx, "DELETE FROM "+table+" WHERE study_id = ?", w.studyID); err != nil {
			return fmt.Errorf("store: clearing %s: %w", table, err)
		}
	}

	for i, os := range study.OtuSets {
		if err := w.otuSet(os, i); err != nil {
			return err
		}
	}

	if err := w.attachments(study, study.Attachments); err != nil {
		return err
	}

	if _, err := w.q.ExecContext(w.ctx, sqlRaiseCounter, study.Version); err != nil {
		return fmt.Errorf("store: raising version counter: %w", err)
	}

	return nil
}

func (w *writer) study(s *model.Study) error {
	if s.ID == 0 {
		res, err := w.q.ExecContext(w.ctx, sqlInsertStudy, s.ExternalID, s.Version, s.Label)
		if err != nil {
			return fmt.Errorf("store: inserting study %q: %w", s.ExternalID, err)
		}

		if s.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("store: reading study id: %w", err)
		}
	} else {
		res, err := w.q.ExecContext(w.ctx, sqlUpdateStudy, s.Version, s.Label, s.ID)
		if err != nil {
			return fmt.Errorf("store: updating study %q: %w", s.ExternalID, err)
		}

		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return model.NotFound(model.KindStudy, s.ExternalID)
		}
	}

	w.studyID = s.ID
	w.written++

	return nil
}

// insert runs query with the entity's storage ID prepended to args and
// records the ID SQLite assigned when the entity had none.
func (w *writer) insert(e model.Entity, query string, args ...any) error {
	info := e.Info()

	var id any
	if info.ID != 0 {
		id = info.ID
	}

	res, err := w.q.ExecContext(w.ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("store: inserting %s %q: %w", e.Kind(), info.ExternalID, err)
	}

	if info.ID == 0 {
		if info.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("store: reading %s id: %w", e.Kind(), err)
		}
	}

	w.written++

	return nil
}

func (w *writer) otuSet(os *model.OtuSet, position int) error {
	err := w.insert(os, sqlInsertOtuSet,
		os.ExternalID, os.Version, w.studyID, position, os.Label, os.Description)
	if err != nil {
		return err
	}

	for i, otu := range os.Otus {
		if err := w.insert(otu, sqlInsertOtu,
			otu.ExternalID, otu.Version, w.studyID, os.ID, i, otu.Label); err != nil {
			return err
		}

		if err := w.attachments(otu, otu.Attachments); err != nil {
			return err
		}
	}

	for i, m := range os.Matrices {
		if err := w.matrix(os, m, i); err != nil {
			return err
		}
	}

	for i, ss := range os.SequenceSets {
		if err := w.sequenceSet(os, ss, i); err != nil {
			return err
		}
	}

	for i, ts := range os.TreeSets {
		if err := w.insert(ts, sqlInsertTreeSet,
			ts.ExternalID, ts.Version, w.studyID, os.ID, i, ts.Label); err != nil {
			return err
		}

		for j, tree := range ts.Trees {
			if err := w.insert(tree, sqlInsertTree,
				tree.ExternalID, tree.Version, w.studyID, ts.ID, j, tree.Label, tree.Newick); err != nil {
				return err
			}
		}
	}

	return w.attachments(os, os.Attachments)
}

func (w *writer) matrix(os *model.OtuSet, m *model.Matrix, position int) error {
	err := w.insert(m, sqlInsertMatrix,
		m.ExternalID, m.Version, w.studyID, os.ID, position, string(m.Type), m.Label, m.Description)
	if err != nil {
		return err
	}

	saved := make(map[*model.Character]bool, len(m.Characters))

	for i, c := range m.Characters {
		if !saved[c] {
			saved[c] = true

			states, err := json.Marshal(c.States)
			if err != nil {
				return fmt.Errorf("store: encoding states of character %q: %w", c.ExternalID, err)
			}

			if err := w.insert(c, sqlInsertCharacter,
				c.ExternalID, c.Version, w.studyID, m.ID, c.Label, string(c.Molecule()), string(states)); err != nil {
				return err
			}
		}

		if _, err := w.q.ExecContext(w.ctx, sqlInsertColumn, m.ID, i, w.studyID, c.ID, m.ColumnVersions[i]); err != nil {
			return fmt.Errorf("store: inserting column %d of matrix %q: %w", i, m.ExternalID, err)
		}

		w.written++
	}

	for _, row := range m.Rows() {
		if err := w.insert(row, sqlInsertRow,
			row.ExternalID, row.Version, w.studyID, m.ID, row.Otu.ID); err != nil {
			return err
		}

		for j, cell := range row.Cells {
			states, err := json.Marshal(cell.States())
			if err != nil {
				return fmt.Errorf("store: encoding cell states: %w", err)
			}

			if err := w.insert(cell, sqlInsertCell,
				cell.Version, w.studyID, row.ID, j, string(cell.Type), string(states)); err != nil {
				return err
			}
		}
	}

	return w.attachments(m, m.Attachments)
}

func (w *writer) sequenceSet(os *model.OtuSet, ss *model.SequenceSet, position int) error {
	err := w.insert(ss, sqlInsertSequenceSet,
		ss.ExternalID, ss.Version, w.studyID, os.ID, position, string(ss.Type), ss.Label, ss.Aligned)
	if err != nil {
		return err
	}

	for _, seq := range ss.Sequences() {
		if err := w.insert(seq, sqlInsertSequence,
			seq.ExternalID, seq.Version, w.studyID, ss.ID, seq.Otu.ID, seq.Name, seq.Value); err != nil {
			return err
		}
	}

	return nil
}

func (w *writer) attachments(owner model.Entity, list []*model.Attachment) error {
	for i, a := range list {
		if err := w.attachmentType(a.Type); err != nil {
			return err
		}

		if err := w.insert(a, sqlInsertAttachment,
			a.ExternalID, a.Version, w.studyID, string(owner.Kind()), owner.Info().ID, i, a.Type.ID, a.Value); err != nil {
			return err
		}
	}

	return nil
}

// attachmentType inserts a type first seen in this merge. A concurrent
// writer may have inserted the same value; the stored row wins.
func (w *writer) attachmentType(t *model.AttachmentType) error {
	if t == nil {
		return model.Consistencyf(model.KindAttachment, "", "attachment without a type")
	}

	if t.ID != 0 {
		return nil
	}

	if _, err := w.q.ExecContext(w.ctx, sqlInsertAttachmentType, t.ExternalID, t.Version, t.Namespace, t.Label); err != nil {
		return fmt.Errorf("store: inserting attachment type %s/%s: %w", t.Namespace, t.Label, err)
	}

	err := w.q.QueryRowContext(w.ctx, sqlFindAttachmentType, t.Namespace, t.Label).
		Scan(&t.ID, &t.ExternalID, &t.Version, &t.Namespace, &t.Label)
	if err != nil {
		return fmt.Errorf("store: reading attachment type %s/%s: %w", t.Namespace, t.Label, err)
	}

	w.written++

	return nil
}
