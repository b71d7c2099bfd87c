package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tonimelisma/phylomerge/internal/model"
)

const (
	sqlLoadStudy = `SELECT id, external_id, version, label FROM studies WHERE external_id = ?`

	sqlLoadOtuSets = `SELECT id, external_id, version, label, description
		FROM otu_sets WHERE study_id = ? ORDER BY position`
	sqlLoadOtus = `SELECT id, external_id, version, otu_set_id, label
		FROM otus WHERE study_id = ? ORDER BY otu_set_id, position`
	sqlLoadMatrices = `SELECT id, external_id, version, otu_set_id, matrix_type, label, description
		FROM matrices WHERE study_id = ? ORDER BY otu_set_id, position`
	sqlLoadCharacters = `SELECT id, external_id, version, label, molecule, states
		FROM characters WHERE study_id = ?`
	sqlLoadColumns = `SELECT matrix_id, character_id, version
		FROM matrix_columns WHERE study_id = ? ORDER BY matrix_id, position`
	sqlLoadRows = `SELECT id, external_id, version, matrix_id, otu_id
		FROM matrix_rows WHERE study_id = ?`
	sqlLoadCells = `SELECT id, version, row_id, cell_type, states
		FROM cells WHERE study_id = ? ORDER BY row_id, position`
	sqlLoadSequenceSets = `SELECT id, external_id, version, otu_set_id, matrix_type, label, aligned
		FROM sequence_sets WHERE study_id = ? ORDER BY otu_set_id, position`
	sqlLoadSequences = `SELECT id, external_id, version, sequence_set_id, otu_id, name, value
		FROM sequences WHERE study_id = ?`
	sqlLoadTreeSets = `SELECT id, external_id, version, otu_set_id, label
		FROM tree_sets WHERE study_id = ? ORDER BY otu_set_id, position`
	sqlLoadTrees = `SELECT id, external_id, version, tree_set_id, label, newick
		FROM trees WHERE study_id = ? ORDER BY tree_set_id, position`
	sqlLoadAttachments = `SELECT a.id, a.external_id, a.version, a.owner_kind, a.owner_id, a.value,
		t.id, t.external_id, t.version, t.namespace, t.label
		FROM attachments a JOIN attachment_types t ON t.id = a.attachment_type_id
		WHERE a.study_id = ? ORDER BY a.owner_kind, a.owner_id, a.position`
)

// ownerKey identifies an attachee by kind and storage ID.
type ownerKey struct {
	kind model.Kind
	id   int64
}

// loader hydrates one study. Entities come back clean, with the versions
// they were stored at.
type loader struct {
	ctx   context.Context
	q     querier
	study *model.Study

	otuSets      map[int64]*model.OtuSet
	otus         map[int64]*model.Otu
	matrices     map[int64]*model.Matrix
	characters   map[int64]*model.Character
	rows         map[int64]*model.Row
	sequenceSets map[int64]*model.SequenceSet
	treeSets     map[int64]*model.TreeSet
	attachees    map[ownerKey]model.Attachee
	types        map[int64]*model.AttachmentType
}

func loadStudy(ctx context.Context, q querier, externalID string) (*model.Study, error) {
	study := &model.Study{}

	err := q.QueryRowContext(ctx, sqlLoadStudy, externalID).
		Scan(&study.ID, &study.ExternalID, &study.Version, &study.Label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound(model.KindStudy, externalID)
	}

	if err != nil {
		return nil, fmt.Errorf("store: loading study %q: %w", externalID, err)
	}

	l := &loader{
		ctx:          ctx,
		q:            q,
		study:        study,
		otuSets:      make(map[int64]*model.OtuSet),
		otus:         make(map[int64]*model.Otu),
		matrices:     make(map[int64]*model.Matrix),
		characters:   make(map[int64]*model.Character),
		rows:         make(map[int64]*model.Row),
		sequenceSets: make(map[int64]*model.SequenceSet),
		treeSets:     make(map[int64]*model.TreeSet),
		attachees:    map[ownerKey]model.Attachee{{model.KindStudy, study.ID}: study},
		types:        make(map[int64]*model.AttachmentType),
	}

	steps := []struct {
		name  string
		query string
		scan  func(*sql.Rows) error
	}{
		{"otu sets", sqlLoadOtuSets, l.otuSet},
		{"otus", sqlLoadOtus, l.otu},
		{"matrices", sqlLoadMatrices, l.matrix},
		{"characters", sqlLoadCharacters, l.character},
		{"columns", sqlLoadColumns, l.column},
		{"rows", sqlLoadRows, l.row},
		{"cells", sqlLoadCells, l.cell},
		{"sequence sets", sqlLoadSequenceSets, l.sequenceSet},
		{"sequences", sqlLoadSequences, l.sequence},
		{"tree sets", sqlLoadTreeSets, l.treeSet},
		{"trees", sqlLoadTrees, l.tree},
	}

	for _, step := range steps {
		if err := l.each(step.query, step.scan); err != nil {
			return nil, fmt.Errorf("store: loading %s of study %q: %w", step.name, externalID, err)
		}
	}

	if err := l.attachments(); err != nil {
		return nil, fmt.Errorf("store: loading attachments of study %q: %w", externalID, err)
	}

	return study, nil
}

func (l *loader) each(query string, scan func(*sql.Rows) error) error {
	rows, err := l.q.QueryContext(l.ctx, query, l.study.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}

	return rows.Err()
}

func (l *loader) otuSet(rows *sql.Rows) error {
	os := &model.OtuSet{}
	if err := rows.Scan(&os.ID, &os.ExternalID, &os.Version, &os.Label, &os.Description); err != nil {
		return err
	}

	l.study.AddOtuSet(os)
	l.otuSets[os.ID] = os
	l.attachees[ownerKey{model.KindOtuSet, os.ID}] = os

	return nil
}

func (l *loader) otu(rows *sql.Rows) error {
	otu := &model.Otu{}

	var setID int64
	if err := rows.Scan(&otu.ID, &otu.ExternalID, &otu.Version, &setID, &otu.Label); err != nil {
		return err
	}

	os, ok := l.otuSets[setID]
	if !ok {
		return model.Consistencyf(model.KindOtu, otu.ExternalID, "orphaned by otu set %d", setID)
	}

	os.AddOtu(otu)
	l.otus[otu.ID] = otu
	l.attachees[ownerKey{model.KindOtu, otu.ID}] = otu

	return nil
}

func (l *loader) matrix(rows *sql.Rows) error {
	var (
		id, version, setID       int64
		extID, typ, label, descr string
	)

	if err := rows.Scan(&id, &extID, &version, &setID, &typ, &label, &descr); err != nil {
		return err
	}

	t, err := model.ParseMatrixType(typ)
	if err != nil {
		return err
	}

	os, ok := l.otuSets[setID]
	if !ok {
		return model.Consistencyf(model.KindMatrix, extID, "orphaned by otu set %d", setID)
	}

	m := model.NewMatrix(t, label)
	m.ID, m.ExternalID, m.Version = id, extID, version
	m.Description = descr

	os.AddMatrix(m)
	l.matrices[id] = m
	l.attachees[ownerKey{model.KindMatrix, id}] = m

	return nil
}

func (l *loader) character(rows *sql.Rows) error {
	var (
		id, version                    int64
		extID, label, molecule, states string
	)

	if err := rows.Scan(&id, &extID, &version, &label, &molecule, &states); err != nil {
		return err
	}

	table := make(map[int]string)
	if err := json.Unmarshal([]byte(states), &table); err != nil {
		return fmt.Errorf("decoding states of character %q: %w", extID, err)
	}

	c := model.NewCharacter(label, table)
	c.ID, c.ExternalID, c.Version = id, extID, version

	if molecule != "" {
		t, err := model.ParseMatrixType(molecule)
		if err != nil {
			return err
		}

		c.RestoreMolecule(t)
	}

	l.characters[id] = c

	return nil
}

func (l *loader) column(rows *sql.Rows) error {
	var matrixID, charID, version int64
	if err := rows.Scan(&matrixID, &charID, &version); err != nil {
		return err
	}

	m, ok := l.matrices[matrixID]
	if !ok {
		return model.Consistencyf(model.KindMatrix, "", "column of unknown matrix %d", matrixID)
	}

	c, ok := l.characters[charID]
	if !ok {
		return model.Consistencyf(model.KindMatrix, m.ExternalID, "column points at unknown character %d", charID)
	}

	m.AddCharacter(c)
	m.ColumnVersions[len(m.ColumnVersions)-1] = version

	return nil
}

func (l *loader) row(rows *sql.Rows) error {
	row := model.NewRow()

	var matrixID, otuID int64
	if err := rows.Scan(&row.ID, &row.ExternalID, &row.Version, &matrixID, &otuID); err != nil {
		return err
	}

	m, okM := l.matrices[matrixID]
	otu, okO := l.otus[otuID]

	if !okM || !okO {
		return model.Consistencyf(model.KindRow, row.ExternalID, "orphaned by matrix %d or otu %d", matrixID, otuID)
	}

	m.PutRow(otu, row)
	l.rows[row.ID] = row

	return nil
}

func (l *loader) cell(rows *sql.Rows) error {
	var (
		id, version, rowID int64
		typ, states        string
	)

	if err := rows.Scan(&id, &version, &rowID, &typ, &states); err != nil {
		return err
	}

	t, err := model.ParseCellType(typ)
	if err != nil {
		return err
	}

	var list []int
	if err := json.Unmarshal([]byte(states), &list); err != nil {
		return fmt.Errorf("decoding cell states: %w", err)
	}

	row, ok := l.rows[rowID]
	if !ok {
		return model.Consistencyf(model.KindCell, "", "orphaned by row %d", rowID)
	}

	cell := model.RestoreCell(t, list)
	cell.ID, cell.Version = id, version
	row.AddCell(cell)

	return nil
}

func (l *loader) sequenceSet(rows *sql.Rows) error {
	var (
		id, version, setID int64
		extID, typ, label  string
		aligned            bool
	)

	if err := rows.Scan(&id, &extID, &version, &setID, &typ, &label, &aligned); err != nil {
		return err
	}

	t, err := model.ParseMatrixType(typ)
	if err != nil {
		return err
	}

	os, ok := l.otuSets[setID]
	if !ok {
		return model.Consistencyf(model.KindSequenceSet, extID, "orphaned by otu set %d", setID)
	}

	ss := model.NewSequenceSet(t, label, aligned)
	ss.ID, ss.ExternalID, ss.Version = id, extID, version

	os.AddSequenceSet(ss)
	l.sequenceSets[id] = ss

	return nil
}

func (l *loader) sequence(rows *sql.Rows) error {
	seq := &model.Sequence{}

	var setID, otuID int64
	if err := rows.Scan(&seq.ID, &seq.ExternalID, &seq.Version, &setID, &otuID, &seq.Name, &seq.Value); err != nil {
		return err
	}

	ss, okS := l.sequenceSets[setID]
	otu, okO := l.otus[otuID]

	if !okS || !okO {
		return model.Consistencyf(model.KindSequence, seq.ExternalID, "orphaned by sequence set %d or otu %d", setID, otuID)
	}

	ss.PutSequence(otu, seq)

	return nil
}

func (l *loader) treeSet(rows *sql.Rows) error {
	ts := &model.TreeSet{}

	var setID int64
	if err := rows.Scan(&ts.ID, &ts.ExternalID, &ts.Version, &setID, &ts.Label); err != nil {
		return err
	}

	os, ok := l.otuSets[setID]
	if !ok {
		return model.Consistencyf(model.KindTreeSet, ts.ExternalID, "orphaned by otu set %d", setID)
	}

	os.AddTreeSet(ts)
	l.treeSets[ts.ID] = ts

	return nil
}

func (l *loader) tree(rows *sql.Rows) error {
	tree := &model.Tree{}

	var setID int64
	if err := rows.Scan(&tree.ID, &tree.ExternalID, &tree.Version, &setID, &tree.Label, &tree.Newick); err != nil {
		return err
	}

	ts, ok := l.treeSets[setID]
	if !ok {
		return model.Consistencyf(model.KindTree, tree.ExternalID, "orphaned by tree set %d", setID)
	}

	ts.AddTree(tree)

	return nil
}

// attachments groups attachments by owner before handing each list over,
// and shares one AttachmentType instance per stored type.
func (l *loader) attachments() error {
	lists := make(map[ownerKey][]*model.Attachment)

	var order []ownerKey

	err := l.each(sqlLoadAttachments, func(rows *sql.Rows) error {
		a := &model.Attachment{}
		t := &model.AttachmentType{}

		var (
			ownerKind string
			ownerID   int64
		)

		if err := rows.Scan(&a.ID, &a.ExternalID, &a.Version, &ownerKind, &ownerID, &a.Value,
			&t.ID, &t.ExternalID, &t.Version, &t.Namespace, &t.Label); err != nil {
			return err
		}

		if shared, ok := l.types[t.ID]; ok {
			t = shared
		} else {
			l.types[t.ID] = t
		}

		a.Type = t
		key := ownerKey{model.Kind(ownerKind), ownerID}

		if _, ok := lists[key]; !ok {
			order = append(order, key)
		}

		lists[key] = append(lists[key], a)

		return nil
	})
	if err != nil {
		return err
	}

	for _, key := range order {
		owner, ok := l.attachees[key]
		if !ok {
			return model.Consistencyf(model.KindAttachment, "", "orphaned by %s %d", key.kind, key.id)
		}

		owner.SetAttachments(lists[key])
	}

	return nil
}
