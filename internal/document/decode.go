package document

import (
	"encoding/json"
	"io"

	"github.com/tonimelisma/phylomerge/internal/model"
)

// Decode reads a study document and builds the incoming graph. Malformed
// documents yield validation errors; cell values are checked later by the
// merge against the incoming characters.
func Decode(r io.Reader) (*model.Study, error) {
	var doc Study
	if err := decodeJSON(r, &doc); err != nil {
		return nil, err
	}

	return ToModel(&doc)
}

// DecodeOtuSet reads a document holding a single OTU set.
func DecodeOtuSet(r io.Reader) (*model.OtuSet, error) {
	var doc OtuSet
	if err := decodeJSON(r, &doc); err != nil {
		return nil, err
	}

	return otuSetToModel(&doc)
}

func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return model.Validationf("", "", "decoding document: %v", err)
	}

	return nil
}

// ToModel builds a detached, clean study graph from doc.
func ToModel(doc *Study) (*model.Study, error) {
	s := model.NewStudy(doc.Label)
	s.ExternalID = doc.ID

	for i := range doc.OtuSets {
		os, err := otuSetToModel(&doc.OtuSets[i])
		if err != nil {
			return nil, err
		}

		s.AddOtuSet(os)
	}

	s.SetAttachments(attachmentsToModel(doc.Attachments))

	return s, nil
}

func otuSetToModel(doc *OtuSet) (*model.OtuSet, error) {
	os := model.NewOtuSet(doc.Label)
	os.ExternalID = doc.ID
	os.Description = model.NormalizeLabel(doc.Description)

	for _, od := range doc.Otus {
		otu := model.NewOtu(od.Label)
		otu.ExternalID = od.ID
		otu.SetAttachments(attachmentsToModel(od.Attachments))
		os.AddOtu(otu)
	}

	for i := range doc.Matrices {
		m, err := matrixToModel(os, &doc.Matrices[i])
		if err != nil {
			return nil, err
		}

		os.AddMatrix(m)
	}

	for i := range doc.SequenceSets {
		ss, err := sequenceSetToModel(os, &doc.SequenceSets[i])
		if err != nil {
			return nil, err
		}

		os.AddSequenceSet(ss)
	}

	for _, td := range doc.TreeSets {
		ts := model.NewTreeSet(td.Label)
		ts.ExternalID = td.ID

		for _, tr := range td.Trees {
			tree := model.NewTree(tr.Label, tr.Newick)
			tree.ExternalID = tr.ID
			ts.AddTree(tree)
		}

		os.AddTreeSet(ts)
	}

	os.SetAttachments(attachmentsToModel(doc.Attachments))

	return os, nil
}

func otuAt(os *model.OtuSet, kind model.Kind, id string, i int) (*model.Otu, error) {
	if i < 0 || i >= len(os.Otus) {
		return nil, model.Validationf(kind, id, "otu index %d out of range [0,%d)", i, len(os.Otus))
	}

	return os.Otus[i], nil
}

func matrixToModel(os *model.OtuSet, doc *Matrix) (*model.Matrix, error) {
	t, err := model.ParseMatrixType(doc.Type)
	if err != nil {
		return nil, model.Validationf(model.KindMatrix, doc.ID, "%v", err)
	}

	m := model.NewMatrix(t, doc.Label)
	m.ExternalID = doc.ID
	m.Description = model.NormalizeLabel(doc.Description)

	if t.Molecular() {
		if len(doc.Characters) > 1 {
			return nil, model.Validationf(model.KindMatrix, doc.ID, "molecular matrix lists %d characters", len(doc.Characters))
		}

		shared := model.NewMolecularCharacter(t)
		if len(doc.Characters) == 1 {
			shared.ExternalID = doc.Characters[0].ID
		}

		width := doc.Columns
		if width == 0 && len(doc.Rows) > 0 {
			width = len(doc.Rows[0].Cells)
		}

		for range width {
			m.AddCharacter(shared)
		}
	} else {
		for _, cd := range doc.Characters {
			c := model.NewCharacter(cd.Label, cd.States)
			c.ExternalID = cd.ID
			m.AddCharacter(c)
		}
	}

	for i, rd := range doc.Rows {
		otu, err := otuAt(os, model.KindRow, rd.ID, rd.Otu)
		if err != nil {
			return nil, err
		}

		if m.Row(otu) != nil {
			return nil, model.Validationf(model.KindMatrix, doc.ID, "second row for otu %d", rd.Otu)
		}

		row := model.NewRow()
		row.ExternalID = rd.ID

		for j, token := range rd.Cells {
			typ, states, err := ParseCell(t, token)
			if err != nil {
				return nil, model.Validationf(model.KindMatrix, doc.ID, "row %d cell %d: %v", i, j, err)
			}

			row.AddCell(model.RestoreCell(typ, states))
		}

		m.PutRow(otu, row)
	}

	m.SetAttachments(attachmentsToModel(doc.Attachments))

	return m, nil
}

func sequenceSetToModel(os *model.OtuSet, doc *SequenceSet) (*model.SequenceSet, error) {
	t, err := model.ParseMatrixType(doc.Type)
	if err != nil {
		return nil, model.Validationf(model.KindSequenceSet, doc.ID, "%v", err)
	}

	ss := model.NewSequenceSet(t, doc.Label, doc.Aligned)
	ss.ExternalID = doc.ID

	for _, sd := range doc.Sequences {
		otu, err := otuAt(os, model.KindSequence, sd.ID, sd.Otu)
		if err != nil {
			return nil, err
		}

		if ss.Sequence(otu) != nil {
			return nil, model.Validationf(model.KindSequenceSet, doc.ID, "second sequence for otu %d", sd.Otu)
		}

		seq := model.NewSequence(sd.Name, sd.Value)
		seq.ExternalID = sd.ID
		ss.PutSequence(otu, seq)
	}

	return ss, nil
}

func attachmentsToModel(docs []Attachment) []*model.Attachment {
	if len(docs) == 0 {
		return nil
	}

	out := make([]*model.Attachment, len(docs))
	for i, ad := range docs {
		out[i] = model.NewAttachment(model.NewAttachmentType(ad.Namespace, ad.Type), ad.Value)
		out[i].ExternalID = ad.ID
	}

	return out
}
