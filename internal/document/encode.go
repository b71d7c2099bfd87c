package document

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tonimelisma/phylomerge/internal/model"
)

// Encode writes s as an indented JSON document.
func Encode(w io.Writer, s *model.Study) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(FromModel(s)); err != nil {
		return fmt.Errorf("document: encoding study %q: %w", s.ExternalID, err)
	}

	return nil
}

// FromModel converts a study graph into its document form, identifiers and
// versions included.
func FromModel(s *model.Study) *Study {
	doc := &Study{
		ID:          s.ExternalID,
		Version:     s.Version,
		Label:       s.Label,
		Attachments: attachmentsFromModel(s.Attachments),
	}

	for _, os := range s.OtuSets {
		doc.OtuSets = append(doc.OtuSets, otuSetFromModel(os))
	}

	return doc
}

func otuSetFromModel(os *model.OtuSet) OtuSet {
	doc := OtuSet{
		ID:          os.ExternalID,
		Version:     os.Version,
		Label:       os.Label,
		Description: os.Description,
		Attachments: attachmentsFromModel(os.Attachments),
	}

	for _, otu := range os.Otus {
		doc.Otus = append(doc.Otus, Otu{
			ID:          otu.ExternalID,
			Version:     otu.Version,
			Label:       otu.Label,
			Attachments: attachmentsFromModel(otu.Attachments),
		})
	}

	for _, m := range os.Matrices {
		doc.Matrices = append(doc.Matrices, matrixFromModel(os, m))
	}

	for _, ss := range os.SequenceSets {
		sd := SequenceSet{
			ID:      ss.ExternalID,
			Version: ss.Version,
			Type:    string(ss.Type),
			Label:   ss.Label,
			Aligned: ss.Aligned,
		}

		for _, seq := range ss.Sequences() {
			sd.Sequences = append(sd.Sequences, Sequence{
				ID:      seq.ExternalID,
				Version: seq.Version,
				Otu:     os.IndexOfOtu(seq.Otu),
				Name:    seq.Name,
				Value:   seq.Value,
			})
		}

		doc.SequenceSets = append(doc.SequenceSets, sd)
	}

	for _, ts := range os.TreeSets {
		td := TreeSet{ID: ts.ExternalID, Version: ts.Version, Label: ts.Label}
		for _, tree := range ts.Trees {
			td.Trees = append(td.Trees, Tree{
				ID:      tree.ExternalID,
				Version: tree.Version,
				Label:   tree.Label,
				Newick:  tree.Newick,
			})
		}

		doc.TreeSets = append(doc.TreeSets, td)
	}

	return doc
}

func matrixFromModel(os *model.OtuSet, m *model.Matrix) Matrix {
	doc := Matrix{
		ID:             m.ExternalID,
		Version:        m.Version,
		Type:           string(m.Type),
		Label:          m.Label,
		Description:    m.Description,
		ColumnVersions: m.ColumnVersions,
		Attachments:    attachmentsFromModel(m.Attachments),
	}

	if m.Type.Molecular() {
		doc.Columns = m.ColumnCount()
		if doc.Columns > 0 {
			c := m.Characters[0]
			doc.Characters = []Character{{ID: c.ExternalID, Version: c.Version}}
		}
	} else {
		for _, c := range m.Characters {
			doc.Characters = append(doc.Characters, Character{
				ID:      c.ExternalID,
				Version: c.Version,
				Label:   c.Label,
				States:  c.States,
			})
		}
	}

	for _, row := range m.Rows() {
		rd := Row{
			ID:      row.ExternalID,
			Version: row.Version,
			Otu:     os.IndexOfOtu(row.Otu),
			Cells:   make([]string, len(row.Cells)),
		}

		for j, c := range row.Cells {
			rd.Cells[j] = FormatCell(m.Type, c)
		}

		doc.Rows = append(doc.Rows, rd)
	}

	return doc
}

func attachmentsFromModel(list []*model.Attachment) []Attachment {
	var out []Attachment

	for _, a := range list {
		ad := Attachment{ID: a.ExternalID, Version: a.Version, Value: a.Value}
		if a.Type != nil {
			ad.Namespace, ad.Type = a.Type.Namespace, a.Type.Label
		}

		out = append(out, ad)
	}

	return out
}
