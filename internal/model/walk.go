package model

// WalkPostOrder visits root and every entity it owns, children before their
// owner. Shared molecular characters are visited once per matrix and
// attachment types are visited before each attachment that references them.
// Walking stops at the first error returned by fn.
func WalkPostOrder(root Entity, fn func(Entity) error) error {
	w := walker{fn: fn}
	return w.visit(root)
}

type walker struct {
	fn func(Entity) error
}

func (w *walker) visit(e Entity) error {
	switch v := e.(type) {
	case *Study:
		if err := visitAll(w, v.OtuSets); err != nil {
			return err
		}

		if err := w.attachments(v.Attachments); err != nil {
			return err
		}
	case *OtuSet:
		if err := w.otuSet(v); err != nil {
			return err
		}
	case *Otu:
		if err := w.attachments(v.Attachments); err != nil {
			return err
		}
	case *Matrix:
		if err := w.matrix(v); err != nil {
			return err
		}
	case *Row:
		if err := visitAll(w, v.Cells); err != nil {
			return err
		}
	case *SequenceSet:
		if err := visitAll(w, v.Sequences()); err != nil {
			return err
		}
	case *TreeSet:
		if err := visitAll(w, v.Trees); err != nil {
			return err
		}
	case *Attachment:
		if v.Type != nil {
			if err := w.fn(v.Type); err != nil {
				return err
			}
		}
	}

	return w.fn(e)
}

func (w *walker) otuSet(os *OtuSet) error {
	if err := visitAll(w, os.Otus); err != nil {
		return err
	}

	if err := visitAll(w, os.Matrices); err != nil {
		return err
	}

	if err := visitAll(w, os.SequenceSets); err != nil {
		return err
	}

	if err := visitAll(w, os.TreeSets); err != nil {
		return err
	}

	return w.attachments(os.Attachments)
}

func (w *walker) matrix(m *Matrix) error {
	seen := make(map[*Character]bool, len(m.Characters))
	for _, c := range m.Characters {
		if seen[c] {
			continue
		}

		seen[c] = true

		if err := w.visit(c); err != nil {
			return err
		}
	}

	if err := visitAll(w, m.Rows()); err != nil {
		return err
	}

	return w.attachments(m.Attachments)
}

func (w *walker) attachments(list []*Attachment) error {
	return visitAll(w, list)
}

func visitAll[T Entity](w *walker, list []T) error {
	for _, e := range list {
		if err := w.visit(e); err != nil {
			return err
		}
	}

	return nil
}
