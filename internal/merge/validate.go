package merge

import (
	"errors"
	"fmt"

	"github.com/tonimelisma/phylomerge/internal/model"
)

// prepare validates the whole incoming graph under root and resolves every
// reference it makes, before the managed graph is touched. Attachment types
// are resolved here too, so the apply phase never consults the lookup.
func (s *session) prepare(root model.Entity) error {
	seen := make(map[string]model.Kind)

	err := model.WalkPostOrder(root, func(e model.Entity) error {
		if err := s.ctx.Err(); err != nil {
			return err
		}

		if err := s.checkEntity(e); err != nil {
			return err
		}

		id := e.Info().ExternalID
		if id == "" || !matchedByID(e.Kind()) {
			return nil
		}

		if kind, dup := seen[id]; dup {
			return model.Validationf(e.Kind(), id, "duplicate external identifier (also used by a %s)", kind)
		}

		seen[id] = e.Kind()

		if e == root {
			return nil
		}

		return s.resolve(e)
	})
	if err != nil {
		return err
	}

	return nil
}

// checkEntity runs the per-kind content checks.
func (s *session) checkEntity(e model.Entity) error {
	switch v := e.(type) {
	case *model.OtuSet:
		return validateOtuSet(v)
	case *model.Matrix:
		if err := s.checkImmutableType(v.ExternalID, v.Type); err != nil {
			return err
		}
	case *model.SequenceSet:
		if err := s.checkImmutableType(v.ExternalID, v.Type); err != nil {
			return err
		}
	case *model.Tree:
		if err := model.CheckNewick(v.Newick); err != nil {
			return fmt.Errorf("tree %q: %w", v.Label, err)
		}
	case *model.Attachment:
		return s.resolveAttachmentType(v)
	}

	return nil
}

func validateOtuSet(os *model.OtuSet) error {
	for _, otu := range os.Otus {
		if otu == nil {
			return model.Validationf(model.KindOtuSet, os.ExternalID, "nil otu")
		}
	}

	for _, m := range os.Matrices {
		if err := ValidateMatrix(m, os.Otus); err != nil {
			return err
		}
	}

	for _, ss := range os.SequenceSets {
		if err := ss.Validate(); err != nil {
			return err
		}

		for _, otu := range ss.SequenceOtus() {
			if os.IndexOfOtu(otu) < 0 {
				return model.Validationf(model.KindSequenceSet, ss.ExternalID,
					"sequence for otu %q outside the otu set", otu.Label)
			}
		}
	}

	return nil
}

// checkImmutableType rejects a change of molecule type on a persisted
// matrix or sequence set.
func (s *session) checkImmutableType(id string, t model.MatrixType) error {
	if id == "" {
		return nil
	}

	var current model.MatrixType

	switch m := s.index[id].(type) {
	case *model.Matrix:
		current = m.Type
	case *model.SequenceSet:
		current = m.Type
	default:
		return nil
	}

	if current != t {
		return model.Validationf(model.KindMatrix, id, "type cannot change from %s to %s", current, t)
	}

	return nil
}

// resolve checks that an identified incoming entity refers to a managed
// entity of the same kind under the same owner. Identifiers outside the
// managed graph are looked up: unknown ones are not-found errors, known ones
// belong elsewhere and cannot be moved.
func (s *session) resolve(e model.Entity) error {
	id := e.Info().ExternalID
	kind := e.Kind()

	if managed, ok := s.index[id]; ok {
		if managed.Kind() != kind {
			return model.Validationf(kind, id, "identifier belongs to a %s", managed.Kind())
		}

		if have, want := ownerID(managed), ownerID(e); have != want {
			return model.Validationf(kind, id, "cannot move from owner %q to %q", have, want)
		}

		return nil
	}

	ref, err := s.lookup.FindByExternalID(s.ctx, kind, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.NotFound(kind, id)
		}

		return fmt.Errorf("merge: resolving %s %q: %w", kind, id, err)
	}

	return model.Validationf(kind, id, "cannot move from %s %q (study %q)", kind, ref.OwnerExternalID, ref.StudyExternalID)
}

// resolveAttachmentType maps an incoming attachment's type onto a persisted
// lookup value, creating a new one on a miss. Lookups are cached per merge.
func (s *session) resolveAttachmentType(a *model.Attachment) error {
	if a.Type == nil || a.Type.Namespace == "" || a.Type.Label == "" {
		return model.Validationf(model.KindAttachment, a.ExternalID, "attachment needs a namespace and type")
	}

	key := model.LookupKey{
		Namespace: model.NormalizeLabel(a.Type.Namespace),
		Label:     model.NormalizeLabel(a.Type.Label),
	}
	if _, ok := s.types[key]; ok {
		return nil
	}

	t, err := s.lookup.FindLookupValue(s.ctx, key.Namespace, key.Label)

	switch {
	case err == nil:
	case errors.Is(err, model.ErrNotFound):
		t = model.NewAttachmentType(key.Namespace, key.Label)
		t.ExternalID = s.mint()
		model.MarkDirty(t)
		s.report.created(model.KindAttachmentType, 1)
	default:
		return fmt.Errorf("merge: resolving attachment type %s/%s: %w", key.Namespace, key.Label, err)
	}

	s.types[key] = t

	return nil
}

// typeFor returns the resolved attachment type for an incoming attachment.
func (s *session) typeFor(a *model.Attachment) *model.AttachmentType {
	return s.types[model.LookupKey{
		Namespace: model.NormalizeLabel(a.Type.Namespace),
		Label:     model.NormalizeLabel(a.Type.Label),
	}]
}

func ownerID(e model.Entity) string {
	owner := e.Owner()
	if owner == nil {
		return ""
	}

	return owner.Info().ExternalID
}
