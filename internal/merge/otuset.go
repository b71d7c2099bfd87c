package merge

import (
	"log/slog"

	"github.com/tonimelisma/phylomerge/internal/model"
)

// realign runs a Realigner whose matched elements need no field copy: the
// caller walks the returned pairs and reconciles each one in depth.
func realign[T model.Entity](
	s *session, kind model.Kind, owner model.Entity, managed, incoming []T,
	create func(T) T, attach func([]T),
) (*Alignment[T], error) {
	r := &Realigner[T]{
		Kind:   kind,
		Owner:  owner,
		Mint:   s.mint,
		Create: create,
		Update: func(T, T) {},
		Attach: func(a *Alignment[T]) { attach(a.Result) },
	}

	a, err := r.Realign(managed, incoming)
	if err != nil {
		return nil, err
	}

	s.report.record(kind, a.Created(), len(a.Removed))

	if a.Changed {
		s.logger.Debug("realigned",
			slog.String("kind", string(kind)),
			slog.String("owner", owner.Info().ExternalID),
			slog.Int("size", len(a.Result)),
			slog.Int("created", a.Created()),
			slog.Int("removed", len(a.Removed)),
		)
	}

	return a, nil
}

func (s *session) applyStudy(managed, incoming *model.Study) error {
	managed.SetLabel(incoming.Label)

	sets, err := realign(s, model.KindOtuSet, managed, managed.OtuSets, incoming.OtuSets,
		func(in *model.OtuSet) *model.OtuSet { return model.NewOtuSet(in.Label) },
		managed.SetOtuSets)
	if err != nil {
		return err
	}

	err = sets.Pairs(incoming.OtuSets, func(_ int, m, in *model.OtuSet) error {
		return s.applyOtuSet(m, in)
	})
	if err != nil {
		return err
	}

	return s.applyAttachments(managed, incoming)
}

// applyOtuSet reconciles OTUs first, since every matrix and sequence set
// below is keyed by them.
func (s *session) applyOtuSet(managed, incoming *model.OtuSet) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}

	managed.SetLabel(incoming.Label)
	managed.SetDescription(incoming.Description)

	otus, err := realign(s, model.KindOtu, managed, managed.Otus, incoming.Otus,
		func(in *model.Otu) *model.Otu { return model.NewOtu(in.Label) },
		managed.SetOtus)
	if err != nil {
		return err
	}

	otuMap := make(map[*model.Otu]*model.Otu, len(incoming.Otus))

	err = otus.Pairs(incoming.Otus, func(_ int, m, in *model.Otu) error {
		m.SetLabel(in.Label)
		otuMap[in] = m

		return s.applyAttachments(m, in)
	})
	if err != nil {
		return err
	}

	if err := s.applyMatrices(managed, incoming, otuMap); err != nil {
		return err
	}

	if err := s.applySequenceSets(managed, incoming, otuMap); err != nil {
		return err
	}

	if err := s.applyTreeSets(managed, incoming); err != nil {
		return err
	}

	return s.applyAttachments(managed, incoming)
}

func (s *session) applyMatrices(managed, incoming *model.OtuSet, otuMap map[*model.Otu]*model.Otu) error {
	matrices, err := realign(s, model.KindMatrix, managed, managed.Matrices, incoming.Matrices,
		func(in *model.Matrix) *model.Matrix { return model.NewMatrix(in.Type, in.Label) },
		managed.SetMatrices)
	if err != nil {
		return err
	}

	mctx := MatrixContext{OtuSet: managed, Otus: otuMap}

	return matrices.Pairs(incoming.Matrices, func(_ int, m, in *model.Matrix) error {
		if err := s.matrices.apply(m, in, mctx); err != nil {
			return err
		}

		return s.applyAttachments(m, in)
	})
}

func (s *session) applySequenceSets(managed, incoming *model.OtuSet, otuMap map[*model.Otu]*model.Otu) error {
	sets, err := realign(s, model.KindSequenceSet, managed, managed.SequenceSets, incoming.SequenceSets,
		func(in *model.SequenceSet) *model.SequenceSet {
			return model.NewSequenceSet(in.Type, in.Label, in.Aligned)
		},
		managed.SetSequenceSets)
	if err != nil {
		return err
	}

	return sets.Pairs(incoming.SequenceSets, func(_ int, m, in *model.SequenceSet) error {
		s.applySequenceSet(m, in, otuMap)
		return nil
	})
}

// applySequenceSet keys sequences by managed OTU: sequences of OTUs absent
// from incoming are dropped, the rest are created or updated in place.
func (s *session) applySequenceSet(managed, incoming *model.SequenceSet, otuMap map[*model.Otu]*model.Otu) {
	managed.SetLabel(incoming.Label)
	managed.SetAligned(incoming.Aligned)

	wanted := make(map[*model.Otu]*model.Sequence, len(otuMap))
	for _, in := range incoming.SequenceOtus() {
		wanted[otuMap[in]] = incoming.Sequence(in)
	}

	for _, otu := range managed.SequenceOtus() {
		if _, ok := wanted[otu]; ok {
			continue
		}

		managed.RemoveSequence(otu)
		model.MarkDirty(managed)
		s.report.record(model.KindSequence, 0, 1)
	}

	for _, in := range incoming.SequenceOtus() {
		otu := otuMap[in]
		src := incoming.Sequence(in)

		seq := managed.Sequence(otu)
		if seq == nil {
			seq = model.NewSequence(src.Name, src.Value)
			seq.ExternalID = s.mint()
			managed.PutSequence(otu, seq)
			model.MarkNew(seq)
			s.report.created(model.KindSequence, 1)

			continue
		}

		seq.SetName(src.Name)
		seq.SetValue(src.Value)
	}
}

func (s *session) applyTreeSets(managed, incoming *model.OtuSet) error {
	sets, err := realign(s, model.KindTreeSet, managed, managed.TreeSets, incoming.TreeSets,
		func(in *model.TreeSet) *model.TreeSet { return model.NewTreeSet(in.Label) },
		managed.SetTreeSets)
	if err != nil {
		return err
	}

	return sets.Pairs(incoming.TreeSets, func(_ int, m, in *model.TreeSet) error {
		m.SetLabel(in.Label)

		trees, err := realign(s, model.KindTree, m, m.Trees, in.Trees,
			func(t *model.Tree) *model.Tree { return model.NewTree(t.Label, t.Newick) },
			m.SetTrees)
		if err != nil {
			return err
		}

		return trees.Pairs(in.Trees, func(_ int, mt, it *model.Tree) error {
			mt.SetLabel(it.Label)
			mt.SetNewick(it.Newick)

			return nil
		})
	})
}

func (s *session) applyAttachments(managed, incoming model.Attachee) error {
	list, err := realign(s, model.KindAttachment, managed, managed.AttachmentList(), incoming.AttachmentList(),
		func(in *model.Attachment) *model.Attachment { return model.NewAttachment(s.typeFor(in), in.Value) },
		managed.SetAttachments)
	if err != nil {
		return err
	}

	return list.Pairs(incoming.AttachmentList(), func(_ int, m, in *model.Attachment) error {
		m.SetType(s.typeFor(in))
		m.SetValue(in.Value)

		return nil
	})
}
