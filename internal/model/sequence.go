package model

import "slices"

// SequenceSet holds one molecular sequence per OTU. Aligned sets require all
// sequences to share a length; raw sets do not.
type SequenceSet struct {
	VersionInfo
	Type    MatrixType
	Label   string
	Aligned bool

	sequences map[*Otu]*Sequence
	order     []*Otu
	otuSet    *OtuSet
}

// NewSequenceSet returns a detached, empty sequence set.
func NewSequenceSet(t MatrixType, label string, aligned bool) *SequenceSet {
	return &SequenceSet{
		Type:      t,
		Label:     NormalizeLabel(label),
		Aligned:   aligned,
		sequences: make(map[*Otu]*Sequence),
	}
}

// Kind identifies sequence sets.
func (ss *SequenceSet) Kind() Kind { return KindSequenceSet }

// Owner returns the owning OTU set, or nil when detached.
func (ss *SequenceSet) Owner() Entity {
	if ss.otuSet == nil {
		return nil
	}

	return ss.otuSet
}

// OtuSet returns the owning OTU set, or nil when detached.
func (ss *SequenceSet) OtuSet() *OtuSet { return ss.otuSet }

// Detach severs the back-reference to the owning OTU set.
func (ss *SequenceSet) Detach() { ss.otuSet = nil }

// SetLabel updates the label, marking the set dirty on change.
func (ss *SequenceSet) SetLabel(label string) bool {
	return setString(ss, &ss.Label, label)
}

// SetAligned toggles the equal-length constraint.
func (ss *SequenceSet) SetAligned(aligned bool) bool {
	if ss.Aligned == aligned {
		return false
	}

	ss.Aligned = aligned
	MarkDirty(ss)

	return true
}

// Sequence returns the sequence for otu, or nil.
func (ss *SequenceSet) Sequence(otu *Otu) *Sequence {
	return ss.sequences[otu]
}

// PutSequence stores seq under otu and adopts it.
func (ss *SequenceSet) PutSequence(otu *Otu, seq *Sequence) {
	if ss.sequences == nil {
		ss.sequences = make(map[*Otu]*Sequence)
	}

	if _, ok := ss.sequences[otu]; !ok {
		ss.order = append(ss.order, otu)
	}

	seq.Otu = otu
	seq.set = ss
	ss.sequences[otu] = seq
}

// RemoveSequence drops and detaches the sequence for otu.
func (ss *SequenceSet) RemoveSequence(otu *Otu) *Sequence {
	seq, ok := ss.sequences[otu]
	if !ok {
		return nil
	}

	delete(ss.sequences, otu)
	ss.order = slices.DeleteFunc(ss.order, func(o *Otu) bool { return o == otu })
	seq.set = nil

	return seq
}

// SequenceOtus returns the OTUs that have sequences, in insertion order.
func (ss *SequenceSet) SequenceOtus() []*Otu {
	return slices.Clone(ss.order)
}

// Sequences returns the sequences ordered by the owning OTU set's OTU order,
// or insertion order when detached.
func (ss *SequenceSet) Sequences() []*Sequence {
	order := ss.order
	if ss.otuSet != nil {
		order = ss.otuSet.Otus
	}

	out := make([]*Sequence, 0, len(ss.sequences))
	for _, otu := range order {
		if seq, ok := ss.sequences[otu]; ok {
			out = append(out, seq)
		}
	}

	return out
}

// Validate checks every sequence against the molecule alphabet and, for
// aligned sets, that all sequences share one length.
func (ss *SequenceSet) Validate() error {
	if !ss.Type.Molecular() {
		return Validationf(KindSequenceSet, ss.ExternalID, "sequence sets must be dna or protein, got %q", ss.Type)
	}

	length := -1

	for _, otu := range ss.order {
		seq := ss.sequences[otu]
		if err := CheckSequence(ss.Type, seq.Value); err != nil {
			return Validationf(KindSequence, seq.ExternalID, "otu %q: %v", otu.Label, err)
		}

		if !ss.Aligned {
			continue
		}

		if length >= 0 && len(seq.Value) != length {
			return Validationf(KindSequenceSet, ss.ExternalID,
				"aligned sequences differ in length: %d vs %d (otu %q)", length, len(seq.Value), otu.Label)
		}

		length = len(seq.Value)
	}

	return nil
}

// Sequence is the molecular data of one OTU in a sequence set.
type Sequence struct {
	VersionInfo
	Otu   *Otu
	Name  string
	Value string

	set *SequenceSet
}

// NewSequence returns a detached sequence.
func NewSequence(name, value string) *Sequence {
	return &Sequence{Name: NormalizeLabel(name), Value: value}
}

// Kind identifies sequences.
func (s *Sequence) Kind() Kind { return KindSequence }

// Owner returns the owning sequence set, or nil when detached.
func (s *Sequence) Owner() Entity {
	if s.set == nil {
		return nil
	}

	return s.set
}

// SetName updates the name, marking the sequence dirty on change.
func (s *Sequence) SetName(name string) bool {
	return setString(s, &s.Name, name)
}

// SetValue replaces the sequence data, marking it dirty on change.
func (s *Sequence) SetValue(value string) bool {
	if s.Value == value {
		return false
	}

	s.Value = value
	MarkDirty(s)

	return true
}
