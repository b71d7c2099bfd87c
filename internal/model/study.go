package model

// Study is the root of a versioned graph. It owns an ordered list of OTU sets.
type Study struct {
	VersionInfo
	Label       string
	OtuSets     []*OtuSet
	Attachments []*Attachment
}

// NewStudy returns a detached, clean study.
func NewStudy(label string) *Study {
	return &Study{Label: NormalizeLabel(label)}
}

// Kind identifies studies.
func (s *Study) Kind() Kind { return KindStudy }

// Owner returns nil: studies are roots.
func (s *Study) Owner() Entity { return nil }

// SetLabel updates the label, marking the study dirty on change.
func (s *Study) SetLabel(label string) bool {
	return setString(s, &s.Label, label)
}

// SetOtuSets replaces the OTU set list and adopts every member. It does not
// touch dirty flags; callers decide whether the membership change matters.
func (s *Study) SetOtuSets(sets []*OtuSet) {
	s.OtuSets = sets
	for _, os := range sets {
		os.study = s
	}
}

// AddOtuSet appends an OTU set without flagging anything.
func (s *Study) AddOtuSet(os *OtuSet) {
	s.SetOtuSets(append(s.OtuSets, os))
}

// AttachmentList returns the study attachments.
func (s *Study) AttachmentList() []*Attachment { return s.Attachments }

// SetAttachments replaces the attachment list and adopts every member.
func (s *Study) SetAttachments(list []*Attachment) {
	s.Attachments = list
	adoptAttachments(s, list)
}

// OtuSet owns an ordered list of OTUs and unordered collections of matrices,
// sequence sets and tree sets that refer to those OTUs.
type OtuSet struct {
	VersionInfo
	Label        string
	Description  string
	Otus         []*Otu
	Matrices     []*Matrix
	SequenceSets []*SequenceSet
	TreeSets     []*TreeSet
	Attachments  []*Attachment

	study *Study
}

// NewOtuSet returns a detached, clean OTU set.
func NewOtuSet(label string) *OtuSet {
	return &OtuSet{Label: NormalizeLabel(label)}
}

// Kind identifies OTU sets.
func (os *OtuSet) Kind() Kind { return KindOtuSet }

// Owner returns the owning study, or nil when detached.
func (os *OtuSet) Owner() Entity {
	if os.study == nil {
		return nil
	}

	return os.study
}

// Study returns the owning study, or nil when detached.
func (os *OtuSet) Study() *Study { return os.study }

// SetLabel updates the label, marking the OTU set dirty on change.
func (os *OtuSet) SetLabel(label string) bool {
	return setString(os, &os.Label, label)
}

// SetDescription updates the description, marking the OTU set dirty on change.
func (os *OtuSet) SetDescription(description string) bool {
	return setString(os, &os.Description, description)
}

// SetOtus replaces the OTU list and adopts every member.
func (os *OtuSet) SetOtus(otus []*Otu) {
	os.Otus = otus
	for _, o := range otus {
		o.otuSet = os
	}
}

// AddOtu appends an OTU without flagging anything.
func (os *OtuSet) AddOtu(o *Otu) {
	os.SetOtus(append(os.Otus, o))
}

// IndexOfOtu returns the position of o in the OTU list, or -1.
func (os *OtuSet) IndexOfOtu(o *Otu) int {
	for i, candidate := range os.Otus {
		if candidate == o {
			return i
		}
	}

	return -1
}

// SetMatrices replaces the matrix list and adopts every member.
func (os *OtuSet) SetMatrices(matrices []*Matrix) {
	os.Matrices = matrices
	for _, m := range matrices {
		m.otuSet = os
	}
}

// AddMatrix appends a matrix without flagging anything.
func (os *OtuSet) AddMatrix(m *Matrix) {
	os.SetMatrices(append(os.Matrices, m))
}

// SetSequenceSets replaces the sequence set list and adopts every member.
func (os *OtuSet) SetSequenceSets(sets []*SequenceSet) {
	os.SequenceSets = sets
	for _, ss := range sets {
		ss.otuSet = os
	}
}

// AddSequenceSet appends a sequence set without flagging anything.
func (os *OtuSet) AddSequenceSet(ss *SequenceSet) {
	os.SetSequenceSets(append(os.SequenceSets, ss))
}

// SetTreeSets replaces the tree set list and adopts every member.
func (os *OtuSet) SetTreeSets(sets []*TreeSet) {
	os.TreeSets = sets
	for _, ts := range sets {
		ts.otuSet = os
	}
}

// AddTreeSet appends a tree set without flagging anything.
func (os *OtuSet) AddTreeSet(ts *TreeSet) {
	os.SetTreeSets(append(os.TreeSets, ts))
}

// AttachmentList returns the OTU set attachments.
func (os *OtuSet) AttachmentList() []*Attachment { return os.Attachments }

// SetAttachments replaces the attachment list and adopts every member.
func (os *OtuSet) SetAttachments(list []*Attachment) {
	os.Attachments = list
	adoptAttachments(os, list)
}

// Otu is an operational taxonomic unit. Matrices key their rows by Otu and
// sequence sets key their sequences by Otu.
type Otu struct {
	VersionInfo
	Label       string
	Attachments []*Attachment

	otuSet *OtuSet
}

// NewOtu returns a detached, clean OTU.
func NewOtu(label string) *Otu {
	return &Otu{Label: NormalizeLabel(label)}
}

// Kind identifies OTUs.
func (o *Otu) Kind() Kind { return KindOtu }

// Owner returns the owning OTU set, or nil when detached.
func (o *Otu) Owner() Entity {
	if o.otuSet == nil {
		return nil
	}

	return o.otuSet
}

// OtuSet returns the owning OTU set, or nil when detached.
func (o *Otu) OtuSet() *OtuSet { return o.otuSet }

// SetLabel updates the label, marking the OTU dirty on change.
func (o *Otu) SetLabel(label string) bool {
	return setString(o, &o.Label, label)
}

// AttachmentList returns the OTU attachments.
func (o *Otu) AttachmentList() []*Attachment { return o.Attachments }

// SetAttachments replaces the attachment list and adopts every member.
func (o *Otu) SetAttachments(list []*Attachment) {
	o.Attachments = list
	adoptAttachments(o, list)
}

// Detach severs the back-reference to the owning OTU set.
func (o *Otu) Detach() { o.otuSet = nil }

// Detach severs the back-reference to the owning study.
func (os *OtuSet) Detach() { os.study = nil }
