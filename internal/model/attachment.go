package model

// AttachmentType is an append-only lookup value naming what an attachment
// means, scoped by namespace. Types are shared across studies and never
// deleted.
type AttachmentType struct {
	VersionInfo
	Namespace string
	Label     string
}

// NewAttachmentType returns an unresolved type reference.
func NewAttachmentType(namespace, label string) *AttachmentType {
	return &AttachmentType{Namespace: NormalizeLabel(namespace), Label: NormalizeLabel(label)}
}

// Kind identifies attachment types.
func (t *AttachmentType) Kind() Kind { return KindAttachmentType }

// Owner returns nil: lookup values belong to no study.
func (t *AttachmentType) Owner() Entity { return nil }

// Key returns the (namespace, label) pair that identifies the type.
func (t *AttachmentType) Key() LookupKey {
	return LookupKey{Namespace: t.Namespace, Label: t.Label}
}

// LookupKey identifies an append-only lookup value by value equality.
type LookupKey struct {
	Namespace string
	Label     string
}

// Attachment is a typed string value hung off a study, OTU set, OTU or matrix.
type Attachment struct {
	VersionInfo
	Type  *AttachmentType
	Value string

	owner Entity
}

// NewAttachment returns a detached, clean attachment.
func NewAttachment(t *AttachmentType, value string) *Attachment {
	return &Attachment{Type: t, Value: value}
}

// Kind identifies attachments.
func (a *Attachment) Kind() Kind { return KindAttachment }

// Owner returns the entity the attachment hangs off, or nil when detached.
func (a *Attachment) Owner() Entity { return a.owner }

// SetValue updates the value, marking the attachment dirty on change.
func (a *Attachment) SetValue(value string) bool {
	if a.Value == value {
		return false
	}

	a.Value = value
	MarkDirty(a)

	return true
}

// SetType points the attachment at a different lookup value.
func (a *Attachment) SetType(t *AttachmentType) bool {
	if a.Type == t || (a.Type != nil && t != nil && a.Type.Key() == t.Key()) {
		return false
	}

	a.Type = t
	MarkDirty(a)

	return true
}

// Detach severs the back-reference to the attachee.
func (a *Attachment) Detach() { a.owner = nil }

// Attachee is implemented by every entity that can carry attachments.
type Attachee interface {
	Entity
	AttachmentList() []*Attachment
	SetAttachments(list []*Attachment)
}

func adoptAttachments(owner Entity, list []*Attachment) {
	for _, a := range list {
		a.owner = owner
	}
}
