// Package model defines the versioned study graph: studies own OTU sets,
// which own OTUs, character/DNA/protein matrices, sequence sets and tree
// sets. Every persisted entity carries a VersionInfo whose transient dirty
// flag cascades up the ownership chain so that a post-merge pass can assign
// fresh version stamps to exactly the entities that changed.
package model

// Kind names an entity type in lookups, error messages and change reports.
type Kind string

// Entity kinds as stored in the database and reported in errors.
const (
	KindStudy          Kind = "study"
	KindOtuSet         Kind = "otu_set"
	KindOtu            Kind = "otu"
	KindMatrix         Kind = "matrix"
	KindCharacter      Kind = "character"
	KindRow            Kind = "row"
	KindCell           Kind = "cell"
	KindSequenceSet    Kind = "sequence_set"
	KindSequence       Kind = "sequence"
	KindTreeSet        Kind = "tree_set"
	KindTree           Kind = "tree"
	KindAttachment     Kind = "attachment"
	KindAttachmentType Kind = "attachment_type"
)

// VersionInfo is embedded by every persisted entity.
type VersionInfo struct {
	ID         int64  // storage-assigned; 0 until first insert
	ExternalID string // client-visible stable identifier, assigned once
	Version    int64  // last assigned stamp; 0 until the first assignment

	// dirty is transient: never persisted, cleared only by Stamp.
	dirty bool
}

// Info returns the embedded version bookkeeping. Promoted to every entity so
// that it satisfies Entity.
func (v *VersionInfo) Info() *VersionInfo {
	return v
}

// IsDirty reports whether the entity's version stamp is stale.
func (v *VersionInfo) IsDirty() bool {
	return v.dirty
}

// Stamp records a freshly allocated version and clears the dirty flag.
func (v *VersionInfo) Stamp(version int64) {
	v.Version = version
	v.dirty = false
}

// Entity is implemented by every node of the study graph.
type Entity interface {
	Info() *VersionInfo
	Kind() Kind
	// Owner returns the immediate owner, or nil for roots and detached entities.
	Owner() Entity
}

// MarkDirty flags e as needing a new version and walks the owner chain,
// stopping at the first ancestor that is already flagged. Cost is O(depth)
// per mutation regardless of fan-out.
func MarkDirty(e Entity) {
	for e != nil {
		info := e.Info()
		if info.dirty {
			return
		}

		info.dirty = true
		e = e.Owner()
	}
}

// MarkNew flags a freshly attached entity and cascades to its owner. Unlike
// MarkDirty it does not short-circuit on the entity itself: a new entity may
// have been flagged while still detached, before it had an owner to notify.
func MarkNew(e Entity) {
	e.Info().dirty = true
	MarkDirty(e.Owner())
}

// setString assigns a normalized label to field and marks e dirty when the
// value actually changed.
func setString(e Entity, field *string, value string) bool {
	value = NormalizeLabel(value)
	if *field == value {
		return false
	}

	*field = value
	MarkDirty(e)

	return true
}
