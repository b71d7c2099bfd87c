package merge

import (
	"github.com/tonimelisma/phylomerge/internal/model"
)

// Realigner reconciles an ordered, identity-bearing managed collection
// against an incoming one. Incoming elements are matched to managed elements
// by external identifier only; positions are used solely for placement.
// Matched managed instances are reused, unmatched incoming elements produce
// new managed elements, and managed elements nobody references are removed.
type Realigner[T model.Entity] struct {
	Kind  model.Kind
	Owner model.Entity
	Mint  IDMinter

	// Create builds a detached managed element from an unmatched incoming one.
	Create func(incoming T) T
	// Update copies mutable fields from incoming onto the matched managed
	// element. The element's own setters flag it dirty on change.
	Update func(managed, incoming T)
	// Attach installs the realigned list on the owner.
	Attach func(a *Alignment[T])
}

// Alignment is the outcome of a realignment.
type Alignment[T model.Entity] struct {
	Result  []T
	Removed []T
	// Source[j] is the managed index reused at result position j, or -1 for
	// a newly created element.
	Source []int
	// Changed reports whether membership or order differs from before.
	Changed bool
}

// Pairs calls fn for every (managed, incoming) pair at result position j.
func (a *Alignment[T]) Pairs(incoming []T, fn func(j int, managed, in T) error) error {
	for j, in := range incoming {
		if err := fn(j, a.Result[j], in); err != nil {
			return err
		}
	}

	return nil
}

// Created counts newly created elements.
func (a *Alignment[T]) Created() int {
	n := 0

	for _, src := range a.Source {
		if src < 0 {
			n++
		}
	}

	return n
}

// Plan is a validated realignment that has not touched the managed side yet.
type Plan[T model.Entity] struct {
	r        *Realigner[T]
	managed  []T
	incoming []T
	source   []int
}

// Plan validates incoming against managed without mutating anything. It
// fails with a validation error on duplicate external identifiers in
// incoming and with a not-found error for identifiers that match no managed
// element.
func (r *Realigner[T]) Plan(managed, incoming []T) (*Plan[T], error) {
	byID := make(map[string]int, len(managed))
	for i, m := range managed {
		if id := m.Info().ExternalID; id != "" {
			byID[id] = i
		}
	}

	seen := make(map[string]bool, len(incoming))
	source := make([]int, len(incoming))

	for j, in := range incoming {
		id := in.Info().ExternalID
		if id == "" {
			source[j] = -1
			continue
		}

		if seen[id] {
			return nil, model.Validationf(r.Kind, id, "duplicate external identifier")
		}

		seen[id] = true

		i, ok := byID[id]
		if !ok {
			return nil, model.NotFound(r.Kind, id)
		}

		source[j] = i
	}

	return &Plan[T]{r: r, managed: managed, incoming: incoming, source: source}, nil
}

// Apply performs the planned realignment: reuses matched managed instances,
// creates the rest, detaches orphans, installs the result on the owner and
// cascades dirty flags for new elements and for a changed list.
func (p *Plan[T]) Apply() *Alignment[T] {
	r := p.r

	result, removed := Remap(p.managed, p.source, func(j int) T {
		created := r.Create(p.incoming[j])
		if r.Mint != nil && created.Info().ExternalID == "" {
			created.Info().ExternalID = r.Mint()
		}

		return created
	})

	for j, src := range p.source {
		if src >= 0 {
			r.Update(result[j], p.incoming[j])
		}
	}

	for _, orphan := range removed {
		detach(orphan)
	}

	a := &Alignment[T]{
		Result:  result,
		Removed: removed,
		Source:  p.source,
		Changed: layoutChanged(len(p.managed), p.source),
	}

	r.Attach(a)

	for j, src := range p.source {
		if src < 0 {
			model.MarkNew(result[j])
		}
	}

	if a.Changed && r.Owner != nil {
		model.MarkDirty(r.Owner)
	}

	return a
}

// Realign plans and applies in one step.
func (r *Realigner[T]) Realign(managed, incoming []T) (*Alignment[T], error) {
	plan, err := r.Plan(managed, incoming)
	if err != nil {
		return nil, err
	}

	return plan.Apply(), nil
}

// Remap places managed elements at the positions named by source and calls
// create for every position whose source is negative. Managed elements that
// no position references are returned as removed, in managed order. It is
// the placement core shared by identifier-matched realignment and the
// index-matched realignment of cells within a row.
func Remap[T any](managed []T, source []int, create func(j int) T) (result, removed []T) {
	result = make([]T, len(source))
	used := make([]bool, len(managed))

	for j, src := range source {
		if src < 0 {
			result[j] = create(j)
			continue
		}

		result[j] = managed[src]
		used[src] = true
	}

	for i, m := range managed {
		if !used[i] {
			removed = append(removed, m)
		}
	}

	return result, removed
}

// layoutChanged reports whether a source mapping alters size or order.
func layoutChanged(oldLen int, source []int) bool {
	if oldLen != len(source) {
		return true
	}

	for j, src := range source {
		if src != j {
			return true
		}
	}

	return false
}

// detach severs an orphan's back-reference to its former owner.
func detach(e any) {
	if d, ok := e.(interface{ Detach() }); ok {
		d.Detach()
	}
}
