package merge

import (
	"maps"
	"slices"

	"github.com/tonimelisma/phylomerge/internal/model"
)

// Report summarizes what a merge did, per entity kind.
type Report struct {
	StudyExternalID string
	Created         map[model.Kind]int
	Updated         map[model.Kind]int
	Removed         map[model.Kind]int
	// Stamped counts version stamps assigned after the merge.
	Stamped int
}

func newReport() *Report {
	return &Report{
		Created: make(map[model.Kind]int),
		Updated: make(map[model.Kind]int),
		Removed: make(map[model.Kind]int),
	}
}

func (r *Report) created(kind model.Kind, n int) {
	if n > 0 {
		r.Created[kind] += n
	}
}

func (r *Report) updated(kind model.Kind, n int) {
	if n > 0 {
		r.Updated[kind] += n
	}
}

func (r *Report) record(kind model.Kind, created, removed int) {
	r.created(kind, created)

	if removed > 0 {
		r.Removed[kind] += removed
	}
}

// Changed reports whether the merge altered anything.
func (r *Report) Changed() bool {
	return len(r.Created) > 0 || len(r.Updated) > 0 || len(r.Removed) > 0
}

// Kinds returns every kind mentioned in the report, sorted.
func (r *Report) Kinds() []model.Kind {
	seen := make(map[model.Kind]bool)
	for _, m := range []map[model.Kind]int{r.Created, r.Updated, r.Removed} {
		for k := range maps.Keys(m) {
			seen[k] = true
		}
	}

	return slices.Sorted(maps.Keys(seen))
}
