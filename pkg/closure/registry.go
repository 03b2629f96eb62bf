package closure

import mapset "github.com/deckarep/golang-set/v2"

// Registry is the set of canonical paths visited during one run. It only
// grows; membership is what breaks dependency cycles.
type Registry struct {
	set mapset.Set[string]
}

// NewRegistry returns an empty Registry. The walk is single-threaded, so
// the set is unsynchronized.
func NewRegistry() *Registry {
	return &Registry{set: mapset.NewThreadUnsafeSet[string]()}
}

// Contains reports whether path has been visited.
func (r *Registry) Contains(path string) bool {
	return r.set.Contains(path)
}

// MarkVisited records path. Marking twice is a no-op.
func (r *Registry) MarkVisited(path string) {
	r.set.Add(path)
}

// Len returns the number of visited paths.
func (r *Registry) Len() int {
	return r.set.Cardinality()
}
