package manifest

import (
	"cmp"
	"slices"
)

// Index is a set of entries keyed by rooted path.
type Index struct {
	Entries map[string]Entry
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{Entries: make(map[string]Entry)}
}

// Add adds or replaces an entry.
func (idx *Index) Add(e Entry) {
	if idx.Entries == nil {
		idx.Entries = make(map[string]Entry)
	}
	idx.Entries[e.Path] = e
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.Entries)
}

// Sorted returns the entries ordered by path.
func (idx *Index) Sorted() []Entry {
	entries := make([]Entry, 0, idx.Len())
	for _, e := range idx.Entries {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b Entry) int { return cmp.Compare(a.Path, b.Path) })
	return entries
}

// Diff compares idx (the recorded state) against other (the current state).
// An entry whose recorded hash is empty is never reported as modified.
func (idx *Index) Diff(other *Index) *ChangeSet {
	cs := NewChangeSet()

	var oldEntries, newEntries map[string]Entry
	if idx != nil {
		oldEntries = idx.Entries
	}
	if other != nil {
		newEntries = other.Entries
	}

	for path, newEntry := range newEntries {
		oldEntry, exists := oldEntries[path]
		if !exists {
			cs.Added = append(cs.Added, path)
			continue
		}
		if oldEntry.Hash != "" && oldEntry.Hash != newEntry.Hash {
			cs.Modified = append(cs.Modified, path)
		}
	}
	for path := range oldEntries {
		if _, exists := newEntries[path]; !exists {
			cs.Deleted = append(cs.Deleted, path)
		}
	}

	cs.sort()
	return cs
}

// ChangeSet is the difference between a manifest and its tree.
type ChangeSet struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
}

// NewChangeSet creates an empty ChangeSet.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		Added:    []string{},
		Modified: []string{},
		Deleted:  []string{},
	}
}

// IsEmpty returns true if there are no changes.
func (cs *ChangeSet) IsEmpty() bool {
	if cs == nil {
		return true
	}
	return len(cs.Added) == 0 && len(cs.Modified) == 0 && len(cs.Deleted) == 0
}

// TotalChanges returns the total number of changed files.
func (cs *ChangeSet) TotalChanges() int {
	if cs == nil {
		return 0
	}
	return len(cs.Added) + len(cs.Modified) + len(cs.Deleted)
}

func (cs *ChangeSet) sort() {
	slices.Sort(cs.Added)
	slices.Sort(cs.Modified)
	slices.Sort(cs.Deleted)
}
