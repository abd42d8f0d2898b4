package memory

import (
	"sort"
	"sync"

	"github.com/yndnr/sandstore-go/pkg/cmap"
)

// HashSet is a concurrent-safe set of token hashes.
type HashSet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// NewHashSet creates a new hash set.
func NewHashSet() *HashSet {
	return &HashSet{
		items: make(map[string]struct{}),
	}
}

// Add adds a hash to the set.
func (s *HashSet) Add(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[hash] = struct{}{}
}

// Remove removes a hash from the set.
func (s *HashSet) Remove(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, hash)
}

// Contains checks if a hash is in the set.
func (s *HashSet) Contains(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[hash]
	return ok
}

// Len returns the number of items in the set.
func (s *HashSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Items returns the hashes in sorted order.
func (s *HashSet) Items() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]string, 0, len(s.items))
	for hash := range s.items {
		items = append(items, hash)
	}
	sort.Strings(items)
	return items
}

// ResIndex provides secondary indexing for sessions by res_id.
//
// It maintains a mapping from res_id to the token hashes of the sessions
// bound to it, which the sweeper uses to decide whether a namespace is still
// referenced.
type ResIndex struct {
	index *cmap.Map[string, *HashSet]
}

// NewResIndex creates a new res_id index.
func NewResIndex() *ResIndex {
	return &ResIndex{
		index: cmap.New[string, *HashSet](),
	}
}

// Add records that the session with tokenHash is bound to resID.
func (i *ResIndex) Add(resID, tokenHash string) {
	set, _ := i.index.GetOrSet(resID, NewHashSet())
	set.Add(tokenHash)
}

// Remove forgets the session with tokenHash.
func (i *ResIndex) Remove(resID, tokenHash string) {
	set, ok := i.index.Get(resID)
	if !ok {
		return
	}

	set.Remove(tokenHash)

	// Clean up empty sets
	if set.Len() == 0 {
		i.index.DeleteIf(resID, func(s *HashSet) bool { return s.Len() == 0 })
	}
}

// Get returns the token hashes bound to resID.
func (i *ResIndex) Get(resID string) []string {
	set, ok := i.index.Get(resID)
	if !ok {
		return nil
	}
	return set.Items()
}

// Count returns the number of sessions bound to resID.
func (i *ResIndex) Count(resID string) int {
	set, ok := i.index.Get(resID)
	if !ok {
		return 0
	}
	return set.Len()
}
