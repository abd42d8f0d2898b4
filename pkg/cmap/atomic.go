package cmap

// GetOrSet returns the existing value for key, or stores value if absent.
// The boolean reports whether the value was already present.
func (m *Map[K, V]) GetOrSet(key K, value V) (V, bool) {
	sh := m.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if existing, ok := sh.items[key]; ok {
		return existing, true
	}
	sh.items[key] = value
	return value, false
}

// SetIfAbsent stores value only if key does not exist.
// Returns true if the value was stored.
func (m *Map[K, V]) SetIfAbsent(key K, value V) bool {
	_, loaded := m.GetOrSet(key, value)
	return !loaded
}

// Compute runs fn under the shard lock with the current value.
// fn returns the new value and whether to keep it; returning false deletes
// the key. The result of fn is returned.
func (m *Map[K, V]) Compute(key K, fn func(value V, exists bool) (V, bool)) (V, bool) {
	sh := m.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	existing, exists := sh.items[key]
	next, keep := fn(existing, exists)
	if keep {
		sh.items[key] = next
	} else {
		delete(sh.items, key)
	}
	return next, keep
}

// DeleteIf removes key when pred holds for its current value.
// Returns true if the key was removed.
func (m *Map[K, V]) DeleteIf(key K, pred func(value V) bool) bool {
	sh := m.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, ok := sh.items[key]
	if !ok || !pred(current) {
		return false
	}
	delete(sh.items, key)
	return true
}

// Versioned is implemented by values that carry an optimistic lock version.
type Versioned interface {
	GetVersion() uint64
	SetVersion(v uint64)
}

// CompareAndSwap stores newValue if the current version equals
// expectedVersion. newValue is stamped with expectedVersion+1.
// Returns false when the key is missing or the version moved on.
func CompareAndSwap[K comparable, V Versioned](m *Map[K, V], key K, expectedVersion uint64, newValue V) bool {
	sh := m.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, exists := sh.items[key]
	if !exists || current.GetVersion() != expectedVersion {
		return false
	}

	newValue.SetVersion(expectedVersion + 1)
	sh.items[key] = newValue
	return true
}

// CompareAndDelete deletes key if its version equals expectedVersion.
func CompareAndDelete[K comparable, V Versioned](m *Map[K, V], key K, expectedVersion uint64) bool {
	return m.DeleteIf(key, func(v V) bool { return v.GetVersion() == expectedVersion })
}
