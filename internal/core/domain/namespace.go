package domain

import (
	"sort"
	"strings"
	"time"
)

// MaxCollectionNameLength bounds a logical collection name in bytes.
const MaxCollectionNameLength = 120

// Namespace is the private resource space of one res_id.
//
// Collections lists the logical collection names created in the namespace.
// It is the authoritative listing shared by every session bound to ResID and
// is kept sorted.
type Namespace struct {
	ResID       string   `json:"res_id"`
	Collections []string `json:"collections"`
	CreatedAt   int64    `json:"created_at"`
	Version     uint64   `json:"version"`
}

// NewNamespace creates an empty namespace for resID.
func NewNamespace(resID string, now time.Time) *Namespace {
	return &Namespace{
		ResID:       resID,
		Collections: []string{},
		CreatedAt:   now.UnixMilli(),
		Version:     1,
	}
}

// Has reports whether logical is registered.
func (n *Namespace) Has(logical string) bool {
	i := sort.SearchStrings(n.Collections, logical)
	return i < len(n.Collections) && n.Collections[i] == logical
}

// Add registers logical. Returns false if it was already present.
func (n *Namespace) Add(logical string) bool {
	i := sort.SearchStrings(n.Collections, logical)
	if i < len(n.Collections) && n.Collections[i] == logical {
		return false
	}
	n.Collections = append(n.Collections, "")
	copy(n.Collections[i+1:], n.Collections[i:])
	n.Collections[i] = logical
	return true
}

// Remove unregisters logical. Returns false if it was not present.
func (n *Namespace) Remove(logical string) bool {
	i := sort.SearchStrings(n.Collections, logical)
	if i >= len(n.Collections) || n.Collections[i] != logical {
		return false
	}
	n.Collections = append(n.Collections[:i], n.Collections[i+1:]...)
	return true
}

// InternalNames returns the backend names of every registered collection.
func (n *Namespace) InternalNames() []string {
	names := make([]string, len(n.Collections))
	for i, logical := range n.Collections {
		names[i] = InternalName(n.ResID, logical)
	}
	return names
}

// CreatedBefore reports whether the namespace was created before cutoff.
func (n *Namespace) CreatedBefore(cutoff time.Time) bool {
	return n.CreatedAt < cutoff.UnixMilli()
}

// IncrVersion increments the version number for optimistic locking.
func (n *Namespace) IncrVersion() {
	n.Version++
}

// GetVersion implements cmap.Versioned.
func (n *Namespace) GetVersion() uint64 {
	return n.Version
}

// SetVersion implements cmap.Versioned.
func (n *Namespace) SetVersion(v uint64) {
	n.Version = v
}

// Clone creates a deep copy of the namespace.
func (n *Namespace) Clone() *Namespace {
	clone := *n
	clone.Collections = append([]string(nil), n.Collections...)
	return &clone
}

// InternalName maps a logical collection of resID to its backend name.
//
// res_id has a fixed length and contains no dot, so the first dot always
// separates the two parts and distinct inputs never collide.
func InternalName(resID, logical string) string {
	return resID + "." + logical
}

// SplitInternalName reverses InternalName.
func SplitInternalName(name string) (resID, logical string, ok bool) {
	resID, logical, ok = strings.Cut(name, ".")
	if !ok || !IsValidResID(resID) || logical == "" {
		return "", "", false
	}
	return resID, logical, true
}

// ValidateCollectionName checks a client-supplied logical collection name.
func ValidateCollectionName(logical string) error {
	switch {
	case logical == "":
		return ErrInvalidArgument.WithDetails("collection name is empty")
	case len(logical) > MaxCollectionNameLength:
		return ErrInvalidArgument.WithDetails("collection name exceeds 120 bytes")
	case strings.ContainsAny(logical, "$\x00"):
		return ErrInvalidArgument.WithDetails("collection name contains an invalid character")
	case strings.HasPrefix(logical, "system."):
		return ErrInvalidArgument.WithDetails("collection name uses the reserved system. prefix")
	}
	return nil
}
