package domain

import "encoding/json"

// Document is one JSON object stored in a collection.
type Document = json.RawMessage

// FindOptions carries the arguments of a find request.
type FindOptions struct {
	Query      json.RawMessage
	Projection json.RawMessage
	Sort       json.RawMessage
	Skip       int
	Limit      int // 0 means no limit
}

// CountOptions carries the arguments of a count request.
type CountOptions struct {
	Query json.RawMessage
	Skip  int
	Limit int // 0 means no limit
}

// RemoveOptions carries the arguments of a remove request.
type RemoveOptions struct {
	Constraint json.RawMessage
	JustOne    bool
}

// MutationKind distinguishes the write shapes the quota planner understands.
type MutationKind int

const (
	MutationInsert MutationKind = iota + 1
	MutationUpdate
)

// String returns the lower-case operation name.
func (k MutationKind) String() string {
	switch k {
	case MutationInsert:
		return "insert"
	case MutationUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Mutation describes a growing write before it is applied.
//
// Insert mutations carry Documents; update mutations carry Query, Update and
// the Upsert/Multi flags. A mutation is planned and applied as a unit.
type Mutation struct {
	Kind      MutationKind
	Documents []Document
	Query     json.RawMessage
	Update    json.RawMessage
	Upsert    bool
	Multi     bool
}

// NewInsert builds an insert mutation.
func NewInsert(docs ...Document) *Mutation {
	return &Mutation{Kind: MutationInsert, Documents: docs}
}

// NewUpdate builds an update mutation.
func NewUpdate(query, update json.RawMessage, upsert, multi bool) *Mutation {
	return &Mutation{Kind: MutationUpdate, Query: query, Update: update, Upsert: upsert, Multi: multi}
}

// MutationPlan is the backend's projection of a mutation's effect.
type MutationPlan struct {
	// SizeDelta is the projected change in stored bytes. It may be negative.
	SizeDelta int64
	// Affected is the number of documents the mutation would write.
	Affected int
}

// IndexSpec describes an index to create.
type IndexSpec struct {
	Keys               json.RawMessage `json:"keys"`
	Name               string          `json:"name,omitempty"`
	Unique             bool            `json:"unique,omitempty"`
	Sparse             bool            `json:"sparse,omitempty"`
	Background         bool            `json:"background,omitempty"`
	ExpireAfterSeconds *int64          `json:"expireAfterSeconds,omitempty"`
}

// IndexInfo describes an existing index as reported to clients.
type IndexInfo struct {
	V                  int             `json:"v"`
	Key                json.RawMessage `json:"key"`
	NS                 string          `json:"ns"`
	Name               string          `json:"name"`
	Unique             bool            `json:"unique,omitempty"`
	Sparse             bool            `json:"sparse,omitempty"`
	Background         bool            `json:"background,omitempty"`
	ExpireAfterSeconds *int64          `json:"expireAfterSeconds,omitempty"`
}

// DefaultIndexName is the name of the implicit primary-key index.
const DefaultIndexName = "_id_"

// WriteResult reports the effect of an update or remove.
type WriteResult struct {
	Matched  int    `json:"n"`
	Modified int    `json:"nModified"`
	Upserted string `json:"upserted,omitempty"`
}
