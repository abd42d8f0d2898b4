package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/yndnr/sandstore-go/internal/core/domain"
	"github.com/yndnr/sandstore-go/internal/core/service"
	"github.com/yndnr/sandstore-go/internal/storage/query"
	"github.com/yndnr/sandstore-go/pkg/cmap"
)

var _ service.Backend = (*DocStore)(nil)

// collection is one backend collection. Documents keep insertion order.
type collection struct {
	mu      sync.RWMutex
	docs    [][]byte
	size    int64
	indexes []index
}

// index pairs a compiled definition with the options reported back.
type index struct {
	def  query.IndexDef
	info domain.IndexInfo
}

// DocStore is an in-memory document backend.
//
// Each collection has its own lock. Writes build the new document slice,
// check unique indexes against it and swap it in, so a rejected write has no
// effect.
type DocStore struct {
	colls *cmap.Map[string, *collection]
	newID func() string
}

// DocStoreOption configures the DocStore.
type DocStoreOption func(*DocStore)

// WithIDGenerator overrides the _id generator.
func WithIDGenerator(fn func() string) DocStoreOption {
	return func(s *DocStore) {
		s.newID = fn
	}
}

// NewDocStore creates an empty document backend.
func NewDocStore(opts ...DocStoreOption) *DocStore {
	s := &DocStore{
		colls: cmap.New[string, *collection](),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newCollection(name string) *collection {
	id := query.IDIndex()
	return &collection{
		docs: [][]byte{},
		indexes: []index{{
			def:  id,
			info: domain.IndexInfo{V: 1, Key: json.RawMessage(id.Keys), NS: name, Name: id.Name},
		}},
	}
}

func (s *DocStore) lookup(coll string) (*collection, bool) {
	return s.colls.Get(coll)
}

func (s *DocStore) obtain(coll string) *collection {
	c, _ := s.colls.GetOrSet(coll, newCollection(coll))
	return c
}

// acquire returns coll write-locked. A collection dropped between the map
// read and the lock is detached, so the lookup is repeated until the locked
// collection is still the one in the map. With create unset a missing
// collection yields false.
func (s *DocStore) acquire(coll string, create bool) (*collection, bool) {
	for {
		var c *collection
		if create {
			c = s.obtain(coll)
		} else {
			var ok bool
			if c, ok = s.lookup(coll); !ok {
				return nil, false
			}
		}
		c.mu.Lock()
		if cur, ok := s.colls.Get(coll); ok && cur == c {
			return c, true
		}
		c.mu.Unlock()
	}
}

func (c *collection) defs() []query.IndexDef {
	defs := make([]query.IndexDef, len(c.indexes))
	for i, idx := range c.indexes {
		defs[i] = idx.def
	}
	return defs
}

func (c *collection) swap(docs [][]byte) {
	c.docs = docs
	c.size = sizeOf(docs)
}

// Insert appends docs, assigning an _id to those without one.
func (s *DocStore) Insert(_ context.Context, coll string, docs []domain.Document) error {
	prepared, err := query.PrepareInsert(toRaw(docs), s.newID)
	if err != nil {
		return query.AsDomainError(err)
	}

	c, _ := s.acquire(coll, true)
	defer c.mu.Unlock()

	next := make([][]byte, 0, len(c.docs)+len(prepared))
	next = append(next, c.docs...)
	next = append(next, prepared...)
	if err := query.CheckUnique(coll, next, c.defs()); err != nil {
		return query.AsDomainError(err)
	}
	c.swap(next)
	return nil
}

// Find returns matching documents. A missing collection is empty.
func (s *DocStore) Find(_ context.Context, coll string, opts *domain.FindOptions) ([]domain.Document, error) {
	var docs [][]byte
	if c, ok := s.lookup(coll); ok {
		c.mu.RLock()
		docs = c.docs
		c.mu.RUnlock()
	}

	out, err := query.Find(docs, query.FindSpec{
		Filter:     opts.Query,
		Projection: opts.Projection,
		Sort:       opts.Sort,
		Skip:       opts.Skip,
		Limit:      opts.Limit,
	})
	if err != nil {
		return nil, query.AsDomainError(err)
	}
	return fromRaw(out), nil
}

// Count returns the number of matching documents.
func (s *DocStore) Count(_ context.Context, coll string, opts *domain.CountOptions) (int, error) {
	var docs [][]byte
	if c, ok := s.lookup(coll); ok {
		c.mu.RLock()
		docs = c.docs
		c.mu.RUnlock()
	}

	n, err := query.Count(docs, opts.Query, opts.Skip, opts.Limit)
	if err != nil {
		return 0, query.AsDomainError(err)
	}
	return n, nil
}

// Update applies an update mutation.
func (s *DocStore) Update(_ context.Context, coll string, m *domain.Mutation) (*domain.WriteResult, error) {
	c, ok := s.acquire(coll, m.Upsert)
	if !ok {
		// validate the request even though nothing can match
		if _, err := query.PlanUpdate(nil, updateSpec(m), s.newID); err != nil {
			return nil, query.AsDomainError(err)
		}
		return &domain.WriteResult{}, nil
	}
	defer c.mu.Unlock()

	plan, err := query.PlanUpdate(c.docs, updateSpec(m), s.newID)
	if err != nil {
		return nil, query.AsDomainError(err)
	}
	next := plan.Apply(c.docs)
	if err := query.CheckUnique(coll, next, c.defs()); err != nil {
		return nil, query.AsDomainError(err)
	}
	c.swap(next)

	return writeResult(plan), nil
}

// Remove deletes matching documents.
func (s *DocStore) Remove(_ context.Context, coll string, opts *domain.RemoveOptions) (*domain.WriteResult, error) {
	c, ok := s.lookup(coll)
	if !ok {
		if _, err := query.Select(nil, opts.Constraint, opts.JustOne); err != nil {
			return nil, query.AsDomainError(err)
		}
		return &domain.WriteResult{}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := query.Select(c.docs, opts.Constraint, opts.JustOne)
	if err != nil {
		return nil, query.AsDomainError(err)
	}
	c.swap(query.Remove(c.docs, idx))
	return &domain.WriteResult{Matched: len(idx), Modified: len(idx)}, nil
}

// Aggregate runs pipeline over coll.
func (s *DocStore) Aggregate(_ context.Context, coll string, pipeline json.RawMessage) ([]domain.Document, error) {
	var docs [][]byte
	if c, ok := s.lookup(coll); ok {
		c.mu.RLock()
		docs = c.docs
		c.mu.RUnlock()
	}

	out, err := query.Aggregate(docs, pipeline)
	if err != nil {
		return nil, query.AsDomainError(err)
	}
	return fromRaw(out), nil
}

// Plan projects the size change of m without applying it.
func (s *DocStore) Plan(_ context.Context, coll string, m *domain.Mutation) (*domain.MutationPlan, error) {
	switch m.Kind {
	case domain.MutationInsert:
		prepared, err := query.PrepareInsert(toRaw(m.Documents), s.newID)
		if err != nil {
			return nil, query.AsDomainError(err)
		}
		return &domain.MutationPlan{SizeDelta: sizeOf(prepared), Affected: len(prepared)}, nil

	case domain.MutationUpdate:
		var docs [][]byte
		if c, ok := s.lookup(coll); ok {
			c.mu.RLock()
			defer c.mu.RUnlock()
			docs = c.docs
		}
		plan, err := query.PlanUpdate(docs, updateSpec(m), s.newID)
		if err != nil {
			return nil, query.AsDomainError(err)
		}
		affected := plan.Modified()
		if plan.Inserted != nil {
			affected++
		}
		return &domain.MutationPlan{SizeDelta: plan.SizeDelta(docs), Affected: affected}, nil

	default:
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("cannot plan %s mutation", m.Kind))
	}
}

// CreateIndex adds an index and returns its name. Creating an index whose
// key pattern already exists is a no-op.
func (s *DocStore) CreateIndex(_ context.Context, coll string, spec *domain.IndexSpec) (string, error) {
	def, err := query.CompileIndex(spec.Keys, spec.Name, spec.Unique, spec.Sparse)
	if err != nil {
		return "", query.AsDomainError(err)
	}

	c, _ := s.acquire(coll, true)
	defer c.mu.Unlock()

	for _, idx := range c.indexes {
		if idx.def.SameKeys(def) {
			return idx.def.Name, nil
		}
		if idx.def.Name == def.Name {
			return "", domain.ErrBackendQuery.WithDetails(
				fmt.Sprintf("Index with name: %s already exists with different options", def.Name))
		}
	}
	if err := query.CheckUnique(coll, c.docs, []query.IndexDef{def}); err != nil {
		return "", query.AsDomainError(err)
	}

	c.indexes = append(c.indexes, index{
		def: def,
		info: domain.IndexInfo{
			V:                  1,
			Key:                json.RawMessage(def.Keys),
			NS:                 coll,
			Name:               def.Name,
			Unique:             spec.Unique,
			Sparse:             spec.Sparse,
			Background:         spec.Background,
			ExpireAfterSeconds: spec.ExpireAfterSeconds,
		},
	})
	return def.Name, nil
}

// ListIndexes reports the indexes of coll. A missing collection has none.
func (s *DocStore) ListIndexes(_ context.Context, coll string) ([]*domain.IndexInfo, error) {
	c, ok := s.lookup(coll)
	if !ok {
		return []*domain.IndexInfo{}, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*domain.IndexInfo, len(c.indexes))
	for i, idx := range c.indexes {
		info := idx.info
		out[i] = &info
	}
	return out, nil
}

// DropIndex removes the named index. "*" drops every index but _id.
func (s *DocStore) DropIndex(ctx context.Context, coll, name string) error {
	if name == "*" {
		return s.DropIndexes(ctx, coll)
	}
	if name == domain.DefaultIndexName {
		return domain.ErrBackendQuery.WithDetails("cannot drop _id index")
	}

	c, ok := s.lookup(coll)
	if !ok {
		return errNSNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, idx := range c.indexes {
		if idx.def.Name == name {
			c.indexes = append(c.indexes[:i:i], c.indexes[i+1:]...)
			return nil
		}
	}
	return domain.ErrBackendQuery.WithDetails(fmt.Sprintf("index not found with name [%s]", name))
}

// DropIndexes removes every index but _id.
func (s *DocStore) DropIndexes(_ context.Context, coll string) error {
	c, ok := s.lookup(coll)
	if !ok {
		return errNSNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexes = c.indexes[:1]
	return nil
}

// ReIndex rebuilds the indexes of coll, re-checking unique constraints.
func (s *DocStore) ReIndex(_ context.Context, coll string) error {
	c, ok := s.lookup(coll)
	if !ok {
		return errNSNotFound
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return query.AsDomainError(query.CheckUnique(coll, c.docs, c.defs()))
}

// DropCollection removes coll and its indexes.
func (s *DocStore) DropCollection(_ context.Context, coll string) error {
	if !s.colls.DeleteIf(coll, func(*collection) bool { return true }) {
		return domain.ErrCollectionNotFound
	}
	return nil
}

// SizeOf returns the stored size of coll in bytes.
func (s *DocStore) SizeOf(_ context.Context, coll string) (int64, error) {
	c, ok := s.lookup(coll)
	if !ok {
		return 0, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size, nil
}

// ListCollections returns every collection name in sorted order.
func (s *DocStore) ListCollections(_ context.Context) ([]string, error) {
	names := s.colls.Keys()
	sort.Strings(names)
	return names, nil
}

// Ping always succeeds.
func (s *DocStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *DocStore) Close() error {
	return nil
}

var errNSNotFound = domain.ErrBackendQuery.WithDetails("ns not found")

func updateSpec(m *domain.Mutation) query.UpdateSpec {
	return query.UpdateSpec{Filter: m.Query, Update: m.Update, Upsert: m.Upsert, Multi: m.Multi}
}

func writeResult(plan *query.UpdatePlan) *domain.WriteResult {
	result := &domain.WriteResult{Matched: plan.Matched, Modified: plan.Modified()}
	if plan.Inserted != nil {
		result.Matched = 1
		result.Upserted = query.ID(plan.Inserted).String()
	}
	return result
}

func sizeOf(docs [][]byte) int64 {
	var n int64
	for _, d := range docs {
		n += int64(len(d))
	}
	return n
}

func toRaw(docs []domain.Document) [][]byte {
	out := make([][]byte, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}

func fromRaw(docs [][]byte) []domain.Document {
	out := make([]domain.Document, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}
