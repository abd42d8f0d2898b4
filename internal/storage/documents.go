package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"

	"github.com/yndnr/sandstore-go/internal/core/domain"
	"github.com/yndnr/sandstore-go/internal/core/service"
	"github.com/yndnr/sandstore-go/internal/storage/query"
)

var _ service.Backend = (*BadgerBackend)(nil)

// collectionMeta is the persisted header of a collection.
type collectionMeta struct {
	NextSeq uint64        `json:"next_seq"`
	Size    int64         `json:"size"`
	Indexes []indexRecord `json:"indexes"`
}

// indexRecord is the persisted form of an index.
type indexRecord struct {
	Name               string          `json:"name"`
	Keys               json.RawMessage `json:"keys"`
	Unique             bool            `json:"unique,omitempty"`
	Sparse             bool            `json:"sparse,omitempty"`
	Background         bool            `json:"background,omitempty"`
	ExpireAfterSeconds *int64          `json:"expire_after_seconds,omitempty"`
}

func newCollectionMeta() *collectionMeta {
	id := query.IDIndex()
	return &collectionMeta{
		NextSeq: 1,
		Indexes: []indexRecord{{Name: id.Name, Keys: json.RawMessage(id.Keys), Unique: true}},
	}
}

func (m *collectionMeta) defs() ([]query.IndexDef, error) {
	defs := make([]query.IndexDef, 0, len(m.Indexes))
	for _, rec := range m.Indexes {
		def, err := query.CompileIndex(rec.Keys, rec.Name, rec.Unique, rec.Sparse)
		if err != nil {
			return nil, fmt.Errorf("stored index %s: %w", rec.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// collectionState is a collection read inside a transaction.
type collectionState struct {
	name string
	meta *collectionMeta
	docs [][]byte
	seqs []uint64
}

// BadgerBackend is the durable document backend.
//
// Each document is its own key, ordered by an insertion sequence kept in the
// collection header. Every write is one transaction that reads the
// collection, applies the query engine and writes back only the keys that
// changed, so concurrent writers to one collection conflict and retry.
type BadgerBackend struct {
	engine *BadgerEngine
	newID  func() string
}

// BackendOption configures the BadgerBackend.
type BackendOption func(*BadgerBackend)

// WithBackendIDGenerator overrides the _id generator.
func WithBackendIDGenerator(fn func() string) BackendOption {
	return func(b *BadgerBackend) {
		b.newID = fn
	}
}

// NewBadgerBackend creates a document backend on engine.
func NewBadgerBackend(engine *BadgerEngine, opts ...BackendOption) *BadgerBackend {
	b := &BadgerBackend{
		engine: engine,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Insert appends docs, assigning an _id to those without one.
func (b *BadgerBackend) Insert(ctx context.Context, coll string, docs []domain.Document) error {
	prepared, err := query.PrepareInsert(toRaw(docs), b.newID)
	if err != nil {
		return query.AsDomainError(err)
	}

	return b.update(ctx, func(txn *badger.Txn) error {
		st, err := loadCollection(txn, coll, true)
		if err != nil {
			return err
		}
		next := append(append(make([][]byte, 0, len(st.docs)+len(prepared)), st.docs...), prepared...)
		if err := st.checkUnique(next); err != nil {
			return err
		}
		for _, doc := range prepared {
			if err := st.put(txn, doc); err != nil {
				return err
			}
		}
		return st.saveMeta(txn)
	})
}

// Find returns matching documents. A missing collection is empty.
func (b *BadgerBackend) Find(_ context.Context, coll string, opts *domain.FindOptions) ([]domain.Document, error) {
	st, err := b.read(coll)
	if err != nil {
		return nil, err
	}

	out, err := query.Find(st.docs, query.FindSpec{
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
func (b *BadgerBackend) Count(_ context.Context, coll string, opts *domain.CountOptions) (int, error) {
	st, err := b.read(coll)
	if err != nil {
		return 0, err
	}

	n, err := query.Count(st.docs, opts.Query, opts.Skip, opts.Limit)
	if err != nil {
		return 0, query.AsDomainError(err)
	}
	return n, nil
}

// Update applies an update mutation.
func (b *BadgerBackend) Update(ctx context.Context, coll string, m *domain.Mutation) (*domain.WriteResult, error) {
	var result *domain.WriteResult
	err := b.update(ctx, func(txn *badger.Txn) error {
		st, err := loadCollection(txn, coll, m.Upsert)
		if err != nil {
			return err
		}

		plan, err := query.PlanUpdate(st.docs, updateSpec(m), b.newID)
		if err != nil {
			return query.AsDomainError(err)
		}
		if st.meta == nil {
			// nothing to match and no upsert
			result = &domain.WriteResult{}
			return nil
		}
		if err := st.checkUnique(plan.Apply(st.docs)); err != nil {
			return err
		}

		for _, c := range plan.Changes {
			if err := st.replace(txn, c.Index, c.Doc); err != nil {
				return err
			}
		}
		if plan.Inserted != nil {
			if err := st.put(txn, plan.Inserted); err != nil {
				return err
			}
		}
		result = writeResult(plan)
		return st.saveMeta(txn)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Remove deletes matching documents.
func (b *BadgerBackend) Remove(ctx context.Context, coll string, opts *domain.RemoveOptions) (*domain.WriteResult, error) {
	var removed int
	err := b.update(ctx, func(txn *badger.Txn) error {
		st, err := loadCollection(txn, coll, false)
		if err != nil {
			return err
		}

		idx, err := query.Select(st.docs, opts.Constraint, opts.JustOne)
		if err != nil {
			return query.AsDomainError(err)
		}
		removed = len(idx)
		if st.meta == nil || removed == 0 {
			return nil
		}
		for _, i := range idx {
			if err := txn.Delete(documentKey(coll, st.seqs[i])); err != nil {
				return err
			}
			st.meta.Size -= int64(len(st.docs[i]))
		}
		return st.saveMeta(txn)
	})
	if err != nil {
		return nil, err
	}
	return &domain.WriteResult{Matched: removed, Modified: removed}, nil
}

// Aggregate runs pipeline over coll.
func (b *BadgerBackend) Aggregate(_ context.Context, coll string, pipeline json.RawMessage) ([]domain.Document, error) {
	st, err := b.read(coll)
	if err != nil {
		return nil, err
	}

	out, err := query.Aggregate(st.docs, pipeline)
	if err != nil {
		return nil, query.AsDomainError(err)
	}
	return fromRaw(out), nil
}

// Plan projects the size change of m without applying it.
func (b *BadgerBackend) Plan(_ context.Context, coll string, m *domain.Mutation) (*domain.MutationPlan, error) {
	switch m.Kind {
	case domain.MutationInsert:
		prepared, err := query.PrepareInsert(toRaw(m.Documents), b.newID)
		if err != nil {
			return nil, query.AsDomainError(err)
		}
		return &domain.MutationPlan{SizeDelta: sizeOf(prepared), Affected: len(prepared)}, nil

	case domain.MutationUpdate:
		st, err := b.read(coll)
		if err != nil {
			return nil, err
		}
		plan, err := query.PlanUpdate(st.docs, updateSpec(m), b.newID)
		if err != nil {
			return nil, query.AsDomainError(err)
		}
		affected := plan.Modified()
		if plan.Inserted != nil {
			affected++
		}
		return &domain.MutationPlan{SizeDelta: plan.SizeDelta(st.docs), Affected: affected}, nil

	default:
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("cannot plan %s mutation", m.Kind))
	}
}

// CreateIndex adds an index and returns its name. Creating an index whose
// key pattern already exists is a no-op.
func (b *BadgerBackend) CreateIndex(ctx context.Context, coll string, spec *domain.IndexSpec) (string, error) {
	def, err := query.CompileIndex(spec.Keys, spec.Name, spec.Unique, spec.Sparse)
	if err != nil {
		return "", query.AsDomainError(err)
	}

	var name string
	err = b.update(ctx, func(txn *badger.Txn) error {
		st, err := loadCollection(txn, coll, true)
		if err != nil {
			return err
		}
		defs, err := st.meta.defs()
		if err != nil {
			return err
		}
		for _, existing := range defs {
			if existing.SameKeys(def) {
				name = existing.Name
				return nil
			}
			if existing.Name == def.Name {
				return domain.ErrBackendQuery.WithDetails(
					fmt.Sprintf("Index with name: %s already exists with different options", def.Name))
			}
		}
		if err := query.CheckUnique(coll, st.docs, []query.IndexDef{def}); err != nil {
			return query.AsDomainError(err)
		}

		st.meta.Indexes = append(st.meta.Indexes, indexRecord{
			Name:               def.Name,
			Keys:               json.RawMessage(def.Keys),
			Unique:             spec.Unique,
			Sparse:             spec.Sparse,
			Background:         spec.Background,
			ExpireAfterSeconds: spec.ExpireAfterSeconds,
		})
		name = def.Name
		return st.saveMeta(txn)
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

// ListIndexes reports the indexes of coll. A missing collection has none.
func (b *BadgerBackend) ListIndexes(_ context.Context, coll string) ([]*domain.IndexInfo, error) {
	var meta *collectionMeta
	err := b.engine.View(func(txn *badger.Txn) error {
		var err error
		meta, err = loadMeta(txn, coll)
		return err
	})
	if err != nil {
		return nil, backendErr(err)
	}
	if meta == nil {
		return []*domain.IndexInfo{}, nil
	}

	out := make([]*domain.IndexInfo, len(meta.Indexes))
	for i, rec := range meta.Indexes {
		out[i] = &domain.IndexInfo{
			V:                  1,
			Key:                rec.Keys,
			NS:                 coll,
			Name:               rec.Name,
			Unique:             rec.Unique && rec.Name != domain.DefaultIndexName,
			Sparse:             rec.Sparse,
			Background:         rec.Background,
			ExpireAfterSeconds: rec.ExpireAfterSeconds,
		}
	}
	return out, nil
}

// DropIndex removes the named index. "*" drops every index but _id.
func (b *BadgerBackend) DropIndex(ctx context.Context, coll, name string) error {
	if name == "*" {
		return b.DropIndexes(ctx, coll)
	}
	if name == domain.DefaultIndexName {
		return domain.ErrBackendQuery.WithDetails("cannot drop _id index")
	}

	return b.modifyMeta(ctx, coll, func(meta *collectionMeta) error {
		for i, rec := range meta.Indexes {
			if rec.Name == name {
				meta.Indexes = append(meta.Indexes[:i:i], meta.Indexes[i+1:]...)
				return nil
			}
		}
		return domain.ErrBackendQuery.WithDetails(fmt.Sprintf("index not found with name [%s]", name))
	})
}

// DropIndexes removes every index but _id.
func (b *BadgerBackend) DropIndexes(ctx context.Context, coll string) error {
	return b.modifyMeta(ctx, coll, func(meta *collectionMeta) error {
		meta.Indexes = meta.Indexes[:1]
		return nil
	})
}

// ReIndex re-checks unique constraints and recomputes the stored size.
func (b *BadgerBackend) ReIndex(ctx context.Context, coll string) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		st, err := loadCollection(txn, coll, false)
		if err != nil {
			return err
		}
		if st.meta == nil {
			return errNSNotFound
		}
		if err := st.checkUnique(st.docs); err != nil {
			return err
		}
		st.meta.Size = sizeOf(st.docs)
		return st.saveMeta(txn)
	})
}

// DropCollection removes coll and its documents.
func (b *BadgerBackend) DropCollection(ctx context.Context, coll string) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		meta, err := loadMeta(txn, coll)
		if err != nil {
			return err
		}
		if meta == nil {
			return domain.ErrCollectionNotFound
		}

		var keys [][]byte
		if err := scan(txn, documentPrefix(coll), false, func(key, _ []byte) (bool, error) {
			keys = append(keys, key)
			return true, nil
		}); err != nil {
			return err
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return txn.Delete(collectionKey(coll))
	})
}

// SizeOf returns the stored size of coll in bytes.
func (b *BadgerBackend) SizeOf(_ context.Context, coll string) (int64, error) {
	var size int64
	err := b.engine.View(func(txn *badger.Txn) error {
		meta, err := loadMeta(txn, coll)
		if meta != nil {
			size = meta.Size
		}
		return err
	})
	if err != nil {
		return 0, backendErr(err)
	}
	return size, nil
}

// ListCollections returns every collection name in sorted order.
func (b *BadgerBackend) ListCollections(_ context.Context) ([]string, error) {
	names := []string{}
	err := b.engine.View(func(txn *badger.Txn) error {
		return scan(txn, []byte(prefixCollection), false, func(key, _ []byte) (bool, error) {
			names = append(names, strings.TrimPrefix(string(key), prefixCollection))
			return true, nil
		})
	})
	if err != nil {
		return nil, backendErr(err)
	}
	return names, nil
}

// Ping reports whether the engine is usable.
func (b *BadgerBackend) Ping(ctx context.Context) error {
	return backendErr(b.engine.Ping(ctx))
}

// Close closes the underlying engine.
func (b *BadgerBackend) Close() error {
	return b.engine.Close()
}

func (b *BadgerBackend) read(coll string) (*collectionState, error) {
	var st *collectionState
	err := b.engine.View(func(txn *badger.Txn) error {
		var err error
		st, err = loadCollection(txn, coll, false)
		return err
	})
	if err != nil {
		return nil, backendErr(err)
	}
	return st, nil
}

func (b *BadgerBackend) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return backendErr(b.engine.Update(ctx, fn))
}

// modifyMeta rewrites the header of an existing collection.
func (b *BadgerBackend) modifyMeta(ctx context.Context, coll string, fn func(meta *collectionMeta) error) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		meta, err := loadMeta(txn, coll)
		if err != nil {
			return err
		}
		if meta == nil {
			return errNSNotFound
		}
		if err := fn(meta); err != nil {
			return err
		}
		return putJSON(txn, collectionKey(coll), meta)
	})
}

// loadMeta reads the header of coll, nil if it does not exist.
func loadMeta(txn *badger.Txn, coll string) (*collectionMeta, error) {
	raw, err := getValue(txn, collectionKey(coll))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta collectionMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode collection %s: %w", coll, err)
	}
	return &meta, nil
}

// loadCollection reads coll and its documents in sequence order. A missing
// collection yields an empty state whose meta is nil unless create is set.
func loadCollection(txn *badger.Txn, coll string, create bool) (*collectionState, error) {
	meta, err := loadMeta(txn, coll)
	if err != nil {
		return nil, err
	}
	st := &collectionState{name: coll, meta: meta, docs: [][]byte{}}
	if meta == nil {
		if create {
			st.meta = newCollectionMeta()
		}
		return st, nil
	}

	prefix := documentPrefix(coll)
	err = scan(txn, prefix, true, func(key, value []byte) (bool, error) {
		st.seqs = append(st.seqs, binary.BigEndian.Uint64(key[len(prefix):]))
		st.docs = append(st.docs, value)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (st *collectionState) checkUnique(docs [][]byte) error {
	defs, err := st.meta.defs()
	if err != nil {
		return err
	}
	return query.AsDomainError(query.CheckUnique(st.name, docs, defs))
}

// put stores doc under the next sequence number.
func (st *collectionState) put(txn *badger.Txn, doc []byte) error {
	seq := st.meta.NextSeq
	st.meta.NextSeq++
	st.meta.Size += int64(len(doc))
	return txn.Set(documentKey(st.name, seq), doc)
}

// replace overwrites the document at position i.
func (st *collectionState) replace(txn *badger.Txn, i int, doc []byte) error {
	st.meta.Size += int64(len(doc)) - int64(len(st.docs[i]))
	return txn.Set(documentKey(st.name, st.seqs[i]), doc)
}

func (st *collectionState) saveMeta(txn *badger.Txn) error {
	return putJSON(txn, collectionKey(st.name), st.meta)
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

// backendErr passes domain errors through and maps engine failures to
// ErrBackendUnavailable.
func backendErr(err error) error {
	if err == nil || domain.IsDomainError(err, "") {
		return err
	}
	return domain.ErrBackendUnavailable.WithCause(err)
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
