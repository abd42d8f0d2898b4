package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"

	"github.com/yndnr/sandstore-go/internal/core/domain"
)

// DataService is the request gateway for tenant collection operations.
//
// Every operation validates the session, applies the rate limit and checks
// the collection name before the backend sees the request. Growing writes
// are checked against the quota, and a collection is registered in the
// namespace before its first write.
type DataService struct {
	registry *SessionRegistry
	limiter  *RateLimiter
	mapper   *NamespaceMapper
	quota    *QuotaEnforcer
	backend  Backend
}

// NewDataService creates a new DataService.
func NewDataService(registry *SessionRegistry, limiter *RateLimiter, mapper *NamespaceMapper, quota *QuotaEnforcer, backend Backend) *DataService {
	return &DataService{
		registry: registry,
		limiter:  limiter,
		mapper:   mapper,
		quota:    quota,
		backend:  backend,
	}
}

// Target identifies a tenant collection and the credentials used to reach it.
type Target struct {
	Token      string
	ResID      string
	Collection string // Logical name; unused by namespace-wide operations
}

// authorize validates the session and applies the rate limit.
func (s *DataService) authorize(ctx context.Context, t *Target) error {
	session, err := s.registry.Validate(ctx, t.Token, t.ResID)
	if err != nil {
		return err
	}
	return s.limiter.Allow(ctx, session.TokenHash)
}

// resolve authorizes t and returns the internal collection name.
func (s *DataService) resolve(ctx context.Context, t *Target) (string, error) {
	if err := s.authorize(ctx, t); err != nil {
		return "", err
	}
	if err := s.mapper.ValidateLogicalName(t.Collection); err != nil {
		return "", err
	}
	return s.mapper.InternalName(t.ResID, t.Collection), nil
}

// ============================================================================
// Read Operations
// ============================================================================

// FindRequest contains parameters for find.
type FindRequest struct {
	Target
	Query      json.RawMessage
	Projection json.RawMessage
	Sort       json.RawMessage
	Skip       int
	Limit      int
}

// Find returns the documents matching the query.
func (s *DataService) Find(ctx context.Context, req *FindRequest) ([]domain.Document, error) {
	coll, err := s.resolve(ctx, &req.Target)
	if err != nil {
		return nil, err
	}
	if req.Skip < 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("skip must be non-negative")
	}

	docs, err := s.backend.Find(ctx, coll, &domain.FindOptions{
		Query:      req.Query,
		Projection: req.Projection,
		Sort:       req.Sort,
		Skip:       req.Skip,
		Limit:      req.Limit,
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return docs, nil
}

// CountRequest contains parameters for count.
type CountRequest struct {
	Target
	Query json.RawMessage
	Skip  int
	Limit int
}

// Count returns the number of documents matching the query.
func (s *DataService) Count(ctx context.Context, req *CountRequest) (int, error) {
	coll, err := s.resolve(ctx, &req.Target)
	if err != nil {
		return 0, err
	}
	if req.Skip < 0 {
		return 0, domain.ErrInvalidArgument.WithDetails("skip must be non-negative")
	}

	n, err := s.backend.Count(ctx, coll, &domain.CountOptions{Query: req.Query, Skip: req.Skip, Limit: req.Limit})
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

// AggregateRequest contains parameters for aggregate.
type AggregateRequest struct {
	Target
	Pipeline json.RawMessage
}

// Aggregate runs a pipeline over the collection.
func (s *DataService) Aggregate(ctx context.Context, req *AggregateRequest) ([]domain.Document, error) {
	coll, err := s.resolve(ctx, &req.Target)
	if err != nil {
		return nil, err
	}

	docs, err := s.backend.Aggregate(ctx, coll, req.Pipeline)
	if err != nil {
		return nil, storageErr(err)
	}
	return docs, nil
}

// ============================================================================
// Write Operations
// ============================================================================

// InsertRequest contains parameters for insert. Documents is one JSON
// object or an array of them.
type InsertRequest struct {
	Target
	Documents json.RawMessage
}

// Insert stores the documents. A batch is accepted or rejected as a whole.
func (s *DataService) Insert(ctx context.Context, req *InsertRequest) error {
	// 1. Authorize and resolve
	coll, err := s.resolve(ctx, &req.Target)
	if err != nil {
		return err
	}

	// 2. Split the payload
	docs, err := splitDocuments(req.Documents)
	if err != nil {
		return err
	}

	// 3. Quota, then register and write under the tenant's quota lock
	return s.quota.Apply(ctx, req.ResID, req.Collection, domain.NewInsert(docs...), func() error {
		if err := s.mapper.Register(ctx, req.ResID, req.Collection); err != nil {
			return err
		}
		if err := s.backend.Insert(ctx, coll, docs); err != nil {
			return storageErr(err)
		}
		return nil
	})
}

// UpdateRequest contains parameters for update.
type UpdateRequest struct {
	Target
	Query  json.RawMessage
	Update json.RawMessage
	Upsert bool
	Multi  bool
}

// Update modifies the matching documents.
func (s *DataService) Update(ctx context.Context, req *UpdateRequest) (*domain.WriteResult, error) {
	// 1. Authorize and resolve
	coll, err := s.resolve(ctx, &req.Target)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(req.Update)) == 0 {
		return nil, domain.ErrMissingArgument.WithDetails("update is required")
	}

	// 2. Quota, then register and write under the tenant's quota lock
	m := domain.NewUpdate(req.Query, req.Update, req.Upsert, req.Multi)
	var result *domain.WriteResult
	err = s.quota.Apply(ctx, req.ResID, req.Collection, m, func() error {
		if err := s.mapper.Register(ctx, req.ResID, req.Collection); err != nil {
			return err
		}
		var err error
		if result, err = s.backend.Update(ctx, coll, m); err != nil {
			return storageErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveRequest contains parameters for remove.
type RemoveRequest struct {
	Target
	Constraint json.RawMessage
	JustOne    bool
}

// Remove deletes the matching documents.
func (s *DataService) Remove(ctx context.Context, req *RemoveRequest) (*domain.WriteResult, error) {
	coll, err := s.resolve(ctx, &req.Target)
	if err != nil {
		return nil, err
	}

	result, err := s.backend.Remove(ctx, coll, &domain.RemoveOptions{Constraint: req.Constraint, JustOne: req.JustOne})
	if err != nil {
		return nil, storageErr(err)
	}
	return result, nil
}

// ============================================================================
// Index Operations
// ============================================================================

// EnsureIndexRequest contains parameters for index creation.
type EnsureIndexRequest struct {
	Target
	Spec domain.IndexSpec
}

// EnsureIndex creates an index, creating the collection if needed.
func (s *DataService) EnsureIndex(ctx context.Context, req *EnsureIndexRequest) (string, error) {
	coll, err := s.resolve(ctx, &req.Target)
	if err != nil {
		return "", err
	}
	if len(bytes.TrimSpace(req.Spec.Keys)) == 0 {
		return "", domain.ErrMissingArgument.WithDetails("keys is required")
	}

	if err := s.mapper.Register(ctx, req.ResID, req.Collection); err != nil {
		return "", err
	}
	name, err := s.backend.CreateIndex(ctx, coll, &req.Spec)
	if err != nil {
		return "", storageErr(err)
	}
	return name, nil
}

// ReIndex rebuilds the collection's indexes.
func (s *DataService) ReIndex(ctx context.Context, t *Target) error {
	coll, err := s.resolve(ctx, t)
	if err != nil {
		return err
	}
	return storageErrOrNil(s.backend.ReIndex(ctx, coll))
}

// DropIndex removes one index by name.
func (s *DataService) DropIndex(ctx context.Context, t *Target, name string) error {
	coll, err := s.resolve(ctx, t)
	if err != nil {
		return err
	}
	if name == "" {
		return domain.ErrMissingArgument.WithDetails("name is required")
	}
	return storageErrOrNil(s.backend.DropIndex(ctx, coll, name))
}

// DropIndexes removes every index except the primary key index.
func (s *DataService) DropIndexes(ctx context.Context, t *Target) error {
	coll, err := s.resolve(ctx, t)
	if err != nil {
		return err
	}
	return storageErrOrNil(s.backend.DropIndexes(ctx, coll))
}

// GetIndexes lists the collection's indexes. Namespaces are reported by
// logical collection name.
func (s *DataService) GetIndexes(ctx context.Context, t *Target) ([]*domain.IndexInfo, error) {
	coll, err := s.resolve(ctx, t)
	if err != nil {
		return nil, err
	}
	indexes, err := s.backend.ListIndexes(ctx, coll)
	if err != nil {
		return nil, storageErr(err)
	}
	for _, idx := range indexes {
		idx.NS = t.Collection
	}
	return indexes, nil
}

// ============================================================================
// Collection and Namespace Operations
// ============================================================================

// Drop removes one logical collection and its data.
func (s *DataService) Drop(ctx context.Context, t *Target) error {
	coll, err := s.resolve(ctx, t)
	if err != nil {
		return err
	}
	if err := s.backend.DropCollection(ctx, coll); err != nil && !errors.Is(err, domain.ErrCollectionNotFound) {
		return storageErr(err)
	}
	return s.mapper.Unregister(ctx, t.ResID, t.Collection)
}

// CollectionNames lists the logical collections of the namespace.
func (s *DataService) CollectionNames(ctx context.Context, token, resID string) ([]string, error) {
	if err := s.authorize(ctx, &Target{Token: token, ResID: resID}); err != nil {
		return nil, err
	}
	return s.mapper.Collections(ctx, resID)
}

// DropDatabase drops every collection of the namespace.
func (s *DataService) DropDatabase(ctx context.Context, token, resID string) error {
	if err := s.authorize(ctx, &Target{Token: token, ResID: resID}); err != nil {
		return err
	}
	return s.mapper.DropAll(ctx, resID)
}

// splitDocuments accepts one JSON object or a non-empty array of them.
func splitDocuments(raw json.RawMessage) ([]domain.Document, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, domain.ErrMissingArgument.WithDetails("document is required")
	}
	if !gjson.ValidBytes(raw) {
		return nil, domain.ErrInvalidArgument.WithDetails("document is not valid JSON")
	}

	v := gjson.ParseBytes(raw)
	if !v.IsArray() {
		return []domain.Document{domain.Document(raw)}, nil
	}
	elems := v.Array()
	if len(elems) == 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("no documents to insert")
	}
	docs := make([]domain.Document, len(elems))
	for i, el := range elems {
		docs[i] = domain.Document(el.Raw)
	}
	return docs, nil
}
