package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/yndnr/sandstore-go/internal/core/domain"
)

// mockSessionRepo is an in-memory SessionRepository for testing.
type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	getErr   error

	// beforeDelete runs inside DeleteIdle before the conditional check.
	beforeDelete func(tokenHash string)
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (m *mockSessionRepo) Create(_ context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[session.TokenHash]; exists {
		return domain.ErrSessionConflict
	}
	m.sessions[session.TokenHash] = session.Clone()
	return nil
}

func (m *mockSessionRepo) Get(_ context.Context, tokenHash string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	session, ok := m.sessions[tokenHash]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (m *mockSessionRepo) Update(_ context.Context, session *domain.Session, expectedVersion uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[session.TokenHash]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if existing.Version != expectedVersion {
		return domain.ErrSessionVersionConflict
	}
	updated := session.Clone()
	updated.Version = expectedVersion + 1
	m.sessions[session.TokenHash] = updated
	return nil
}

func (m *mockSessionRepo) DeleteIdle(_ context.Context, tokenHash string, expectedVersion uint64, cutoff time.Time) (bool, error) {
	if m.beforeDelete != nil {
		m.beforeDelete(tokenHash)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[tokenHash]
	if !ok || existing.Version != expectedVersion || !existing.IdleBefore(cutoff) {
		return false, nil
	}
	delete(m.sessions, tokenHash)
	return true, nil
}

func (m *mockSessionRepo) ListIdleBefore(_ context.Context, cutoff time.Time) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if s.IdleBefore(cutoff) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenHash < out[j].TokenHash })
	return out, nil
}

func (m *mockSessionRepo) ListByResID(_ context.Context, resID string) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if s.ResID == resID {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (m *mockSessionRepo) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions), nil
}

// mockNamespaceRepo is an in-memory NamespaceRepository for testing.
type mockNamespaceRepo struct {
	mu         sync.Mutex
	namespaces map[string]*domain.Namespace
	listErr    error
}

func newMockNamespaceRepo() *mockNamespaceRepo {
	return &mockNamespaceRepo{namespaces: make(map[string]*domain.Namespace)}
}

func (m *mockNamespaceRepo) Create(_ context.Context, ns *domain.Namespace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.namespaces[ns.ResID]; exists {
		return domain.ErrNamespaceConflict
	}
	m.namespaces[ns.ResID] = ns.Clone()
	return nil
}

func (m *mockNamespaceRepo) Get(_ context.Context, resID string) (*domain.Namespace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[resID]
	if !ok {
		return nil, domain.ErrNamespaceNotFound
	}
	return ns.Clone(), nil
}

func (m *mockNamespaceRepo) Update(_ context.Context, ns *domain.Namespace, expectedVersion uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.namespaces[ns.ResID]
	if !ok {
		return domain.ErrNamespaceNotFound
	}
	if existing.Version != expectedVersion {
		return domain.ErrNamespaceVersionConflict
	}
	updated := ns.Clone()
	updated.Version = expectedVersion + 1
	m.namespaces[ns.ResID] = updated
	return nil
}

func (m *mockNamespaceRepo) Delete(_ context.Context, resID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.namespaces[resID]; !ok {
		return domain.ErrNamespaceNotFound
	}
	delete(m.namespaces, resID)
	return nil
}

func (m *mockNamespaceRepo) ListCreatedBefore(_ context.Context, cutoff time.Time) ([]*domain.Namespace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*domain.Namespace
	for _, ns := range m.namespaces {
		if ns.CreatedBefore(cutoff) {
			out = append(out, ns.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResID < out[j].ResID })
	return out, nil
}

// mockBackend stores documents verbatim. It understands no query language:
// Find returns every document and updates are planned with updateDelta.
type mockBackend struct {
	mu          sync.Mutex
	colls       map[string][]domain.Document
	indexes     map[string][]*domain.IndexInfo
	updateDelta int64
	dropErr     map[string]error
	calls       []string
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		colls:   make(map[string][]domain.Document),
		indexes: make(map[string][]*domain.IndexInfo),
		dropErr: make(map[string]error),
	}
}

func (b *mockBackend) record(op string) {
	b.calls = append(b.calls, op)
}

func (b *mockBackend) Insert(_ context.Context, coll string, docs []domain.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("insert")
	for _, d := range docs {
		b.colls[coll] = append(b.colls[coll], append(domain.Document(nil), d...))
	}
	return nil
}

func (b *mockBackend) Find(_ context.Context, coll string, _ *domain.FindOptions) ([]domain.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("find")
	return append([]domain.Document{}, b.colls[coll]...), nil
}

func (b *mockBackend) Count(_ context.Context, coll string, _ *domain.CountOptions) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("count")
	return len(b.colls[coll]), nil
}

func (b *mockBackend) Update(_ context.Context, coll string, _ *domain.Mutation) (*domain.WriteResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("update")
	if _, ok := b.colls[coll]; !ok {
		b.colls[coll] = nil
	}
	return &domain.WriteResult{Matched: 1, Modified: 1}, nil
}

func (b *mockBackend) Remove(_ context.Context, coll string, _ *domain.RemoveOptions) (*domain.WriteResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("remove")
	n := len(b.colls[coll])
	if _, ok := b.colls[coll]; ok {
		b.colls[coll] = []domain.Document{}
	}
	return &domain.WriteResult{Matched: n, Modified: n}, nil
}

func (b *mockBackend) Aggregate(_ context.Context, coll string, pipeline json.RawMessage) ([]domain.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("aggregate")
	if len(pipeline) > 0 && pipeline[0] != '[' {
		return nil, domain.ErrBackendQuery.WithDetails("'pipeline' option must be specified as an array")
	}
	return append([]domain.Document{}, b.colls[coll]...), nil
}

func (b *mockBackend) Plan(_ context.Context, _ string, m *domain.Mutation) (*domain.MutationPlan, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("plan")
	plan := &domain.MutationPlan{}
	switch m.Kind {
	case domain.MutationInsert:
		for _, d := range m.Documents {
			plan.SizeDelta += int64(len(d))
		}
		plan.Affected = len(m.Documents)
	case domain.MutationUpdate:
		plan.SizeDelta = b.updateDelta
		plan.Affected = 1
	}
	return plan, nil
}

func (b *mockBackend) CreateIndex(_ context.Context, coll string, spec *domain.IndexSpec) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("createIndex")
	if _, ok := b.colls[coll]; !ok {
		b.colls[coll] = nil
	}
	name := spec.Name
	if name == "" {
		name = "generated_1"
	}
	b.indexes[coll] = append(b.indexes[coll], &domain.IndexInfo{V: 1, Key: spec.Keys, NS: coll, Name: name})
	return name, nil
}

func (b *mockBackend) ListIndexes(_ context.Context, coll string) ([]*domain.IndexInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("listIndexes")
	out := []*domain.IndexInfo{{V: 1, Key: json.RawMessage(`{"_id":1}`), NS: coll, Name: domain.DefaultIndexName}}
	for _, idx := range b.indexes[coll] {
		c := *idx
		out = append(out, &c)
	}
	return out, nil
}

func (b *mockBackend) DropIndex(_ context.Context, _ string, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("dropIndex")
	return nil
}

func (b *mockBackend) DropIndexes(_ context.Context, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("dropIndexes")
	return nil
}

func (b *mockBackend) ReIndex(_ context.Context, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("reIndex")
	return nil
}

func (b *mockBackend) DropCollection(_ context.Context, coll string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("drop")
	if err := b.dropErr[coll]; err != nil {
		return err
	}
	if _, ok := b.colls[coll]; !ok {
		return domain.ErrCollectionNotFound
	}
	delete(b.colls, coll)
	delete(b.indexes, coll)
	return nil
}

func (b *mockBackend) SizeOf(_ context.Context, coll string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for _, d := range b.colls[coll] {
		n += int64(len(d))
	}
	return n, nil
}

func (b *mockBackend) ListCollections(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.colls))
	for name := range b.colls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (b *mockBackend) Ping(context.Context) error { return nil }

func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) has(coll string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.colls[coll]
	return ok
}

func (b *mockBackend) called(op string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.calls {
		if c == op {
			return true
		}
	}
	return false
}

// mockCounterStore is a CounterStore keyed by exact key; ttl is ignored.
type mockCounterStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newMockCounterStore() *mockCounterStore {
	return &mockCounterStore{counts: make(map[string]int64)}
}

func (c *mockCounterStore) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.counts[key]++
	return c.counts[key], nil
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv wires every service against the mocks.
type testEnv struct {
	clock      *fakeClock
	sessions   *mockSessionRepo
	namespaces *mockNamespaceRepo
	backend    *mockBackend
	counters   *mockCounterStore
	registry   *SessionRegistry
	mapper     *NamespaceMapper
	quota      *QuotaEnforcer
	limiter    *RateLimiter
	data       *DataService
	sweeper    *ExpirySweeper
}

func newTestEnv() *testEnv {
	env := &testEnv{
		clock:      newFakeClock(),
		sessions:   newMockSessionRepo(),
		namespaces: newMockNamespaceRepo(),
		backend:    newMockBackend(),
		counters:   newMockCounterStore(),
	}
	env.registry = NewSessionRegistry(env.sessions, env.namespaces, domain.NewTokenHasher("test-secret"), WithRegistryClock(env.clock.Now))
	env.mapper = NewNamespaceMapper(env.namespaces, env.backend)
	env.quota = NewQuotaEnforcer(env.namespaces, env.backend, DefaultQuotaBudget)
	env.limiter = NewRateLimiter(env.counters, DefaultRateQuota, DefaultRateWindow, WithRateLimiterClock(env.clock.Now))
	env.data = NewDataService(env.registry, env.limiter, env.mapper, env.quota, env.backend)
	env.sweeper = NewExpirySweeper(env.sessions, env.namespaces, env.mapper, time.Minute, 30*time.Minute, WithSweeperClock(env.clock.Now))
	return env
}

// newSession resolves a fresh session and returns its token and res_id.
func (env *testEnv) newSession(ctx context.Context) (token, resID string) {
	resp, err := env.registry.ResolveOrCreate(ctx, &ResolveRequest{})
	if err != nil {
		panic(err)
	}
	return resp.Token, resp.Session.ResID
}

var errBoom = errors.New("boom")
