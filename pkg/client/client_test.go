package client

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/entitystore/internal/testfixture"
	"github.com/nainya/entitystore/pkg/errs"
	"github.com/nainya/entitystore/pkg/indexer"
	"github.com/nainya/entitystore/pkg/mapping"
	"github.com/nainya/entitystore/pkg/metadata"
	"github.com/nainya/entitystore/pkg/property"
	"github.com/nainya/entitystore/pkg/storage"
)

var errBrokenPipe = errors.New("broken pipe")

// countingPool wraps a memory store, counts connection use and can fail
// ranked index writes.
type countingPool struct {
	*storage.MemoryStore
	mu         sync.Mutex
	acquired   int
	released   int
	failRanked bool
}

func newCountingPool() *countingPool {
	return &countingPool{MemoryStore: storage.NewMemoryStore()}
}

func (p *countingPool) Acquire(ctx context.Context) (storage.Conn, error) {
	conn, err := p.MemoryStore.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.acquired++
	p.mu.Unlock()
	return &countingConn{Conn: conn, pool: p}, nil
}

func (p *countingPool) balanced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired == p.released
}

type countingConn struct {
	storage.Conn
	pool *countingPool
}

func (c *countingConn) Release() {
	c.pool.mu.Lock()
	c.pool.released++
	c.pool.mu.Unlock()
	c.Conn.Release()
}

func (c *countingConn) RankedAdd(ctx context.Context, key string, score float64, member string) error {
	if c.pool.failRanked {
		return &errs.ConnectionError{Op: "zadd", Err: errBrokenPipe}
	}
	return c.Conn.RankedAdd(ctx, key, score, member)
}

type fakeRecorder struct {
	ops    map[string]int
	failed map[string]int
	writes map[string]int
	docs   int
	misses int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{ops: map[string]int{}, failed: map[string]int{}, writes: map[string]int{}}
}

func (r *fakeRecorder) StoreOperation(op string, _ time.Duration, err error) {
	r.ops[op]++
	if err != nil {
		r.failed[op]++
	}
}
func (r *fakeRecorder) IndexWrites(action string, n int) { r.writes[action] += n }
func (r *fakeRecorder) DocumentsIndexed(n int)           { r.docs += n }
func (r *fakeRecorder) LookupConnectionMiss()            { r.misses++ }

// memorySink keeps documents by key.
type memorySink struct {
	docs map[string]*indexer.Document
}

func (s *memorySink) IndexDocument(_ context.Context, _ *metadata.EntityMetadata, doc *indexer.Document) error {
	s.docs[doc.Key()] = doc
	return nil
}

func (s *memorySink) RemoveDocuments(_ context.Context, meta *metadata.EntityMetadata, id string) error {
	sid := indexer.StorageID(meta, id)
	for k, d := range s.docs {
		if v, _ := d.Get(indexer.StorageIDField); v == sid {
			delete(s.docs, k)
		}
	}
	return nil
}

func newRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	reg, err := metadata.NewRegistry(
		testfixture.PersonMetadata(),
		testfixture.CustomerMetadata(),
		testfixture.TagMetadata(),
	)
	require.NoError(t, err)
	return reg
}

func TestPersistAndFind(t *testing.T) {
	ctx := context.Background()
	pool := newCountingPool()
	rec := newFakeRecorder()
	c := New(pool, newRegistry(t), WithRecorder(rec))

	require.NoError(t, c.Persist(ctx, &testfixture.Person{ID: "1", Name: "Bob", Age: testfixture.Ptr(30)}))

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	cols, err := conn.HashGetAll(ctx, "person:1")
	conn.Release()
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"name": []byte("Bob"), "age": []byte("30")}, cols)

	got, err := c.Find(ctx, "Person", "1")
	require.NoError(t, err)
	assert.Equal(t, &testfixture.Person{ID: "1", Name: "Bob", Age: testfixture.Ptr(30)}, got)

	assert.Equal(t, 2, rec.writes["add"])
	assert.Equal(t, 1, rec.ops["persist"])
	assert.Equal(t, 1, rec.ops["find"])
	assert.True(t, pool.balanced())
}

func TestFindMissing(t *testing.T) {
	c := New(newCountingPool(), newRegistry(t))

	got, err := c.Find(context.Background(), "Person", "404")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindUnregisteredClass(t *testing.T) {
	c := New(newCountingPool(), newRegistry(t))

	_, err := c.Find(context.Background(), "Invoice", "1")
	assert.ErrorIs(t, err, errs.ErrNotRegistered)
}

func TestSoleIdentifierIsStored(t *testing.T) {
	ctx := context.Background()
	c := New(newCountingPool(), newRegistry(t))

	require.NoError(t, c.Persist(ctx, &testfixture.Tag{ID: "go"}))
	got, err := c.Find(ctx, "Tag", "go")
	require.NoError(t, err)
	assert.Equal(t, &testfixture.Tag{ID: "go"}, got)
}

func TestLookupConnectionErrorIsMiss(t *testing.T) {
	ctx := context.Background()
	pool := newCountingPool()
	rec := newFakeRecorder()
	var logs bytes.Buffer
	c := New(pool, newRegistry(t), WithRecorder(rec), WithLogger(zerolog.New(&logs)))

	require.NoError(t, c.Persist(ctx, &testfixture.Person{ID: "1", Name: "Bob"}))
	pool.Close()

	got, err := c.Find(ctx, "Person", "1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, rec.misses)
	assert.Contains(t, logs.String(), `"event":"lookup_connection_error_as_miss"`)

	// Writes still fail loudly
	err = c.Persist(ctx, &testfixture.Person{ID: "2", Name: "Eve"})
	assert.ErrorIs(t, err, errs.ErrConnection)
}

func TestStrictLookupsSurfaceConnectionErrors(t *testing.T) {
	ctx := context.Background()
	pool := newCountingPool()
	c := New(pool, newRegistry(t), WithStrictLookups(true))
	pool.Close()

	_, err := c.Find(ctx, "Person", "1")
	var connErr *errs.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "acquire", connErr.Op)
}

func TestFindAllSkipsMissing(t *testing.T) {
	ctx := context.Background()
	c := New(newCountingPool(), newRegistry(t))

	require.NoError(t, c.Persist(ctx, &testfixture.Person{ID: "1", Name: "Bob"}))
	require.NoError(t, c.Persist(ctx, &testfixture.Person{ID: "3", Name: "Eve"}))

	got, err := c.FindAll(ctx, "Person", "1", "2", "3")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Bob", got[0].(*testfixture.Person).Name)
	assert.Equal(t, "Eve", got[1].(*testfixture.Person).Name)
}

func TestFindByColumn(t *testing.T) {
	ctx := context.Background()
	pool := newCountingPool()
	c := New(pool, newRegistry(t))

	// "Aa" and "BB" share a score
	require.Equal(t, mapping.Score("Aa"), mapping.Score("BB"))
	for _, p := range []*testfixture.Person{
		{ID: "1", Name: "Aa"},
		{ID: "2", Name: "BB"},
		{ID: "3", Name: "Aa", Email: testfixture.Ptr("aa@example.com")},
	} {
		require.NoError(t, c.Persist(ctx, p))
	}

	got, err := c.FindByColumn(ctx, "Person", "name", "Aa")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].(*testfixture.Person).ID)
	assert.Equal(t, "3", got[1].(*testfixture.Person).ID)

	// Column name differs from the field name
	got, err = c.FindByColumn(ctx, "Person", "email", "aa@example.com")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].(*testfixture.Person).ID)

	got, err = c.FindByColumn(ctx, "Person", "id", "2")
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = c.FindByColumn(ctx, "Person", "nickname", "x")
	assert.Error(t, err)

	_, err = c.FindByColumn(ctx, "Customer", "home", "x")
	assert.ErrorIs(t, err, errs.ErrUnsupported)
	assert.True(t, pool.balanced())
}

func TestDeleteRemovesRecordAndIndexes(t *testing.T) {
	ctx := context.Background()
	pool := newCountingPool()
	rec := newFakeRecorder()
	c := New(pool, newRegistry(t), WithRecorder(rec))

	require.NoError(t, c.Persist(ctx, &testfixture.Person{ID: "1", Name: "Bob", Email: testfixture.Ptr("bob@example.com")}))

	// The deleted instance no longer carries an email; its index entry still goes
	require.NoError(t, c.Delete(ctx, &testfixture.Person{ID: "1"}))

	got, err := c.Find(ctx, "Person", "1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, pool.Len(), "no hash or index entries left")

	// Second delete is a no-op
	require.NoError(t, c.DeleteByKey(ctx, "Person", "1"))
	assert.Equal(t, 0, rec.failed["delete"])
	assert.True(t, pool.balanced())
}

func TestPersistClearsNulledAttributes(t *testing.T) {
	ctx := context.Background()
	pool := newCountingPool()
	rec := newFakeRecorder()
	c := New(pool, newRegistry(t), WithRecorder(rec))

	require.NoError(t, c.Persist(ctx, &testfixture.Person{ID: "p1", Name: "Bob", Email: testfixture.Ptr("old@x.io")}))
	require.NoError(t, c.Persist(ctx, &testfixture.Person{ID: "p1", Name: "Bob"}))

	got, err := c.Find(ctx, "Person", "p1")
	require.NoError(t, err)
	assert.Equal(t, &testfixture.Person{ID: "p1", Name: "Bob"}, got)

	hits, err := c.FindByColumn(ctx, "Person", "email", "old@x.io")
	require.NoError(t, err)
	assert.Empty(t, hits)

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	score := mapping.Score("old@x.io")
	members, err := conn.RangeByScore(ctx, "person:mail", score, score)
	require.NoError(t, err)
	cols, err := conn.HashGetAll(ctx, "person:p1")
	conn.Release()
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Equal(t, map[string][]byte{"name": []byte("Bob")}, cols)

	// The name entry survives the second save
	hits, err = c.FindByColumn(ctx, "Person", "name", "Bob")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.True(t, pool.balanced())
}

func TestPartialIndexStateIsReported(t *testing.T) {
	ctx := context.Background()
	pool := newCountingPool()
	pool.failRanked = true
	var logs bytes.Buffer
	c := New(pool, newRegistry(t), WithLogger(zerolog.New(&logs)))

	err := c.Persist(ctx, &testfixture.Person{ID: "1", Name: "Bob"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConnection)
	assert.Contains(t, logs.String(), `"event":"partial_index_state"`)
	assert.True(t, pool.balanced())

	// The primary record was written before the failure
	pool.failRanked = false
	got, err := c.Find(ctx, "Person", "1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSearchIndexing(t *testing.T) {
	ctx := context.Background()
	sink := &memorySink{docs: map[string]*indexer.Document{}}
	rec := newFakeRecorder()
	c := New(newCountingPool(), newRegistry(t),
		WithIndexer(indexer.New(indexer.NewBuilder(zerolog.Nop()), sink)),
		WithRecorder(rec))

	assert.True(t, c.Supports(errs.CapabilitySearchIndex))

	require.NoError(t, c.Persist(ctx, &testfixture.Person{ID: "1", Name: "Bob"}))
	require.NoError(t, c.Persist(ctx, &testfixture.Customer{
		ID:   "7",
		Name: "Acme",
		Home: &testfixture.Address{City: "Springfield"},
	}))
	assert.Len(t, sink.docs, 3)
	assert.Equal(t, 3, rec.docs)
	assert.Contains(t, sink.docs, "Customer~7~home")
	assert.Contains(t, sink.docs, "Customer~7~work")

	require.NoError(t, c.DeleteByKey(ctx, "Customer", "7"))
	assert.Len(t, sink.docs, 1)
}

func TestUnsupportedOperations(t *testing.T) {
	ctx := context.Background()
	c := New(newCountingPool(), newRegistry(t))

	assert.False(t, c.Supports(errs.CapabilitySearchIndex))
	assert.False(t, c.Supports(errs.CapabilityBatch))

	_, err := c.FindByEmbedded(ctx, "Customer", "home", "city", "Springfield")
	assert.ErrorIs(t, err, errs.ErrUnsupported)
	assert.ErrorIs(t, c.PersistJoinTable(ctx, "person_tag", "1", []string{"go"}), errs.ErrUnsupported)
	_, err = c.FindByRelation(ctx, "Person", "tags", "go")
	assert.ErrorIs(t, err, errs.ErrUnsupported)
	assert.ErrorIs(t, c.DeleteByColumn(ctx, "person", "name", "Bob"), errs.ErrUnsupported)
	assert.ErrorIs(t, c.AddBatch(&testfixture.Person{ID: "1"}), errs.ErrUnsupported)
	_, err = c.ExecuteBatch(ctx)

	var unsupported *errs.UnsupportedOperationError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, errs.CapabilityBatch, unsupported.Capability)
}

type Order struct {
	ID string
}

func TestPersistRejectsRelationsAndCompositeKeys(t *testing.T) {
	idAttr := func() []*metadata.Attribute {
		return []*metadata.Attribute{{Name: "id", Access: property.Field("id", property.String,
			func(o *Order) string { return o.ID },
			func(o *Order, v string) { o.ID = v })}}
	}
	withRelations := metadata.MustBuild(metadata.Entity{
		Class: "Order", Table: "order", ID: "id", Attributes: idAttr(), Relations: []string{"lines"},
	})
	reg, err := metadata.NewRegistry(withRelations)
	require.NoError(t, err)

	err = New(newCountingPool(), reg).Persist(context.Background(), &Order{ID: "1"})
	var unsupported *errs.UnsupportedOperationError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, errs.CapabilityRelations, unsupported.Capability)

	composite := metadata.MustBuild(metadata.Entity{
		Class: "Order", Table: "order", ID: "id", Attributes: idAttr(), CompositeKey: true,
	})
	reg, err = metadata.NewRegistry(composite)
	require.NoError(t, err)

	err = New(newCountingPool(), reg).Persist(context.Background(), &Order{ID: "1"})
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, errs.CapabilityCompositeKey, unsupported.Capability)
}
