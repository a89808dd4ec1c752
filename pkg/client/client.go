// ABOUTME: Key-value client persisting entities as hashes with ranked value indexes
// ABOUTME: One pooled connection per operation; primary record first, then indexes, then search

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nainya/entitystore/pkg/errs"
	"github.com/nainya/entitystore/pkg/indexer"
	"github.com/nainya/entitystore/pkg/mapping"
	"github.com/nainya/entitystore/pkg/metadata"
	"github.com/nainya/entitystore/pkg/secondary"
	"github.com/nainya/entitystore/pkg/storage"
)

// Client persists and loads entities through a pooled store.
//
// Writes are not transactional. Persist writes the primary record, then the
// ranked indexes, then the search documents; a failure part way leaves the
// earlier steps applied and is logged as a partial index state. Nothing is
// retried.
type Client struct {
	pool     storage.Pool
	registry *metadata.Registry
	indexer  *indexer.Indexer
	log      zerolog.Logger
	rec      Recorder
	strict   bool
}

// New creates a client over pool for the entity types in registry.
func New(pool storage.Pool, registry *metadata.Registry, opts ...Option) *Client {
	c := &Client{
		pool:     pool,
		registry: registry,
		log:      zerolog.Nop(),
		rec:      nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "client").Logger()
	return c
}

// Registry returns the metadata registry the client resolves classes with.
func (c *Client) Registry() *metadata.Registry { return c.registry }

// Capabilities lists what this client can do.
func (c *Client) Capabilities() []errs.Capability {
	caps := []errs.Capability{errs.CapabilityPrimaryStore, errs.CapabilitySecondaryIndex}
	if c.indexer != nil {
		caps = append(caps, errs.CapabilitySearchIndex)
	}
	return caps
}

// Supports reports whether capability is available.
func (c *Client) Supports(capability errs.Capability) bool {
	for _, have := range c.Capabilities() {
		if have == capability {
			return true
		}
	}
	return false
}

// Persist writes an entity and its indexes. Columns and index entries of
// attributes that are now null are removed first.
func (c *Client) Persist(ctx context.Context, entity any) (err error) {
	start := time.Now()
	defer func() { c.rec.StoreOperation("persist", time.Since(start), err) }()

	meta, err := c.registry.ResolveEntity(entity)
	if err != nil {
		return err
	}
	if meta.HasCompositeKey() {
		return errs.Unsupported(errs.CapabilityCompositeKey, "persist "+meta.Class())
	}
	if len(meta.Relations()) > 0 {
		return errs.Unsupported(errs.CapabilityRelations, "persist "+meta.Class())
	}

	rowKey, err := meta.RowKey(entity)
	if err != nil {
		return err
	}
	rec, err := mapping.Wrap(meta, entity)
	if err != nil {
		return err
	}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	hashKey := mapping.HashKey(meta, rowKey)
	if err := conn.HashSet(ctx, hashKey, rec.Columns); err != nil {
		return fmt.Errorf("client: write %s: %w", hashKey, err)
	}
	cleared := mapping.Cleared(meta, rec)
	if err := conn.HashDelete(ctx, hashKey, cleared.ColumnNames()...); err != nil {
		return fmt.Errorf("client: clear %s: %w", hashKey, err)
	}

	removed, err := secondary.Remove(ctx, conn, cleared, rowKey)
	c.rec.IndexWrites("remove", removed)
	if err != nil {
		c.partial(meta, rowKey, "persist", err)
		return err
	}
	n, err := secondary.Apply(ctx, conn, rec, rowKey)
	c.rec.IndexWrites("add", n)
	if err != nil {
		c.partial(meta, rowKey, "persist", err)
		return err
	}

	if c.indexer != nil {
		docs, err := c.indexer.Index(ctx, meta, entity)
		c.rec.DocumentsIndexed(docs)
		if err != nil {
			c.partial(meta, rowKey, "persist", err)
			return err
		}
	}

	c.log.Debug().
		Str("class", meta.Class()).
		Str("key", hashKey).
		Int("columns", len(rec.Columns)).
		Int("indexes", n).
		Msg("entity persisted")
	return nil
}

// Find loads the entity of class stored under rowKey. A missing record
// yields a nil entity and no error.
//
// Unless strict lookups are enabled, a connection failure is also answered
// with a nil entity. Each such answer is logged with
// event=lookup_connection_error_as_miss and counted.
func (c *Client) Find(ctx context.Context, class, rowKey string) (entity any, err error) {
	start := time.Now()
	defer func() { c.rec.StoreOperation("find", time.Since(start), err) }()

	meta, err := c.registry.Resolve(class)
	if err != nil {
		return nil, err
	}
	return c.find(ctx, meta, rowKey)
}

func (c *Client) find(ctx context.Context, meta *metadata.EntityMetadata, rowKey string) (any, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, c.lookupError(meta, rowKey, err)
	}
	defer conn.Release()

	hashKey := mapping.HashKey(meta, rowKey)
	columns, err := conn.HashGetAll(ctx, hashKey)
	if err != nil {
		return nil, c.lookupError(meta, rowKey, fmt.Errorf("client: read %s: %w", hashKey, err))
	}
	return c.load(meta, rowKey, columns)
}

func (c *Client) load(meta *metadata.EntityMetadata, rowKey string, columns map[string][]byte) (any, error) {
	entity, err := mapping.Unwrap(meta, columns)
	if err != nil || entity == nil {
		return nil, err
	}
	if err := mapping.PatchID(meta, entity, rowKey); err != nil {
		return nil, err
	}
	return entity, nil
}

// lookupError turns a connection failure into a miss unless lookups are strict.
func (c *Client) lookupError(meta *metadata.EntityMetadata, rowKey string, err error) error {
	if c.strict || !errors.Is(err, errs.ErrConnection) {
		return err
	}
	c.rec.LookupConnectionMiss()
	c.log.Warn().
		Err(err).
		Str("event", "lookup_connection_error_as_miss").
		Str("class", meta.Class()).
		Str("key", rowKey).
		Msg("connection failure on lookup reported as not found")
	return nil
}

// FindAll loads the entities stored under keys, skipping missing ones.
func (c *Client) FindAll(ctx context.Context, class string, keys ...string) (found []any, err error) {
	start := time.Now()
	defer func() { c.rec.StoreOperation("find_all", time.Since(start), err) }()

	meta, err := c.registry.Resolve(class)
	if err != nil {
		return nil, err
	}

	found = make([]any, 0, len(keys))
	for _, key := range keys {
		e, err := c.find(ctx, meta, key)
		if err != nil {
			return nil, err
		}
		if e != nil {
			found = append(found, e)
		}
	}
	return found, nil
}

// FindByColumn loads every entity of class whose field equals value, using
// the field's ranked index. Rows that share the value's score without
// holding the value are filtered out.
func (c *Client) FindByColumn(ctx context.Context, class, field, value string) (found []any, err error) {
	start := time.Now()
	defer func() { c.rec.StoreOperation("find_by_column", time.Since(start), err) }()

	meta, err := c.registry.Resolve(class)
	if err != nil {
		return nil, err
	}
	attr, ok := meta.Attribute(field)
	if !ok {
		return nil, fmt.Errorf("client: %s has no attribute %q", meta.Class(), field)
	}
	if attr.Embeddable {
		return nil, errs.Unsupported(errs.CapabilityEmbedded, "find by embedded attribute "+field)
	}
	if attr == meta.IDAttribute() {
		e, err := c.find(ctx, meta, value)
		if err != nil || e == nil {
			return []any{}, err
		}
		return []any{e}, nil
	}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	score := mapping.Score(value)
	indexKey := mapping.IndexKey(meta, attr.Column)
	members, err := conn.RangeByScore(ctx, indexKey, score, score)
	if err != nil {
		return nil, fmt.Errorf("client: scan %s: %w", indexKey, err)
	}

	found = make([]any, 0, len(members))
	for _, rowKey := range members {
		hashKey := mapping.HashKey(meta, rowKey)
		columns, err := conn.HashGetAll(ctx, hashKey)
		if err != nil {
			return nil, fmt.Errorf("client: read %s: %w", hashKey, err)
		}
		e, err := c.load(meta, rowKey, columns)
		if err != nil {
			return nil, err
		}
		if e == nil {
			// Index entry outlived its primary record
			continue
		}
		got, ok, err := attr.Access.String(e)
		if err != nil {
			return nil, metadata.WithClass(err, meta.Class())
		}
		if ok && got == value {
			found = append(found, e)
		}
	}
	return found, nil
}

// Delete removes an entity's primary record, then its index entries, then
// its search documents.
func (c *Client) Delete(ctx context.Context, entity any) error {
	meta, err := c.registry.ResolveEntity(entity)
	if err != nil {
		return err
	}
	rowKey, err := meta.RowKey(entity)
	if err != nil {
		return err
	}
	return c.delete(ctx, meta, rowKey)
}

// DeleteByKey removes the entity of class stored under rowKey.
func (c *Client) DeleteByKey(ctx context.Context, class, rowKey string) error {
	meta, err := c.registry.Resolve(class)
	if err != nil {
		return err
	}
	return c.delete(ctx, meta, rowKey)
}

func (c *Client) delete(ctx context.Context, meta *metadata.EntityMetadata, rowKey string) (err error) {
	start := time.Now()
	defer func() { c.rec.StoreOperation("delete", time.Since(start), err) }()

	rec := mapping.Footprint(meta)

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	hashKey := mapping.HashKey(meta, rowKey)
	if err := conn.HashDelete(ctx, hashKey, rec.ColumnNames()...); err != nil {
		return fmt.Errorf("client: delete %s: %w", hashKey, err)
	}

	n, err := secondary.Remove(ctx, conn, rec, rowKey)
	c.rec.IndexWrites("remove", n)
	if err != nil {
		c.partial(meta, rowKey, "delete", err)
		return err
	}

	if c.indexer != nil {
		if _, err := c.indexer.Unindex(ctx, meta, rowKey); err != nil {
			c.partial(meta, rowKey, "delete", err)
			return err
		}
	}

	c.log.Debug().
		Str("class", meta.Class()).
		Str("key", hashKey).
		Msg("entity deleted")
	return nil
}

func (c *Client) partial(meta *metadata.EntityMetadata, rowKey, op string, err error) {
	c.log.Error().
		Err(err).
		Str("event", "partial_index_state").
		Str("op", op).
		Str("class", meta.Class()).
		Str("key", rowKey).
		Msg("primary record changed but index maintenance failed")
}
