// ABOUTME: In-process store implementing hashes and ranked indexes on one ordered tree
// ABOUTME: Used for tests, the CLI's memory backend and embedding without Redis

package storage

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"

	"github.com/google/btree"

	"github.com/nainya/entitystore/pkg/errs"
)

// Keyspace prefixes inside the tree
const (
	prefixHash   uint32 = 1 // (key, column) -> value
	prefixRank   uint32 = 2 // (key, score, member) -> nil
	prefixMember uint32 = 3 // (key, member) -> encoded score
)

// btreeDegree is the branching factor of the backing tree
const btreeDegree = 32

// ErrStoreClosed is returned by a memory store after Close
var ErrStoreClosed = errors.New("memory store closed")

type item struct {
	key []byte
	val []byte
}

func itemLess(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// MemoryStore keeps every hash and ranked index in a single ordered tree of
// encoded keys. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[item]
	closed bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tree: btree.NewG[item](btreeDegree, itemLess)}
}

// Acquire hands out a connection. After Close it fails with a
// *errs.ConnectionError, which is how tests simulate an unreachable server.
func (m *MemoryStore) Acquire(ctx context.Context) (Conn, error) {
	if err := m.check(ctx, "acquire"); err != nil {
		return nil, err
	}
	return memoryConn{m}, nil
}

// Close marks the store unavailable. Data is kept so Reopen restores it.
func (m *MemoryStore) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Reopen makes a closed store available again.
func (m *MemoryStore) Reopen() {
	m.mu.Lock()
	m.closed = false
	m.mu.Unlock()
}

// Len returns the number of tree entries across all keyspaces.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

func (m *MemoryStore) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return &errs.ConnectionError{Op: op, Err: ErrStoreClosed}
	}
	return nil
}

// HashSet writes the given columns of key.
func (m *MemoryStore) HashSet(ctx context.Context, key string, columns map[string][]byte) error {
	if err := m.check(ctx, "hset"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for col, val := range columns {
		v := make([]byte, len(val))
		copy(v, val)
		m.tree.ReplaceOrInsert(item{
			key: EncodeKey(prefixHash, []Value{Str(key), Str(col)}),
			val: v,
		})
	}
	return nil
}

// HashGetAll returns every column of key.
func (m *MemoryStore) HashGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	if err := m.check(ctx, "hgetall"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte)
	var scanErr error
	m.scanPrefix(EncodeKey(prefixHash, []Value{Str(key)}), func(it item) bool {
		_, vals, err := DecodeKey(it.key)
		if err != nil || len(vals) != 2 {
			scanErr = errors.New("corrupt hash entry")
			return false
		}
		v := make([]byte, len(it.val))
		copy(v, it.val)
		out[string(vals[1].Str)] = v
		return true
	})
	if scanErr != nil {
		return nil, scanErr
	}
	return out, nil
}

// HashDelete removes the given columns of key.
func (m *MemoryStore) HashDelete(ctx context.Context, key string, columns ...string) error {
	if err := m.check(ctx, "hdel"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, col := range columns {
		m.tree.Delete(item{key: EncodeKey(prefixHash, []Value{Str(key), Str(col)})})
	}
	return nil
}

// RankedAdd ranks member at score under key, moving it if already ranked.
func (m *MemoryStore) RankedAdd(ctx context.Context, key string, score float64, member string) error {
	if err := m.check(ctx, "zadd"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.unrank(key, member)

	enc := EncodeValues([]Value{Float(score)})
	m.tree.ReplaceOrInsert(item{key: EncodeKey(prefixMember, []Value{Str(key), Str(member)}), val: enc})
	m.tree.ReplaceOrInsert(item{key: EncodeKey(prefixRank, []Value{Str(key), Float(score), Str(member)})})
	return nil
}

// RankedRemove drops member from key.
func (m *MemoryStore) RankedRemove(ctx context.Context, key string, member string) error {
	if err := m.check(ctx, "zrem"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.unrank(key, member)
	return nil
}

// unrank removes both entries of a ranked member. Caller holds the write lock.
func (m *MemoryStore) unrank(key, member string) {
	old, ok := m.tree.Delete(item{key: EncodeKey(prefixMember, []Value{Str(key), Str(member)})})
	if !ok {
		return
	}
	vals, err := DecodeValues(old.val)
	if err != nil || len(vals) != 1 {
		return
	}
	m.tree.Delete(item{key: EncodeKey(prefixRank, []Value{Str(key), vals[0], Str(member)})})
}

// RangeByScore lists members of key with min <= score <= max, ordered by
// score and then by member.
func (m *MemoryStore) RangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	if err := m.check(ctx, "zrangebyscore"); err != nil {
		return nil, err
	}
	if math.IsNaN(min) || math.IsNaN(max) || min > max {
		return []string{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := EncodeKey(prefixRank, []Value{Str(key)})
	start := EncodeKey(prefixRank, []Value{Str(key), Float(min)})
	members := []string{}
	m.tree.AscendGreaterOrEqual(item{key: start}, func(it item) bool {
		if !bytes.HasPrefix(it.key, prefix) {
			return false
		}
		_, vals, err := DecodeKey(it.key)
		if err != nil || len(vals) != 3 {
			return false
		}
		if vals[1].F64 > max {
			return false
		}
		members = append(members, string(vals[2].Str))
		return true
	})
	return members, nil
}

func (m *MemoryStore) scanPrefix(prefix []byte, fn func(item) bool) {
	m.tree.AscendGreaterOrEqual(item{key: prefix}, func(it item) bool {
		if !bytes.HasPrefix(it.key, prefix) {
			return false
		}
		return fn(it)
	})
}

// memoryConn adapts the store to Conn. Releasing it is a no-op.
type memoryConn struct {
	*MemoryStore
}

func (memoryConn) Release() {}
