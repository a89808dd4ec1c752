// ABOUTME: Narrow store contracts consumed by the client and index maintainer
// ABOUTME: Concrete backends live in this package and its subpackages

package storage

import "context"

// HashStore is a key -> (column -> value) store.
type HashStore interface {
	// HashSet writes the given columns of key, leaving other columns alone
	HashSet(ctx context.Context, key string, columns map[string][]byte) error

	// HashGetAll returns every column of key; a missing key yields an empty map
	HashGetAll(ctx context.Context, key string) (map[string][]byte, error)

	// HashDelete removes the given columns of key; missing columns are ignored
	HashDelete(ctx context.Context, key string, columns ...string) error
}

// RankedIndex is a key -> sorted set of (member, score) store.
type RankedIndex interface {
	// RankedAdd ranks member at score under key, replacing any previous score
	RankedAdd(ctx context.Context, key string, score float64, member string) error

	// RankedRemove drops member from key; removing a non-member is a no-op
	RankedRemove(ctx context.Context, key string, member string) error

	// RangeByScore lists members of key with min <= score <= max, ascending
	RangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
}

// Conn is one acquired connection to a backend serving both primary records
// and ranked indexes. It must be released exactly once.
type Conn interface {
	HashStore
	RankedIndex
	Release()
}

// Pool hands out connections, one per logical operation.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
}
