// Package secondary keeps the ranked value indexes of an entity in step with
// its primary record.
//
// Each index entry ranks the entity's row key under table:column by the score
// of the column's value. Writes are issued one entry at a time in sorted key
// order. A failure stops the walk and is returned with the index key
// attached; entries already written stay written.
package secondary

import (
	"context"
	"fmt"

	"github.com/nainya/entitystore/pkg/mapping"
	"github.com/nainya/entitystore/pkg/storage"
)

// IndexError reports the index entry whose write failed.
type IndexError struct {
	Key    string
	Action string
	Err    error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("secondary: %s %s: %v", e.Action, e.Key, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// Apply adds rowKey to every index of the record and returns how many
// entries were written.
func Apply(ctx context.Context, idx storage.RankedIndex, rec *mapping.AttributeRecord, rowKey string) (int, error) {
	written := 0
	for _, key := range rec.IndexKeys() {
		if err := idx.RankedAdd(ctx, key, rec.Indexes[key], rowKey); err != nil {
			return written, &IndexError{Key: key, Action: "add", Err: err}
		}
		written++
	}
	return written, nil
}

// Remove drops rowKey from every index of the record and returns how many
// removals were issued. Removing an absent member is not an error.
func Remove(ctx context.Context, idx storage.RankedIndex, rec *mapping.AttributeRecord, rowKey string) (int, error) {
	removed := 0
	for _, key := range rec.IndexKeys() {
		if err := idx.RankedRemove(ctx, key, rowKey); err != nil {
			return removed, &IndexError{Key: key, Action: "remove", Err: err}
		}
		removed++
	}
	return removed, nil
}
