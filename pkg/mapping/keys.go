// ABOUTME: Key naming and score derivation shared by the hash and ranked stores
// ABOUTME: Scores reproduce Java's String.hashCode so existing indexes stay valid

package mapping

import (
	"unicode/utf16"

	"github.com/nainya/entitystore/pkg/metadata"
)

// KeySeparator joins a table name with a row key or column name.
const KeySeparator = ":"

// HashKey returns the primary record key for a row: table:rowKey.
func HashKey(meta *metadata.EntityMetadata, rowKey string) string {
	return meta.TableName() + KeySeparator + rowKey
}

// IndexKey returns the ranked index key for a column: table:column.
func IndexKey(meta *metadata.EntityMetadata, column string) string {
	return meta.TableName() + KeySeparator + column
}

// Score ranks a value's string encoding in a ranked index. Equal strings
// always produce equal scores; distinct strings may collide.
func Score(value string) float64 {
	return float64(StringHash(value))
}

// StringHash computes s[0]*31^(n-1) + ... + s[n-1] over the UTF-16 code
// units of s with int32 overflow.
func StringHash(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(u)
	}
	return h
}
