package client

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/nainya/entitystore/pkg/indexer"
)

// Recorder receives operation outcomes, typically for metrics.
type Recorder interface {
	StoreOperation(op string, d time.Duration, err error)
	IndexWrites(action string, n int)
	DocumentsIndexed(n int)
	LookupConnectionMiss()
}

type nopRecorder struct{}

func (nopRecorder) StoreOperation(string, time.Duration, error) {}
func (nopRecorder) IndexWrites(string, int)                     {}
func (nopRecorder) DocumentsIndexed(int)                        {}
func (nopRecorder) LookupConnectionMiss()                       {}

// Option configures a Client.
type Option func(*Client)

// WithIndexer enables search indexing of persisted entities.
func WithIndexer(ix *indexer.Indexer) Option {
	return func(c *Client) { c.indexer = ix }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.rec = r
		}
	}
}

// WithStrictLookups makes key lookups report connection failures instead of
// answering "not found".
func WithStrictLookups(strict bool) Option {
	return func(c *Client) { c.strict = strict }
}
