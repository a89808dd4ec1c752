package indexer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/entitystore/internal/testfixture"
	"github.com/nainya/entitystore/pkg/metadata"
	"github.com/nainya/entitystore/pkg/property"
)

func fieldNames(doc *Document) []string {
	names := make([]string, 0, len(doc.Fields))
	for _, f := range doc.Fields {
		names = append(names, f.Name)
	}
	return names
}

func TestBuildDocument(t *testing.T) {
	b := NewBuilder(zerolog.Nop())
	m := testfixture.PersonMetadata()

	doc, err := b.BuildDocument(m, &testfixture.Person{ID: "1", Name: "Bob", Age: testfixture.Ptr(30), Email: testfixture.Ptr("b@x.io")})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"6077004083174677888.entity.id",
		"6077004083174677888.kundera.id",
		"entity.class",
		"6077004083174677888.entity.indexname",
		"person.name",
		"person.age",
		"person.email",
	}, fieldNames(doc))

	get := func(name string) string {
		v, ok := doc.Get(name)
		require.True(t, ok, name)
		return v
	}
	assert.Equal(t, "1", get(EntityIDField))
	assert.Equal(t, "Person~1", get(StorageIDField))
	assert.Equal(t, "person", get(EntityClassField))
	assert.Equal(t, "person", get(IndexNameField))
	assert.Equal(t, "30", get("person.age"))
	assert.Equal(t, "Person~1", doc.Key())

	for _, f := range doc.Fields[:4] {
		assert.True(t, f.Stored, f.Name)
		assert.False(t, f.Tokenized, f.Name)
	}
	for _, f := range doc.Fields[4:] {
		assert.False(t, f.Stored, f.Name)
		assert.True(t, f.Tokenized, f.Name)
	}
}

func TestBuildDocumentSkipsNulls(t *testing.T) {
	var logs bytes.Buffer
	b := NewBuilder(zerolog.New(&logs))

	doc, err := b.BuildDocument(testfixture.PersonMetadata(), &testfixture.Person{ID: "1", Name: "Bob"})
	require.NoError(t, err)

	_, ok := doc.Get("person.age")
	assert.False(t, ok)
	_, ok = doc.Get("person.email")
	assert.False(t, ok)
	assert.Len(t, doc.Fields, 5)

	out := logs.String()
	assert.Equal(t, 2, strings.Count(out, `"level":"warn"`))
	assert.Contains(t, out, `"field":"age"`)
	assert.Contains(t, out, `"class":"Person"`)
}

func TestBuildDocumentRequiresID(t *testing.T) {
	_, err := NewBuilder(zerolog.Nop()).BuildDocument(testfixture.PersonMetadata(), &testfixture.Person{Name: "Bob"})
	assert.Error(t, err)
}

type broken struct{ ID string }

var errUnreadable = errors.New("unreadable")

// failingAccessor cannot be read.
type failingAccessor struct{ property.Accessor }

func (failingAccessor) String(any) (string, bool, error) { return "", false, errUnreadable }

func TestBuildDocumentSkipsUnreadableField(t *testing.T) {
	var logs bytes.Buffer
	m := metadata.MustBuild(metadata.Entity{
		Class: "Broken",
		Table: "broken",
		ID:    "id",
		Attributes: []*metadata.Attribute{
			{Name: "id", Access: property.Field("id", property.String,
				func(b *broken) string { return b.ID }, nil)},
			{Name: "secret", Indexed: true, Access: failingAccessor{}},
		},
	})

	doc, err := NewBuilder(zerolog.New(&logs)).BuildDocument(m, &broken{ID: "1"})
	require.NoError(t, err)
	assert.Len(t, doc.Fields, 4)
	assert.Contains(t, logs.String(), `"level":"error"`)
	assert.Contains(t, logs.String(), `"field":"secret"`)
}

func TestBuildNestedDocument(t *testing.T) {
	b := NewBuilder(zerolog.Nop())
	m := testfixture.CustomerMetadata()
	c := &testfixture.Customer{
		ID:   "7",
		Name: "Acme",
		Home: &testfixture.Address{Street: "1 Main St", City: "Springfield"},
	}

	doc, err := b.BuildNestedDocument(m, c, "home")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"6077004083174677888.entity.id",
		"6077004083174677888.kundera.id",
		"entity.class",
		"6077004083174677888.entity.indexname",
		"6077004083174677888.entity.super.indexname",
		"crm.street",
		"crm.city",
		"crm.name",
	}, fieldNames(doc))

	sub, _ := doc.Get(SubBlockField)
	assert.Equal(t, "home", sub)
	idx, _ := doc.Get(IndexNameField)
	assert.Equal(t, "crm", idx)
	assert.Equal(t, "Customer~7~home", doc.Key())

	// Absent embedded value keeps identity and entity properties
	doc, err = b.BuildNestedDocument(m, c, "work")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"6077004083174677888.entity.id",
		"6077004083174677888.kundera.id",
		"entity.class",
		"6077004083174677888.entity.indexname",
		"6077004083174677888.entity.super.indexname",
		"crm.name",
	}, fieldNames(doc))

	_, err = b.BuildNestedDocument(m, c, "billing")
	assert.Error(t, err)
}

type recordingSink struct {
	docs    []*Document
	removed []string
	err     error
}

func (s *recordingSink) IndexDocument(_ context.Context, _ *metadata.EntityMetadata, doc *Document) error {
	if s.err != nil {
		return s.err
	}
	s.docs = append(s.docs, doc)
	return nil
}

type removingSink struct{ recordingSink }

func (s *removingSink) RemoveDocuments(_ context.Context, meta *metadata.EntityMetadata, id string) error {
	s.removed = append(s.removed, StorageID(meta, id))
	return nil
}

func TestIndexer(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	ix := New(NewBuilder(zerolog.Nop()), sink)

	n, err := ix.Index(ctx, testfixture.PersonMetadata(), &testfixture.Person{ID: "1", Name: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = ix.Index(ctx, testfixture.CustomerMetadata(), &testfixture.Customer{ID: "7", Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one nested document per embedded column")
	require.Len(t, sink.docs, 3)
	assert.Equal(t, "Customer~7~home", sink.docs[1].Key())
	assert.Equal(t, "Customer~7~work", sink.docs[2].Key())

	removed, err := ix.Unindex(ctx, testfixture.PersonMetadata(), "1")
	require.NoError(t, err)
	assert.False(t, removed, "sink cannot remove")

	sink.err = errors.New("disk full")
	_, err = ix.Index(ctx, testfixture.PersonMetadata(), &testfixture.Person{ID: "2", Name: "Eve"})
	assert.ErrorIs(t, err, sink.err)
	assert.Contains(t, err.Error(), "Person~2")
}

func TestIndexerUnindex(t *testing.T) {
	sink := &removingSink{}
	ix := New(NewBuilder(zerolog.Nop()), sink)

	removed, err := ix.Unindex(context.Background(), testfixture.PersonMetadata(), "1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"Person~1"}, sink.removed)
}
