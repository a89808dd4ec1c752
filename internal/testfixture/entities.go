// Package testfixture holds the entity types and metadata shared by tests
// across packages.
package testfixture

import (
	"github.com/nainya/entitystore/pkg/metadata"
	"github.com/nainya/entitystore/pkg/property"
)

// Person is a flat entity with optional fields.
type Person struct {
	ID    string
	Name  string
	Age   *int
	Email *string
}

// Address is embedded by Customer.
type Address struct {
	Street string
	City   string
}

// Customer carries embedded addresses indexed as nested documents.
type Customer struct {
	ID   string
	Name string
	Home *Address
	Work *Address
}

// Tag has no attribute besides its identifier.
type Tag struct {
	ID string
}

// Ptr returns a pointer to v.
func Ptr[V any](v V) *V { return &v }

// PersonMetadata maps Person to table "person". Email is stored in column "mail".
func PersonMetadata() *metadata.EntityMetadata {
	return metadata.MustBuild(metadata.Entity{
		Class: "Person",
		Table: "person",
		ID:    "id",
		New:   func() any { return &Person{} },
		Attributes: []*metadata.Attribute{
			{Name: "id", Access: property.Field("id", property.String,
				func(p *Person) string { return p.ID },
				func(p *Person, v string) { p.ID = v })},
			{Name: "name", Indexed: true, Access: property.Field("name", property.String,
				func(p *Person) string { return p.Name },
				func(p *Person, v string) { p.Name = v })},
			{Name: "age", Indexed: true, Access: property.Optional("age", property.Int,
				func(p *Person) *int { return p.Age },
				func(p *Person, v *int) { p.Age = v })},
			{Name: "email", Column: "mail", Indexed: true, Access: property.Optional("email", property.String,
				func(p *Person) *string { return p.Email },
				func(p *Person, v *string) { p.Email = v })},
		},
	})
}

// CustomerMetadata maps Customer with two embedded address columns.
func CustomerMetadata() *metadata.EntityMetadata {
	addressColumns := func() []*metadata.Attribute {
		return []*metadata.Attribute{
			{Name: "street", Access: property.Field("street", property.String,
				func(a *Address) string { return a.Street },
				func(a *Address, v string) { a.Street = v })},
			{Name: "city", Access: property.Field("city", property.String,
				func(a *Address) string { return a.City },
				func(a *Address, v string) { a.City = v })},
		}
	}
	embedded := func(name string, get func(*Customer) *Address) *metadata.EmbeddedColumn {
		return &metadata.EmbeddedColumn{
			Name: name,
			Value: func(entity any) (any, error) {
				a := get(entity.(*Customer))
				if a == nil {
					return nil, nil
				}
				return a, nil
			},
			Columns: addressColumns(),
		}
	}

	return metadata.MustBuild(metadata.Entity{
		Class:     "Customer",
		Table:     "customer",
		IndexName: "crm",
		ID:        "id",
		New:       func() any { return &Customer{} },
		Attributes: []*metadata.Attribute{
			{Name: "id", Access: property.Field("id", property.String,
				func(c *Customer) string { return c.ID },
				func(c *Customer, v string) { c.ID = v })},
			{Name: "name", Indexed: true, Access: property.Field("name", property.String,
				func(c *Customer) string { return c.Name },
				func(c *Customer, v string) { c.Name = v })},
			{Name: "home", Embeddable: true},
		},
		Embedded: []*metadata.EmbeddedColumn{
			embedded("home", func(c *Customer) *Address { return c.Home }),
			embedded("work", func(c *Customer) *Address { return c.Work }),
		},
	})
}

// TagMetadata maps Tag, whose identifier is its only attribute.
func TagMetadata() *metadata.EntityMetadata {
	return metadata.MustBuild(metadata.Entity{
		Class: "Tag",
		Table: "tag",
		ID:    "id",
		New:   func() any { return &Tag{} },
		Attributes: []*metadata.Attribute{
			{Name: "id", Access: property.Field("id", property.String,
				func(t *Tag) string { return t.ID },
				func(t *Tag, v string) { t.ID = v })},
		},
	})
}
