package client

import (
	"context"

	"github.com/nainya/entitystore/pkg/errs"
)

// FindByEmbedded would look entities up by a column of an embedded
// substructure. Not supported.
func (c *Client) FindByEmbedded(ctx context.Context, class, embeddedColumn, column, value string) ([]any, error) {
	return nil, errs.Unsupported(errs.CapabilityEmbedded, "find by embedded column "+embeddedColumn)
}

// PersistJoinTable would record a many-to-many association. Not supported.
func (c *Client) PersistJoinTable(ctx context.Context, joinTable, parentID string, childIDs []string) error {
	return errs.Unsupported(errs.CapabilityJoinTable, "persist join table "+joinTable)
}

// FindByRelation would load entities through a relation. Not supported.
func (c *Client) FindByRelation(ctx context.Context, class, relation, value string) ([]any, error) {
	return nil, errs.Unsupported(errs.CapabilityRelations, "find by relation "+relation)
}

// DeleteByColumn would delete every row holding value in column. Not supported.
func (c *Client) DeleteByColumn(ctx context.Context, table, column, value string) error {
	return errs.Unsupported(errs.CapabilitySecondaryIndex, "delete by column "+table+"."+column)
}

// AddBatch would queue entities for a batched write. Not supported.
func (c *Client) AddBatch(entities ...any) error {
	return errs.Unsupported(errs.CapabilityBatch, "add batch")
}

// ExecuteBatch would flush queued entities. Not supported.
func (c *Client) ExecuteBatch(ctx context.Context) (int, error) {
	return 0, errs.Unsupported(errs.CapabilityBatch, "execute batch")
}
