package partition

import (
	"context"
	"time"
)

// Catalog is the physical partition store of the exact-tier table.
type Catalog interface {
	// Exists reports whether a table named name exists.
	Exists(ctx context.Context, name string) (bool, error)
	// Create creates p as a partition of the base table. It returns an error
	// marked domain.ErrPartitionExists when the table already exists.
	Create(ctx context.Context, p Partition) error
	// List returns the partitions attached to the base table.
	List(ctx context.Context) ([]Info, error)
	// Drop drops the partition table name if it exists.
	Drop(ctx context.Context, name string) error
}

// Info describes an attached partition. RowCount is the planner's estimate
// and is 0 until the partition has been analyzed.
type Info struct {
	Name     string     `db:"name" json:"name"`
	Schema   string     `db:"schema" json:"schema"`
	Bound    string     `db:"bound" json:"bound"`
	Size     string     `db:"size" json:"size"`
	RowCount int64      `db:"row_count" json:"row_count"`
	From     *time.Time `db:"-" json:"from,omitempty"`
	To       *time.Time `db:"-" json:"to,omitempty"`
}
