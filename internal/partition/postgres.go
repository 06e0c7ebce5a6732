package partition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"

	"github.com/cuongbtq/delayq/internal/domain"
	"github.com/cuongbtq/delayq/shared/postgresql"
)

// boundLayout formats partition bounds as UTC timestamptz literals.
const boundLayout = "2006-01-02 15:04:05+00"

const existsQuery = `
SELECT EXISTS (
	SELECT 1 FROM pg_tables WHERE schemaname = $1 AND tablename = $2
)`

const listQuery = `
SELECT c.relname AS name,
       n.nspname AS schema,
       pg_get_expr(c.relpartbound, c.oid) AS bound,
       pg_size_pretty(pg_total_relation_size(c.oid)) AS size,
       GREATEST(c.reltuples, 0)::bigint AS row_count
FROM pg_inherits i
JOIN pg_class c ON c.oid = i.inhrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
JOIN pg_class p ON p.oid = i.inhparent
JOIN pg_namespace pn ON pn.oid = p.relnamespace
WHERE p.relname = $1 AND pn.nspname = $2
ORDER BY c.relname`

// PostgresCatalog manages daily range partitions of a PostgreSQL table.
type PostgresCatalog struct {
	client *postgresql.Client
	schema string
	base   string
	logger *slog.Logger
}

// NewPostgresCatalog returns a catalog for schema.base.
func NewPostgresCatalog(client *postgresql.Client, schema, base string, logger *slog.Logger) *PostgresCatalog {
	return &PostgresCatalog{
		client: client,
		schema: schema,
		base:   base,
		logger: logger,
	}
}

func (c *PostgresCatalog) qualified(name string) string {
	return pq.QuoteIdentifier(c.schema) + "." + pq.QuoteIdentifier(name)
}

func (c *PostgresCatalog) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	if err := c.client.GetContext(ctx, &exists, existsQuery, c.schema, name); err != nil {
		return false, domain.StorageError(err, "failed to check partition existence")
	}
	return exists, nil
}

func (c *PostgresCatalog) Create(ctx context.Context, p Partition) error {
	ddl := fmt.Sprintf(
		"CREATE TABLE %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')",
		c.qualified(p.Name),
		c.qualified(c.base),
		p.From.UTC().Format(boundLayout),
		p.To.UTC().Format(boundLayout),
	)

	if _, err := c.client.ExecContext(ctx, ddl); err != nil {
		// A concurrent CREATE of the same name can surface as a unique
		// violation on pg_type instead of 42P07.
		if postgresql.IsDuplicateTable(err) || postgresql.IsUniqueViolation(err) {
			return errors.Mark(errors.Wrapf(err, "partition %s", p.Name), domain.ErrPartitionExists)
		}
		return domain.StorageError(err, "failed to create partition "+p.Name)
	}

	c.logger.Debug("Partition DDL executed",
		slog.String("partition", p.Name),
	)
	return nil
}

func (c *PostgresCatalog) List(ctx context.Context) ([]Info, error) {
	var infos []Info
	if err := c.client.SelectContext(ctx, &infos, listQuery, c.base, c.schema); err != nil {
		return nil, domain.StorageError(err, "failed to list partitions")
	}

	for i := range infos {
		if p, err := ParseName(c.base, infos[i].Name); err == nil {
			from, to := p.From, p.To
			infos[i].From = &from
			infos[i].To = &to
		}
	}
	return infos, nil
}

func (c *PostgresCatalog) Drop(ctx context.Context, name string) error {
	if _, err := c.client.ExecContext(ctx, "DROP TABLE IF EXISTS "+c.qualified(name)); err != nil {
		return domain.StorageError(err, "failed to drop partition "+name)
	}
	return nil
}
