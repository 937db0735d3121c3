// Package migrate reconciles stored data when a field's backend changes:
// copying document-held values into a new SQL column, or copying column
// values into documents before the column is dropped. See spec.md §4.7.
package migrate

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RelationalReader is the subset of internal/relational.Client the
// migrator needs to pull column values out before a DROP COLUMN, and to
// write values into a newly added column.
type RelationalReader interface {
	ReadColumnValues(ctx context.Context, table, column string) (map[LinkKey]interface{}, error)
	WriteColumnValues(ctx context.Context, table, column string, values map[LinkKey]interface{}) error
}

// DocumentReaderWriter is the subset of internal/document.Client the
// migrator needs. Every document addressed is identified by the full
// username + sys_ingested_at link key, per spec.md §4.7.
type DocumentReaderWriter interface {
	FindFieldValues(ctx context.Context, collection, field string) (map[LinkKey]interface{}, error)
	SetFields(ctx context.Context, collection string, link LinkKey, fields map[string]interface{}) error
}

// LinkKey identifies a record across backends by username + sys_ingested_at.
// Both fields must match; username alone is not enough to disambiguate two
// records from the same user.
type LinkKey struct {
	Username      interface{}
	SysIngestedAt interface{}
}

// Migrator moves field data between backends when a placement decision
// changes which backend owns a field.
type Migrator struct {
	relational RelationalReader
	document   DocumentReaderWriter
	table      string
	log        *zap.SugaredLogger
}

// New returns a Migrator targeting the given relational table / document
// collection (spec.md uses a single configured name for both).
func New(relational RelationalReader, document DocumentReaderWriter, table string, log *zap.SugaredLogger) *Migrator {
	return &Migrator{relational: relational, document: document, table: table, log: log}
}

// MigrateDocToSQL copies field's value out of every document that has it
// into the corresponding row of the new SQL column, keyed by
// username+sys_ingested_at. Records with no matching link are skipped and
// logged rather than failing the whole migration.
func (m *Migrator) MigrateDocToSQL(ctx context.Context, field string) error {
	values, err := m.document.FindFieldValues(ctx, m.table, field)
	if err != nil {
		return fmt.Errorf("scan document field %s for migration: %w", field, err)
	}
	if len(values) == 0 {
		return nil
	}
	if err := m.relational.WriteColumnValues(ctx, m.table, field, values); err != nil {
		return fmt.Errorf("write migrated values into column %s: %w", field, err)
	}
	return nil
}

// MigrateSQLColumnToDoc reads the existing values of column and $set's
// each into the document matching the same link keys, ahead of the caller
// issuing DROP COLUMN. Satisfies internal/relational.Migrator.
func (m *Migrator) MigrateSQLColumnToDoc(ctx context.Context, table, column string) error {
	values, err := m.relational.ReadColumnValues(ctx, table, column)
	if err != nil {
		return fmt.Errorf("read column %s values for migration: %w", column, err)
	}
	for link, v := range values {
		if link.Username == nil || link.SysIngestedAt == nil {
			m.log.Warnw("skipping row with incomplete link during SQL-to-doc migration", "table", table, "column", column)
			continue
		}
		fields := map[string]interface{}{column: v}
		if err := m.document.SetFields(ctx, table, link, fields); err != nil {
			m.log.Warnw("failed to set migrated field on document", "table", table, "column", column, "username", link.Username, "sys_ingested_at", link.SysIngestedAt, "error", err)
			continue
		}
	}
	return nil
}
