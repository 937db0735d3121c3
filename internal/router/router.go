// Package router splits a batch of normalized records between the
// relational and document backends according to the current placement
// decisions, and dispatches one batched call to each. See spec.md §4.6.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/schemaforge/schemaforge/internal/classify"
	"github.com/schemaforge/schemaforge/internal/record"
)

// DefaultTable is the single configured destination name for both
// backends, per spec.md §4.6's "one destination per backend" invariant.
const DefaultTable = "records"

// Relational is the subset of internal/relational.Client the router needs.
type Relational interface {
	EnsureTable(ctx context.Context, table string, decisions map[string]classify.PlacementDecision) error
	InsertBatch(ctx context.Context, table string, rows []record.Record, columns []string, pk string) error
}

// Document is the subset of internal/document.Client the router needs.
type Document interface {
	EnsureIndexes(ctx context.Context, collection, keyField string) error
	InsertBatch(ctx context.Context, collection string, docs []record.Record, keyField string) error
}

// Router dispatches a normalized batch to both backends.
type Router struct {
	relational Relational
	document   Document
	table      string
}

// New returns a Router targeting the given table/collection name for both
// backends.
func New(relational Relational, document Document, table string) *Router {
	if table == "" {
		table = DefaultTable
	}
	return &Router{relational: relational, document: document, table: table}
}

// primaryKeyField returns the field marked is_primary_key among SQL/BOTH
// decisions, or "" if none is set for this cycle.
func primaryKeyField(decisions map[string]classify.PlacementDecision) string {
	for field, d := range decisions {
		if d.IsPrimaryKey && (d.Backend == classify.SQL || d.Backend == classify.BOTH) {
			return field
		}
	}
	return ""
}

// documentKeyField picks the document-side upsert key: the same primary
// key if one exists and is also DOC/BOTH-placed, else the first available
// unique non-timestamp field, else "" (plain insert, duplicates possible).
func documentKeyField(decisions map[string]classify.PlacementDecision, pk string) string {
	if pk != "" {
		if d, ok := decisions[pk]; ok && (d.Backend == classify.DOC || d.Backend == classify.BOTH) {
			return pk
		}
	}
	var fallback string
	for field, d := range decisions {
		if !d.IsUnique {
			continue
		}
		if d.Backend != classify.DOC && d.Backend != classify.BOTH {
			continue
		}
		if lower := strings.ToLower(field); strings.Contains(lower, "_at") ||
			strings.Contains(lower, "time") || strings.Contains(lower, "date") {
			continue
		}
		if fallback == "" || field < fallback {
			fallback = field
		}
	}
	return fallback
}

// Route reconciles the relational schema, splits recs into sql/doc parts
// per decisions, and issues one batched upsert to each backend. It returns
// the count routed to each backend for status reporting.
func (r *Router) Route(ctx context.Context, recs []record.Record, decisions map[string]classify.PlacementDecision) (sqlCount, docCount int, err error) {
	pk := primaryKeyField(decisions)

	if err := r.relational.EnsureTable(ctx, r.table, decisions); err != nil {
		return 0, 0, fmt.Errorf("ensure relational table: %w", err)
	}

	sqlColumns := sqlColumnList(decisions)
	sqlRows, docRows := r.split(recs, decisions, pk, sqlColumns)

	if len(sqlRows) > 0 {
		if err := r.relational.InsertBatch(ctx, r.table, sqlRows, sqlColumns, pk); err != nil {
			return 0, 0, fmt.Errorf("insert relational batch: %w", err)
		}
	}

	docKey := documentKeyField(decisions, pk)
	if docKey != "" {
		if err := r.document.EnsureIndexes(ctx, r.table, docKey); err != nil {
			return 0, 0, fmt.Errorf("ensure document index: %w", err)
		}
	}
	if len(docRows) > 0 {
		if err := r.document.InsertBatch(ctx, r.table, docRows, docKey); err != nil {
			return 0, 0, fmt.Errorf("insert document batch: %w", err)
		}
	}

	return len(sqlRows), len(docRows), nil
}

func sqlColumnList(decisions map[string]classify.PlacementDecision) []string {
	var cols []string
	for field, d := range decisions {
		if d.Backend == classify.SQL || d.Backend == classify.BOTH {
			cols = append(cols, field)
		}
	}
	return cols
}

func (r *Router) split(recs []record.Record, decisions map[string]classify.PlacementDecision, pk string, sqlColumns []string) (sqlRows, docRows []record.Record) {
	for _, rec := range recs {
		sqlPart, docPart := splitOne(rec, decisions)
		if pk != "" {
			if _, present := sqlPart[pk]; !present {
				sqlPart = nil
			}
		}
		if sqlPart != nil && len(sqlColumns) > 0 {
			sqlRows = append(sqlRows, sqlPart)
		}
		docRows = append(docRows, docPart)
	}
	return sqlRows, docRows
}

func splitOne(rec record.Record, decisions map[string]classify.PlacementDecision) (sqlPart, docPart record.Record) {
	sqlPart = make(record.Record)
	docPart = make(record.Record)
	for k, v := range rec {
		d, known := decisions[k]
		if !known {
			// Unknown keys never go to SQL; they always go to DOC.
			docPart[k] = v
			continue
		}
		if d.Backend == classify.SQL || d.Backend == classify.BOTH {
			sqlPart[k] = v
		}
		if d.Backend == classify.DOC || d.Backend == classify.BOTH {
			docPart[k] = v
		}
	}
	return sqlPart, docPart
}
