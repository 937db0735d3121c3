// Package relational owns the connection to the relational backend and
// reconciles its schema against the classifier's placement decisions. See
// spec.md §4.4. Style follows the teacher's
// cmd/kafka-to-postgresql-v2/postgresql package: a pgxpool.Pool, an ARC
// cache for metadata that would otherwise require a round trip, and
// deadline-scoped contexts for every statement.
package relational

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/schemaforge/schemaforge/internal/classify"
	"github.com/schemaforge/schemaforge/internal/keylock"
	"github.com/schemaforge/schemaforge/internal/migrate"
	"github.com/schemaforge/schemaforge/internal/pipelineerr"
	"github.com/schemaforge/schemaforge/internal/record"
)

// Config names the relational backend to connect to.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (c Config) connString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// columnInfo mirrors one information_schema.columns row we care about.
type columnInfo struct {
	dataType   string
	isNullable bool
}

// Migrator is implemented by internal/migrate; EnsureTable calls
// MigrateSQLColumnToDoc before dropping a column whose field has moved off
// the relational backend, and MigrateDocToSQL right after adding a column
// for a field that has newly qualified for the relational backend, so
// existing document-held values are backfilled into it. See spec.md §4.7.
type Migrator interface {
	MigrateSQLColumnToDoc(ctx context.Context, table, column string) error
	MigrateDocToSQL(ctx context.Context, field string) error
}

// Client owns the relational connection, a per-table column-metadata cache,
// and per-table locking so concurrent EnsureTable/InsertBatch calls for
// different tables never block each other, matching the teacher's
// goiLock-per-asset pattern but scoped to tables instead of assets.
type Client struct {
	pool        *pgxpool.Pool
	log         *zap.SugaredLogger
	columnCache *lru.ARCCache
	tableLocks  *keylock.Locker
	migrator    Migrator
	primaryKeys map[string]string // table -> currently-set PK column, empty if none
}

// New opens a pgxpool connection. ctx bounds only the initial connection
// attempt, mirroring the teacher's get5SecondContext pattern.
func New(ctx context.Context, cfg Config, log *zap.SugaredLogger, migrator Migrator) (*Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, cfg.connString())
	if err != nil {
		return nil, fmt.Errorf("open relational pool: %w", err)
	}
	cache, err := lru.NewARC(256)
	if err != nil {
		return nil, fmt.Errorf("create relational column cache: %w", err)
	}
	return &Client{
		pool:        pool,
		log:         log,
		columnCache: cache,
		tableLocks:  keylock.New(),
		migrator:    migrator,
		primaryKeys: make(map[string]string),
	}, nil
}

// Close releases the pool.
func (c *Client) Close() {
	c.pool.Close()
}

// Ping reports whether the relational backend is reachable, for use by the
// liveness/readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.pool.Ping(pingCtx)
}

// EnsureTable reconciles table's schema against decisions: creating it if
// absent, adding/widening columns as needed, migrating and dropping columns
// whose field has moved off the relational backend, and refusing to alter
// an already-set primary key. See spec.md §4.4.
func (c *Client) EnsureTable(ctx context.Context, table string, decisions map[string]classify.PlacementDecision) error {
	if !c.tableLocks.TryLock(table) {
		return fmt.Errorf("relational: table %s is already being reconciled", table)
	}
	defer c.tableLocks.Unlock(table)

	alterCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	exists, err := c.tableExists(alterCtx, table)
	if err != nil {
		return fmt.Errorf("check table existence: %w", err)
	}
	if !exists {
		return c.createTable(alterCtx, table, decisions)
	}
	return c.reconcileTable(alterCtx, table, decisions)
}

func (c *Client) tableExists(ctx context.Context, table string) (bool, error) {
	var name string
	const q = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1`
	err := c.pool.QueryRow(ctx, q, table).Scan(&name)
	if err == nil {
		return true, nil
	}
	if err == pgx.ErrNoRows {
		return false, nil
	}
	return false, err
}

func (c *Client) createTable(ctx context.Context, table string, decisions map[string]classify.PlacementDecision) error {
	var cols []string
	var pk string
	sqlDecisions := sortedSQLDecisions(decisions)
	names := make([]string, 0, len(sqlDecisions))
	for field := range sqlDecisions {
		names = append(names, field)
	}
	sort.Strings(names)
	for _, field := range names {
		d := sqlDecisions[field]
		col := columnDDL(field, d)
		cols = append(cols, col)
		if d.IsPrimaryKey {
			pk = field
		}
	}
	if pk != "" {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", quoteIdent(pk)))
	}
	if len(cols) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(cols, ", "))
	if _, err := c.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	if pk != "" {
		c.primaryKeys[table] = pk
	}
	c.columnCache.Remove(table)
	return nil
}

func (c *Client) reconcileTable(ctx context.Context, table string, decisions map[string]classify.PlacementDecision) error {
	existing, err := c.currentColumns(ctx, table)
	if err != nil {
		return fmt.Errorf("read existing columns for %s: %w", table, err)
	}

	var wantPK string
	for field, d := range decisions {
		if d.IsPrimaryKey && (d.Backend == classify.SQL || d.Backend == classify.BOTH) {
			wantPK = field
		}
	}
	if havePK := c.primaryKeys[table]; havePK != "" && wantPK != "" && havePK != wantPK {
		c.log.Warnw("refusing to change primary key on existing table; skipping until operator intervenes",
			"table", table, "current_pk", havePK, "requested_pk", wantPK)
		blocked := decisions[wantPK]
		blocked.Reason = fmt.Sprintf("%s; blocked: primary key on %s is already %q, a primary key is never altered once set",
			blocked.Reason, table, havePK)
		decisions[wantPK] = blocked
		wantPK = havePK
	}

	for field, d := range decisions {
		if d.Backend != classify.SQL && d.Backend != classify.BOTH {
			if _, known := existing[field]; known {
				if err := c.migrateAndDropColumn(ctx, table, field); err != nil {
					return err
				}
			}
			continue
		}
		col, known := existing[field]
		if !known {
			if err := c.addColumn(ctx, table, field, d); err != nil {
				return err
			}
			if c.migrator != nil {
				if err := c.migrator.MigrateDocToSQL(ctx, field); err != nil {
					return fmt.Errorf("migrate existing document values into new column %s: %w", field, err)
				}
			}
			continue
		}
		if wider, ok := widerType(col.dataType, d.SQLType); ok {
			if err := c.widenColumn(ctx, table, field, wider); err != nil {
				return err
			}
		}
	}
	c.columnCache.Remove(table)
	if wantPK != "" {
		c.primaryKeys[table] = wantPK
	}
	return nil
}

func (c *Client) migrateAndDropColumn(ctx context.Context, table, column string) error {
	if c.migrator != nil {
		if err := c.migrator.MigrateSQLColumnToDoc(ctx, table, column); err != nil {
			return fmt.Errorf("migrate column %s off relational backend: %w", column, err)
		}
	}
	stmt := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quoteIdent(table), quoteIdent(column))
	if _, err := c.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("drop column %s: %w", column, err)
	}
	return nil
}

func (c *Client) addColumn(ctx context.Context, table, field string, d classify.PlacementDecision) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(table), columnDDL(field, d))
	if _, err := c.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("add column %s: %w", field, err)
	}
	return nil
}

func (c *Client) widenColumn(ctx context.Context, table, field, newType string) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", quoteIdent(table), quoteIdent(field), newType)
	if _, err := c.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("widen column %s to %s: %w", field, newType, err)
	}
	return nil
}

func (c *Client) currentColumns(ctx context.Context, table string) (map[string]columnInfo, error) {
	if cached, ok := c.columnCache.Get(table); ok {
		return cached.(map[string]columnInfo), nil
	}
	const q = `SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1`
	rows, err := c.pool.Query(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]columnInfo)
	for rows.Next() {
		var name, dataType, isNullable string
		if err := rows.Scan(&name, &dataType, &isNullable); err != nil {
			return nil, err
		}
		cols[name] = columnInfo{dataType: dataType, isNullable: isNullable == "YES"}
	}
	c.columnCache.Add(table, cols)
	return cols, rows.Err()
}

// InsertBatch upserts rows into table. When pk is non-empty, rows are
// inserted with ON CONFLICT (pk) DO UPDATE; otherwise a plain insert is
// attempted and duplicates are possible by design. All rows go in a single
// statement; a partial failure is reported whole and the caller is
// expected to retain its WAL entry for retry.
func (c *Client) InsertBatch(ctx context.Context, table string, rows []record.Record, columns []string, pk string) error {
	if len(rows) == 0 {
		return nil
	}
	insertCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	stmt, args := buildUpsertStatement(table, columns, rows, pk)
	if _, err := c.pool.Exec(insertCtx, stmt, args...); err != nil {
		return pipelineerr.NewTransientBackendError("relational", err)
	}
	return nil
}

func buildUpsertStatement(table string, columns []string, rows []record.Record, pk string) (string, []interface{}) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (", quoteIdent(table))
	for i, col := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdent(col))
	}
	sb.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(rows)*len(columns))
	argIdx := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, col := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", argIdx)
			argIdx++
			args = append(args, row[col])
		}
		sb.WriteString(")")
	}

	if pk != "" {
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET ", quoteIdent(pk))
		first := true
		for _, col := range columns {
			if col == pk {
				continue
			}
			if !first {
				sb.WriteString(", ")
			}
			first = false
			fmt.Fprintf(&sb, "%s = EXCLUDED.%s", quoteIdent(col), quoteIdent(col))
		}
	}
	return sb.String(), args
}

// ReadColumnValues reads every existing value of column along with its
// username/sys_ingested_at link keys, for the migrator to copy into the
// document backend before the column is dropped. Satisfies
// internal/migrate.RelationalReader.
func (c *Client) ReadColumnValues(ctx context.Context, table, column string) (map[migrate.LinkKey]interface{}, error) {
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	stmt := fmt.Sprintf("SELECT username, sys_ingested_at, %s FROM %s", quoteIdent(column), quoteIdent(table))
	rows, err := c.pool.Query(readCtx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[migrate.LinkKey]interface{})
	for rows.Next() {
		var username, ingestedAt, value interface{}
		if err := rows.Scan(&username, &ingestedAt, &value); err != nil {
			return nil, err
		}
		out[migrate.LinkKey{Username: username, SysIngestedAt: ingestedAt}] = value
	}
	return out, rows.Err()
}

// WriteColumnValues writes values into column for each row matching its
// full username+sys_ingested_at link key, used when migrating a field from
// document storage into a newly added SQL column. Matching on username
// alone would let one row's value overwrite every other row sharing that
// username.
func (c *Client) WriteColumnValues(ctx context.Context, table, column string, values map[migrate.LinkKey]interface{}) error {
	writeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	stmt := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE username = $2 AND sys_ingested_at = $3", quoteIdent(table), quoteIdent(column))
	for link, v := range values {
		if _, err := c.pool.Exec(writeCtx, stmt, v, link.Username, link.SysIngestedAt); err != nil {
			return fmt.Errorf("write migrated value for column %s: %w", column, err)
		}
	}
	return nil
}

func columnDDL(field string, d classify.PlacementDecision) string {
	parts := []string{quoteIdent(field), d.SQLType}
	if !d.IsNullable {
		parts = append(parts, "NOT NULL")
	}
	if d.IsUnique && !d.IsPrimaryKey {
		parts = append(parts, "UNIQUE")
	}
	return strings.Join(parts, " ")
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// sortedSQLDecisions returns the SQL/BOTH-placed decisions. The result is a
// map and carries no order; createTable sorts the field names itself for a
// deterministic CREATE TABLE column order.
func sortedSQLDecisions(decisions map[string]classify.PlacementDecision) map[string]classify.PlacementDecision {
	filtered := make(map[string]classify.PlacementDecision)
	var names []string
	for field, d := range decisions {
		if d.Backend == classify.SQL || d.Backend == classify.BOTH {
			filtered[field] = d
			names = append(names, field)
		}
	}
	sort.Strings(names)
	ordered := make(map[string]classify.PlacementDecision, len(filtered))
	for _, n := range names {
		ordered[n] = filtered[n]
	}
	return ordered
}

// widenRank orders scalar SQL types from narrowest to widest: bool < int <
// float < VARCHAR < TEXT. Every VARCHAR(n) shares one rank whatever its
// length, so a VARCHAR(45) column is not widened to VARCHAR(255); only the
// step from VARCHAR to TEXT is recognized among string types.
var widenRank = map[string]int{
	"boolean":          0,
	"bigint":           1,
	"integer":          1,
	"double precision": 2,
	"real":             2,
	"character varying": 3,
	"text":             4,
}

func rankOf(pgType string) (int, bool) {
	r, ok := widenRank[strings.ToLower(pgType)]
	return r, ok
}

// widerType reports whether newSQLType is a legal widening of the column's
// current Postgres-reported type, and if so returns the DDL type to widen
// to. Anything not on the recognized widening path returns ok=false — the
// caller leaves the column alone rather than attempt an unsupported
// narrowing or cross-family change.
func widerType(currentPGType, newSQLType string) (string, bool) {
	curRank, curOK := rankOf(currentPGType)
	newRank, newOK := rankOf(sqlTypeFamily(newSQLType))
	if !curOK || !newOK {
		return "", false
	}
	if newRank <= curRank {
		return "", false
	}
	return newSQLType, true
}

// sqlTypeFamily strips a VARCHAR(n) length so it maps onto the same
// widenRank bucket regardless of n.
func sqlTypeFamily(sqlType string) string {
	if strings.HasPrefix(strings.ToUpper(sqlType), "VARCHAR") {
		return "character varying"
	}
	switch strings.ToUpper(sqlType) {
	case "BIGINT":
		return "bigint"
	case "DOUBLE":
		return "double precision"
	case "BOOLEAN":
		return "boolean"
	case "TEXT", "CHAR(36)", "DATETIME", "VARCHAR(45)":
		return strings.ToLower(sqlType)
	default:
		return strings.ToLower(sqlType)
	}
}
