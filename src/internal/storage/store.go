// Package storage implements the embedded analytical database the fetch
// pipeline writes into: table create/append/drop, a metadata bookkeeping
// table, schema introspection, and arbitrary SQL execution, all under a
// single-writer invariant. It is adapted from the teacher's ClickHouse
// store (internal/storage/clickhouse.go in the source repo) onto a
// pure-Go embedded engine, since the spec calls for a local file-or-memory
// database rather than a client/server one (see DESIGN.md).
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"

	"github.com/discohead/mixpanel-data/src/pkg/types"
)

// StorageEngine is the embedded analytical database. At most one goroutine
// may write at any instant. The pool holds a single connection, so reads do
// not run in parallel with each other or with a write: a read waits while an
// append transaction holds the connection. writeMu is the single-writer
// gate: every mutating method takes it for the duration of its statement.
type StorageEngine struct {
	db      *sql.DB
	writeMu sync.Mutex
	logger  zerolog.Logger
}

// Open opens the store at path, or an in-memory instance when path is empty.
func Open(path string, logger zerolog.Logger) (*StorageEngine, error) {
	dsn := "file::memory:?cache=shared"
	if path != "" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening storage engine: %w", err)
	}
	// A single physical connection keeps the single-writer invariant trivial
	// to reason about even under modernc.org/sqlite's own internal locking.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging storage engine: %w", err)
	}

	s := &StorageEngine{db: db, logger: logger}
	if err := s.initSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *StorageEngine) initSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx, metadataTableDDL)
	return err
}

// Close closes the underlying connection.
func (s *StorageEngine) Close() error {
	return s.db.Close()
}

// CreateTable creates an events or profiles table, failing with
// types.TableExists unless replace is true.
func (s *StorageEngine) CreateTable(ctx context.Context, name string, kind types.TableKind, replace bool) error {
	if !tableNameLooksSafe(name) {
		return types.NewError(types.QueryError, name, nil, "table name %q contains disallowed characters", name)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	exists, err := s.tableExistsLocked(ctx, name)
	if err != nil {
		return err
	}
	if exists && !replace {
		return types.NewError(types.TableExists, name, nil, "table %q already exists", name)
	}
	if exists && replace {
		if err := s.dropTableLocked(ctx, name); err != nil {
			return err
		}
	}

	var ddl string
	switch kind {
	case types.TableKindEvents:
		ddl = eventsTableDDL(name)
	case types.TableKindProfiles:
		ddl = profilesTableDDL(name)
	default:
		return fmt.Errorf("unknown table kind %q", kind)
	}

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %q: %w", name, err)
	}
	if kind == types.TableKindEvents {
		if _, err := s.db.ExecContext(ctx, eventsIndexDDL(name)); err != nil {
			return fmt.Errorf("creating index on %q: %w", name, err)
		}
	}

	return s.upsertMetadataLocked(ctx, types.TableMetadata{
		Name:      name,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	})
}

// AppendEvents atomically appends a batch of normalized event rows to an
// existing events table and updates its metadata (row count, byte size,
// covered date range).
func (s *StorageEngine) AppendEvents(ctx context.Context, name string, rows []types.EventRecord) error {
	if len(rows) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %q (distinct_id, event_name, event_time, insert_id, properties) VALUES (?, ?, ?, ?, ?)`, name))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	var bytes int64
	from, to := rows[0].EventTime, rows[0].EventTime
	for _, r := range rows {
		props, err := json.Marshal(r.Properties)
		if err != nil {
			return fmt.Errorf("encoding properties: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.DistinctID, r.EventName, r.EventTime.UTC().Format(time.RFC3339Nano), r.InsertID, string(props)); err != nil {
			return fmt.Errorf("inserting event row: %w", err)
		}
		bytes += int64(len(props)) + int64(len(r.DistinctID)+len(r.EventName)+len(r.InsertID))
		if r.EventTime.Before(from) {
			from = r.EventTime
		}
		if r.EventTime.After(to) {
			to = r.EventTime
		}
	}

	if err := s.bumpMetadataTx(ctx, tx, name, int64(len(rows)), bytes, &from, &to); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendProfiles atomically appends/replaces a batch of normalized profile
// rows (keyed by distinct_id) and updates metadata.
func (s *StorageEngine) AppendProfiles(ctx context.Context, name string, rows []types.ProfileRecord) error {
	if len(rows) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %q (distinct_id, properties, last_seen) VALUES (?, ?, ?)
		 ON CONFLICT(distinct_id) DO UPDATE SET properties = excluded.properties, last_seen = excluded.last_seen`, name))
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	var bytes int64
	for _, r := range rows {
		props, err := json.Marshal(r.Properties)
		if err != nil {
			return fmt.Errorf("encoding properties: %w", err)
		}
		var lastSeen interface{}
		if r.LastSeen != nil {
			lastSeen = r.LastSeen.UTC().Format(time.RFC3339Nano)
		}
		if _, err := stmt.ExecContext(ctx, r.DistinctID, string(props), lastSeen); err != nil {
			return fmt.Errorf("upserting profile row: %w", err)
		}
		bytes += int64(len(props) + len(r.DistinctID))
	}

	if err := s.bumpMetadataTx(ctx, tx, name, int64(len(rows)), bytes, nil, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// DropTable drops a table and its metadata row.
func (s *StorageEngine) DropTable(ctx context.Context, name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.dropTableLocked(ctx, name)
}

func (s *StorageEngine) dropTableLocked(ctx context.Context, name string) error {
	exists, err := s.tableExistsLocked(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return types.NewError(types.TableNotFound, name, nil, "table %q does not exist", name)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE %q`, name)); err != nil {
		return fmt.Errorf("dropping table %q: %w", name, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM _metadata WHERE name = ?`, name); err != nil {
		return fmt.Errorf("removing metadata for %q: %w", name, err)
	}
	return nil
}

// DropAll drops every table, optionally restricted to kindFilter.
func (s *StorageEngine) DropAll(ctx context.Context, kindFilter *types.TableKind) error {
	tables, err := s.ListTables(ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if kindFilter != nil && t.Kind != *kindFilter {
			continue
		}
		if err := s.DropTable(ctx, t.Name); err != nil {
			return err
		}
	}
	return nil
}

func (s *StorageEngine) tableExistsLocked(ctx context.Context, name string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking table existence: %w", err)
	}
	return true, nil
}

// SQL executes an arbitrary query and returns its rows as an ordered slice
// of column-name-to-value maps.
func (s *StorageEngine) SQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// SQLScalar executes a query expected to return exactly one column of one
// row and returns that value.
func (s *StorageEngine) SQLScalar(ctx context.Context, query string) (interface{}, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing scalar query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, fmt.Errorf("scalar query returned no rows")
	}
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scanning scalar row: %w", err)
	}
	return values[0], nil
}

func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		record := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			record[col] = values[i]
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// Sample returns up to n arbitrary rows from a table.
func (s *StorageEngine) Sample(ctx context.Context, name string, n int) ([]map[string]interface{}, error) {
	return s.SQL(ctx, fmt.Sprintf(`SELECT * FROM %q LIMIT %d`, name, n))
}

// ColumnInfo describes one column returned by Schema.
type ColumnInfo struct {
	Name     string
	Type     string
	Nullable bool
}

// Schema introspects a table's columns via SQLite's table_info pragma.
func (s *StorageEngine) Schema(ctx context.Context, name string) ([]ColumnInfo, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, name))
	if err != nil {
		return nil, fmt.Errorf("introspecting schema: %w", err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var cid int
		var colName, colType string
		var notNull int
		var dfltValue interface{}
		var pk int
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scanning column info: %w", err)
		}
		cols = append(cols, ColumnInfo{Name: colName, Type: colType, Nullable: notNull == 0})
	}
	if len(cols) == 0 {
		return nil, types.NewError(types.TableNotFound, name, nil, "table %q does not exist", name)
	}
	return cols, rows.Err()
}

// ColumnStats holds summary statistics for one column. Numeric is populated
// only when the column carries at least one SQLite-typed integer or real
// value; a purely textual or JSON column leaves it nil.
type ColumnStats struct {
	Count    int64
	Distinct int64
	Nulls    int64
	Min      interface{}
	Max      interface{}
	Numeric  *NumericStats
}

// ColumnStats computes summary statistics for a single column, widening to
// mean/stddev/median/p95/p99 when the column holds numeric values.
func (s *StorageEngine) ColumnStats(ctx context.Context, table, column string) (ColumnStats, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*), COUNT(DISTINCT %q), SUM(CASE WHEN %q IS NULL THEN 1 ELSE 0 END), MIN(%q), MAX(%q) FROM %q`,
		column, column, column, column, table))

	var stats ColumnStats
	if err := row.Scan(&stats.Count, &stats.Distinct, &stats.Nulls, &stats.Min, &stats.Max); err != nil {
		return ColumnStats{}, fmt.Errorf("computing column stats: %w", err)
	}

	numeric, ok, err := s.numericColumnStats(ctx, table, column)
	if err != nil {
		return ColumnStats{}, err
	}
	if ok {
		stats.Numeric = &numeric
	}
	return stats, nil
}

// Summarize returns ColumnStats for every column of a table.
func (s *StorageEngine) Summarize(ctx context.Context, name string) (map[string]ColumnStats, error) {
	cols, err := s.Schema(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ColumnStats, len(cols))
	for _, c := range cols {
		stats, err := s.ColumnStats(ctx, name, c.Name)
		if err != nil {
			return nil, err
		}
		out[c.Name] = stats
	}
	return out, nil
}

// JSONKeys returns the set of distinct top-level keys observed across a
// JSON-valued column, using SQLite's json_each table-valued function.
func (s *StorageEngine) JSONKeys(ctx context.Context, table, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT DISTINCT je.key FROM %q, json_each(%q) AS je`, table, column))
	if err != nil {
		return nil, fmt.Errorf("extracting json keys: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning json key: %w", err)
		}
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys, rows.Err()
}

func tableNameLooksSafe(name string) bool {
	return !strings.ContainsAny(name, "\"';")
}
