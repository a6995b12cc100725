// Package storequery implements the backend read surface used by validation
// over database/sql, covering both sqlite and postgres backends with one
// implementation.
package storequery

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"cutover/internal/checksum"
	"cutover/internal/domain"
)

// TableMeta names the columns the adapter needs to query one table.
type TableMeta struct {
	TimeColumn string // record timestamp column (default "timestamp")
	KeyColumn  string // stable identity column (default "id")
}

func (m TableMeta) withDefaults() TableMeta {
	if m.TimeColumn == "" {
		m.TimeColumn = "timestamp"
	}
	if m.KeyColumn == "" {
		m.KeyColumn = "id"
	}
	return m
}

// SQLStore is a domain.StoreQuery over one *sql.DB handle.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite3" or "pgx", controls placeholders and schema queries
	tables map[string]TableMeta
	logger *slog.Logger
}

var _ domain.StoreQuery = (*SQLStore)(nil)

// New creates a SQLStore. tables maps table names to their column metadata;
// unlisted tables fall back to the default column names.
func New(db *sql.DB, driver string, tables map[string]TableMeta, logger *slog.Logger) *SQLStore {
	return &SQLStore{
		db:     db,
		driver: driver,
		tables: tables,
		logger: logger,
	}
}

// Count returns the number of records in the range.
func (s *SQLStore) Count(ctx context.Context, table string, r domain.TimeRange) (int64, error) {
	meta := s.meta(table)
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s >= %s AND %s < %s",
		table, meta.TimeColumn, s.arg(1), meta.TimeColumn, s.arg(2))

	var count int64
	if err := s.db.QueryRowContext(ctx, q, r.Start, r.End).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

// TimeBounds returns the observed min and max timestamps in the table, or nil
// when the table holds no data.
func (s *SQLStore) TimeBounds(ctx context.Context, table string) (*domain.TimeRange, error) {
	meta := s.meta(table)
	q := fmt.Sprintf("SELECT MIN(%s), MAX(%s) FROM %s", meta.TimeColumn, meta.TimeColumn, table)

	// MIN/MAX strip the column's declared type, so the sqlite driver hands
	// the bounds back as strings rather than time.Time. Scan loosely and
	// parse whatever comes back.
	var minRaw, maxRaw any
	if err := s.db.QueryRowContext(ctx, q).Scan(&minRaw, &maxRaw); err != nil {
		return nil, fmt.Errorf("time bounds of %s: %w", table, err)
	}
	if minRaw == nil || maxRaw == nil {
		return nil, nil
	}
	start, err := parseTimestamp(minRaw)
	if err != nil {
		return nil, fmt.Errorf("time bounds of %s: %w", table, err)
	}
	end, err := parseTimestamp(maxRaw)
	if err != nil {
		return nil, fmt.Errorf("time bounds of %s: %w", table, err)
	}
	return &domain.TimeRange{Start: start, End: end}, nil
}

// timestampLayouts covers the textual forms the drivers emit for timestamp
// columns that lost their declared type through an aggregate.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case []byte:
		return parseTimestampString(string(val))
	case string:
		return parseTimestampString(val)
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}

func parseTimestampString(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// Sample returns up to n records from the range in key order. Key ordering
// makes the draw deterministic for a fixed table state, so validation reruns
// are reproducible.
func (s *SQLStore) Sample(ctx context.Context, table string, r domain.TimeRange, n int) ([]domain.Record, error) {
	meta := s.meta(table)
	q := fmt.Sprintf("SELECT * FROM %s WHERE %s >= %s AND %s < %s ORDER BY %s LIMIT %d",
		table, meta.TimeColumn, s.arg(1), meta.TimeColumn, s.arg(2), meta.KeyColumn, n)

	return s.queryRecords(ctx, q, meta, r.Start, r.End)
}

// Lookup fetches the records with the given keys inside the range.
func (s *SQLStore) Lookup(ctx context.Context, table string, keys []string, r domain.TimeRange) ([]domain.Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	meta := s.meta(table)

	placeholders := make([]string, len(keys))
	args := make([]any, 0, len(keys)+2)
	args = append(args, r.Start, r.End)
	for i, key := range keys {
		placeholders[i] = s.arg(i + 3)
		args = append(args, key)
	}
	q := fmt.Sprintf("SELECT * FROM %s WHERE %s >= %s AND %s < %s AND %s IN (%s)",
		table, meta.TimeColumn, s.arg(1), meta.TimeColumn, s.arg(2),
		meta.KeyColumn, strings.Join(placeholders, ", "))

	return s.queryRecords(ctx, q, meta, args...)
}

// Checksum computes the order-independent aggregate hash of the range. Scan
// order does not matter, so no ORDER BY is issued.
func (s *SQLStore) Checksum(ctx context.Context, table string, r domain.TimeRange) (uint64, error) {
	meta := s.meta(table)
	q := fmt.Sprintf("SELECT * FROM %s WHERE %s >= %s AND %s < %s",
		table, meta.TimeColumn, s.arg(1), meta.TimeColumn, s.arg(2))

	records, err := s.queryRecords(ctx, q, meta, r.Start, r.End)
	if err != nil {
		return 0, fmt.Errorf("checksum %s: %w", table, err)
	}
	return checksum.Aggregate(records), nil
}

// Schema returns the table's column names.
func (s *SQLStore) Schema(ctx context.Context, table string) (*domain.TableSchema, error) {
	var q string
	var args []any
	if s.driver == "pgx" {
		q = "SELECT column_name FROM information_schema.columns WHERE table_name = $1 ORDER BY ordinal_position"
		args = []any{table}
	} else {
		q = fmt.Sprintf("SELECT name FROM pragma_table_info(%s)", s.arg(1))
		args = []any{table}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("schema of %s: %w", table, err)
	}
	defer rows.Close()

	schema := &domain.TableSchema{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("schema of %s: %w", table, err)
		}
		schema.Fields = append(schema.Fields, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema of %s: %w", table, err)
	}
	if len(schema.Fields) == 0 {
		return nil, domain.ErrNotFound("table %s not found", table)
	}
	return schema, nil
}

// queryRecords runs a SELECT * query and builds normalized records keyed by
// the table's key column.
func (s *SQLStore) queryRecords(ctx context.Context, query string, meta TableMeta, args ...any) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []domain.Record
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := domain.Record{Fields: make(map[string]string, len(cols))}
		for i, col := range cols {
			rendered := renderValue(vals[i])
			if col == meta.KeyColumn {
				rec.Key = rendered
				continue
			}
			rec.Fields[col] = rendered
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// meta returns the column metadata for the table, falling back to defaults
// for unlisted tables.
func (s *SQLStore) meta(table string) TableMeta {
	return s.tables[table].withDefaults()
}

// arg renders the n-th (1-based) placeholder for the active driver.
func (s *SQLStore) arg(n int) string {
	if s.driver == "pgx" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// renderValue normalizes a scanned value into the canonical string form used
// for field comparison and checksums. Both backends must render the same
// logical value identically.
func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
