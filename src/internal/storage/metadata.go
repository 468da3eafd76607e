package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/discohead/mixpanel-data/src/pkg/types"
)

// upsertMetadataLocked inserts a fresh _metadata row for a newly created
// table. Callers must hold writeMu.
func (s *StorageEngine) upsertMetadataLocked(ctx context.Context, meta types.TableMetadata) error {
	var from, to interface{}
	if !meta.From.IsZero() {
		from = meta.From.UTC().Format(time.RFC3339Nano)
	}
	if !meta.To.IsZero() {
		to = meta.To.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO _metadata (name, kind, row_count, byte_size, created_at, date_from, date_to)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			kind = excluded.kind,
			row_count = excluded.row_count,
			byte_size = excluded.byte_size,
			date_from = excluded.date_from,
			date_to = excluded.date_to`,
		meta.Name, string(meta.Kind), meta.RowCount, meta.ByteSize, meta.CreatedAt.UTC().Format(time.RFC3339Nano), from, to)
	if err != nil {
		return fmt.Errorf("writing metadata for %q: %w", meta.Name, err)
	}
	return nil
}

// bumpMetadataTx increments a table's row_count and byte_size and, when
// from/to are given, widens its covered date range. Must run inside the
// same transaction as the rows it accounts for.
func (s *StorageEngine) bumpMetadataTx(ctx context.Context, tx *sql.Tx, name string, rows, bytes int64, from, to *time.Time) error {
	var fromArg, toArg interface{}
	if from != nil {
		fromArg = from.UTC().Format(time.RFC3339Nano)
	}
	if to != nil {
		toArg = to.UTC().Format(time.RFC3339Nano)
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE _metadata SET
			row_count = row_count + ?,
			byte_size = byte_size + ?,
			date_from = CASE
				WHEN ? IS NULL THEN date_from
				WHEN date_from IS NULL THEN ?
				WHEN ? < date_from THEN ?
				ELSE date_from
			END,
			date_to = CASE
				WHEN ? IS NULL THEN date_to
				WHEN date_to IS NULL THEN ?
				WHEN ? > date_to THEN ?
				ELSE date_to
			END
		WHERE name = ?`,
		rows, bytes,
		fromArg, fromArg, fromArg, fromArg,
		toArg, toArg, toArg, toArg,
		name)
	if err != nil {
		return fmt.Errorf("updating metadata for %q: %w", name, err)
	}
	return nil
}

// TableMetadata returns the metadata row for a single table.
func (s *StorageEngine) TableMetadata(ctx context.Context, name string) (types.TableMetadata, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, kind, row_count, byte_size, created_at, date_from, date_to
		FROM _metadata WHERE name = ?`, name)
	meta, err := scanMetadataRow(row)
	if err == sql.ErrNoRows {
		return types.TableMetadata{}, types.NewError(types.TableNotFound, name, nil, "table %q does not exist", name)
	}
	if err != nil {
		return types.TableMetadata{}, fmt.Errorf("reading metadata for %q: %w", name, err)
	}
	return meta, nil
}

// ListTables returns every table's metadata, ordered by name.
func (s *StorageEngine) ListTables(ctx context.Context) ([]types.TableMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, kind, row_count, byte_size, created_at, date_from, date_to
		FROM _metadata ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var out []types.TableMetadata
	for rows.Next() {
		meta, err := scanMetadataRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning metadata row: %w", err)
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMetadataRow(r rowScanner) (types.TableMetadata, error) {
	var (
		name, kind, createdAt    string
		rowCount, byteSize       int64
		dateFrom, dateTo         sql.NullString
	)
	if err := r.Scan(&name, &kind, &rowCount, &byteSize, &createdAt, &dateFrom, &dateTo); err != nil {
		return types.TableMetadata{}, err
	}

	meta := types.TableMetadata{
		Name:     name,
		Kind:     types.TableKind(kind),
		RowCount: rowCount,
		ByteSize: byteSize,
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		meta.CreatedAt = t
	}
	if dateFrom.Valid {
		if t, err := time.Parse(time.RFC3339Nano, dateFrom.String); err == nil {
			meta.From = t
		}
	}
	if dateTo.Valid {
		if t, err := time.Parse(time.RFC3339Nano, dateTo.String); err == nil {
			meta.To = t
		}
	}
	return meta, nil
}
