// Package postgres backs the row store with a single append-only table.
// Rows keep their sheet order through a bigserial position; cells live in a
// jsonb map keyed by column name, so new columns appear on first write
// without schema changes, matching the sheet contract.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"capslock/backend/internal/rowstore"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sheet_rows (
			pos   BIGSERIAL PRIMARY KEY,
			sheet TEXT NOT NULL,
			cells JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS sheet_rows_sheet_pos ON sheet_rows (sheet, pos);
	`)
	return err
}

func (s *Store) AppendRow(ctx context.Context, sheet string, fields rowstore.Row) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sheet_rows (sheet, cells) VALUES ($1, $2)
	`, sheet, payload)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) FindRowByKey(ctx context.Context, sheet string, column string, value string) (int, error) {
	var offset int
	err := s.db.QueryRowContext(ctx, `
		SELECT t.off FROM (
			SELECT cells, row_number() OVER (ORDER BY pos) - 1 AS off
			FROM sheet_rows
			WHERE sheet = $1
		) t
		WHERE t.cells->>$2 = $3
		ORDER BY t.off
		LIMIT 1
	`, sheet, column, value).Scan(&offset)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, rowstore.ErrNotFound
		}
		return 0, unavailable(err)
	}
	return offset, nil
}

func (s *Store) ReadAllRows(ctx context.Context, sheet string) ([]rowstore.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cells FROM sheet_rows WHERE sheet = $1 ORDER BY pos
	`, sheet)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	result := make([]rowstore.Row, 0, 256)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, unavailable(err)
		}
		row := rowstore.Row{}
		if err := json.Unmarshal(payload, &row); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return result, nil
}

func (s *Store) UpdateCell(ctx context.Context, sheet string, rowIndex int, column string, value string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sheet_rows
		SET cells = jsonb_set(cells, ARRAY[$3], to_jsonb($4::text), true)
		WHERE pos = (
			SELECT pos FROM sheet_rows WHERE sheet = $1 ORDER BY pos OFFSET $2 LIMIT 1
		)
	`, sheet, rowIndex, column, value)
	if err != nil {
		return unavailable(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if affected == 0 {
		return rowstore.ErrNotFound
	}
	return nil
}

// unavailable tags driver-level failures so callers can recognize the
// unknown-outcome case and re-read before retrying.
func unavailable(err error) error {
	return fmt.Errorf("%w: %v", rowstore.ErrStoreUnavailable, err)
}
