// Package memory is the in-memory row store used by tests and dev mode.
package memory

import (
	"context"
	"sync"

	"capslock/backend/internal/rowstore"
)

type sheet struct {
	headers []string
	rows    [][]string
}

type Store struct {
	mu     sync.Mutex
	sheets map[string]*sheet
}

// New returns an empty store with the standard four sheets pre-declared.
func New() *Store {
	s := &Store{sheets: make(map[string]*sheet, 4)}
	for _, name := range []string{
		rowstore.SheetService,
		rowstore.SheetTransactions,
		rowstore.SheetInventory,
		rowstore.SheetExpenses,
	} {
		s.sheets[name] = &sheet{}
	}
	return s
}

// NewSeeded returns a store preloaded with a few inventory items, the way a
// fresh shop install looks.
func NewSeeded() *Store {
	s := New()
	seed := []rowstore.Row{
		{"nama_barang": "SSD 256GB", "modal": "Rp 380.000", "harga_jual": "Rp 450.000", "qty": "8"},
		{"nama_barang": "RAM DDR4 8GB", "modal": "Rp 310.000", "harga_jual": "Rp 385.000", "qty": "6"},
		{"nama_barang": "Keyboard Laptop", "modal": "Rp 120.000", "harga_jual": "Rp 185.000", "qty": "10"},
		{"nama_barang": "Charger Universal", "modal": "Rp 85.000", "harga_jual": "Rp 135.000", "qty": "12"},
		{"nama_barang": "Pasta Thermal", "modal": "Rp 25.000", "harga_jual": "Rp 50.000", "qty": "20"},
	}
	for _, row := range seed {
		_ = s.AppendRow(context.Background(), rowstore.SheetInventory, row)
	}
	return s
}

func (s *Store) AppendRow(_ context.Context, sheetName string, fields rowstore.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh := s.sheet(sheetName)
	for column := range fields {
		sh.ensureColumn(column)
	}

	row := make([]string, len(sh.headers))
	for i, header := range sh.headers {
		row[i] = fields[header]
	}
	sh.rows = append(sh.rows, row)
	return nil
}

func (s *Store) FindRowByKey(_ context.Context, sheetName string, column string, value string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh := s.sheet(sheetName)
	col := sh.columnIndex(column)
	if col < 0 {
		return 0, rowstore.ErrNotFound
	}
	for i, row := range sh.rows {
		if col < len(row) && row[col] == value {
			return i, nil
		}
	}
	return 0, rowstore.ErrNotFound
}

func (s *Store) ReadAllRows(_ context.Context, sheetName string) ([]rowstore.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh := s.sheet(sheetName)
	result := make([]rowstore.Row, 0, len(sh.rows))
	for _, row := range sh.rows {
		m := make(rowstore.Row, len(sh.headers))
		for i, header := range sh.headers {
			if i < len(row) {
				m[header] = row[i]
			} else {
				m[header] = ""
			}
		}
		result = append(result, m)
	}
	return result, nil
}

func (s *Store) UpdateCell(_ context.Context, sheetName string, rowIndex int, column string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh := s.sheet(sheetName)
	if rowIndex < 0 || rowIndex >= len(sh.rows) {
		return rowstore.ErrNotFound
	}
	col := sh.ensureColumn(column)
	row := sh.rows[rowIndex]
	for len(row) <= col {
		row = append(row, "")
	}
	row[col] = value
	sh.rows[rowIndex] = row
	return nil
}

func (s *Store) sheet(name string) *sheet {
	sh, ok := s.sheets[name]
	if !ok {
		sh = &sheet{}
		s.sheets[name] = sh
	}
	return sh
}

func (sh *sheet) columnIndex(column string) int {
	for i, header := range sh.headers {
		if header == column {
			return i
		}
	}
	return -1
}

// ensureColumn declares the column if missing, backfilling existing rows with
// empty cells, and returns its index.
func (sh *sheet) ensureColumn(column string) int {
	if idx := sh.columnIndex(column); idx >= 0 {
		return idx
	}
	sh.headers = append(sh.headers, column)
	for i, row := range sh.rows {
		for len(row) < len(sh.headers) {
			row = append(row, "")
		}
		sh.rows[i] = row
	}
	return len(sh.headers) - 1
}
