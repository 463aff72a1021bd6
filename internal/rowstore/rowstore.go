// Package rowstore abstracts the remote, append-only, sheet-like row store
// that holds every record family. A sheet is an ordered list of rows under a
// header row; cells are addressed by header-declared column name, never by
// position. The store offers no transactions, so callers layer their own
// claim-and-verify or read-then-write protocols on top.
package rowstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound reports a missing sheet or row. It is a normal
	// control-flow value for key scans, not a failure.
	ErrNotFound = errors.New("rowstore: not found")

	// ErrStoreUnavailable reports a failed or timed-out call against the
	// backing store. A write that returns this has UNKNOWN outcome; the
	// caller must re-read before retrying.
	ErrStoreUnavailable = errors.New("rowstore: store unavailable")
)

// Row is one sheet row keyed by column name. Columns persisted by other
// writers are preserved opaquely.
type Row map[string]string

// Store is the adapter boundary over the remote row store. All methods are
// potentially blocking network calls; callers bound them with a context
// deadline and never hold in-process locks across them.
type Store interface {
	// AppendRow appends a row to the sheet. Columns in fields that the
	// header does not yet declare are created on first write.
	AppendRow(ctx context.Context, sheet string, fields Row) error

	// FindRowByKey returns the index of the first row whose cell in the
	// given column equals value, or ErrNotFound.
	FindRowByKey(ctx context.Context, sheet string, column string, value string) (int, error)

	// ReadAllRows returns every data row in sheet order.
	ReadAllRows(ctx context.Context, sheet string) ([]Row, error)

	// UpdateCell overwrites one cell, creating the column if needed.
	UpdateCell(ctx context.Context, sheet string, rowIndex int, column string, value string) error
}

// Sheet names for each record family.
const (
	SheetService      = "Servis"
	SheetTransactions = "Transaksi"
	SheetInventory    = "Stok"
	SheetExpenses     = "Pengeluaran"
)
