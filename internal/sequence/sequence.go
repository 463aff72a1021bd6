// Package sequence assigns ticket numbers against the shared row store.
// The store has no transactions, so uniqueness comes from a claim-and-verify
// protocol: propose the next number, append the row optimistically with a
// claim token, then re-scan the tail; the earliest row carrying the number
// wins, later claimants void their row and retry with a fresh number.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"capslock/backend/internal/rowstore"
	"capslock/backend/internal/xid"
)

// ErrSequenceExhausted reports that the retry budget ran out before a number
// could be claimed. The caller must surface this, never fall back to a fixed
// or random id.
var ErrSequenceExhausted = errors.New("sequence: retry budget exhausted")

const (
	// VoidMarker replaces the id cell of a row that lost the claim race.
	// Scanners skip it because it carries no prefix.
	VoidMarker = "VOID"

	idWidth         = 7
	defaultAttempts = 5
	defaultBackoff  = 25 * time.Millisecond
)

// Generator claims identifiers of the form <prefix>/<7-digit number> in one
// sheet's id column.
type Generator struct {
	store       rowstore.Store
	sheet       string
	idColumn    string
	claimColumn string
	attempts    int
	sleep       func(time.Duration)
}

type Option func(*Generator)

// WithAttempts overrides the retry budget.
func WithAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.attempts = n
		}
	}
}

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(fn func(time.Duration)) Option {
	return func(g *Generator) { g.sleep = fn }
}

func New(store rowstore.Store, sheet string, idColumn string, claimColumn string, opts ...Option) *Generator {
	g := &Generator{
		store:       store,
		sheet:       sheet,
		idColumn:    idColumn,
		claimColumn: claimColumn,
		attempts:    defaultAttempts,
		sleep:       time.Sleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next computes the candidate id that would follow the last assigned one.
// Exposed for display ("next ticket number") only; Claim recomputes it.
func (g *Generator) Next(ctx context.Context, prefix string) (string, error) {
	rows, err := g.store.ReadAllRows(ctx, g.sheet)
	if err != nil {
		return "", err
	}
	return formatID(prefix, lastNumber(rows, g.idColumn, prefix)+1), nil
}

// Claim appends a row built from fields with a freshly proposed id and
// verifies the claim. On success it returns the id and the row index of the
// winning row. The id and claim columns in fields are overwritten.
func (g *Generator) Claim(ctx context.Context, prefix string, fields rowstore.Row) (string, int, error) {
	for attempt := 0; attempt < g.attempts; attempt++ {
		if attempt > 0 {
			g.sleep(jitteredBackoff(attempt))
		}

		rows, err := g.store.ReadAllRows(ctx, g.sheet)
		if err != nil {
			return "", 0, err
		}
		candidate := formatID(prefix, lastNumber(rows, g.idColumn, prefix)+1)
		token := xid.New("claim")

		row := rowstore.Row{}
		for k, v := range fields {
			row[k] = v
		}
		row[g.idColumn] = candidate
		row[g.claimColumn] = token

		if err := g.store.AppendRow(ctx, g.sheet, row); err != nil {
			if !errors.Is(err, rowstore.ErrStoreUnavailable) {
				return "", 0, err
			}
			// Unknown outcome: the append may have landed. Re-read by
			// claim token before deciding to retry.
			if _, findErr := g.store.FindRowByKey(ctx, g.sheet, g.claimColumn, token); findErr != nil {
				if errors.Is(findErr, rowstore.ErrNotFound) {
					continue
				}
				return "", 0, findErr
			}
			// The row landed after all; fall through to verification.
		}

		ownIndex, winner, err := g.verify(ctx, candidate, token)
		if err != nil {
			return "", 0, err
		}
		if winner {
			return candidate, ownIndex, nil
		}

		// Lost the race: void our row so scanners and reports skip it.
		if err := g.store.UpdateCell(ctx, g.sheet, ownIndex, g.idColumn, VoidMarker); err != nil {
			return "", 0, err
		}
	}
	return "", 0, fmt.Errorf("%w: prefix %s after %d attempts", ErrSequenceExhausted, prefix, g.attempts)
}

// verify re-scans the sheet for rows carrying the candidate id. The earliest
// such row wins; ties cannot happen because row order is append order.
func (g *Generator) verify(ctx context.Context, candidate string, token string) (ownIndex int, winner bool, err error) {
	rows, err := g.store.ReadAllRows(ctx, g.sheet)
	if err != nil {
		return 0, false, err
	}

	firstIndex := -1
	ownIndex = -1
	for i, row := range rows {
		if row[g.idColumn] != candidate {
			continue
		}
		if firstIndex < 0 {
			firstIndex = i
		}
		if row[g.claimColumn] == token {
			ownIndex = i
		}
	}
	if ownIndex < 0 {
		return 0, false, fmt.Errorf("%w: claimed row vanished", rowstore.ErrStoreUnavailable)
	}
	return ownIndex, ownIndex == firstIndex, nil
}

// lastNumber scans from the end for the most recent id with the given
// prefix. A prefixed value with a malformed numeric suffix counts as 0.
// Voided rows and foreign prefixes are skipped.
func lastNumber(rows []rowstore.Row, idColumn string, prefix string) int {
	marker := prefix + "/"
	for i := len(rows) - 1; i >= 0; i-- {
		value := strings.TrimSpace(rows[i][idColumn])
		if !strings.HasPrefix(value, marker) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(value, marker))
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}

func formatID(prefix string, n int) string {
	return fmt.Sprintf("%s/%0*d", prefix, idWidth, n)
}

func jitteredBackoff(attempt int) time.Duration {
	base := defaultBackoff * time.Duration(attempt)
	return base + rand.N(defaultBackoff)
}
