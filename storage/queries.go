package storage

import (
	"context"
	"time"
)

// Queries holds the typed statements for every table. It runs on whatever
// Querier it was built from, so the same methods serve plain reads on a
// Store and writes inside a Tx.
type Queries struct {
	db Querier
}

func New(db Querier) *Queries {
	return &Queries{db: db}
}

// Exec runs a raw statement on the underlying handle.
func (q *Queries) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return q.db.Exec(ctx, query, args...)
}

func now() time.Time {
	return time.Now().UTC()
}
