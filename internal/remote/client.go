// Package remote wraps the brokerage's remote table store behind a small
// CRUD interface and translates its raw errors into a fixed taxonomy once,
// centrally, so callers never match error strings themselves.
package remote

import "context"

// Row is a single remote record of unknown shape. Column names may appear in
// camelCase, lowercase or snake_case depending on which deployment the row
// came from; normalization happens in the store package.
type Row map[string]any

// Client is the generic table client. Two backends implement it: RestClient
// (PostgREST-style HTTP) and PGClient (direct Postgres).
type Client interface {
	Select(ctx context.Context, table string) ([]Row, error)
	Insert(ctx context.Context, table string, payload Row) (Row, error)
	Update(ctx context.Context, table string, id string, patch Row) (Row, error)
	Delete(ctx context.Context, table string, id string) error
}
