package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGClient is the direct-Postgres backend. Rows travel as jsonb so both
// backends hand the store the same untyped shape.
type PGClient struct {
	db *sql.DB
}

func OpenPG(ctx context.Context, databaseURL string) (*PGClient, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &PGClient{db: db}, nil
}

func (c *PGClient) Close() error {
	return c.db.Close()
}

func (c *PGClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// pgError lifts driver errors into the shared RemoteError taxonomy.
func pgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &RemoteError{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
		}
	}
	return &RemoteError{Message: err.Error()}
}

// quoteIdent quotes a dynamic identifier. Table and column names here come
// from fixed in-process maps, not user input, but quoting keeps casing intact.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func scanRow(data []byte) (Row, error) {
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return row, nil
}

func (c *PGClient) Select(ctx context.Context, table string) ([]Row, error) {
	query := fmt.Sprintf("SELECT to_jsonb(t) FROM %s t", quoteIdent(table))
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, pgError(err)
		}
		row, err := scanRow(data)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError(err)
	}
	return out, nil
}

// sortedKeys keeps generated SQL deterministic.
func sortedKeys(payload Row) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *PGClient) Insert(ctx context.Context, table string, payload Row) (Row, error) {
	keys := sortedKeys(payload)
	columns := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		columns[i] = quoteIdent(k)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = sqlValue(payload[k])
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING to_jsonb(%s)",
		quoteIdent(table),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		quoteIdent(table),
	)
	var data []byte
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&data); err != nil {
		return nil, pgError(err)
	}
	return scanRow(data)
}

func (c *PGClient) Update(ctx context.Context, table string, id string, patch Row) (Row, error) {
	keys := sortedKeys(patch)
	assignments := make([]string, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		assignments[i] = fmt.Sprintf("%s = $%d", quoteIdent(k), i+1)
		args = append(args, sqlValue(patch[k]))
	}
	args = append(args, id)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d RETURNING to_jsonb(%s)",
		quoteIdent(table),
		strings.Join(assignments, ", "),
		len(keys)+1,
		quoteIdent(table),
	)
	var data []byte
	err := c.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if err == sql.ErrNoRows {
		return patch, nil
	}
	if err != nil {
		return nil, pgError(err)
	}
	return scanRow(data)
}

func (c *PGClient) Delete(ctx context.Context, table string, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", quoteIdent(table))
	if _, err := c.db.ExecContext(ctx, query, id); err != nil {
		return pgError(err)
	}
	return nil
}

// sqlValue passes scalars through and serializes lists/objects as jsonb text,
// matching how the REST backend transmits them.
func sqlValue(v any) any {
	switch v.(type) {
	case nil, string, bool, int, int64, float64, time.Time:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
