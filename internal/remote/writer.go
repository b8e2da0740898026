package remote

import (
	"context"
	"log"
)

// Writer performs schema-drift-tolerant writes. Each write carries two
// payload shapes for the same logical change: a primary mapping using the
// column names of current deployments and a fallback mapping using the
// alternate naming convention. If the primary attempt is rejected because a
// column is unknown to the server, the write is retried exactly once with the
// fallback shape; the second outcome is final either way. Any other error
// class is returned immediately.
type Writer struct {
	client Client
}

func NewWriter(client Client) *Writer {
	return &Writer{client: client}
}

func (w *Writer) Insert(ctx context.Context, table string, primary, fallback Row) (Row, error) {
	row, err := w.client.Insert(ctx, table, primary)
	if err == nil {
		return row, nil
	}
	if !IsSchemaCacheMiss(err) {
		return nil, err
	}
	log.Printf("remote: insert into %s rejected by schema cache, retrying with fallback columns", table)
	return w.client.Insert(ctx, table, fallback)
}

func (w *Writer) Update(ctx context.Context, table string, id string, primary, fallback Row) (Row, error) {
	row, err := w.client.Update(ctx, table, id, primary)
	if err == nil {
		return row, nil
	}
	if !IsSchemaCacheMiss(err) {
		return nil, err
	}
	log.Printf("remote: update of %s/%s rejected by schema cache, retrying with fallback columns", table, id)
	return w.client.Update(ctx, table, id, fallback)
}
