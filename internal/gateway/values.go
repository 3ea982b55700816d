package gateway

import (
	"fmt"
	"slices"

	json "github.com/goccy/go-json"

	"github.com/ricirt/plinko-sync/internal/domain"
)

// normalize converts a payload value decoded from storage into a Go value
// a database driver or JSON encoder accepts without loss.
func normalize(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// columns returns the payload's columns in a stable order, checked against
// the table schema.
func columns(schema domain.TableSchema, payload domain.Payload) ([]string, error) {
	cols := make([]string, 0, len(payload))
	for col := range payload {
		if !schema.HasColumn(col) {
			return nil, fmt.Errorf("%w %q", domain.ErrUnknownColumn, col)
		}
		cols = append(cols, col)
	}
	slices.Sort(cols)
	return cols, nil
}

// target resolves the schema and primary key value of an item.
// A key is required for updates and deletes.
func target(item domain.QueueItem) (domain.TableSchema, any, error) {
	schema, ok := domain.SchemaFor(item.Table)
	if !ok {
		return domain.TableSchema{}, nil, fmt.Errorf("%w: %q", domain.ErrUnknownTable, item.Table)
	}
	key, ok := item.Key()
	if !ok && item.Op != domain.OpInsert {
		return domain.TableSchema{}, nil, domain.ErrMissingKey
	}
	return schema, normalize(key), nil
}
