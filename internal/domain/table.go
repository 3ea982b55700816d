package domain

import "slices"

// Table names a remote table the sync queue may target.
type Table string

const TablePeriods Table = "periods"

func (t Table) IsValid() bool {
	_, ok := schemas[t]
	return ok
}

// TableSchema describes the columns a payload may carry for one table.
type TableSchema struct {
	Name       Table
	PrimaryKey string
	Columns    []string
}

// HasColumn reports whether col belongs to the table.
func (s TableSchema) HasColumn(col string) bool {
	return slices.Contains(s.Columns, col)
}

var schemas = map[Table]TableSchema{
	TablePeriods: {
		Name:       TablePeriods,
		PrimaryKey: "id",
		Columns:    []string{"id", "nickname", "points", "chips"},
	},
}

// SchemaFor returns the schema of a known table.
func SchemaFor(t Table) (TableSchema, bool) {
	s, ok := schemas[t]
	return s, ok
}

// Tables lists every known table in a stable order.
func Tables() []Table {
	out := make([]Table, 0, len(schemas))
	for t := range schemas {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
