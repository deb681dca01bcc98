// Package hydrate shapes raw result rows into records, caller-supplied
// containers or positional lists.
package hydrate

import "strings"

// Field is one named value of a Record.
type Field struct {
	Name  string `json:"name" cbor:"name"`
	Value any    `json:"value" cbor:"value"`
}

// Record is one result row as ordered name/value pairs. Duplicate column
// names are kept.
type Record []Field

// Get returns the value of the first field called name.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Map returns r as a map. Later duplicates win.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r))
	for _, f := range r {
		m[f.Name] = f.Value
	}
	return m
}

// Container receives the columns of one row.
type Container interface {
	Put(key string, value any)
}

// MapContainer adapts a map to Container.
type MapContainer map[string]any

// Put implements Container.
func (m MapContainer) Put(key string, value any) { m[key] = value }

// NewMapContainer returns an empty MapContainer. It can be passed directly
// to Containers.
func NewMapContainer() Container { return MapContainer{} }

// Records returns one Record per row. A row with no columns yields an
// empty record.
func Records(columns, types []string, rows [][]any) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := make(Record, 0, len(columns))
		for i, name := range columns {
			rec = append(rec, Field{Name: name, Value: value(types, row, i)})
		}
		out = append(out, rec)
	}
	return out
}

// Containers fills one container from newContainer per row.
func Containers(columns, types []string, rows [][]any, newContainer func() Container) []Container {
	out := make([]Container, 0, len(rows))
	for _, row := range rows {
		c := newContainer()
		for i, name := range columns {
			c.Put(name, value(types, row, i))
		}
		out = append(out, c)
	}
	return out
}

// Lists returns the rows as positional lists.
func Lists(columns, types []string, rows [][]any) [][]any {
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		list := make([]any, len(columns))
		for i := range columns {
			list[i] = value(types, row, i)
		}
		out = append(out, list)
	}
	return out
}

func value(types []string, row []any, i int) any {
	if i >= len(row) {
		return nil
	}
	v := row[i]
	if i < len(types) {
		return coerce(types[i], v)
	}
	return v
}

// coerce applies the declared column type where the driver value loses
// it. SQLite stores booleans as integers.
func coerce(declared string, v any) any {
	n, ok := v.(int64)
	if !ok {
		return v
	}
	if strings.Contains(strings.ToUpper(declared), "BOOL") {
		return n != 0
	}
	return v
}
