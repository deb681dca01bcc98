package models

// Shape is the public description of a prepared statement: its output
// column names and declared types, in order. A type is "" when the engine
// cannot infer it, e.g. for expression columns.
type Shape struct {
	Columns []string `json:"columns" cbor:"columns"`
	Types   []string `json:"types" cbor:"types"`
}

// Result holds fetched rows as positional lists together with the shape
// they were read with.
type Result struct {
	Columns []string `json:"columns" cbor:"columns"`
	Types   []string `json:"types" cbor:"types"`
	Rows    [][]any  `json:"rows" cbor:"rows"`
}

// Shape returns the column metadata of r.
func (r *Result) Shape() Shape {
	return Shape{Columns: r.Columns, Types: r.Types}
}
