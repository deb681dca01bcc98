// Package ddl builds CREATE TABLE statements from table definitions.
package ddl

import (
	"errors"
	"fmt"
	"strings"
)

// Table describes a table to create.
type Table struct {
	Name        string   `yaml:"name"`
	Temp        bool     `yaml:"temp"`
	IfNotExists bool     `yaml:"if_not_exists"`
	PrimaryKey  []string `yaml:"primary_key"` // table-level key over named columns
	Columns     []Column `yaml:"columns"`
}

// Column describes one column. Type may be empty; SQLite accepts
// untyped columns.
type Column struct {
	Name          string `yaml:"name"`
	Type          string `yaml:"type"`
	PrimaryKey    bool   `yaml:"primary_key"`
	NotNull       bool   `yaml:"not_null"`
	AutoIncrement bool   `yaml:"autoincrement"`
	Unique        bool   `yaml:"unique"`
	Default       string `yaml:"default"` // raw SQL expression
}

// sqliteReservedWords contains SQL keywords that must be quoted when used
// as identifiers.
var sqliteReservedWords = map[string]bool{
	"abort": true, "action": true, "add": true, "after": true, "all": true,
	"alter": true, "analyze": true, "and": true, "as": true, "asc": true,
	"attach": true, "autoincrement": true, "before": true, "begin": true,
	"between": true, "by": true, "cascade": true, "case": true, "cast": true,
	"check": true, "collate": true, "column": true, "commit": true,
	"conflict": true, "constraint": true, "create": true, "cross": true,
	"current": true, "current_date": true, "current_time": true,
	"current_timestamp": true, "database": true, "default": true,
	"deferrable": true, "deferred": true, "delete": true, "desc": true,
	"detach": true, "distinct": true, "do": true, "drop": true, "each": true,
	"else": true, "end": true, "escape": true, "except": true, "exclude": true,
	"exclusive": true, "exists": true, "explain": true, "fail": true,
	"filter": true, "first": true, "following": true, "for": true,
	"foreign": true, "from": true, "full": true, "glob": true, "group": true,
	"groups": true, "having": true, "if": true, "ignore": true,
	"immediate": true, "in": true, "index": true, "indexed": true,
	"initially": true, "inner": true, "insert": true, "instead": true,
	"intersect": true, "into": true, "is": true, "isnull": true, "join": true,
	"key": true, "last": true, "left": true, "like": true, "limit": true,
	"match": true, "natural": true, "no": true, "not": true, "nothing": true,
	"notnull": true, "null": true, "nulls": true, "of": true, "offset": true,
	"on": true, "or": true, "order": true, "others": true, "outer": true,
	"over": true, "partition": true, "plan": true, "pragma": true,
	"preceding": true, "primary": true, "query": true, "raise": true,
	"range": true, "recursive": true, "references": true, "regexp": true,
	"reindex": true, "release": true, "rename": true, "replace": true,
	"restrict": true, "right": true, "rollback": true, "row": true,
	"rows": true, "savepoint": true, "select": true, "set": true,
	"table": true, "temp": true, "temporary": true, "then": true, "ties": true,
	"to": true, "transaction": true, "trigger": true, "unbounded": true,
	"union": true, "unique": true, "update": true, "using": true,
	"vacuum": true, "values": true, "view": true, "virtual": true,
	"when": true, "where": true, "window": true, "with": true, "without": true,
}

// QuoteName returns name as an SQL identifier, double-quoted when it is a
// reserved word or not a plain identifier.
func QuoteName(name string) string {
	if sqliteReservedWords[strings.ToLower(name)] || !plainIdent(name) {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
	return name
}

func plainIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Validate checks t for mistakes SQLite would reject or silently accept
// with surprising results.
func (t Table) Validate() error {
	var errs []error
	if t.Name == "" {
		errs = append(errs, errors.New("table name is empty"))
	}
	if len(t.Columns) == 0 {
		errs = append(errs, fmt.Errorf("table %q has no columns", t.Name))
	}

	seen := make(map[string]bool, len(t.Columns))
	inlinePK := 0
	for i, col := range t.Columns {
		if col.Name == "" {
			errs = append(errs, fmt.Errorf("column %d of %q has no name", i, t.Name))
			continue
		}
		key := strings.ToLower(col.Name)
		if seen[key] {
			errs = append(errs, fmt.Errorf("duplicate column %q", col.Name))
		}
		seen[key] = true
		if col.PrimaryKey {
			inlinePK++
		}
		if col.AutoIncrement && (!col.PrimaryKey || !strings.EqualFold(col.Type, "INTEGER")) {
			errs = append(errs, fmt.Errorf("column %q: AUTOINCREMENT requires INTEGER PRIMARY KEY", col.Name))
		}
	}
	if inlinePK > 1 {
		errs = append(errs, errors.New("more than one column declared PRIMARY KEY; use the table-level primary key"))
	}
	if inlinePK > 0 && len(t.PrimaryKey) > 0 {
		errs = append(errs, errors.New("both column and table primary keys given"))
	}
	for _, name := range t.PrimaryKey {
		if !seen[strings.ToLower(name)] {
			errs = append(errs, fmt.Errorf("primary key column %q is not defined", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid table definition: %w", errors.Join(errs...))
	}
	return nil
}

// CreateTable returns the CREATE TABLE statement for t.
func CreateTable(t Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("CREATE ")
	if t.Temp {
		b.WriteString("TEMP ")
	}
	b.WriteString("TABLE ")
	if t.IfNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(QuoteName(t.Name))
	b.WriteString(" (\n")

	for i, col := range t.Columns {
		b.WriteString("  ")
		b.WriteString(QuoteName(col.Name))
		if col.Type != "" {
			b.WriteString(" ")
			b.WriteString(col.Type)
		}
		if col.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
			if col.AutoIncrement {
				b.WriteString(" AUTOINCREMENT")
			}
		}
		if col.NotNull {
			b.WriteString(" NOT NULL")
		}
		if col.Unique {
			b.WriteString(" UNIQUE")
		}
		if col.Default != "" {
			fmt.Fprintf(&b, " DEFAULT (%s)", col.Default)
		}
		if i < len(t.Columns)-1 || len(t.PrimaryKey) > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}

	if len(t.PrimaryKey) > 0 {
		quoted := make([]string, len(t.PrimaryKey))
		for i, name := range t.PrimaryKey {
			quoted[i] = QuoteName(name)
		}
		fmt.Fprintf(&b, "  PRIMARY KEY (%s)\n", strings.Join(quoted, ", "))
	}

	b.WriteString(")")
	return b.String(), nil
}
