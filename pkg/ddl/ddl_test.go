package ddl

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pario-ai/sqlactor/pkg/engine"
)

func TestCreateTable(t *testing.T) {
	got, err := CreateTable(Table{
		Name: "events",
		Columns: []Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true, AutoIncrement: true},
			{Name: "order", Type: "TEXT", NotNull: true},
			{Name: "created at", Type: "TEXT", Default: "CURRENT_TIMESTAMP"},
			{Name: "note"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `CREATE TABLE events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  "order" TEXT NOT NULL,
  "created at" TEXT DEFAULT (CURRENT_TIMESTAMP),
  note
)`
	if got != want {
		t.Errorf("unexpected DDL:\n%s\nwant:\n%s", got, want)
	}
}

func TestCreateTableCompositeKey(t *testing.T) {
	got, err := CreateTable(Table{
		Name:        "memberships",
		Temp:        true,
		IfNotExists: true,
		PrimaryKey:  []string{"user", "group"},
		Columns: []Column{
			{Name: "user", Type: "INTEGER"},
			{Name: "group", Type: "INTEGER"},
			{Name: "role", Type: "TEXT", Unique: true},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "CREATE TEMP TABLE IF NOT EXISTS memberships (") {
		t.Errorf("unexpected prefix: %s", got)
	}
	if !strings.Contains(got, `PRIMARY KEY (user, "group")`) {
		t.Errorf("expected table-level key, got:\n%s", got)
	}
}

func TestCreateTableIsValidSQL(t *testing.T) {
	ctx := context.Background()
	conn, err := engine.Open(ctx, ":memory:", engine.OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	tables := []Table{
		{Name: "select", Columns: []Column{{Name: "from", Type: "TEXT"}}},
		{Name: "t", Temp: true, PrimaryKey: []string{"a", "b"}, Columns: []Column{
			{Name: "a", Type: "INTEGER", NotNull: true},
			{Name: "b", Type: "TEXT"},
		}},
		{Name: "u", IfNotExists: true, Columns: []Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true, AutoIncrement: true},
			{Name: "v", Type: "REAL", Default: "0.5", Unique: true},
		}},
	}
	for _, tbl := range tables {
		stmt, err := CreateTable(tbl)
		if err != nil {
			t.Fatalf("%s: %v", tbl.Name, err)
		}
		if _, err := conn.Exec(ctx, stmt); err != nil {
			t.Errorf("%s: engine rejected DDL %q: %v", tbl.Name, stmt, err)
		}
	}
}

func TestCreateTableInvalid(t *testing.T) {
	tests := []struct {
		name  string
		table Table
	}{
		{"no name", Table{Columns: []Column{{Name: "a"}}}},
		{"no columns", Table{Name: "t"}},
		{"empty column name", Table{Name: "t", Columns: []Column{{Type: "TEXT"}}}},
		{"duplicate column", Table{Name: "t", Columns: []Column{{Name: "a"}, {Name: "A"}}}},
		{"autoincrement without key", Table{Name: "t", Columns: []Column{{Name: "a", Type: "INTEGER", AutoIncrement: true}}}},
		{"autoincrement on text", Table{Name: "t", Columns: []Column{{Name: "a", Type: "TEXT", PrimaryKey: true, AutoIncrement: true}}}},
		{"unknown key column", Table{Name: "t", PrimaryKey: []string{"b"}, Columns: []Column{{Name: "a"}}}},
		{"two keys", Table{Name: "t", PrimaryKey: []string{"a"}, Columns: []Column{{Name: "a", PrimaryKey: true}}}},
	}
	for _, tt := range tests {
		if _, err := CreateTable(tt.table); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestQuoteName(t *testing.T) {
	tests := map[string]string{
		"users":    "users",
		"_x1":      "_x1",
		"Group":    `"Group"`,
		"1st":      `"1st"`,
		`we"ird`:   `"we""ird"`,
		"two word": `"two word"`,
	}
	for in, want := range tests {
		if got := QuoteName(in); got != want {
			t.Errorf("QuoteName(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLoadSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	content := `
tables:
  - name: users
    columns:
      - name: id
        type: INTEGER
        primary_key: true
      - name: email
        type: TEXT
        not_null: true
        unique: true
  - name: tags
    primary_key: [user_id, tag]
    columns:
      - {name: user_id, type: INTEGER}
      - {name: tag, type: TEXT}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	stmts, err := s.Statements()
	if err != nil {
		t.Fatal(err)
	}
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(stmts))
	}
	if !strings.Contains(stmts[0], "email TEXT NOT NULL UNIQUE") {
		t.Errorf("unexpected users DDL:\n%s", stmts[0])
	}
	if !strings.Contains(stmts[1], "PRIMARY KEY (user_id, tag)") {
		t.Errorf("unexpected tags DDL:\n%s", stmts[1])
	}
}

func TestLoadSchemaMissing(t *testing.T) {
	if _, err := Load("/nonexistent/schema.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
