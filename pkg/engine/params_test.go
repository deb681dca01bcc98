package engine

import "testing"

func TestCountParams(t *testing.T) {
	tests := []struct {
		sql  string
		want int
	}{
		{"SELECT 1", 0},
		{"SELECT ?", 1},
		{"INSERT INTO t VALUES (?, ?, ?)", 3},
		{"SELECT ?3", 3},
		{"SELECT ?2, ?", 3},
		{"SELECT :a, :b, :a", 2},
		{"SELECT @x, $y, :z", 3},
		{"SELECT '?', \"?\", `?`, [?]", 0},
		{"SELECT 'it''s ?', ?", 1},
		{"SELECT ? -- trailing ?\n, ?", 2},
		{"SELECT /* ? */ ?", 1},
		{"SELECT 'unterminated ?", 0},
		{"SELECT :näme", 1},
		{"SELECT a$b FROM t", 0},
		{"SELECT a$b, $c FROM t WHERE x$ = ?", 2},
		{"SELECT t.a$ FROM t", 0},
	}
	for _, tt := range tests {
		if got := CountParams(tt.sql); got != tt.want {
			t.Errorf("CountParams(%q) = %d, want %d", tt.sql, got, tt.want)
		}
	}
}

func TestScanParams(t *testing.T) {
	got := ScanParams("SELECT :a, ?, ?4, @b, :a, ?")
	want := []string{":a", "", "", "", "@b", ""}
	if len(got) != len(want) {
		t.Fatalf("expected %d params, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("param %d: expected %q, got %q", i+1, want[i], got[i])
		}
	}
}

func TestScanParamsDollarInIdentifier(t *testing.T) {
	got := ScanParams("SELECT a$b, $c FROM t$1 WHERE x = ?")
	want := []string{"$c", ""}
	if len(got) != len(want) {
		t.Fatalf("expected %d params, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("param %d: expected %q, got %q", i+1, want[i], got[i])
		}
	}
}

func TestBindName(t *testing.T) {
	tests := map[string]string{
		"":      "",
		"?3":    "",
		":a":    "a",
		"@name": "name",
		"$x1":   "x1",
		"$1":    "",
		":_x":   "",
	}
	for in, want := range tests {
		if got := bindName(in); got != want {
			t.Errorf("bindName(%q) = %q, want %q", in, got, want)
		}
	}
}
