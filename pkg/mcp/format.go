package mcp

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/pario-ai/sqlactor/pkg/models"
)

// maxCellWidth truncates long values in tables.
const maxCellWidth = 60

// formatResult formats query rows as a text table.
func formatResult(res *models.Result) string {
	if len(res.Columns) == 0 {
		return "OK: statement returned no columns."
	}
	if len(res.Rows) == 0 {
		return "No rows."
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
	seps := make([]string, len(res.Columns))
	for i, c := range res.Columns {
		seps[i] = strings.Repeat("-", len(c))
	}
	fmt.Fprintln(tw, strings.Join(seps, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(&b, "(%s rows)", humanize.Comma(int64(len(res.Rows))))
	return b.String()
}

func formatValue(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		s = fmt.Sprintf("<blob %s>", humanize.Bytes(uint64(len(x))))
	default:
		s = fmt.Sprint(x)
	}
	s = strings.NewReplacer("\t", " ", "\n", " ").Replace(s)
	if len(s) > maxCellWidth {
		s = s[:maxCellWidth-3] + "..."
	}
	return s
}

// formatShape lists the output columns of a statement.
func formatShape(shape models.Shape) string {
	if len(shape.Columns) == 0 {
		return "Statement returns no columns (or they are learned on first execution)."
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Column\tType")
	fmt.Fprintln(tw, "------\t----")
	for i, c := range shape.Columns {
		typ := ""
		if i < len(shape.Types) {
			typ = shape.Types[i]
		}
		if typ == "" {
			typ = "(unknown)"
		}
		fmt.Fprintf(tw, "%s\t%s\n", c, typ)
	}
	tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// formatCacheStats formats statement cache statistics.
func formatCacheStats(s models.CacheStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Statement Cache\n")
	fmt.Fprintf(&b, "  Entries:    %d / %d\n", s.Entries, s.Capacity)
	fmt.Fprintf(&b, "  Hits:       %s\n", humanize.Comma(s.Hits))
	fmt.Fprintf(&b, "  Misses:     %s\n", humanize.Comma(s.Misses))
	fmt.Fprintf(&b, "  Evictions:  %s\n", humanize.Comma(s.Evictions))
	fmt.Fprintf(&b, "  Hit rate:   %.1f%%\n", s.HitRate()*100)
	if len(s.Recent) > 0 {
		b.WriteString("  Most recently used:\n")
		for i, q := range s.Recent {
			fmt.Fprintf(&b, "    %d. %s\n", i+1, formatValue(q))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
