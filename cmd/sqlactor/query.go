package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/sqlactor/pkg/actor"
)

func newQueryCmd(g *globalFlags) *cobra.Command {
	var (
		argsJSON string
		format   string
		stream   bool
	)

	cmd := &cobra.Command{
		Use:   "query SQL",
		Short: "Run a statement with bind values and print the rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			binds, err := parseArgs(argsJSON)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, _, _, err := openDB(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			out := cmd.OutOrStdout()
			switch format {
			case "table":
				if stream {
					return streamTable(ctx, out, db, args[0], binds)
				}
				res, err := db.QueryRows(ctx, args[0], binds)
				if err != nil {
					return err
				}
				return printTable(out, res.Columns, res.Rows)
			case "json":
				records, err := db.Query(ctx, args[0], binds)
				if err != nil {
					return err
				}
				maps := make([]map[string]any, len(records))
				for i, r := range records {
					maps[i] = r.Map()
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(maps)
			default:
				return fmt.Errorf("unknown --format %q (want table or json)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&argsJSON, "args", "a", "", `bind values as a JSON array, e.g. '[1, "x"]'`)
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table or json")
	cmd.Flags().BoolVar(&stream, "stream", false, "print rows chunk by chunk as they are fetched")
	return cmd
}

func newExecCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "exec SQL",
		Short: "Execute SQL without caching it (DDL, scripts)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, _, _, err := openDB(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			res, err := db.Exec(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d rows affected, last insert id %d\n", res.RowsAffected, res.LastInsertID)
			return nil
		},
	}
}

func newPrepareCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare SQL",
		Short: "Compile a statement and print its output columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, _, _, err := openDB(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			shape, err := db.Prepare(ctx, args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "COLUMN\tTYPE")
			for i, c := range shape.Columns {
				fmt.Fprintf(w, "%s\t%s\n", c, shape.Types[i])
			}
			return w.Flush()
		},
	}
}

// streamTable prints each chunk as soon as it is fetched. Column widths
// are computed per chunk.
func streamTable(ctx context.Context, w io.Writer, db *actor.Conn, query string, binds []any) error {
	var total int64
	shape, err := db.QueryChunks(ctx, query, binds, func(rows [][]any) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		writeRows(tw, rows)
		total += int64(len(rows))
		return tw.Flush()
	})
	if err != nil {
		return err
	}
	if len(shape.Columns) == 0 {
		fmt.Fprintln(w, "OK")
		return nil
	}
	fmt.Fprintf(w, "(%s rows: %s)\n", humanize.Comma(total), strings.Join(shape.Columns, ", "))
	return nil
}

// parseArgs decodes a JSON array of bind values. Integral numbers become
// int64 so they bind as INTEGER.
func parseArgs(s string) ([]any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var args []any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("invalid --args: %w", err)
	}
	for i, v := range args {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if iv, err := n.Int64(); err == nil {
			args[i] = iv
		} else if fv, err := n.Float64(); err == nil {
			args[i] = fv
		}
	}
	return args, nil
}

func printTable(w io.Writer, columns []string, rows [][]any) error {
	if len(columns) == 0 {
		fmt.Fprintln(w, "OK")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(columns, "\t")))
	writeRows(tw, rows)
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "(%s rows)\n", humanize.Comma(int64(len(rows))))
	return nil
}

func writeRows(w io.Writer, rows [][]any) {
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cell(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		if !utf8.Valid(x) || bytes.IndexFunc(x, func(r rune) bool { return r < 0x20 && r != '\n' && r != '\t' }) >= 0 {
			return fmt.Sprintf("<blob %s>", humanize.Bytes(uint64(len(x))))
		}
		return cellText(string(x))
	}
	return cellText(fmt.Sprint(v))
}

var cellEscaper = strings.NewReplacer("\t", `\t`, "\n", `\n`)

func cellText(s string) string {
	return cellEscaper.Replace(s)
}
