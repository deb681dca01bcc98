package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pario-ai/sqlactor/pkg/actor"
	"github.com/pario-ai/sqlactor/pkg/ddl"
)

func newDDLCmd(g *globalFlags) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "ddl SCHEMA.yaml",
		Short: "Generate CREATE TABLE statements from a YAML schema",
		Long: `Generate CREATE TABLE statements from a YAML schema and print them.
With --apply the statements are executed in a single transaction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := ddl.Load(args[0])
			if err != nil {
				return err
			}
			stmts, err := schema.Statements()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !apply {
				for _, stmt := range stmts {
					fmt.Fprintf(out, "%s;\n\n", stmt)
				}
				return nil
			}

			ctx := cmd.Context()
			db, _, logger, err := openDB(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			err = db.WithTransaction(ctx, func(ctx context.Context, c *actor.Conn) error {
				for i, stmt := range stmts {
					if _, err := c.Exec(ctx, stmt); err != nil {
						return fmt.Errorf("table %q: %w", schema.Tables[i].Name, err)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			logger.Info("schema applied", "tables", len(stmts), "db", db.Path())
			fmt.Fprintf(out, "Created %d tables.\n", len(stmts))
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "execute the statements against the database")
	return cmd
}
