package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/sqlactor/pkg/mcp"
)

func newMCPCmd(g *globalFlags) *cobra.Command {
	var readOnly bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start sqlactor as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, _, logger, err := openDB(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			srv := mcp.New(db, version, readOnly, logger)
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().BoolVar(&readOnly, "read-only", false, "do not offer the sql_exec tool")
	return cmd
}
