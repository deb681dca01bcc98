package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/sqlactor/pkg/models"
	"github.com/pario-ai/sqlactor/pkg/server"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		listen     string
		logChanges bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the database over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, cfg, logger, err := openDB(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if logChanges {
				events := make(chan models.ChangeEvent, 64)
				if err := db.SetUpdateHook(ctx, events); err != nil {
					return fmt.Errorf("register update hook: %w", err)
				}
				go logEvents(ctx, events, logger.With("component", "changes"))
			}

			addr := cfg.Listen
			if listen != "" {
				addr = listen
			}
			srv := server.New(db, addr, logger)
			logger.Info("starting sqlactor server", "db", cfg.DBPath, "actor", db.ID())
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides listen)")
	cmd.Flags().BoolVar(&logChanges, "log-changes", false, "log every committed row change")
	return cmd
}

func logEvents(ctx context.Context, events <-chan models.ChangeEvent, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			logger.Info("row changed", "action", ev.Action, "table", ev.Table, "rowid", ev.RowID)
		}
	}
}
