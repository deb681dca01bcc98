package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/sqlactor/pkg/models"
)

func newStatsCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show statement cache statistics of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimRight(addr, "/") + "/v1/stats"
			if !strings.Contains(url, "://") {
				url = "http://" + url
			}

			client := &http.Client{Timeout: 10 * time.Second}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("fetch stats: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("fetch stats: %s", resp.Status)
			}

			var stats models.CacheStats
			if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
				return fmt.Errorf("decode stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Entries:   %d / %d\n", stats.Entries, stats.Capacity)
			fmt.Fprintf(out, "Hits:      %s\n", humanize.Comma(stats.Hits))
			fmt.Fprintf(out, "Misses:    %s\n", humanize.Comma(stats.Misses))
			fmt.Fprintf(out, "Evictions: %s\n", humanize.Comma(stats.Evictions))
			fmt.Fprintf(out, "Hit rate:  %.1f%%\n", stats.HitRate()*100)
			for i, q := range stats.Recent {
				fmt.Fprintf(out, "%3d. %s\n", i+1, cellText(q))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "address of a running sqlactor server")
	return cmd
}
