package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tradersim/internal/analyzer"
)

func watchCmd() *cobra.Command {
	var enforce bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow snapshots published by the refresher",
		Long: `Subscribe to the snapshot announcements the refresher publishes on
Redis. Every new snapshot is installed, summarized and checked for stop
losses until interrupted. Requires REDIS_ADDR.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.redis == nil {
				return errors.New("watch needs Redis; set REDIS_ADDR")
			}
			ctx := cmd.Context()
			updates, err := a.redis.Updates(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Waiting for snapshots, Ctrl+C to stop")
			for range updates {
				snap, err := a.redis.LoadSnapshot(ctx)
				if err != nil {
					a.log.Warn("snapshot load failed", "error", err)
					continue
				}
				if snap == nil {
					continue
				}
				a.provider.Install(snap)

				sum := analyzer.Summarize(analyzer.FromSnapshot(snap), 3)
				st := a.portfolio.Status(ctx, a.provider)
				fmt.Fprintf(w, "[%s] %d stocks, avg %+.2f%%, RSI %.1f | portfolio %s (%s)\n",
					snap.Time().Local().Format(time.TimeOnly), sum.StocksAnalyzed, sum.AvgDailyChange, sum.AvgRSI,
					money(st.TotalValue), pct(st.TotalReturnPct))

				if enforce {
					trades, err := a.guard.EnforceStopLosses(ctx)
					if err != nil {
						a.log.Warn("stop loss enforcement incomplete", "error", err)
					}
					for _, t := range trades {
						fmt.Fprintf(w, "  stop loss: %s\n", t)
					}
					continue
				}
				for _, s := range a.guard.StopLosses(ctx) {
					fmt.Fprintf(w, "  stop loss triggered: %s at %s (%s)\n", s.Symbol, money(s.Price), pct(s.PnLPct))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&enforce, "enforce-stops", false, "Sell triggered stop losses on every snapshot")
	return cmd
}
