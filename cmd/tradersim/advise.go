package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tradersim/internal/advisor"
	"tradersim/internal/logger"
	"tradersim/internal/model"
)

func stopsCmd() *cobra.Command {
	var enforce bool
	cmd := &cobra.Command{
		Use:   "stops",
		Short: "List holdings past the stop-loss threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			if enforce {
				trades, err := a.guard.EnforceStopLosses(ctx)
				if perr := printTrades(w, trades); perr != nil {
					return perr
				}
				return err
			}
			stops := a.guard.StopLosses(ctx)
			if jsonOut {
				return printJSON(w, stops)
			}
			if len(stops) == 0 {
				fmt.Fprintln(w, "No stop losses triggered.")
				return nil
			}
			tw := table(w)
			fmt.Fprintln(tw, "SYMBOL\tSHARES\tAVG COST\tPRICE\tSTOP\tP&L %")
			for _, s := range stops {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
					s.Symbol, s.Shares, money(s.AvgCost), money(s.Price), money(s.StopPrice), pct(s.PnLPct))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&enforce, "enforce", false, "Sell the triggered positions")
	return cmd
}

func promptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompt",
		Short: "Print the decision snapshot for an external advisor",
		Long: `Print the decision snapshot: portfolio, market lines, buying power,
guardrails and the strategy guidance. Text output is a prompt asking for
a JSON decision that "tradersim apply" accepts; --json prints the
snapshot itself.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := buildSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), snap)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), snap.Prompt())
			return err
		},
	}
}

func buildSnapshot(ctx context.Context) (advisor.Snapshot, error) {
	analyses, err := a.market(ctx)
	if err != nil {
		return advisor.Snapshot{}, err
	}
	st := a.portfolio.Status(ctx, a.provider)
	return advisor.BuildSnapshot(a.portfolio.Now(), st, a.portfolio.View(), analyses,
		a.guard, a.guard.StopLosses(ctx), a.strategy.Guidance), nil
}

func applyCmd() *cobra.Command {
	var (
		skipStops bool
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "apply [FILE]",
		Short: "Execute an advisor decision through the guardrails",
		Long: `Read a decision (JSON with analysis, trades and hold_reasoning,
possibly surrounded by prose) from FILE or stdin. Triggered stop losses
are sold first, then every proposed trade is submitted to the guardrails.
Rejected trades are reported and skipped. The session is appended to the
trade log.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			text, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read decision: %w", err)
			}
			decision, err := advisor.ParseDecision(string(text))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if dryRun {
				return printJSON(w, decision)
			}

			now := a.portfolio.Now()
			ctx := logger.WithSession(cmd.Context(), now)
			a.log.InfoContext(ctx, "applying decision", "trades", len(decision.Trades))

			var executed []model.Trade
			if !skipStops {
				stops, err := a.guard.EnforceStopLosses(ctx)
				if err != nil {
					a.log.WarnContext(ctx, "stop loss enforcement incomplete", "error", err)
				}
				executed = append(executed, stops...)
			}
			out, err := advisor.Apply(ctx, a.guard, decision)
			executed = append(executed, out.Executed...)
			if err != nil {
				return err
			}

			st := a.portfolio.Status(ctx, a.provider)
			if lerr := a.sessions.Append(advisor.Session{
				Timestamp:      now,
				PortfolioValue: st.TotalValue,
				Cash:           st.Cash,
				Positions:      st.NumHoldings,
				Analysis:       decision.Analysis,
				ExecutedTrades: executed,
				SkippedTrades:  out.Skipped,
				HoldReasoning:  decision.HoldReasoning,
			}); lerr != nil {
				a.log.WarnContext(ctx, "session log write failed", "error", lerr)
			}

			if jsonOut {
				return printJSON(w, advisor.Outcome{Executed: executed, Skipped: out.Skipped})
			}
			if err := printTrades(w, executed); err != nil {
				return err
			}
			for _, s := range out.Skipped {
				fmt.Fprintf(w, "Skipped %s %d %s: %s\n", strings.ToUpper(s.Trade.Action), s.Trade.Shares, s.Trade.Symbol, s.Reason)
			}
			if decision.HoldReasoning != "" {
				fmt.Fprintf(w, "Hold: %s\n", decision.HoldReasoning)
			}
			fmt.Fprintf(w, "Portfolio value %s, cash %s\n", money(st.TotalValue), money(st.Cash))
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipStops, "no-stops", false, "Do not enforce stop losses first")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse and print the decision without trading")
	return cmd
}

func sessionsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Show recent advisor sessions from the trade log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := a.sessions.Recent(limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(w, sessions)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(w, "No sessions logged.")
				return nil
			}
			tw := table(w)
			fmt.Fprintln(tw, "TIME\tVALUE\tCASH\tPOSITIONS\tEXECUTED\tSKIPPED")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n", s.Timestamp.Local().Format("2006-01-02 15:04"),
					money(s.PortfolioValue), money(s.Cash), s.Positions, len(s.ExecutedTrades), len(s.SkippedTrades))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of sessions to show (0 for all)")
	return cmd
}
