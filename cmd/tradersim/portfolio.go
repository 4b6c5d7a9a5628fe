package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tradersim/internal/guardrail"
	"tradersim/internal/model"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cash, holdings and P&L at current prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st := a.portfolio.Status(ctx, a.provider)
			w := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(w, st)
			}
			now := a.portfolio.Now()
			fmt.Fprintf(w, "Day %d (started %s)\n", st.Day, st.StartDate.Format("2006-01-02"))
			fmt.Fprintf(w, "%s\n", a.session.Status(now))
			fmt.Fprintf(w, "Market data: %s\n\n", a.provider.Status())

			tw := table(w)
			fmt.Fprintf(tw, "Cash\t%s\n", money(st.Cash))
			fmt.Fprintf(tw, "Holdings\t%s\n", money(st.HoldingsValue))
			fmt.Fprintf(tw, "Total value\t%s\t%s since start (%s)\n", money(st.TotalValue), pct(st.TotalReturnPct), money(st.StartingCash))
			fmt.Fprintf(tw, "Realized P&L\t%s\n", money(st.RealizedPnL))
			fmt.Fprintf(tw, "Unrealized P&L\t%s\n", money(st.UnrealizedPnL))
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(st.Holdings) == 0 {
				fmt.Fprintln(w, "\nNo open positions.")
				return nil
			}
			fmt.Fprintln(w)
			tw = table(w)
			fmt.Fprintln(tw, "SYMBOL\tSHARES\tAVG COST\tPRICE\tVALUE\tP&L\tP&L %")
			for _, h := range st.Holdings {
				price := money(h.CurrentPrice)
				if !h.PriceKnown {
					price = "n/a"
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
					h.Symbol, h.Shares, money(h.AvgCost), price, money(h.CurrentValue), money(h.PnL), pct(h.PnLPct))
			}
			return tw.Flush()
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List executed trades, newest last",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printTrades(cmd.OutOrStdout(), a.portfolio.History(limit))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of trades to show (0 for all)")
	return cmd
}

// tradeCmd builds buy or sell.
func tradeCmd(verb string) *cobra.Command {
	var (
		guarded       bool
		overrideHours bool
		reason        string
	)
	side := model.Side(strings.ToUpper(verb))
	title := strings.ToUpper(verb[:1]) + verb[1:]
	cmd := &cobra.Command{
		Use:   verb + " SYMBOL SHARES",
		Short: title + " whole shares at the current price",
		Long: fmt.Sprintf(`%s whole shares at the current market-data price.

By default the order is checked only for funds and holdings. With
--guarded it goes through the strategy guardrails first (trading hours,
position sizing, daily budgets).`, title),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			shares, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("shares: %q is not a whole number", args[1])
			}
			ctx := cmd.Context()

			var trade model.Trade
			if guarded {
				trade, err = a.guard.Submit(ctx, guardrail.Proposal{
					Side:          side,
					Symbol:        args[0],
					Shares:        shares,
					Reasoning:     reason,
					OverrideHours: overrideHours,
				})
			} else {
				trade, err = a.engine.Execute(ctx, side, args[0], shares)
			}
			if err != nil {
				return fmt.Errorf("%s %d %s: %w", side, shares, strings.ToUpper(args[0]), err)
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(w, trade)
			}
			fmt.Fprintf(w, "%s for %s (%s price), cash now %s\n",
				trade, money(trade.Total), trade.PriceSource, money(trade.CashAfter))
			if side == model.SideSell {
				fmt.Fprintf(w, "Realized P&L: %s\n", money(trade.RealizedPnL))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&guarded, "guarded", false, "Apply the strategy guardrails")
	cmd.Flags().BoolVar(&overrideHours, "override-hours", false, "Skip the trading-hours gate (with --guarded)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reasoning recorded in guardrail alerts")
	return cmd
}

func resetCmd() *cobra.Command {
	var (
		cash string
		yes  bool
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Start the portfolio over with fresh cash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset discards all holdings and history; pass --yes to confirm")
			}
			amount := a.cfg.StartingCash
			if cash != "" {
				var err error
				amount, err = decimal.NewFromString(cash)
				if err != nil || amount.IsNegative() {
					return fmt.Errorf("cash: invalid amount %q", cash)
				}
			}
			if err := a.engine.Reset(cmd.Context(), amount); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Portfolio reset with %s\n", money(amount))
			return nil
		},
	}
	cmd.Flags().StringVar(&cash, "cash", "", "Starting cash (defaults to TRADERSIM_STARTING_CASH)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the reset")
	return cmd
}

func advanceDayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance-day",
		Short: "Move the simulation to the next trading day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := a.engine.AdvanceDay(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Day %d\n", day)
			return nil
		},
	}
}
