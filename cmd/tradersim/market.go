package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tradersim/internal/analyzer"
	"tradersim/internal/indicator"
	"tradersim/internal/model"
)

func quoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quote SYMBOL...",
		Short: "Show current prices and where they came from",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			quotes := make([]model.PriceQuote, 0, len(args))
			var failed []string
			for _, sym := range args {
				q, err := a.provider.Quote(ctx, sym)
				if err != nil {
					failed = append(failed, fmt.Sprintf("%s: %v", strings.ToUpper(sym), err))
					continue
				}
				quotes = append(quotes, q)
			}
			w := cmd.OutOrStdout()
			if jsonOut {
				if err := printJSON(w, quotes); err != nil {
					return err
				}
			} else {
				tw := table(w)
				fmt.Fprintln(tw, "SYMBOL\tPRICE\tSOURCE\tAS OF")
				for _, q := range quotes {
					src := string(q.Source)
					if q.Stale {
						src += " (stale)"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", q.Symbol, money(q.Price), src, q.AsOf.Local().Format("2006-01-02 15:04:05"))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("no price for %s", strings.Join(failed, "; "))
			}
			return nil
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the whole universe live and replace the market snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.provider.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(w, snap)
			}
			fmt.Fprintf(w, "Fetched %d stocks in %.2fs at %s (market open: %v)\n",
				snap.StocksFetched, snap.FetchTimeSeconds, snap.GeneratedAt, snap.MarketOpen)
			if len(snap.StocksFailed) > 0 {
				fmt.Fprintf(w, "Failed: %s\n", strings.Join(snap.StocksFailed, ", "))
			}
			return nil
		},
	}
}

func analyzeCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "analyze [SYMBOL...]",
		Short: "Market summary, or indicator profiles of the given symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			if len(args) > 0 {
				analyses, err := a.analyzer.Analyze(ctx, args)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(w, analyses)
				}
				return printAnalyses(w, analyses)
			}

			analyses, err := a.market(ctx)
			if err != nil {
				return err
			}
			sum := analyzer.Summarize(analyses, top)
			if jsonOut {
				return printJSON(w, sum)
			}
			fmt.Fprintf(w, "Stocks analyzed: %d\nAverage daily change: %+.2f%%\nAverage RSI: %.2f\n",
				sum.StocksAnalyzed, sum.AvgDailyChange, sum.AvgRSI)
			fmt.Fprintln(w, "\nTop gainers:")
			if err := printAnalyses(w, sum.TopGainers); err != nil {
				return err
			}
			fmt.Fprintln(w, "\nTop losers:")
			return printAnalyses(w, sum.TopLosers)
		},
	}
	cmd.Flags().IntVar(&top, "top", 5, "Number of gainers and losers to list")
	return cmd
}

func screenCmd() *cobra.Command {
	var (
		list  bool
		limit int
	)
	cmd := &cobra.Command{
		Use:   "screen [NAME]",
		Short: "Filter the universe with a named screen",
		Long: `Filter the universe with a named screen. Screens defined in the
strategy file take precedence over the built-in presets of the same name.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if list {
				fmt.Fprintf(w, "Built-in: %s\n", strings.Join(analyzer.PresetNames(), ", "))
				if names := a.strategy.ScreenNames(); len(names) > 0 {
					fmt.Fprintf(w, "Strategy: %s\n", strings.Join(names, ", "))
				}
				return nil
			}
			name := "default"
			if len(args) == 1 {
				name = args[0]
			}
			screen, err := a.strategy.Screen(name)
			if err != nil {
				return err
			}
			analyses, err := a.market(cmd.Context())
			if err != nil {
				return err
			}
			matches := screen.Apply(analyses)
			if limit > 0 && len(matches) > limit {
				matches = matches[:limit]
			}
			if jsonOut {
				return printJSON(w, matches)
			}
			if len(matches) == 0 {
				fmt.Fprintf(w, "No stocks match screen %q.\n", name)
				return nil
			}
			return printAnalyses(w, matches)
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "List available screens")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most n matches")
	return cmd
}

func printAnalyses(w io.Writer, analyses []analyzer.Analysis) error {
	tw := table(w)
	fmt.Fprintln(tw, "SYMBOL\tPRICE\tDAY %\tWEEK %\tMONTH %\tRSI\tATR\tSMA20\tVOLUME\tSIGNAL\tTREND")
	for _, x := range analyses {
		fmt.Fprintf(tw, "%s\t%.2f\t%+.2f\t%+.2f\t%+.2f\t%s\t%s\t%s\t%d\t%s\t%s\n",
			x.Symbol, x.Price, x.DailyChange, x.WeeklyChange, x.MonthlyChange,
			orNA(x, indicator.NameRSI, x.RSI), orNA(x, indicator.NameATR, x.ATR),
			orNA(x, indicator.SMAName(20), x.SMA20), x.Volume, x.Signal(), x.Trend())
	}
	return tw.Flush()
}

func orNA(x analyzer.Analysis, n indicator.Name, v float64) string {
	if !x.Has(n) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}
