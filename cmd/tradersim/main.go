package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tradersim/config"
	"tradersim/internal/logger"
)

var (
	jsonOut    bool
	sampleData bool
	logLevel   string
	strategy   string

	// a is built by setup before any subcommand runs.
	a *app
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if a != nil {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tradersim",
		Short: "Paper-trading portfolio simulator",
		Long: `tradersim keeps a simulated cash-and-holdings portfolio, executes
orders at market-data prices, screens the stock universe by technical
indicators and applies guardrailed trade decisions.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print JSON instead of text")
	rootCmd.PersistentFlags().BoolVar(&sampleData, "sample", false, "Use the seeded sample market instead of Alpaca")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (defaults to LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&strategy, "strategy", "", "Strategy YAML file (defaults to TRADERSIM_STRATEGY)")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(tradeCmd("buy"))
	rootCmd.AddCommand(tradeCmd("sell"))
	rootCmd.AddCommand(quoteCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(screenCmd())
	rootCmd.AddCommand(stopsCmd())
	rootCmd.AddCommand(promptCmd())
	rootCmd.AddCommand(applyCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(advanceDayCmd())
	rootCmd.AddCommand(watchCmd())
	return rootCmd
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if sampleData {
		cfg.SampleData = true
	}
	if strategy != "" {
		cfg.StrategyPath = strategy
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := logger.New(os.Stderr, "tradersim", level)

	a, err = newApp(cmd.Context(), cfg, log)
	return err
}
