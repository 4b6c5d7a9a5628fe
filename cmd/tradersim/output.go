package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"tradersim/internal/model"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func money(d decimal.Decimal) string { return "$" + d.StringFixed(2) }

func pct(d decimal.Decimal) string {
	s := d.StringFixed(2) + "%"
	if d.IsPositive() {
		s = "+" + s
	}
	return s
}

func printTrades(w io.Writer, trades []model.Trade) error {
	if jsonOut {
		return printJSON(w, trades)
	}
	if len(trades) == 0 {
		fmt.Fprintln(w, "No transactions.")
		return nil
	}
	tw := table(w)
	fmt.Fprintln(tw, "TIME\tSIDE\tSYMBOL\tSHARES\tPRICE\tTOTAL\tCASH AFTER\tREALIZED\tSOURCE")
	for _, t := range trades {
		realized := ""
		if t.Side == model.SideSell {
			realized = money(t.RealizedPnL)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			t.Timestamp.Local().Format("2006-01-02 15:04"), t.Side, t.Symbol, t.Shares,
			money(t.Price), money(t.Total), money(t.CashAfter), realized, t.PriceSource)
	}
	return tw.Flush()
}
