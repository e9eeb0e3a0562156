package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/callisto/pkg/cli"
	"mercator-hq/callisto/pkg/ledger"
)

var historyFlags struct {
	limit  int
	pass   string
	format string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent passes from the ledger",
	Long: `List recent passes recorded in the ledger, newest first, or the entries of
one pass.

Examples:
  # Last 20 passes
  callisto history

  # Every (file, rule, outcome) entry of one pass
  callisto history --pass 0b6f3c1e-9a43-4a55-8f0c-6d1b2a3c4d5e

  # Export as CSV
  callisto history --limit 100 --format csv`,
	RunE: showHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 20, "max passes (0 for all)")
	historyCmd.Flags().StringVar(&historyFlags.pass, "pass", "", "show the entries of one pass")
	historyCmd.Flags().StringVar(&historyFlags.format, "format", "text", "output format: text, json, csv")
}

// passList renders pass records as a table.
type passList []ledger.PassRecord

func (l passList) Header() []string {
	return []string{"PASS", "STARTED", "DURATION", "FILES", "MATCHED", "APPLIED", "FAILED", "UNRESOLVABLE", "STATUS"}
}

func (l passList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, p := range l {
		rows[i] = []string{
			p.ID,
			p.Started.UTC().Format(time.RFC3339),
			p.Finished.Sub(p.Started).Round(time.Millisecond).String(),
			strconv.Itoa(p.Files),
			strconv.Itoa(p.Matched),
			strconv.Itoa(p.Applied),
			strconv.Itoa(p.Failed),
			strconv.Itoa(p.Unresolvable),
			passStatus(p),
		}
	}
	return rows
}

func passStatus(p ledger.PassRecord) string {
	switch {
	case p.Fatal:
		return "fatal"
	case p.Failed > 0:
		return "failed"
	default:
		return "success"
	}
}

// entryList renders the entries of one pass as a table.
type entryList []ledger.Entry

func (l entryList) Header() []string {
	return []string{"FILE", "RULE", "OUTCOME", "DURATION", "ERROR"}
}

func (l entryList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, e := range l {
		rows[i] = []string{e.File, e.Rule, string(e.Outcome), e.Duration.Round(time.Millisecond).String(), e.Error}
	}
	return rows
}

func showHistory(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(historyFlags.format)
	if err != nil {
		return cli.NewConfigError("--format", err.Error())
	}
	if historyFlags.limit < 0 {
		return cli.NewConfigError("--limit", "must not be negative")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openLedger(&cfg.Ledger)
	if err != nil {
		return err
	}
	defer store.Close()

	return writeHistory(cmd.Context(), cmd.OutOrStdout(), store, format)
}

func writeHistory(ctx context.Context, w io.Writer, store ledger.PassStore, format cli.OutputFormat) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := cli.NewFormatter(format)

	if historyFlags.pass != "" {
		entries, err := store.PassEntries(ctx, historyFlags.pass)
		if err != nil {
			return fmt.Errorf("failed to read pass %s: %w", historyFlags.pass, err)
		}
		return formatter.FormatTo(w, entryList(entries))
	}

	passes, err := store.ListPasses(ctx, historyFlags.limit)
	if err != nil {
		return fmt.Errorf("failed to list passes: %w", err)
	}
	return formatter.FormatTo(w, passList(passes))
}
