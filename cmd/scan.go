package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/grupoagenda/leadscan-cli/internal/model"
	"github.com/grupoagenda/leadscan-cli/internal/stream"
)

var (
	scanAll     bool
	scanHistory int
)

var scanCmd = &cobra.Command{
	Use:   "scan [site]",
	Short: "Scan a listing site and reconcile its leads",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		sink := &printSink{}
		var summary *model.ScanSummary
		switch {
		case scanAll || len(args) == 0:
			summary, err = e.Runner.ScanAll(ctx, sink)
		default:
			summary, err = e.Runner.Scan(ctx, args[0], sink)
		}
		if err != nil {
			return err
		}

		fmt.Printf("\n%s: %d items, %d new\n", summary.Site, summary.ItemsFound, summary.NewItems)
		for _, msg := range summary.Errors {
			fmt.Printf("  error: %s\n", msg)
		}
		return nil
	},
}

var scanHistoryCmd = &cobra.Command{
	Use:   "history [site]",
	Short: "Show recent scan runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		site := ""
		if len(args) == 1 {
			site = args[0]
		}
		entries, err := st.ListScanLog(ctx, site, scanHistory)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			fmt.Printf("%s  %-12s %-5s  %d items, %d new",
				entry.StartedAt.Format("2006-01-02 15:04:05"),
				entry.Site,
				entry.Terminal,
				entry.ItemsFound,
				entry.NewItems,
			)
			if len(entry.Errors) > 0 {
				fmt.Printf("  (%d errors)", len(entry.Errors))
			}
			fmt.Println()
		}
		return nil
	},
}

// printSink renders progress events as terminal lines.
type printSink struct{}

func (printSink) Progress(p stream.Progress) {
	line := fmt.Sprintf("[%s] %s", p.Site, p.Phase)
	if p.Total > 0 {
		line += fmt.Sprintf(" %d/%d", p.Current, p.Total)
	}
	if p.ItemName != "" {
		line += " " + p.ItemName
	}
	if p.Message != "" {
		line += " " + p.Message
	}
	fmt.Println(strings.TrimRight(line, " "))
}

func (printSink) Complete(model.ScanSummary) {}
func (printSink) Error(msg string)           { fmt.Printf("error: %s\n", msg) }

func init() {
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "scan every known site")
	scanHistoryCmd.Flags().IntVar(&scanHistory, "limit", 20, "number of runs to show")
	scanCmd.AddCommand(scanHistoryCmd)
	rootCmd.AddCommand(scanCmd)
}
