package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/grupoagenda/leadscan-cli/internal/model"
	"github.com/grupoagenda/leadscan-cli/internal/store"
)

var (
	leadsSite   string
	leadsKind   string
	leadsStatus string
	leadsLimit  int
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect and maintain the lead store",
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		leads, err := e.Store.ListLeads(ctx, store.LeadFilter{
			Site:   leadsSite,
			Kind:   model.LeadKind(leadsKind),
			Status: model.LeadStatus(leadsStatus),
			Limit:  leadsLimit,
		})
		if err != nil {
			return err
		}

		for _, lead := range leads {
			date := "          "
			if lead.EventDate != nil {
				date = lead.EventDate.Format("2006-01-02")
			}
			link := ""
			if lead.MatchedBusinessID != "" {
				link = fmt.Sprintf("  -> %s (%.2f %s)", lead.MatchedBusinessID, lead.MatchConfidence, lead.MatchSource)
			}
			fmt.Printf("%-10s %-12s %s  %-8s %s%s\n",
				lead.Site, string(lead.Kind), date, string(lead.Status), lead.Name, link)
		}
		fmt.Printf("%d leads\n", len(leads))
		return nil
	},
}

var leadsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show lead counts, including leads first seen today",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		// "Today" is the configured local day, not UTC.
		stats, err := e.Store.Stats(ctx, time.Now().In(e.Location))
		if err != nil {
			return err
		}

		fmt.Printf("total:     %d\n", stats.Total)
		fmt.Printf("active:    %d\n", stats.Active)
		fmt.Printf("expired:   %d\n", stats.Expired)
		fmt.Printf("matched:   %d\n", stats.Matched)
		fmt.Printf("new today: %d\n", stats.NewToday)
		return nil
	},
}

var leadsExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire leads past their event date or the freshness window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		past, err := e.Engine.ExpirePast(ctx)
		if err != nil {
			return err
		}
		stale, err := e.Engine.ExpireStale(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d past events, %d stale leads expired\n", past, stale)
		return nil
	},
}

func init() {
	leadsListCmd.Flags().StringVar(&leadsSite, "site", "", "filter by site")
	leadsListCmd.Flags().StringVar(&leadsKind, "kind", "", "filter by kind (event|restaurant)")
	leadsListCmd.Flags().StringVar(&leadsStatus, "status", "", "filter by status (active|expired)")
	leadsListCmd.Flags().IntVar(&leadsLimit, "limit", 0, "maximum rows (0 = all)")
	leadsCmd.AddCommand(leadsListCmd, leadsStatsCmd, leadsExpireCmd)
	rootCmd.AddCommand(leadsCmd)
}
