package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/grupoagenda/leadscan-cli/internal/export"
	"github.com/grupoagenda/leadscan-cli/internal/model"
	"github.com/grupoagenda/leadscan-cli/internal/store"
)

var (
	exportOut    string
	exportSite   string
	exportStatus string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export leads as CSV or XLSX",
}

var exportCSVCmd = &cobra.Command{
	Use:   "csv",
	Short: "Write leads as CSV (stdout by default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, func(out *os.File, leads []*model.Lead, now time.Time) error {
			return export.WriteCSV(out, leads, now)
		})
	},
}

var exportXLSXCmd = &cobra.Command{
	Use:   "xlsx",
	Short: "Write leads as an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportOut == "" {
			return eris.New("xlsx export requires --out")
		}
		return runExport(cmd, func(out *os.File, leads []*model.Lead, now time.Time) error {
			return export.WriteXLSX(out, leads, now)
		})
	},
}

func runExport(cmd *cobra.Command, write func(*os.File, []*model.Lead, time.Time) error) error {
	ctx := cmd.Context()

	e, err := initPipeline(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	leads, err := e.Store.ListLeads(ctx, store.LeadFilter{
		Site:   exportSite,
		Status: model.LeadStatus(exportStatus),
	})
	if err != nil {
		return err
	}
	rows := make([]*model.Lead, len(leads))
	for i := range leads {
		rows[i] = &leads[i]
	}

	out := os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return eris.Wrapf(err, "export: create %s", exportOut)
		}
		defer f.Close()
		out = f
	}

	if err := write(out, rows, time.Now().In(e.Location)); err != nil {
		return err
	}
	if exportOut != "" {
		fmt.Printf("%d leads written to %s\n", len(rows), exportOut)
	}
	return nil
}

func init() {
	exportCmd.PersistentFlags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	exportCmd.PersistentFlags().StringVar(&exportSite, "site", "", "filter by site")
	exportCmd.PersistentFlags().StringVar(&exportStatus, "status", "", "filter by status (active|expired)")
	exportCmd.AddCommand(exportCSVCmd, exportXLSXCmd)
	rootCmd.AddCommand(exportCmd)
}
