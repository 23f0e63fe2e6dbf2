package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grupoagenda/leadscan-cli/internal/match"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage the local business registry snapshot",
}

var registrySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the registry snapshot from the CRM",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		crmClient, err := initCRM()
		if err != nil {
			return err
		}

		businesses, err := crmClient.ListBusinesses(ctx)
		if err != nil {
			return err
		}
		if err := e.Store.ReplaceBusinesses(ctx, businesses); err != nil {
			return err
		}

		fmt.Printf("%d businesses synced\n", len(businesses))
		return nil
	},
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registry snapshot with normalized names",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		businesses, err := e.Store.ListBusinesses(ctx)
		if err != nil {
			return err
		}

		for _, b := range businesses {
			fmt.Printf("%-20s %-40s %s\n", b.ID, b.Name, match.NormalizeName(b.Name))
		}
		fmt.Printf("%d businesses\n", len(businesses))
		return nil
	},
}

func init() {
	registryCmd.AddCommand(registrySyncCmd, registryListCmd)
	rootCmd.AddCommand(registryCmd)
}
