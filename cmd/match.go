package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grupoagenda/leadscan-cli/internal/match"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Link leads to the CRM business registry",
}

var matchRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bulk matching pass over unmatched leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.Matcher.RunBulk(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d unmatched leads, %d matched, %d updated\n",
			result.Total, result.Matched, result.Updated)
		return nil
	},
}

var matchSetCmd = &cobra.Command{
	Use:   "set <lead-id> <business-id>",
	Short: "Manually link a lead to a business",
	Long:  "Manual links are sticky: the bulk pass never overwrites them until cleared.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Matcher.SetMatch(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("lead %s linked to business %s\n", args[0], args[1])
		return nil
	},
}

var matchClearCmd = &cobra.Command{
	Use:   "clear <lead-id>",
	Short: "Clear a lead's link, making it eligible for bulk matching again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Matcher.SetMatch(ctx, args[0], ""); err != nil {
			return err
		}
		fmt.Printf("lead %s link cleared\n", args[0])
		return nil
	},
}

var matchPreviewCmd = &cobra.Command{
	Use:   "preview <name>",
	Short: "Score a name against the registry without persisting anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		registry, err := e.Store.ListBusinesses(ctx)
		if err != nil {
			return err
		}

		cand := e.Matcher.Match(args[0], registry)
		if cand == nil {
			fmt.Println("no candidate")
			return nil
		}
		fmt.Printf("best candidate: %s (%.2f, normalized %q)\n",
			cand.BusinessID, cand.Confidence, match.NormalizeName(args[0]))
		return nil
	},
}

func init() {
	matchCmd.AddCommand(matchRunCmd, matchSetCmd, matchClearCmd, matchPreviewCmd)
	rootCmd.AddCommand(matchCmd)
}
