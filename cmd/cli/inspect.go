package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	infraBQ "github.com/dvloznov/smart-financial-parser/internal/infra/bigquery"
)

func newInspectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <run-id>",
		Short: "Show the cleaned records stored in BigQuery for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := loadConfig(cmd, opts)
			runID := args[0]

			ctx, cancel := commandContext(log, 2*time.Minute)
			defer cancel()

			repo, err := infraBQ.NewRepository(ctx, cfg.GCP.ProjectID, cfg.GCP.Dataset)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create repository")
			}
			defer repo.Close()

			rows, err := repo.ListCleanedTransactions(ctx, runID)
			if err != nil {
				repo.Close()
				log.Fatal().Err(err).Str("run_id", runID).Msg("Failed to query cleaned transactions")
			}

			fmt.Printf("\n=== Run %s (%d records) ===\n", runID, len(rows))
			for _, r := range rows {
				date := "none"
				if r.TransactionDate.Valid {
					date = r.TransactionDate.Date.String()
				}
				fmt.Printf("\n%d. %s\n", r.RowIndex, r.Merchant.StringVal)
				fmt.Printf("   Date:     %s\n", date)
				if r.CanonicalMerchant.Valid {
					fmt.Printf("   Company:  %s (score %d)\n", r.CanonicalMerchant.StringVal, r.MatchScore)
				}
				fmt.Printf("   Industry: %s\n", r.Industry)
				if r.Amount != nil {
					fmt.Printf("   Amount:   %s %s\n", r.Amount.FloatString(2), r.Currency.StringVal)
				}
				if r.AmountUSD != nil {
					fmt.Printf("   USD:      %s\n", r.AmountUSD.FloatString(2))
				}
			}
			fmt.Println()
			return nil
		},
	}
}
