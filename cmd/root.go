package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rfq_service",
	Short: "RFQ award service for B2B procurement",
	Long: `A service that records buyer award decisions on RFQs, rolls the
derived statuses up through quote items, quotes and the RFQ header, and
projects an award summary read model.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			log.Error().Err(err).Msg("Failed to display help")
		}
	},
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize()
}
