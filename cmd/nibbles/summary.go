package nibbles

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saadjs/nibbles/internal/service"
)

var summaryCmd = &cobra.Command{
	Use:   "summary [range]",
	Short: "Summarize a date range with insights",
	Long: "Summarize totals, averages, common foods and insights for a range: today, yesterday, " +
		"this week, last week, this month, last month, YYYY-MM-DD, or YYYY-MM-DD to YYYY-MM-DD.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			start, end, err := service.ParseDateRange(rangeArg(args, "this week"), svc.Today())
			if err != nil {
				return err
			}
			sum, err := svc.GenerateSummary(ctx, userID, start, end)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sum.Text())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}
