package nibbles

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saadjs/nibbles/internal/service"
)

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's calories, macros and meals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			v, err := svc.TodayView(ctx, userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Date: %s\n", v.Date)
			fmt.Fprintf(out, "Calories: %d / %d kcal", v.CaloriesEaten, v.CaloriesTarget)
			if v.CaloriesRemaining < 0 {
				fmt.Fprintf(out, " (%d over)\n", -v.CaloriesRemaining)
			} else {
				fmt.Fprintf(out, " (%d remaining)\n", v.CaloriesRemaining)
			}
			for _, m := range []service.MacroProgress{v.Protein, v.Carbs, v.Fat} {
				fmt.Fprintf(out, "%-8s %.1f / %dg\n", m.Label+":", m.Current, m.Target)
			}
			fmt.Fprintf(out, "Meals: %d\n", v.MealCount)
			for _, m := range v.Meals {
				fmt.Fprintf(out, "  %s  #%d  %d kcal  %s\n", m.Time, m.ID, m.Calories, strings.Join(m.Foods, ", "))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(todayCmd)
}
