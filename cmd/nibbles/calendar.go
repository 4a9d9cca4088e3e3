package nibbles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/saadjs/nibbles/internal/service"
)

var (
	calendarMonth string
	chartDays     int
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Show logged days of a month graded against your target",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			year, month := svc.Today().Year(), int(svc.Today().Month())
			if strings.TrimSpace(calendarMonth) != "" {
				t, err := time.Parse("2006-01", strings.TrimSpace(calendarMonth))
				if err != nil {
					return fmt.Errorf("invalid --month %q (expected YYYY-MM)", calendarMonth)
				}
				year, month = t.Year(), int(t.Month())
			}
			cal, err := svc.Calendar(ctx, userID, year, month)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %d", time.Month(cal.Month), cal.Year)
			if cal.DailyTarget != nil {
				fmt.Fprintf(out, " (target %d kcal)", *cal.DailyTarget)
			}
			fmt.Fprintln(out)
			if len(cal.Days) == 0 {
				fmt.Fprintln(out, "No meals logged this month.")
			}
			for _, d := range cal.Days {
				fmt.Fprintf(out, "%s  %5d kcal  %d meals  %s\n", d.Date, d.Calories, d.MealCount, d.Status)
			}
			return nil
		})
	},
}

var dayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "Show every meal of one day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(args[0]), svc.Location())
			if err != nil {
				return fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", args[0])
			}
			d, err := svc.DayDetail(ctx, userID, day)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d kcal | P %.1fg | C %.1fg | F %.1fg | %s\n", d.Date, d.Calories, d.Protein, d.Carbs, d.Fat, d.Status)
			for _, m := range d.Meals {
				fmt.Fprintf(out, "%s  #%d  %d kcal (%s)\n", m.Time, m.ID, m.Calories, m.InputType)
				for _, it := range m.Items {
					fmt.Fprintf(out, "    %s %s  %d kcal\n", it.Name, it.Portion, it.Calories)
				}
			}
			return nil
		})
	},
}

var chartCmd = &cobra.Command{
	Use:       "chart <calories|macros|trend>",
	Short:     "Print daily chart data for the last --days days",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"calories", "macros", "trend"},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := strings.ToLower(strings.TrimSpace(args[0]))
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			out := cmd.OutOrStdout()
			switch kind {
			case "calories":
				c, err := svc.CalorieChart(ctx, userID, chartDays)
				if err != nil {
					return err
				}
				for _, p := range c.Data {
					fmt.Fprintf(out, "%s  %5d / %d\n", p.Date, p.Calories, p.Target)
				}
				fmt.Fprintf(out, "Total: %d kcal | Average: %d kcal\n", c.Total, c.Average)
			case "macros":
				c, err := svc.MacroChart(ctx, userID, chartDays)
				if err != nil {
					return err
				}
				for _, p := range c.Data {
					fmt.Fprintf(out, "%s  P %6.1f  C %6.1f  F %6.1f\n", p.Date, p.Protein, p.Carbs, p.Fat)
				}
				fmt.Fprintf(out, "Average: P %.1fg | C %.1fg | F %.1fg\n", c.Averages.Protein, c.Averages.Carbs, c.Averages.Fat)
			case "trend":
				c, err := svc.TrendChart(ctx, userID, chartDays)
				if err != nil {
					return err
				}
				for _, p := range c.Data {
					avg := "-"
					if p.MovingAvg != nil {
						avg = fmt.Sprintf("%.0f", *p.MovingAvg)
					}
					fmt.Fprintf(out, "%s  %5d  %dd avg %s\n", p.Date, p.Calories, c.Window, avg)
				}
			default:
				return fmt.Errorf("unknown chart %q (expected calories, macros or trend)", args[0])
			}
			return nil
		})
	},
}

func init() {
	calendarCmd.Flags().StringVar(&calendarMonth, "month", "", "Month as YYYY-MM (default current)")
	chartCmd.Flags().IntVar(&chartDays, "days", service.DefaultChartDays, "Number of days to chart")
	rootCmd.AddCommand(calendarCmd, dayCmd, chartCmd)
}
