package nibbles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saadjs/nibbles/internal/model"
	"github.com/saadjs/nibbles/internal/service"
)

var (
	logPhoto    string
	logBarcode  string
	logServings float64
	logManual   bool
	logName     string
	logPortion  string
	logCalories int
	logProtein  float64
	logCarbs    float64
	logFat      float64

	mealListLimit int
	exportOut     string
)

var logCmd = &cobra.Command{
	Use:   "log [description]",
	Short: "Log a meal from a description, a photo, or manual numbers",
	Example: `  nibbles log "two eggs, toast and a latte"
  nibbles log --photo lunch.jpg "extra dressing"
  nibbles log --barcode 5000112637922 --servings 2
  nibbles log --manual --name "Protein bar" --calories 210 --protein 20 --carbs 22 --fat 7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(strings.Join(args, " "))
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			var (
				res *service.MealResult
				err error
			)
			switch {
			case logManual:
				res, err = logManualMeal(ctx, svc, text)
			case logBarcode != "":
				res, err = svc.LogBarcode(ctx, userID, logBarcode, logServings)
			default:
				in := service.MealInput{Text: text}
				if logPhoto != "" {
					data, err := os.ReadFile(logPhoto)
					if err != nil {
						return fmt.Errorf("read photo: %w", err)
					}
					in.Image = data
					in.ImageMIME = http.DetectContentType(data)
					in.PhotoRef = logPhoto
				}
				if in.Text == "" && len(in.Image) == 0 {
					return fmt.Errorf("describe the meal or pass --photo")
				}
				res, err = svc.LogMeal(ctx, userID, in)
			}
			if err != nil {
				return err
			}
			printMealResult(cmd.OutOrStdout(), res)
			return nil
		})
	},
}

func logManualMeal(ctx context.Context, svc *service.Service, text string) (*service.MealResult, error) {
	name := strings.TrimSpace(logName)
	if name == "" {
		name = text
	}
	if name == "" {
		return nil, fmt.Errorf("--name is required with --manual")
	}
	analysis := model.FoodAnalysis{
		Items: []model.FoodItem{{
			Name:     name,
			Portion:  logPortion,
			Calories: logCalories,
			ProteinG: logProtein,
			CarbsG:   logCarbs,
			FatG:     logFat,
		}},
		OverallConfidence: 1,
	}
	return svc.RecordAnalysis(ctx, userID, model.InputText, name, "", analysis)
}

func printMealResult(w io.Writer, res *service.MealResult) {
	l := res.Log
	fmt.Fprintf(w, "Logged #%d: %s\n", l.ID, strings.Join(l.FoodNames(), ", "))
	fmt.Fprintf(w, "%d kcal | P %.1fg | C %.1fg | F %.1fg\n", l.Totals.Calories, l.Totals.ProteinG, l.Totals.CarbsG, l.Totals.FatG)
	if res.LowConfidence {
		fmt.Fprintf(w, "Low confidence estimate (%.0f%%)\n", l.Confidence*100)
	}
	if p := res.Progress; p != nil {
		if p.Over() {
			fmt.Fprintf(w, "Today: %d/%d kcal (%d over target)\n", p.Consumed, p.Target, -p.Remaining)
		} else {
			fmt.Fprintf(w, "Today: %d/%d kcal (%d remaining)\n", p.Consumed, p.Target, p.Remaining)
		}
	}
	if res.Pet != nil {
		info := res.Pet.Info
		fmt.Fprintf(w, "%s is %s | Streak: %dd\n", info.Pet.Name, info.MoodLabel, info.Pet.CurrentStreak)
		if res.Pet.Evolved {
			fmt.Fprintf(w, "%s evolved to %s!\n", info.Pet.Name, info.LevelLabel)
		}
		for _, a := range res.Pet.NewAchievements {
			fmt.Fprintf(w, "New achievement: %s %s\n", a.Emoji, a.Name)
		}
	}
}

var mealCmd = &cobra.Command{
	Use:   "meal",
	Short: "List, delete and export logged meals",
}

var mealListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent meals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			logs, err := svc.RecentLogs(ctx, userID, mealListLimit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(logs) == 0 {
				fmt.Fprintln(out, "No meals logged yet.")
				return nil
			}
			for _, l := range logs {
				fmt.Fprintf(out, "#%d  %s  %4d kcal  %s\n", l.ID, l.LoggedAt.In(svc.Location()).Format("2006-01-02 15:04"), l.Totals.Calories, strings.Join(l.FoodNames(), ", "))
			}
			return nil
		})
	},
}

var mealDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a logged meal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseInt64Arg("meal id", args[0])
		if err != nil {
			return err
		}
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			ok, err := svc.DeleteLog(ctx, userID, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("meal #%d not found", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted meal #%d\n", id)
			return nil
		})
	},
}

var mealExportCmd = &cobra.Command{
	Use:   "export [range]",
	Short: "Export meals as JSON (default range: this month)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			start, end, err := service.ParseDateRange(rangeArg(args, "this month"), svc.Today())
			if err != nil {
				return err
			}
			data, err := svc.ExportLogs(ctx, userID, start, end)
			if err != nil {
				return err
			}
			if exportOut == "" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(exportOut, data, 0o600); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", service.FormatDateRange(start, end), exportOut)
			return nil
		})
	},
}

func init() {
	logCmd.Flags().StringVar(&logPhoto, "photo", "", "Path to a meal photo")
	logCmd.Flags().StringVar(&logBarcode, "barcode", "", "Look up a packaged food by barcode")
	logCmd.Flags().Float64Var(&logServings, "servings", 1, "Servings for --barcode")
	logCmd.Flags().BoolVar(&logManual, "manual", false, "Record the numbers given instead of analyzing")
	logCmd.Flags().StringVar(&logName, "name", "", "Food name for --manual")
	logCmd.Flags().StringVar(&logPortion, "portion", "", "Portion for --manual")
	logCmd.Flags().IntVar(&logCalories, "calories", 0, "Calories for --manual")
	logCmd.Flags().Float64Var(&logProtein, "protein", 0, "Protein grams for --manual")
	logCmd.Flags().Float64Var(&logCarbs, "carbs", 0, "Carb grams for --manual")
	logCmd.Flags().Float64Var(&logFat, "fat", 0, "Fat grams for --manual")
	rootCmd.AddCommand(logCmd)

	mealListCmd.Flags().IntVar(&mealListLimit, "limit", service.DefaultRecentLimit, "Number of meals to show")
	mealExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Write to file instead of stdout")
	mealCmd.AddCommand(mealListCmd, mealDeleteCmd, mealExportCmd)
	rootCmd.AddCommand(mealCmd)
}
