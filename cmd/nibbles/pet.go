package nibbles

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saadjs/nibbles/internal/service"
)

var petCmd = &cobra.Command{
	Use:   "pet",
	Short: "Show your pet",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			info, err := svc.PetInfo(ctx, userID)
			if err != nil {
				return err
			}
			printPet(cmd.OutOrStdout(), *info)
			return nil
		})
	},
}

var petRenameCmd = &cobra.Command{
	Use:   "rename <name>",
	Short: "Rename your pet",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			pet, err := svc.RenamePet(ctx, userID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Your pet is now called %s\n", pet.Name)
			return nil
		})
	},
}

var petSetMealsCmd = &cobra.Command{
	Use:   "set-meals <count>",
	Short: "Set the lifetime meal count (testing evolution)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil {
			return fmt.Errorf("invalid meal count %q", args[0])
		}
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			if _, err := svc.SetPetMeals(ctx, userID, n); err != nil {
				return err
			}
			info, err := svc.PetInfo(ctx, userID)
			if err != nil {
				return err
			}
			printPet(cmd.OutOrStdout(), *info)
			return nil
		})
	},
}

func printPet(w io.Writer, info service.PetInfo) {
	if info.ASCIIArt != "" {
		fmt.Fprintln(w, info.ASCIIArt)
	}
	fmt.Fprintf(w, "%s the %s\n", info.Pet.Name, info.LevelLabel)
	fmt.Fprintf(w, "Mood: %s (%d%% of today's target)\n", info.MoodLabel, info.CaloriesPercent)
	fmt.Fprintf(w, "Meals logged: %d\n", info.Pet.TotalMealsLogged)
	fmt.Fprintf(w, "Streak: %d days (best %d)\n", info.Pet.CurrentStreak, info.Pet.BestStreak)
	if info.NextLevel != "" {
		fmt.Fprintf(w, "Next stage: %s in %d meals\n", service.LevelLabel(info.NextLevel), info.MealsToNextLevel)
	}
}

var achievementsCmd = &cobra.Command{
	Use:   "achievements",
	Short: "List achievements and which ones you have unlocked",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			list, err := svc.Achievements(ctx, userID)
			if err != nil {
				return err
			}
			unlocked := 0
			for _, a := range list {
				if a.Unlocked {
					unlocked++
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Achievements: %d/%d\n", unlocked, len(list))
			for _, a := range list {
				mark := "  "
				if a.Unlocked {
					mark = a.Emoji
				}
				fmt.Fprintf(out, "%s %-18s %s\n", mark, a.Name, a.Description)
			}
			return nil
		})
	},
}

func init() {
	petCmd.AddCommand(petRenameCmd, petSetMealsCmd)
	rootCmd.AddCommand(petCmd, achievementsCmd)
}
