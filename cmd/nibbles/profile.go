package nibbles

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/saadjs/nibbles/internal/model"
	"github.com/saadjs/nibbles/internal/service"
)

var (
	profileWeight   float64
	profileHeight   float64
	profileAge      int
	profileSex      string
	profileActivity string
	profileGoal     string

	profileCalories      int
	profileProtein       int
	profileCarbs         int
	profileFat           int
	profileReminderHour  int
	profileNotifications string
	profileWeekly        string
	profileResetCalories bool
	profileResetMacros   bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or change your profile and targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			u, err := svc.User(ctx, userID)
			if errors.Is(err, service.ErrUserNotFound) {
				return fmt.Errorf("user %d has no profile yet; run `nibbles profile onboard`", userID)
			}
			if err != nil {
				return err
			}
			printProfile(cmd.OutOrStdout(), svc, *u)
			return nil
		})
	},
}

var profileOnboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Set biometrics and goal, and compute a calorie target",
	RunE: func(cmd *cobra.Command, args []string) error {
		sex, err := model.ParseSex(profileSex)
		if err != nil {
			return err
		}
		activity, err := model.ParseActivityLevel(profileActivity)
		if err != nil {
			return err
		}
		goal, err := model.ParseGoal(profileGoal)
		if err != nil {
			return err
		}
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			if _, err := svc.EnsureUser(ctx, userID, "", ""); err != nil {
				return err
			}
			u, err := svc.CompleteOnboarding(ctx, userID, service.Onboarding{
				WeightKg: profileWeight,
				HeightCm: profileHeight,
				Age:      profileAge,
				Sex:      sex,
				Activity: activity,
				Goal:     goal,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile saved. Daily target: %d kcal\n", svc.CalorieTarget(*u))
			return nil
		})
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update profile fields; unset flags are left alone",
	RunE: func(cmd *cobra.Command, args []string) error {
		upd, err := profileUpdateFromFlags(cmd)
		if err != nil {
			return err
		}
		if upd.Empty() && !profileResetCalories && !profileResetMacros {
			return fmt.Errorf("nothing to update")
		}
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			var u *model.User
			var err error
			if !upd.Empty() {
				if u, err = svc.UpdateProfile(ctx, userID, upd); err != nil {
					return err
				}
			}
			if profileResetCalories {
				if u, err = svc.ResetCalorieTarget(ctx, userID); err != nil {
					return err
				}
			}
			if profileResetMacros {
				if u, err = svc.ResetMacros(ctx, userID); err != nil {
					return err
				}
			}
			printProfile(cmd.OutOrStdout(), svc, *u)
			return nil
		})
	},
}

func profileUpdateFromFlags(cmd *cobra.Command) (model.ProfileUpdate, error) {
	var upd model.ProfileUpdate
	f := cmd.Flags()
	if f.Changed("weight") {
		upd.WeightKg = &profileWeight
	}
	if f.Changed("height") {
		upd.HeightCm = &profileHeight
	}
	if f.Changed("age") {
		upd.Age = &profileAge
	}
	if f.Changed("sex") {
		sex, err := model.ParseSex(profileSex)
		if err != nil {
			return upd, err
		}
		upd.Sex = &sex
	}
	if f.Changed("activity") {
		activity, err := model.ParseActivityLevel(profileActivity)
		if err != nil {
			return upd, err
		}
		upd.ActivityLevel = &activity
	}
	if f.Changed("goal") {
		goal, err := model.ParseGoal(profileGoal)
		if err != nil {
			return upd, err
		}
		upd.Goal = &goal
	}
	if f.Changed("calories") {
		upd.DailyCalorieTarget = &profileCalories
	}
	if f.Changed("protein") {
		upd.ProteinTargetG = &profileProtein
	}
	if f.Changed("carbs") {
		upd.CarbsTargetG = &profileCarbs
	}
	if f.Changed("fat") {
		upd.FatTargetG = &profileFat
	}
	if f.Changed("reminder-hour") {
		upd.ReminderHour = &profileReminderHour
	}
	if f.Changed("notifications") {
		on, err := parseOnOff("notifications", profileNotifications)
		if err != nil {
			return upd, err
		}
		upd.NotificationsEnabled = &on
	}
	if f.Changed("weekly-summary") {
		on, err := parseOnOff("weekly-summary", profileWeekly)
		if err != nil {
			return upd, err
		}
		upd.WeeklySummaryEnabled = &on
	}
	return upd, nil
}

func printProfile(w io.Writer, svc *service.Service, u model.User) {
	fmt.Fprintf(w, "User %d\n", u.ID)
	if u.HasBiometrics() {
		fmt.Fprintf(w, "Weight: %gkg | Height: %gcm | Age: %d | Sex: %s\n", u.WeightKg, u.HeightCm, u.Age, u.Sex)
		fmt.Fprintf(w, "Activity: %s | Goal: %s\n", u.ActivityLevel, u.Goal)
	} else {
		fmt.Fprintln(w, "Biometrics: not set")
	}
	target := svc.CalorieTarget(u)
	suffix := ""
	if u.CalorieOverride {
		suffix = " (custom)"
	}
	fmt.Fprintf(w, "Daily target: %d kcal%s\n", target, suffix)
	m := svc.MacroTargets(u)
	fmt.Fprintf(w, "Macros: P %dg | C %dg | F %dg\n", m.ProteinG, m.CarbsG, m.FatG)
	fmt.Fprintf(w, "Reminders: %s at %02d:00 | Weekly summary: %s\n", onOff(u.NotificationsEnabled), u.ReminderHour, onOff(u.WeeklySummaryEnabled))
}

func addBiometricFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&profileWeight, "weight", 0, "Weight in kg")
	cmd.Flags().Float64Var(&profileHeight, "height", 0, "Height in cm")
	cmd.Flags().IntVar(&profileAge, "age", 0, "Age in years")
	cmd.Flags().StringVar(&profileSex, "sex", "", "male|female")
	cmd.Flags().StringVar(&profileActivity, "activity", "", "sedentary|lightly_active|moderately_active|very_active")
	cmd.Flags().StringVar(&profileGoal, "goal", "", "lose|maintain|gain|gain_muscles")
}

func init() {
	addBiometricFlags(profileOnboardCmd)
	for _, name := range []string{"weight", "height", "age", "sex", "activity", "goal"} {
		_ = profileOnboardCmd.MarkFlagRequired(name)
	}

	addBiometricFlags(profileSetCmd)
	profileSetCmd.Flags().IntVar(&profileCalories, "calories", 0, "Custom daily calorie target")
	profileSetCmd.Flags().IntVar(&profileProtein, "protein", 0, "Custom protein target in grams")
	profileSetCmd.Flags().IntVar(&profileCarbs, "carbs", 0, "Custom carbs target in grams")
	profileSetCmd.Flags().IntVar(&profileFat, "fat", 0, "Custom fat target in grams")
	profileSetCmd.Flags().IntVar(&profileReminderHour, "reminder-hour", 0, "Local hour (0-23) for the daily reminder")
	profileSetCmd.Flags().StringVar(&profileNotifications, "notifications", "", "on|off")
	profileSetCmd.Flags().StringVar(&profileWeekly, "weekly-summary", "", "on|off")
	profileSetCmd.Flags().BoolVar(&profileResetCalories, "reset-calories", false, "Drop the custom calorie target and recompute it")
	profileSetCmd.Flags().BoolVar(&profileResetMacros, "reset-macros", false, "Drop custom macro targets")

	profileCmd.AddCommand(profileOnboardCmd, profileSetCmd)
	rootCmd.AddCommand(profileCmd)
}
