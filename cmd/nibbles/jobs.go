package nibbles

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/saadjs/nibbles/internal/service"
)

// printNotifier writes notifications to the terminal instead of a chat.
type printNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printNotifier) Notify(_ context.Context, userID int64, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, "--- to user %d ---\n%s\n", userID, text)
	return err
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Run a scheduled job once, printing its messages",
}

var jobsRemindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Send due daily reminders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			sent, err := svc.SendReminders(ctx, &printNotifier{w: cmd.OutOrStdout()})
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %d reminders\n", sent)
			return err
		})
	},
}

var jobsWeeklyForce bool

var jobsWeeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Send due weekly summaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			n := &printNotifier{w: cmd.OutOrStdout()}
			send := svc.SendWeeklySummaries
			if jobsWeeklyForce {
				send = svc.SendWeeklySummariesNow
			}
			sent, err := send(ctx, n)
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %d weekly summaries\n", sent)
			return err
		})
	},
}

var jobsStreaksCmd = &cobra.Command{
	Use:   "streaks",
	Short: "Reset streaks of pets that missed a day",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			n, err := svc.RefreshStreaks(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d streaks\n", n)
			return nil
		})
	},
}

func init() {
	jobsWeeklyCmd.Flags().BoolVar(&jobsWeeklyForce, "now", false, "Ignore the Monday schedule")
	jobsCmd.AddCommand(jobsRemindersCmd, jobsWeeklyCmd, jobsStreaksCmd)
	rootCmd.AddCommand(jobsCmd)
}
