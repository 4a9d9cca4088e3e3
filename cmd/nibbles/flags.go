package nibbles

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saadjs/nibbles/internal/service"
)

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "List global feature flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			flags, err := svc.Flags(ctx)
			if err != nil {
				return err
			}
			for _, f := range flags {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", f.Name, onOff(f.Enabled))
			}
			return nil
		})
	},
}

var flagsSetCmd = &cobra.Command{
	Use:   "set <name> <on|off>",
	Short: "Turn a feature flag on or off",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff("flag value", args[1])
		if err != nil {
			return err
		}
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			if err := svc.SetFlag(ctx, args[0], on); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], onOff(on))
			return nil
		})
	},
}

func init() {
	flagsCmd.AddCommand(flagsSetCmd)
	rootCmd.AddCommand(flagsCmd)
}
