package nibbles

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/saadjs/nibbles/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a dashboard API token for --user",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
		if err != nil {
			return err
		}
		tok, exp, err := tokens.Generate(userID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
