package nibbles

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath     string
	configPath string
	userID     int64
)

var rootCmd = &cobra.Command{
	Use:   "nibbles",
	Short: "nibbles tracks meals and raises a pet that grows with your logging",
	Long: "nibbles estimates calories and macros for your meals, tracks them against a daily target " +
		"and feeds a virtual pet every time you log. Run `nibbles serve` for the chat bot and dashboard API.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides DATABASE_PATH)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to an env-format config file (default ./app.env)")
	rootCmd.PersistentFlags().Int64Var(&userID, "user", 1, "User id to act as")
}
