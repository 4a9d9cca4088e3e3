package nibbles

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/saadjs/nibbles/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, storage and optional integrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		d, err := openDeps(cmd.Context())
		if err != nil {
			check(out, "config and storage", err.Error(), false)
			return fmt.Errorf("doctor found problems")
		}
		defer d.Close()
		cfg := d.cfg

		storage := cfg.StorageDriver
		if storage == store.DriverSQLite {
			path, err := resolveDBPath(cfg)
			if err != nil {
				return err
			}
			storage += " " + path
		}
		check(out, "storage", storage, true)
		flags, err := d.svc.Flags(cmd.Context())
		if err != nil {
			check(out, "flags", err.Error(), false)
			return fmt.Errorf("doctor found problems")
		}
		check(out, "flags", fmt.Sprintf("%d readable", len(flags)), true)

		check(out, "redis", describe(cfg.RedisAddr, "not configured (in-process locks, no rate limits)"), true)
		if cfg.OpenAIAPIKey != "" {
			check(out, "food analysis", cfg.OpenAIModel, true)
		} else {
			check(out, "food analysis", "OPENAI_API_KEY not set", false)
		}
		check(out, "barcode lookup", cfg.OpenFoodFactsBaseURL, true)
		bot := "not configured"
		if cfg.TelegramBotToken != "" {
			bot = "token set"
		}
		check(out, "telegram bot", bot, true)
		webapp := "disabled"
		if cfg.WebAppEnabled {
			webapp = fmt.Sprintf("port %d", cfg.WebAppPort)
		}
		check(out, "dashboard api", webapp, true)
		check(out, "timezone", d.svc.Location().String(), true)
		return nil
	},
}

func check(w io.Writer, name, detail string, ok bool) {
	mark := "ok  "
	if !ok {
		mark = "FAIL"
	}
	fmt.Fprintf(w, "[%s] %-15s %s\n", mark, name, detail)
}

func describe(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
