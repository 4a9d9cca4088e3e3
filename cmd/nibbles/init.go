package nibbles

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saadjs/nibbles/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the nibbles database",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		if d.cfg.StorageDriver == store.DriverPostgres {
			fmt.Fprintln(cmd.OutOrStdout(), "Initialized nibbles schema in postgres")
			return nil
		}
		path, err := resolveDBPath(d.cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Initialized nibbles database at %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
