package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "データベースのマイグレーションを適用する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sqlDB, cfg, err := opts.openDB(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "マイグレーションを適用しました: %s\n", cfg.DatabasePath)
			return nil
		},
	}
}
