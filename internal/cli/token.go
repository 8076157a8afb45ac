package cli

import (
	"errors"
	"fmt"

	"github.com/nao1215/pushfan/internal/store"
	"github.com/nao1215/pushfan/pkg/config"
	"github.com/nao1215/pushfan/pkg/pushgateway"
	"github.com/spf13/cobra"
)

func newTokenCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "ユーザーのプッシュトークンを管理する",
	}
	cmd.AddCommand(newTokenMutateCmd(opts, "add", "プッシュトークンを登録する"))
	cmd.AddCommand(newTokenMutateCmd(opts, "remove", "プッシュトークンを削除する"))
	return cmd
}

func newTokenMutateCmd(opts *globalOptions, use, short string) *cobra.Command {
	var (
		userID int64
		token  string
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID <= 0 {
				return errors.New("--user を指定してください")
			}
			if token == "" {
				return errors.New("--token を指定してください")
			}

			sqlDB, cfg, err := opts.openDB(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			st := store.New(sqlDB)

			var count int
			if use == "add" {
				if !validToken(cfg.Gateway, token) {
					return fmt.Errorf("%s のトークン書式ではありません: %s", cfg.Gateway, token)
				}
				count, err = st.AddPushToken(cmd.Context(), userID, token)
			} else {
				count, err = st.RemovePushToken(cmd.Context(), userID, token)
			}
			if err != nil {
				return fmt.Errorf("ユーザー %d のトークン更新に失敗: %w", userID, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ユーザー %d のトークン数: %d\n", userID, count)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "ユーザーID")
	cmd.Flags().StringVar(&token, "token", "", "プッシュトークン")
	return cmd
}

// validToken はゲートウェイ種別に応じてトークンの書式を検証する。
func validToken(gateway, token string) bool {
	if gateway == config.GatewayFCM {
		return pushgateway.IsFCMToken(token)
	}
	return pushgateway.IsExpoPushToken(token)
}
