package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/pushfan/internal/store"
	"github.com/spf13/cobra"
)

func newUserCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "ユーザーを管理する",
	}
	cmd.AddCommand(newUserCreateCmd(opts))
	return cmd
}

func newUserCreateCmd(opts *globalOptions) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "ユーザーを作成する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email = strings.TrimSpace(email)
			if email == "" {
				return errors.New("--email を指定してください")
			}

			sqlDB, _, err := opts.openDB(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			u, err := store.New(sqlDB).Queries().CreateUser(cmd.Context(), email)
			if err != nil {
				return fmt.Errorf("ユーザーの作成に失敗: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ユーザーを作成しました: id=%d email=%s\n", u.ID, u.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "メールアドレス")
	return cmd
}
