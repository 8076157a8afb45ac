package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/pushfan/pkg/middleware"
	"github.com/spf13/cobra"
)

func newJWTCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jwt",
		Short: "開発用のセッショントークンを扱う",
	}
	cmd.AddCommand(newJWTIssueCmd(opts))
	return cmd
}

func newJWTIssueCmd(opts *globalOptions) *cobra.Command {
	var (
		userID int64
		email  string
		ttl    string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "JWT_SECRETで署名したセッショントークンを発行する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID <= 0 {
				return errors.New("--user を指定してください")
			}
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			lifetime := cfg.TokenTTL
			if ttl != "" {
				if lifetime, err = parsePositiveDuration(ttl); err != nil {
					return err
				}
			}

			token, err := middleware.GenerateJWT(cfg.JWTSecret, userID, email, lifetime)
			if err != nil {
				return fmt.Errorf("トークンの発行に失敗: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "ユーザーID")
	cmd.Flags().StringVar(&email, "email", "", "メールアドレス")
	cmd.Flags().StringVar(&ttl, "ttl", "", "有効期間（例: 1h、既定: TOKEN_TTL）")
	return cmd
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("有効期間が不正です: %s", s)
	}
	return d, nil
}
