package cli

import "github.com/spf13/cobra"

var version = "dev"

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "pushctl",
		Short:         "pushfanの運用コマンド",
		Long:          "pushctlはpushfanのデータベースを直接操作し、ユーザーとトークンの管理や通知の送信を行う。",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(cmd)

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newUserCmd(opts))
	cmd.AddCommand(newTokenCmd(opts))
	cmd.AddCommand(newJWTCmd(opts))
	cmd.AddCommand(newDispatchCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newReleaseCmd(opts))
	return cmd
}

// NewRootCmdForTest はテスト用にルートコマンドを返す。
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

// Execute はpushctlを実行する。
func Execute() error {
	return newRootCmd().Execute()
}
