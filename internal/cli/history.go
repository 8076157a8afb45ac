package cli

import (
	"database/sql"
	"fmt"

	notificationdb "github.com/nao1215/pushfan/internal/notification/db"
	"github.com/nao1215/pushfan/internal/store"
	"github.com/nao1215/pushfan/pkg/pushgateway"
	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		notificationID int64
		status         string
		limit          int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "配信履歴を新しい順に表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch pushgateway.TicketStatus(status) {
			case "", pushgateway.TicketOK, pushgateway.TicketError, pushgateway.TicketPending:
			default:
				return fmt.Errorf("配信状態が不正です: %s", status)
			}
			if limit <= 0 {
				return fmt.Errorf("--limit は1以上を指定してください: %d", limit)
			}

			sqlDB, _, err := opts.openDB(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			rows, err := store.New(sqlDB).Queries().ListHistory(cmd.Context(), notificationdb.ListHistoryParams{
				DeliveryStatus: sql.NullString{String: status, Valid: status != ""},
				NotificationID: sql.NullInt64{Int64: notificationID, Valid: notificationID > 0},
				Limit:          int64(limit),
			})
			if err != nil {
				return fmt.Errorf("配信履歴の取得に失敗: %w", err)
			}
			renderHistory(cmd.OutOrStdout(), rows)
			return nil
		},
	}

	cmd.Flags().Int64Var(&notificationID, "notification", 0, "通知IDで絞り込む")
	cmd.Flags().StringVar(&status, "status", "", "配信状態で絞り込む（ok|error|pending）")
	cmd.Flags().IntVar(&limit, "limit", 20, "表示件数")
	return cmd
}
