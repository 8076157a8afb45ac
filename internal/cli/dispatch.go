package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/nao1215/pushfan/internal/dispatch"
	"github.com/nao1215/pushfan/internal/store"
	"github.com/nao1215/pushfan/pkg/pushgateway"
	"github.com/spf13/cobra"
)

func newDispatchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch <notification-id>",
		Short: "通知を宛先へ送信する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseNotificationID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sqlDB, cfg, err := opts.openDB(ctx, cmd)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			log := opts.logger(cmd)
			gw, err := pushgateway.Open(ctx, pushgateway.Options{
				Kind:                cfg.Gateway,
				ExpoBaseURL:         cfg.ExpoBaseURL,
				ExpoAccessToken:     cfg.ExpoAccessToken,
				FirebaseCredentials: cfg.FirebaseCredentials,
			}, log)
			if err != nil {
				return fmt.Errorf("プッシュゲートウェイの初期化に失敗: %w", err)
			}

			st := store.New(sqlDB)
			var resolverOpts []dispatch.ResolverOption
			if cfg.GroupFallbackToAll() {
				resolverOpts = append(resolverOpts, dispatch.WithGroupFallbackAll())
			}
			d := dispatch.New(st, dispatch.NewResolver(st, resolverOpts...), gw, st, dispatch.Config{
				ChunksPerSecond:    cfg.ChunksPerSecond,
				HistoryConcurrency: cfg.HistoryConcurrency,
			}, log)

			result, err := d.Dispatch(context.WithoutCancel(ctx), id)
			if result != nil {
				renderDispatchResult(cmd.OutOrStdout(), result)
			}
			if err != nil {
				var chunkErr *dispatch.ChunkError
				if errors.As(err, &chunkErr) {
					return fmt.Errorf("通知 %d の送信に失敗。通知は元の状態に戻しました: %w", id, err)
				}
				return fmt.Errorf("通知 %d を送信できません: %w", id, err)
			}
			return nil
		},
	}
}

func newReleaseCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "release <notification-id>",
		Short: "送信中のまま残った通知をdraftへ戻す",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseNotificationID(args[0])
			if err != nil {
				return err
			}

			sqlDB, _, err := opts.openDB(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if err := store.New(sqlDB).ReleaseNotification(cmd.Context(), id, dispatch.StatusDraft); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "通知 %d をdraftへ戻しました\n", id)
			return nil
		},
	}
}

func parseNotificationID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("通知IDが不正です: %s", s)
	}
	return id, nil
}
