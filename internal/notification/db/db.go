package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/nao1215/pushfan/pkg/migration"
	"github.com/rs/zerolog"
	// SQLiteドライバを登録する。
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBTX は *sql.DB と *sql.Tx が満たすクエリ実行インターフェース。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries はプッシュ配信テーブルへのクエリを実行する。
type Queries struct {
	db DBTX
}

// New は新しいQueriesを生成する。
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx はトランザクション上でクエリを実行するQueriesを返す。
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Open はSQLiteデータベースを開き、接続設定とマイグレーションを適用する。
// 書き込みを直列化するため接続数は1に制限する。
func Open(ctx context.Context, path string, log zerolog.Logger) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("外部キー制約の有効化に失敗: %w", err)
	}
	// インメモリDBではWALを使えないため、以下の設定は失敗しても続行する
	_, _ = sqlDB.ExecContext(ctx, "PRAGMA busy_timeout = 5000")
	_, _ = sqlDB.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = sqlDB.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if err := Migrate(ctx, sqlDB, log); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

// Migrate は埋め込まれたマイグレーションを適用する。
func Migrate(ctx context.Context, sqlDB *sql.DB, log zerolog.Logger) error {
	if _, err := migration.Run(ctx, sqlDB, migrationsFS, "migrations", log); err != nil {
		return fmt.Errorf("マイグレーションに失敗: %w", err)
	}
	return nil
}
