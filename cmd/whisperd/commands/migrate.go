package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/urukhq/whisperd/internal/infra/postgres"
)

// MigrateUpAction はデータベーススキーマを最新へ移行します。
func MigrateUpAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	if err := postgres.RunMigrationsWithPool(app.Database.Pool); err != nil {
		return fmt.Errorf("マイグレーションの実行に失敗: %w", err)
	}

	app.Logger.Info("migrations applied")
	return nil
}
