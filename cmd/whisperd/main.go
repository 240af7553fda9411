package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/urukhq/whisperd/cmd/whisperd/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定（設定読み込み後に各コマンドが上書きする）
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "whisperd",
		Usage: "非同期音声文字起こしサービス",
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "API サーバ管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "start",
						Usage:  "API サーバを起動",
						Flags:  []cli.Flag{envFlag},
						Action: commands.ServerStartAction,
					},
				},
			},
			{
				Name:  "worker",
				Usage: "文字起こしワーカー管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "start",
						Usage:  "ワーカーを起動",
						Flags:  []cli.Flag{envFlag},
						Action: commands.WorkerStartAction,
					},
				},
			},
			{
				Name:  "migrate",
				Usage: "データベースマイグレーションコマンド",
				Commands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "スキーマを最新へ移行",
						Flags:  []cli.Flag{envFlag},
						Action: commands.MigrateUpAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatalf("エラー: %v", err)
	}
}
