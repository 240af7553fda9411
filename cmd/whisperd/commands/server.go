package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/urukhq/whisperd/internal/core/job"
	"github.com/urukhq/whisperd/internal/infra/azure"
	"github.com/urukhq/whisperd/internal/infra/identity"
	"github.com/urukhq/whisperd/internal/infra/postgres"
	"github.com/urukhq/whisperd/internal/infra/taskqueue"
	"github.com/urukhq/whisperd/internal/interface/api"
)

// ServerStartAction は API サーバを起動します。
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config
	logger := app.Logger

	// スキーマは起動時に揃えます。冪等なので多重起動でも安全です。
	if err := postgres.RunMigrationsWithPool(app.Database.Pool); err != nil {
		return fmt.Errorf("マイグレーションの実行に失敗: %w", err)
	}

	repo := postgres.NewJobRepository(app.Database.Pool)

	queue := taskqueue.NewClient(cfg.Redis, cfg.Queue)
	defer queue.Close()

	inspector := taskqueue.NewInspector(cfg.Redis, cfg.Queue.Name)
	defer inspector.Close()

	phases := taskqueue.NewPhaseStore(cfg.Redis, cfg.Queue.PhaseTTL, logger)
	defer phases.Close()

	// Blob ストレージは任意構成。未設定ならアップロード経由の受付だけが
	// 無効になり、URL 直接指定の受付はそのまま動きます。
	var storage job.BlobStorage
	if blob, err := azure.NewBlobStorage(cfg.Azure.ConnectionString, cfg.Azure.Container); err == nil {
		storage = blob
	} else if !errors.Is(err, job.ErrStorageNotConfigured) {
		return fmt.Errorf("Blob ストレージの初期化に失敗: %w", err)
	} else {
		logger.Warn("blob storage is not configured; file upload endpoint is disabled")
	}

	service := job.NewService(repo, queue, storage, logger)
	resolver := job.NewResolver(repo, inspector, phases, logger)

	auth := api.NewAuthenticator(identity.NewClient(cfg.MainBackendURL), logger)
	handler := api.NewHandler(service, resolver, logger)
	router := api.NewRouter(handler, auth, cfg.APIPrefix)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server started", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API サーバの起動に失敗: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API サーバの停止に失敗: %w", err)
	}
	return nil
}
