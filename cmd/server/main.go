package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"ssfile/internal/api"
	"ssfile/internal/config"
	"ssfile/internal/database"
	"ssfile/internal/logging"
	"ssfile/internal/service"
	"ssfile/internal/storage/local"
	"ssfile/internal/writers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("加载配置失败")
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogPretty); err != nil {
		log.Fatal().Err(err).Msg("初始化日志失败")
	}
	log.Info().Str("uploads_dir", cfg.UploadsDir).Msg("配置加载完成，开始启动服务")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, pool, err := newRegistry(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化 writer 注册表失败")
	}
	if pool != nil {
		defer pool.Close()
	}

	store, err := local.New(local.Options{
		Dir:              cfg.UploadsDir,
		KeyLength:        cfg.KeyLength,
		MaxAttempts:      cfg.MaxAllocationAttempts,
		CompressionLevel: cfg.CompressionLevel,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("初始化存储失败")
	}

	fileHandler := api.NewFileHandler(service.NewFileService(store), cfg.MaxUploadBytes)
	router := api.NewRouter(cfg, fileHandler, registry)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		Handler:           router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("服务开始监听")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error().Err(err).Msg("监听失败")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("优雅关闭失败")
	}

	log.Info().Msg("服务已停止")
}

// newRegistry 按 WRITER_SOURCE 构建注册表；postgres 模式同时返回连接池以便退出时关闭。
func newRegistry(ctx context.Context, cfg *config.Config) (writers.Registry, *pgxpool.Pool, error) {
	switch cfg.WriterSource {
	case config.WriterSourcePostgres:
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return writers.NewPostgres(pool), pool, nil
	default:
		registry, err := writers.NewStatic(cfg.APIKeys)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Int("writers", len(cfg.APIKeys)).Msg("使用静态 API Key 列表")
		return registry, nil, nil
	}
}
