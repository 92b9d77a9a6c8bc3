package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/config"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/directory"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/events"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/match"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/migrations"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/persistence"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/transport"
	"github.com/koopa0/system-design/14-pong-match-engine/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "設定檔路徑（YAML）")
	migrateCmd := flag.String("migrate", "", "只執行資料庫遷移後結束：up、down 或 version")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "載入設定失敗: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	if *migrateCmd != "" {
		if err := runMigrate(cfg, log, *migrateCmd); err != nil {
			log.Error("資料庫遷移失敗", "command", *migrateCmd, "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, log); err != nil {
		log.Error("服務器異常結束", "error", err)
		os.Exit(1)
	}
}

// runMigrate 維運用的遷移指令
func runMigrate(cfg *config.Config, log *slog.Logger, cmd string) error {
	m, err := migrations.New(cfg.PostgresDSN(), log)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	switch cmd {
	case "up":
		return m.Up()
	case "down":
		if err := m.Down(); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("未知的遷移指令: %q", cmd)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Info("資料庫尚未遷移")
		return nil
	}
	if err != nil {
		return fmt.Errorf("查詢遷移版本: %w", err)
	}
	log.Info("資料庫遷移版本", "version", version, "dirty", dirty)
	return nil
}

// backends 依設定建立的外部依賴
type backends struct {
	registry directory.Registry
	recorder match.Recorder
	fallback *persistence.FallbackRecorder
	closers  []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	b, err := setupBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	opts := []match.Option{}
	if cfg.NATS.Enabled {
		pub, err := events.Connect(cfg.NATS.Config, log)
		if err != nil {
			return err
		}
		defer func() { _ = pub.Close() }()
		opts = append(opts, match.WithPublisher(pub))
		log.Info("NATS 事件發布已啟用", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	hub := transport.NewHub(log)
	engine, err := match.NewEngine(cfg.Match, b.registry, hub, b.recorder, log, opts...)
	if err != nil {
		return err
	}

	// 背景排程：遺棄對戰清理、結果重放
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	if err := match.RegisterJanitor(scheduler, engine); err != nil {
		return fmt.Errorf("register janitor: %w", err)
	}
	if b.fallback != nil {
		if err := persistence.RegisterReplay(scheduler, b.fallback, cfg.Redis.ReplayInterval, cfg.Match.PersistTimeout); err != nil {
			return fmt.Errorf("register replay: %w", err)
		}
	}
	scheduler.Start()

	ws := transport.NewWSHandler(engine, hub, cfg.Server.AllowedOrigins, log)
	handler := transport.NewHandler(engine, b.registry, hub, ws, log)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("對戰引擎啟動",
			"addr", server.Addr,
			"storage", cfg.Storage,
			"tick_rate", cfg.Match.TickRate,
			"resumable", cfg.Match.Resumable)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("收到關閉信號，開始優雅關閉...", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接受新連接
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("服務器關閉失敗", "error", err)
	}

	// 關閉所有 WebSocket，讓斷線路徑結算進行中的對戰
	hub.Stop()
	engine.Stop()

	if err := scheduler.Shutdown(); err != nil {
		log.Error("排程器關閉失敗", "error", err)
	}

	log.Info("服務器已關閉", "stats", engine.Stats())
	return nil
}

// setupBackends 依 storage 設定選擇目錄與結果儲存
func setupBackends(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backends, error) {
	b := &backends{}

	if cfg.Storage == config.StorageMemory {
		b.registry = directory.NewMemory()
		b.recorder = persistence.NewMemoryRecorder()
		log.Warn("使用記憶體儲存，重啟後資料會遺失")
		return b, nil
	}

	dsn := cfg.PostgresDSN()

	m, err := migrations.New(dsn, log)
	if err != nil {
		return nil, err
	}
	if err := m.Up(); err != nil {
		_ = m.Close()
		return nil, err
	}
	_ = m.Close()

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = cfg.Postgres.MaxConns
	poolCfg.MinConns = cfg.Postgres.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	b.closers = append(b.closers, pool.Close)

	if err := pool.Ping(ctx); err != nil {
		b.close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	b.registry = directory.NewPostgres(pool)
	b.recorder = persistence.NewPostgresRecorder(pool)

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = client.Close() })

		if err := client.Ping(ctx).Err(); err != nil {
			// 暫存佇列是備援，Redis 暫時不可用不阻止啟動
			log.Warn("Redis 無法連線，結果暫存可能失敗", "addr", cfg.Redis.Addr, "error", err)
		}

		spool := persistence.NewSpool(client, cfg.Redis.SpoolKey, log)
		b.fallback = persistence.NewFallbackRecorder(b.recorder, spool, log)
		b.recorder = b.fallback
		log.Info("結果暫存佇列已啟用", "addr", cfg.Redis.Addr, "key", cfg.Redis.SpoolKey)
	}

	return b, nil
}
