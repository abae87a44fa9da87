// Package bot собирает процесс Telegram-бота: поллер валидации доступа
// и периодический цикл отзыва просроченных клиентов.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phoenix-invest/phoenix-crm/internal/cache"
	"github.com/phoenix-invest/phoenix-crm/internal/config"
	"github.com/phoenix-invest/phoenix-crm/internal/metrics"
	botservice "github.com/phoenix-invest/phoenix-crm/internal/services/bot"
	sweeperservice "github.com/phoenix-invest/phoenix-crm/internal/services/sweeper"
	"github.com/phoenix-invest/phoenix-crm/internal/storage/repository"
	"github.com/phoenix-invest/phoenix-crm/internal/telegram"
)

// App представляет приложение бота.
type App struct {
	botService     *botservice.BotService
	sweeperService *sweeperservice.SweeperService
	metricsServer  *http.Server
	db             *repository.Storage
	logger         *slog.Logger
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	for range 10 {
		if err := db.CheckDatabaseReady(ctx); err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения бота.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(ctx, db); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	tg := telegram.NewClient(cfg.APIBaseURL, cfg.BotToken, cfg.PollTimeout)
	m := metrics.New()

	botService := botservice.NewBotService(db, tg, cacheRedis, cfg.Tiers, cfg.PollTimeout, m, logger)
	sweeperService := sweeperservice.NewSweeperService(db, tg, cfg.Tiers,
		cfg.FallbackTier, cfg.SweepInterval, m, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.AddressHTTP,
		Handler: mux,
	}

	return &App{
		botService:     botService,
		sweeperService: sweeperService,
		metricsServer:  metricsServer,
		db:             db,
		logger:         logger,
	}, nil
}

// Run запускает поллер, цикл отзыва и сервер метрик. Останавливается по ctx.
func (a *App) Run(ctx context.Context) error {
	go func() {
		a.logger.Info("metrics server starting on", slog.String("address", a.metricsServer.Addr))
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server failed", slog.Any("err", err))
		}
	}()

	go a.sweeperService.Run(ctx)
	go a.botService.Run(ctx)

	<-ctx.Done()

	a.logger.Info("shutting down bot service")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.metricsServer.Shutdown(timeoutCtx); err != nil {
		a.logger.Error("failed to shutdown metrics server", slog.Any("err", err))
	}
	_ = a.db.DB.Close()
	return nil
}
