// Package scheduler собирает процесс планировщика напоминаний о продлении.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"

	"github.com/phoenix-invest/phoenix-crm/internal/config"
	"github.com/phoenix-invest/phoenix-crm/internal/lib/rabbitmq"
	"github.com/phoenix-invest/phoenix-crm/internal/metrics"
	schedulerservice "github.com/phoenix-invest/phoenix-crm/internal/services/scheduler"
	"github.com/phoenix-invest/phoenix-crm/internal/storage/repository"
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.SchedulerService
	checkInterval    time.Duration
	conn             *amqp.Connection
	ch               *amqp.Channel
	db               *repository.Storage
	metricsServer    *http.Server
	logger           *slog.Logger
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

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(ctx, db); err != nil {
		closeResources(ch, conn, logger)
		return nil, err
	}

	schedulerService := schedulerservice.NewSchedulerService(db, cfg.LeadDays, metrics.New(), logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.AddressHTTP,
		Handler: mux,
	}

	return &App{
		schedulerService: schedulerService,
		checkInterval:    cfg.CheckInterval,
		conn:             conn,
		ch:               ch,
		db:               db,
		metricsServer:    metricsServer,
		logger:           logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", "error", err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", "error", err)
		}
	}
}

// Run запускает планировщик и сервер метрик.
func (a *App) Run(ctx context.Context) error {
	go func() {
		a.logger.Info("metrics server starting on", slog.String("address", a.metricsServer.Addr))
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server failed", slog.Any("err", err))
		}
	}()

	go a.schedulerService.Run(ctx, a.ch, a.checkInterval)

	<-ctx.Done()

	a.logger.Info("shutting down scheduler service")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.metricsServer.Shutdown(timeoutCtx); err != nil {
		a.logger.Error("failed to shutdown metrics server", slog.Any("err", err))
	}
	closeResources(a.ch, a.conn, a.logger)
	_ = a.db.DB.Close()
	return nil
}
