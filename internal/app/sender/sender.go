// Package sender собирает процесс отправителя писем: потребляет очереди
// уведомлений и отправляет письма через SMTP.
package sender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/phoenix-invest/phoenix-crm/internal/config"
	"github.com/phoenix-invest/phoenix-crm/internal/lib/rabbitmq"
	"github.com/phoenix-invest/phoenix-crm/internal/lib/smtp"
	senderservice "github.com/phoenix-invest/phoenix-crm/internal/services/sender"
)

type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	tierLinks := make(map[string]string, len(cfg.Tiers))
	for tier, group := range cfg.Tiers {
		tierLinks[tier] = group.InviteLink
	}

	transport := smtp.NewTransport(cfg, logger)
	senderService := senderservice.NewSenderService(transport, tierLinks, cfg.ContractPath, logger)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, "notification.welcome", a.senderService.SendWelcomeEmail)
	if err != nil {
		a.logger.Error("failed to start notification.welcome consumer", slog.Any("err", err))
		return err
	}

	err = rabbitmq.ConsumerMessage(ctx, a.ch, "notification.renewal", a.senderService.SendRenewalEmail)
	if err != nil {
		a.logger.Error("failed to start notification.renewal consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
