// Package main запускает HTTP-сервер магазина RUES VERTES.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/ruesvertes/internal/cdek"
	"github.com/mmeshcher/ruesvertes/internal/config"
	"github.com/mmeshcher/ruesvertes/internal/handler"
	"github.com/mmeshcher/ruesvertes/internal/middleware"
	"github.com/mmeshcher/ruesvertes/internal/notify"
	"github.com/mmeshcher/ruesvertes/internal/repository"
	"github.com/mmeshcher/ruesvertes/internal/service"
	"github.com/mmeshcher/ruesvertes/internal/yookassa"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	cdekClient := cdek.NewClient(cdek.Config{
		ClientID:     cfg.CDEK.ClientID,
		ClientSecret: cfg.CDEK.ClientSecret,
		TestMode:     cfg.CDEK.TestMode,
		BaseURL:      cfg.CDEK.BaseURL,
		Timeout:      cfg.CDEK.Timeout,
	}, logger.Named("cdek"))
	if !cdekClient.Configured() {
		sugar.Warn("CDEK credentials are not set, delivery is free and shipments are skipped")
	}

	paymentClient := yookassa.NewClient(yookassa.Config{
		ShopID:    cfg.YooKassa.ShopID,
		SecretKey: cfg.YooKassa.SecretKey,
		BaseURL:   cfg.YooKassa.BaseURL,
		AppURL:    cfg.AppURL,
		Timeout:   cfg.YooKassa.Timeout,
	}, logger.Named("yookassa"))
	if !paymentClient.Configured() {
		sugar.Warn("YooKassa credentials are not set, checkout will fail")
	}

	mailer := notify.NewMailer(notify.Config{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		User:      cfg.SMTP.User,
		Password:  cfg.SMTP.Password,
		From:      cfg.SMTP.From,
		ShopEmail: cfg.SMTP.ShopEmail,
	}, logger.Named("notify"))

	svc := service.NewService(repo, cdekClient, paymentClient, mailer, service.Options{
		Sender: service.Sender{
			City:    cfg.CDEK.SenderCity,
			Address: cfg.CDEK.SenderAddress,
			Name:    cfg.CDEK.SenderName,
			Phone:   cfg.CDEK.SenderPhone,
		},
		OutboxInterval:      cfg.OutboxInterval,
		PaymentSyncInterval: cfg.PaymentSyncInterval,
	}, logger.Named("service"))
	defer svc.Close()

	if cfg.AuthSecret == "" {
		sugar.Warn("AUTH_SECRET is not set, tokens will not survive a restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)

	h := handler.NewHandler(svc, cdekClient, logger, authMiddleware, handler.Options{
		CORSOrigins:    cfg.CORSOrigins,
		WebhookIPCheck: cfg.YooKassa.WebhookIPs,
		SenderCity:     cfg.CDEK.SenderCity,
	})

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Доставка отгрузок в СДЭК и писем об оплате
	g.Go(func() error {
		svc.RunOutbox(ctx)
		return nil
	})

	// Сверка зависших платежей с ЮKassa
	g.Go(func() error {
		svc.RunPaymentSync(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting ruesvertes server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
