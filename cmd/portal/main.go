// Package main запускает HTTP-сервер клиентского портала клининговой службы.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/cleaning-portal/internal/botcheck"
	"github.com/mmeshcher/cleaning-portal/internal/config"
	"github.com/mmeshcher/cleaning-portal/internal/formrelay"
	"github.com/mmeshcher/cleaning-portal/internal/handler"
	"github.com/mmeshcher/cleaning-portal/internal/middleware"
	"github.com/mmeshcher/cleaning-portal/internal/notify"
	"github.com/mmeshcher/cleaning-portal/internal/payment"
	"github.com/mmeshcher/cleaning-portal/internal/realtime"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
	"github.com/mmeshcher/cleaning-portal/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if cfg.AuthJWTSecret == "" {
		sugar.Fatalw("configuration error", "error", "AUTH_JWT_SECRET is required")
	}
	loc, err := cfg.Location()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	gateway := payment.NewGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripeCurrency)
	if !gateway.Enabled() {
		sugar.Warn("stripe is not configured, card payments are disabled")
	}

	dispatcher := notify.NewDispatcher(notify.Config{
		SendGridAPIKey:   cfg.SendGridAPIKey,
		FromEmail:        cfg.SendGridFromEmail,
		FromName:         cfg.SendGridFromName,
		Sandbox:          cfg.SendGridSandbox,
		BusinessEmail:    cfg.BusinessEmail,
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
		TwilioFromPhone:  cfg.TwilioFromPhone,
	}, logger)

	svc := service.NewService(service.Deps{
		Repo:      repo,
		Payments:  gateway,
		Notifier:  dispatcher,
		BotCheck:  botcheck.NewClient("", cfg.TurnstileSecret),
		FormRelay: formrelay.NewClient(cfg.FormRelayURL),
		Logger:    logger,
	}, service.Options{
		Location:       loc,
		LateFeePercent: cfg.LateFeePercent,
		InvoiceDueDays: cfg.InvoiceDueDays,
		ZelleRecipient: cfg.ZelleRecipient,
	})
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthJWTSecret, cfg.AuthLoginURL)
	authorizer, err := middleware.NewAuthorizer(svc, logger)
	if err != nil {
		sugar.Fatalw("authorization policy error", "error", err.Error())
	}

	hub := realtime.NewHub()
	feed := realtime.NewHandler(hub, logger, originCheck(cfg.CORSAllowedOrigins), func(r *http.Request) uuid.UUID {
		if p, ok := middleware.ProfileFromContext(r.Context()); ok {
			return p.ID
		}
		return uuid.Nil
	})
	listener := realtime.NewListener(repo.Pool(), repo, hub, logger)

	h := handler.NewHandler(svc, logger, authMiddleware, authorizer, handler.Options{
		AdminFeed:      feed,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Доставка изменений ленты администраторов через websocket
	g.Go(func() error {
		return listener.Run(ctx)
	})

	// Плановые обработки: просроченные счета и автозавершение визитов
	g.Go(func() error {
		return svc.RunMaintenance(ctx, cfg.MaintenanceSchedule)
	})

	g.Go(func() error {
		sugar.Infow("starting portal server", "addr", cfg.RunAddress, "timezone", loc.String())
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

// originCheck разрешает websocket-подключения с перечисленных источников.
// Без списка допускается только тот же источник.
func originCheck(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
