package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"speaktoheaven/config"
	"speaktoheaven/db"
	"speaktoheaven/handlers"
	"speaktoheaven/logger"
	"speaktoheaven/memstore"
	"speaktoheaven/services"
)

const defaultGeminiModel = "gemini-2.5-flash"

// repository is what both storage drivers provide.
type repository interface {
	services.MessageStore
	services.AccountStore
	services.TakeoverStore
}

var (
	_ repository = (*db.Store)(nil)
	_ repository = (*memstore.Store)(nil)

	_ services.PersonaCatalog = (*config.Catalog)(nil)
)

type app struct {
	log      *logger.Logger
	handlers *handlers.Handlers
	sweeper  *services.EventSweeper

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Shutdown close failed", "error", err)
		}
	}
}

func wireApp(ctx context.Context, cfg config.Config, features config.Features, log *logger.Logger) (*app, error) {
	a := &app{log: log}

	catalog, err := config.LoadCatalog(cfg.PersonasFile)
	if err != nil {
		return nil, fmt.Errorf("wire persona catalog: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	var events services.EventPublisher = services.NopPublisher{}
	if cfg.RedisAddr != "" {
		pub, err := services.NewRedisPublisher(log, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("wire event publisher: %w", err)
		}
		events = pub
		a.closers = append(a.closers, pub.Close)
	}

	notifier := services.NewAlertNotifier(log, services.AlertConfig{
		SendgridAPIKey: cfg.Alerts.SendgridAPIKey,
		FromEmail:      cfg.Alerts.FromEmail,
		AlertEmail:     cfg.Alerts.AlertEmail,
		SlackWebhook:   cfg.Alerts.SlackWebhook,
	})

	completion, settings, err := newCompletion(ctx, cfg.Completion)
	if err != nil {
		a.Close()
		return nil, err
	}

	resolver := services.NewEntitlementResolver(store, cfg.FreeQuota)
	takeovers := services.NewTakeoverArbiter(log, store, events)
	chat := services.NewChatService(services.ChatDeps{
		Log:          log,
		Personas:     catalog,
		Messages:     store,
		Accounts:     store,
		Resolver:     resolver,
		Takeovers:    takeovers,
		Assembler:    services.NewAssembler(),
		Completion:   completion,
		Settings:     settings,
		HistoryLimit: cfg.HistoryLimit,
		Events:       events,
		Notifier:     notifier,
	})
	operator := services.NewOperatorService(log, catalog, store, store, takeovers, events)
	auth := services.NewAuthService(log, store, cfg.JWTSecret, cfg.SignupBonusCredits)

	var billing *services.BillingService
	if features.BillingEnabled {
		if cfg.Stripe.SecretKey == "" {
			a.Close()
			return nil, errors.New("STRIPE_SECRET_KEY must be set when BILLING_ENABLED=true")
		}
		billing = services.NewBillingService(log, store, services.NewStripeProcessor(cfg.Stripe.SecretKey), notifier, services.Prices{
			Subscription:   cfg.Stripe.PriceSubscription,
			Credits:        cfg.Stripe.PriceCredits,
			CreditsPerPack: cfg.Stripe.CreditsPerPack,
			Lifetime:       cfg.Stripe.PriceLifetime,
		}, cfg.FrontendURL)
	}

	a.handlers = handlers.New(handlers.Deps{
		Log:           log,
		Features:      features,
		Personas:      catalog,
		Messages:      store,
		Accounts:      store,
		Auth:          auth,
		Chat:          chat,
		Operator:      operator,
		Billing:       billing,
		Resolver:      resolver,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	})
	a.sweeper = services.NewEventSweeper(log, store, cfg.EventRetention, services.DefaultSweepInterval)
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, log *logger.Logger) (repository, func() error, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		log.Warn("Using in-memory storage; data is lost on restart")
		return memstore.New(), func() error { return nil }, nil
	default:
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := db.Migrate(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		log.Info("Database schema verified")
		return db.NewStore(conn), conn.Close, nil
	}
}

func newCompletion(ctx context.Context, cfg config.CompletionConfig) (services.CompletionClient, services.CompletionSettings, error) {
	settings := services.DefaultCompletionSettings()
	if cfg.Model != "" {
		settings.Model = cfg.Model
	}
	if cfg.Temperature > 0 {
		settings.Temperature = float32(cfg.Temperature)
	}
	if cfg.MaxTokens > 0 {
		settings.MaxTokens = cfg.MaxTokens
	}
	if cfg.Timeout > 0 {
		settings.Timeout = cfg.Timeout
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		// OpenRouter model slugs carry a vendor prefix Gemini does not know.
		if strings.Contains(settings.Model, "/") {
			settings.Model = defaultGeminiModel
		}
		client, err := services.NewGeminiCompletion(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, settings, fmt.Errorf("wire gemini completion: %w", err)
		}
		return client, settings, nil
	case config.ProviderEcho:
		return services.EchoCompletion{}, settings, nil
	default:
		client, err := services.NewOpenRouterCompletion(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, &http.Client{Timeout: settings.Timeout + 5*time.Second})
		if err != nil {
			return nil, settings, fmt.Errorf("wire openrouter completion: %w", err)
		}
		return client, settings, nil
	}
}
