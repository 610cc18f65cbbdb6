package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crqbank/internal/app"
	"crqbank/internal/config"
	"crqbank/internal/infra/amqp"
	"crqbank/internal/infra/csv"
	"crqbank/internal/infra/memory"
	"crqbank/internal/infra/postgres"
	redissession "crqbank/internal/infra/redis"
	"crqbank/internal/infra/stripe"
	transport "crqbank/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Server.SessionSecret == "" {
		return errors.New("server.session_secret (or SESSION_SECRET) must be set")
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}
	baseURL := strings.TrimRight(cfg.Server.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:" + finalPort
	}
	external := config.Duration(cfg.Timeouts.External, 5*time.Second)
	sessionTTL := config.Duration(cfg.Server.SessionTTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	source, err := questionSource(cfg, pool)
	if err != nil {
		return err
	}
	questions := memory.NewQuestionStore(source)
	if err := questions.Preload(ctx); err != nil {
		return err
	}

	var users app.UserRepository = memory.NewUserStore()
	var responses app.ResponseRepository = memory.NewResponseStore()
	if pool != nil {
		users = postgres.NewUserStore(pool)
		responses = postgres.NewResponseStore(pool)
	} else {
		log.Printf("postgres not configured; accounts and history are kept in memory")
	}

	var sessions app.SessionRepository = memory.NewSessionStore(sessionTTL)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		sessions = redissession.NewSessionStore(redisClient, sessionTTL)
	}

	payments, webhooks, err := paymentProvider(cfg, baseURL)
	if err != nil {
		return err
	}

	var events app.EventPublisher = app.NopPublisher{}
	if cfg.AMQP.URL != "" {
		exchange := cfg.AMQP.Exchange
		if exchange == "" {
			exchange = "crqbank.events"
		}
		publisher, err := amqp.NewPublisher(cfg.AMQP.URL, exchange)
		if err != nil {
			log.Printf("event publishing disabled: %v", err)
		} else {
			defer publisher.Close()
			events = publisher
		}
	}

	quiz := app.NewQuizService(questions, responses, app.Options{
		TrialSize: cfg.Quiz.TrialSize,
		Timeout:   external,
		Events:    events,
	})
	gin.SetMode(gin.ReleaseMode)
	router, err := transport.NewRouter(transport.Dependencies{
		Sessions: app.NewSessionManager(sessions),
		Quiz:     quiz,
		Gate:     app.NewEntitlementGate(users, payments, events, external),
		Auth:     app.NewAuthService(users, external),
		Stats:    app.NewStatsService(responses, questions, external),
		Webhooks: webhooks,
		Cookies:  transport.NewSessionCookie(cfg.Server.SessionSecret, sessionTTL, cfg.Server.SecureCookie),
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting crqbank on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// paymentProvider picks the checkout collaborator. The local checkout marks
// every checkout paid, so it is only used when asked for by name.
func paymentProvider(cfg config.Config, baseURL string) (app.PaymentProvider, transport.WebhookParser, error) {
	provider := cfg.Payments.Provider
	if provider == "" && cfg.Stripe.SecretKey != "" {
		provider = "stripe"
	}
	switch provider {
	case "":
		log.Printf("no payment provider configured; the full quiz stays locked")
		return app.UnavailablePayments{}, nil, nil
	case "local":
		log.Printf("payments.provider is local; every checkout is granted without charge")
		return memory.NewPaymentProvider(baseURL + "/payment/return"), nil, nil
	case "stripe":
		if cfg.Stripe.SecretKey == "" {
			return nil, nil, errors.New("payments.provider is stripe but stripe.secret_key is empty")
		}
		p := stripe.NewPaymentProvider(stripe.Config{
			SecretKey:     cfg.Stripe.SecretKey,
			PriceID:       cfg.Stripe.PriceID,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			SuccessURL:    baseURL + "/payment/return",
			CancelURL:     baseURL + "/practice",
		})
		if cfg.Stripe.WebhookSecret == "" {
			return p, nil, nil
		}
		return p, p, nil
	}
	return nil, nil, fmt.Errorf("unknown payments.provider %q", provider)
}

// questionSource picks where the bank is read from at startup.
func questionSource(cfg config.Config, pool *pgxpool.Pool) (memory.QuestionSource, error) {
	switch cfg.Questions.Source {
	case "", "csv":
		path := cfg.Questions.Path
		if path == "" {
			path = "data/questions.csv"
		}
		return csv.NewFileSource(path), nil
	case "postgres":
		if pool == nil {
			return nil, errors.New("questions.source is postgres but postgres.url is empty")
		}
		return postgres.NewQuestionSource(pool), nil
	}
	return nil, fmt.Errorf("unknown questions.source %q", cfg.Questions.Source)
}
