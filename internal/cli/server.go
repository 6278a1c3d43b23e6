package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"tracing-quiz-service/internal/app"
	"tracing-quiz-service/internal/config"
	"tracing-quiz-service/internal/infra/memory"
	pgstore "tracing-quiz-service/internal/infra/postgres"
	redisstore "tracing-quiz-service/internal/infra/redis"
	"tracing-quiz-service/internal/infra/remote"
	"tracing-quiz-service/internal/infra/sqlite"
	transport "tracing-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type questionLoader interface {
	memory.QuestionLoader
	redisstore.QuestionLoader
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	local, closeLocal, err := openLocalStore(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeLocal()

	var loader questionLoader = memory.NewStaticQuestionLoader(sampleBanks())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		loader = pgstore.NewQuestionLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var bank app.QuestionBank
	var tracker transport.SessionTracker
	if redisClient != nil {
		bank = redisstore.NewQuestionBank(redisClient, loader, quizTTL)
		tracker = redisstore.NewSessionRegistry(redisClient, redisTTL)
	} else {
		bank = memory.NewQuestionBank(loader, quizTTL)
		tracker = memory.NewSessionRegistry()
	}

	var dial app.RemoteDialer
	if cfg.Remote.BaseURL != "" {
		client := remote.NewClient(remote.Options{
			BaseURL: cfg.Remote.BaseURL,
			Timeout: config.TTLDuration(cfg.Remote.Timeout, 10*time.Second),
			Retries: cfg.Remote.Retries,
		}, logger.WithPrefix("remote"))
		dial = func(token string) app.RemoteAccount { return client.ForToken(token) }
	} else {
		logger.Warn("remote.base_url not set; online devices will fail to load their profile")
	}

	engine := app.NewEngine(bank, app.NewGateway(local, dial, logger.WithPrefix("gateway")), app.EngineOptions{
		FallbackTimeout:      config.TTLDuration(cfg.Quiz.FallbackTimeout, app.DefaultFallbackTimeout),
		NoticeDuration:       config.TTLDuration(cfg.Quiz.NoticeDuration, app.DefaultNoticeDuration),
		FirstCompletionBonus: cfg.Quiz.FirstCompletionBonus,
	}, logger.WithPrefix("engine"))

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	logger.Info("starting quiz service", "port", finalPort, "local", cfg.Local.Driver, "redis", redisClient != nil)
	return serve(ctx, finalPort, transport.NewRouter(engine, tracker, logger.WithPrefix("http")), logger)
}

func openLocalStore(ctx context.Context, cfg config.Config, redisClient *redis.Client) (app.LocalStore, func(), error) {
	switch cfg.Local.Driver {
	case "sqlite":
		store, err := sqlite.NewKVStore(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "redis":
		if redisClient == nil {
			return nil, nil, errors.New("local driver redis requires redis.addr")
		}
		return redisstore.NewKVStore(redisClient), func() {}, nil
	default:
		return memory.NewKVStore(), func() {}, nil
	}
}

// serve runs handler on port until ctx is canceled or the process is signaled.
func serve(ctx context.Context, port string, handler http.Handler, logger *log.Logger) error {
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		return fmt.Errorf("listen on :%s: %w", port, err)
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
