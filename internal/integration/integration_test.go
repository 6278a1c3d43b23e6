package integration

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"tracing-quiz-service/internal/account"
	"tracing-quiz-service/internal/app"
	"tracing-quiz-service/internal/domain"
	pgstore "tracing-quiz-service/internal/infra/postgres"
	pgmigrations "tracing-quiz-service/internal/infra/postgres/migrations"
	infraredis "tracing-quiz-service/internal/infra/redis"
	"tracing-quiz-service/internal/infra/remote"
)

type nopScreen struct{}

func (nopScreen) Render(domain.SessionSnapshot)      {}
func (nopScreen) Notify(domain.Notice)               {}
func (nopScreen) Dismiss(uint64)                     {}
func (nopScreen) StartHandoff(domain.HandoffRequest) {}
func (nopScreen) Navigate(domain.NavigationRequest)  {}

func TestOnlineCompletionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)
	logger := log.New(io.Discard)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := migrateAndSeed(t, ctx, pgURL, domain.CategoryCounting, countingQuestions(3))
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, pgURL)
	require.NoError(t, err)
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	require.NoError(t, err)
	defer redisClient.Close()

	issuer := account.NewIssuer("integration-secret", time.Hour)
	accounts := httptest.NewServer(account.NewHandler(pgstore.NewAccountStore(db), issuer, logger).Routes())
	defer accounts.Close()
	client := remote.NewClient(remote.Options{BaseURL: accounts.URL, Retries: 1}, logger)

	bank := infraredis.NewQuestionBank(redisClient, pgstore.NewQuestionLoader(pool), 5*time.Minute)
	gateway := app.NewGateway(infraredis.NewKVStore(redisClient), func(token string) app.RemoteAccount {
		return client.ForToken(token)
	}, logger)
	engine := app.NewEngine(bank, gateway, app.EngineOptions{}, logger)

	token, err := issuer.Issue("kid-1")
	require.NoError(t, err)
	require.NoError(t, engine.SetMode(ctx, "tablet", domain.ModeOnline, token))

	session, err := engine.OpenSession(ctx, "tablet", domain.CategoryCounting, nopScreen{})
	require.NoError(t, err)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = session.Run(runCtx) }()

	for i := 0; i < 3; i++ {
		require.True(t, session.Answer(fmt.Sprint(i)))
		require.True(t, session.Resume())
	}
	require.Eventually(t, func() bool {
		snap, ok := session.Snapshot(ctx)
		return ok && snap.Phase == domain.PhaseCompleted && snap.Result != nil && snap.Result.Recorded
	}, 10*time.Second, 50*time.Millisecond)
	cancel()
	<-session.Done()

	profile, err := engine.Profile(ctx, "tablet")
	require.NoError(t, err)
	require.Equal(t, domain.ModeOnline, profile.Mode)
	require.Equal(t, app.DefaultFirstCompletionBonus, profile.StarBalance)
	require.True(t, profile.Achievements["achievement6"])
	require.Equal(t, 3, profile.CategoryStars[string(domain.CategoryCounting)])

	var starCount int
	require.NoError(t, db.NewSelect().Table("users").Column("star_count").Where("id = ?", "kid-1").Scan(ctx, &starCount))
	require.Equal(t, app.DefaultFirstCompletionBonus, starCount)

	balance, err := engine.Shop(ctx, "tablet").Purchase(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, app.DefaultFirstCompletionBonus-2, balance)

	// the bank is now cached in redis; a second session does not need postgres rows
	_, err = db.ExecContext(ctx, `DELETE FROM question_banks`)
	require.NoError(t, err)
	questions, err := bank.Questions(ctx, domain.CategoryCounting)
	require.NoError(t, err)
	require.Len(t, questions, 3)
}

func countingQuestions(n int) []domain.Question {
	questions := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, domain.Question{
			PromptPrimary: fmt.Sprintf("How many dots? (%d)", i),
			Options:       []string{fmt.Sprint(i), fmt.Sprint(i + 1)},
			CorrectAnswer: fmt.Sprint(i),
		})
	}
	return questions
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

// migrateAndSeed applies the schema and stores one question bank. The
// postgres server may still be starting, so the first ping is retried.
func migrateAndSeed(t *testing.T, ctx context.Context, dsn string, category domain.Category, questions []domain.Question) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	require.Eventually(t, func() bool { return db.PingContext(ctx) == nil }, 30*time.Second, 200*time.Millisecond)

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)

	data, err := json.Marshal(questions)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO question_banks (category, data) VALUES (?, ?::jsonb) ON CONFLICT (category) DO UPDATE SET data=EXCLUDED.data`,
		string(category), string(data))
	require.NoError(t, err)
	return db
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
