package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"catalog-assistant/handler"
	"catalog-assistant/internal/catalog"
	"catalog-assistant/internal/integrations/openai"
	"catalog-assistant/internal/integrations/paramstore"
	"catalog-assistant/internal/memory"
	"catalog-assistant/internal/repository"
	"catalog-assistant/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	chatTable := mustEnv("CHAT_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	databaseURL := mustEnv("DATABASE_URL")
	redisAddr := os.Getenv("REDIS_ADDR")
	apiKey := os.Getenv("GROQ_API_KEY")
	llmBaseURL := os.Getenv("LLM_BASE_URL")
	defaultCurrency := envString("DEFAULT_CURRENCY", "USD")
	maxProducts := envInt("MAX_PRODUCTS_IN_RESPONSE", catalog.DefaultResponseLimit)
	fetchLimit := envInt("MAX_PRODUCTS_FROM_DB", catalog.DefaultFetchLimit)
	maxHistoryTurns := envInt("MAX_HISTORY_TURNS", memory.DefaultMaxTurns)
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", usecase.DefaultMaxMessageLen)
	llmPerMinute := envInt("LLM_REQUESTS_PER_MINUTE", 0)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	chatLog, err := repository.NewChatLog(awsdynamodb.NewFromConfig(cfg), chatTable)
	if err != nil {
		slog.Error("failed to create chat log", "err", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		slog.Error("failed to open catalog database", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	catalogStore, err := repository.NewCatalogStore(db, defaultCurrency)
	if err != nil {
		slog.Error("failed to create catalog store", "err", err)
		os.Exit(1)
	}
	ratesStore, err := repository.NewRatesStore(db)
	if err != nil {
		slog.Error("failed to create rates store", "err", err)
		os.Exit(1)
	}
	var rates usecase.RatesSource = ratesStore
	if redisAddr != "" {
		cached, err := repository.NewCachedRates(redis.NewClient(&redis.Options{Addr: redisAddr}), ratesStore)
		if err != nil {
			slog.Error("failed to create rates cache", "err", err)
			os.Exit(1)
		}
		rates = cached
	}

	llmOpts := []openai.Option{}
	if apiKey != "" {
		llmOpts = append(llmOpts, openai.WithAPIKey(apiKey))
	}
	if llmBaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(llmBaseURL))
	}
	llmClient, err := openai.NewClient(ssmClient, paramPrefix, llmOpts...)
	if err != nil {
		slog.Error("failed to create LLM client", "err", err)
		os.Exit(1)
	}

	// ---- Use cases ----
	runtimeConfig, err := usecase.NewRuntimeConfig(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create runtime config", "err", err)
		os.Exit(1)
	}
	completionOpts := []usecase.CompletionOption{}
	if llmPerMinute > 0 {
		completionOpts = append(completionOpts, usecase.WithLimiter(rate.NewLimiter(rate.Every(time.Minute/time.Duration(llmPerMinute)), 1)))
	}
	completer, err := usecase.NewCompletionClient(llmClient, runtimeConfig, completionOpts...)
	if err != nil {
		slog.Error("failed to create completion client", "err", err)
		os.Exit(1)
	}
	matcher, err := catalog.NewMatcher(catalogStore, fetchLimit)
	if err != nil {
		slog.Error("failed to create catalog matcher", "err", err)
		os.Exit(1)
	}
	persister, err := usecase.NewAsyncPersister(chatLog)
	if err != nil {
		slog.Error("failed to create persister", "err", err)
		os.Exit(1)
	}

	chatService, err := usecase.NewChatService(usecase.Dependencies{
		Config:     runtimeConfig,
		Matcher:    matcher,
		Categories: catalogStore,
		Rates:      rates,
		Memory:     memory.NewSessions(maxHistoryTurns),
		Completer:  completer,
		Persister:  persister,
	}, usecase.WithMaxProducts(maxProducts), usecase.WithMaxMessageLen(maxMessageLen))
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(chatService)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
