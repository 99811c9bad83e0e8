// Command server runs the chat API as a plain HTTP service for local
// development and web chat deployments.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"catalog-assistant/handler"
	"catalog-assistant/internal/catalog"
	"catalog-assistant/internal/domain"
	"catalog-assistant/internal/integrations/openai"
	"catalog-assistant/internal/memory"
	"catalog-assistant/internal/repository"
	"catalog-assistant/internal/usecase"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	apiKey := mustEnv("GROQ_API_KEY")
	port := envString("PORT", "8080")
	databaseURL := os.Getenv("DATABASE_URL")
	seedFile := os.Getenv("CATALOG_SEED_FILE")
	redisAddr := os.Getenv("REDIS_ADDR")
	defaultCurrency := envString("DEFAULT_CURRENCY", "USD")
	maxProducts := envInt("MAX_PRODUCTS_IN_RESPONSE", catalog.DefaultResponseLimit)
	fetchLimit := envInt("MAX_PRODUCTS_FROM_DB", catalog.DefaultFetchLimit)
	maxHistoryTurns := envInt("MAX_HISTORY_TURNS", memory.DefaultMaxTurns)

	var (
		products catalog.Store
		rates    usecase.RatesSource = noRates{}
	)
	if databaseURL != "" {
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			slog.Error("failed to open catalog database", "err", err)
			os.Exit(1)
		}
		defer db.Close()

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
		products, rates = catalogStore, ratesStore

		if redisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
			defer rdb.Close()
			cached, err := repository.NewCachedRates(rdb, ratesStore)
			if err != nil {
				slog.Error("failed to create rates cache", "err", err)
				os.Exit(1)
			}
			rates = cached
		}
	} else {
		seeded, err := loadSeed(seedFile, defaultCurrency)
		if err != nil {
			slog.Error("failed to load catalog seed", "file", seedFile, "err", err)
			os.Exit(1)
		}
		slog.Info("serving in-memory catalog", "file", seedFile)
		products = seeded
	}

	llmOpts := []openai.Option{openai.WithAPIKey(apiKey)}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(baseURL))
	}
	llmClient, err := openai.NewClient(nil, "", llmOpts...)
	if err != nil {
		slog.Error("failed to create LLM client", "err", err)
		os.Exit(1)
	}

	runtimeConfig, err := usecase.NewRuntimeConfig(nil, "", usecase.WithDefaultSettings(usecase.Settings{
		PersonaPrompt: os.Getenv("PERSONA_PROMPT"),
		Model:         os.Getenv("LLM_MODEL"),
	}))
	if err != nil {
		slog.Error("failed to create runtime config", "err", err)
		os.Exit(1)
	}
	completer, err := usecase.NewCompletionClient(llmClient, runtimeConfig)
	if err != nil {
		slog.Error("failed to create completion client", "err", err)
		os.Exit(1)
	}
	matcher, err := catalog.NewMatcher(products, fetchLimit)
	if err != nil {
		slog.Error("failed to create catalog matcher", "err", err)
		os.Exit(1)
	}
	persister, err := usecase.NewAsyncPersister(logSink{})
	if err != nil {
		slog.Error("failed to create persister", "err", err)
		os.Exit(1)
	}
	chatService, err := usecase.NewChatService(usecase.Dependencies{
		Config:     runtimeConfig,
		Matcher:    matcher,
		Categories: products,
		Rates:      rates,
		Memory:     memory.NewSessions(maxHistoryTurns),
		Completer:  completer,
		Persister:  persister,
	}, usecase.WithMaxProducts(maxProducts))
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}
	h, err := handler.NewHandler(chatService)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: setupRouter(h),
	}
	go func() {
		slog.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "err", err)
	}
	persister.Wait()
}

func setupRouter(h *handler.Handler) *gin.Engine {
	if os.Getenv("GIN_MODE") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", handler.CorrelationHeader},
		ExposeHeaders: []string{handler.CorrelationHeader},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Format(time.RFC3339)})
	})

	router.POST("/api/chat", func(c *gin.Context) {
		correlationID := c.GetHeader(handler.CorrelationHeader)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		c.Header(handler.CorrelationHeader, correlationID)

		var req handler.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": string(usecase.ErrorInvalidInput), "message": err.Error()})
			return
		}
		if req.Channel == "" {
			req.Channel = string(domain.ChannelWeb)
		}

		status, body := h.Process(c.Request.Context(), correlationID, req)
		if body == nil {
			c.Status(status)
			return
		}
		c.JSON(status, body)
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return router
}

type seedProduct struct {
	Name       string   `json:"name"`
	Price      *float64 `json:"price"`
	PromoPrice *float64 `json:"promoPrice"`
	Quantity   *int     `json:"quantity"`
	Currency   string   `json:"currency"`
	Images     []string `json:"images"`
	Category   string   `json:"category"`
	Location   string   `json:"location"`
}

// loadSeed reads a JSON array of products. An empty path yields an empty catalog.
func loadSeed(path, defaultCurrency string) (*catalog.MemoryStore, error) {
	mem := catalog.NewMemoryStore()
	if path == "" {
		return mem, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []seedProduct
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	for _, r := range rows {
		mem.Add(domain.NewProduct(domain.RawProduct{
			Name:       r.Name,
			Price:      r.Price,
			PromoPrice: r.PromoPrice,
			Quantity:   r.Quantity,
			Currency:   r.Currency,
			Images:     r.Images,
			Category:   r.Category,
			Location:   r.Location,
		}, defaultCurrency))
	}
	return mem, nil
}

type noRates struct{}

func (noRates) Rates(context.Context) ([]domain.ExchangeRate, error) { return nil, nil }

// logSink stands in for the chat log when no table is configured.
type logSink struct{}

func (logSink) AppendTurns(_ context.Context, rec domain.ChatRecord) error {
	slog.Info("chat turns", "chat_id", rec.ChatID, "channel", rec.Channel, "turns", len(rec.Turns))
	return nil
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
