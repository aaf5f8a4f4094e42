package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"langclash/internal/backend"
	"langclash/internal/config"
	"langclash/internal/content"
	"langclash/internal/database"
	"langclash/internal/delivery"
	"langclash/internal/handlers"
	"langclash/internal/security"
	"langclash/internal/service"
	"langclash/internal/session"
	"langclash/internal/telemetry"

	"github.com/rs/cors"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// The database only backs the telemetry queue
	var db *database.DB
	if cfg.QueueBackend == "sql" {
		db, err = database.InitializeWithConfig(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()

		log.Printf("Database connection established (type: %s)", cfg.DatabaseType)

		if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Migrations completed successfully")
	}

	var dbtx database.DBTX
	if db != nil {
		dbtx = db
	}
	store, err := service.NewQueueStore(cfg.QueueBackend, cfg.QueueName, cfg.QueueFile, dbtx)
	if err != nil {
		log.Fatalf("Failed to open telemetry queue: %v", err)
	}

	catalog, err := content.LoadCatalog(cfg.ContestsPath)
	if err != nil {
		log.Fatalf("Failed to load contests: %v", err)
	}
	log.Printf("Loaded %d contests from %s", len(catalog.List()), cfg.ContestsPath)

	// Initialize services
	client := backend.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout, nil)
	queue := delivery.NewQueue(store, client, delivery.Options{
		Capacity:   cfg.QueueCapacity,
		Retention:  cfg.QueueRetention,
		MaxRetries: cfg.QueueMaxRetries,
	}, nil)

	alertService, err := service.NewAlertService(service.AlertConfig{
		AWSRegion:    cfg.AWSRegion,
		FromEmail:    cfg.SESFromEmail,
		FromName:     cfg.SESFromName,
		ProctorEmail: cfg.ProctorEmail,
		Threshold:    cfg.SuspicionAlertThreshold,
		Debug:        cfg.Debug,
	})
	if err != nil {
		log.Fatalf("Failed to initialize alert service: %v", err)
	}
	telemetryService := service.NewTelemetryService(queue, alertService)

	rules := session.DefaultScoringRules()
	rules.MatchPoints = cfg.MatchPoints
	rules.MatchPenalty = cfg.MatchPenalty
	rules.QuizPoints = cfg.QuizPoints
	rules.NegativeMarking = cfg.NegativeMarking
	rules.TimeBonusPerSecond = cfg.TimeBonusPerSecond
	rules.IdlePenalty = cfg.IdlePenalty

	heuristics := telemetry.DefaultConfig()
	heuristics.RapidGuessWindow = cfg.RapidGuessWindow
	heuristics.RapidGuessThreshold = cfg.RapidGuessThreshold
	heuristics.RapidGuessIncrement = cfg.RapidGuessIncrement

	// Track fire-and-forget deliveries so shutdown can wait for them
	var inflight sync.WaitGroup
	async := func(fn func()) {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			fn()
		}()
	}

	// Initialize handlers
	limiter := security.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	defer limiter.Stop()
	middleware := handlers.NewMiddleware(cfg.JWTSecret, limiter)
	playHandler := handlers.NewPlayHandler(catalog, client, telemetryService, handlers.SessionSettings{
		Rules:            rules,
		Heuristics:       heuristics,
		SettleDelay:      cfg.SettleDelay,
		AutoAdvanceDelay: cfg.AutoAdvanceDelay,
		IdleTimeout:      cfg.SessionIdleTTL,
		Async:            async,
	})

	// Setup routes
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	playHandler.RegisterRoutes(mux, middleware)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	handler := c.Handler(handlers.Logging(mux))

	// Start server
	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start background maintenance
	go sweepIdleSessions(ctx, playHandler, time.Minute)
	if cfg.CollectorToken != "" {
		go retryTelemetry(ctx, telemetryService, cfg.CollectorToken, cfg.RetryInterval)
	} else {
		log.Println("Periodic telemetry retry disabled: COLLECTOR_TOKEN not configured")
	}

	go func() {
		log.Printf("Server starting on http://localhost%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	// Abandon whatever is still in flight so its telemetry is flushed
	if n := playHandler.Sweep(time.Now().Add(cfg.SessionIdleTTL + time.Second)); n > 0 {
		log.Printf("Abandoned %d live sessions", n)
	}

	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.BackendTimeout):
		log.Println("Gave up waiting for telemetry deliveries")
	}
}

// sweepIdleSessions periodically abandons sessions nobody is playing
func sweepIdleSessions(ctx context.Context, h *handlers.PlayHandler, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := h.Sweep(now); n > 0 {
				log.Printf("Swept %d idle sessions", n)
			}
		}
	}
}

// retryTelemetry periodically resends queued telemetry with the collector token
func retryTelemetry(ctx context.Context, svc *service.TelemetryService, token string, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.RetryAll(ctx, token); err != nil {
				log.Printf("Error retrying queued telemetry: %v", err)
			}
		}
	}
}
