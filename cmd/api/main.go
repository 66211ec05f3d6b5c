package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stillwater-app/stillwater/internal/application"
	appanalyses "github.com/stillwater-app/stillwater/internal/application/analyses"
	appjournal "github.com/stillwater-app/stillwater/internal/application/journal"
	"github.com/stillwater-app/stillwater/internal/config"
	domanalyses "github.com/stillwater-app/stillwater/internal/domain/analyses"
	domjournal "github.com/stillwater-app/stillwater/internal/domain/journal"
	"github.com/stillwater-app/stillwater/internal/infra/ai/openai"
	mysqlp "github.com/stillwater-app/stillwater/internal/infra/db/mysql"
	postgresp "github.com/stillwater-app/stillwater/internal/infra/db/postgres"
	"github.com/stillwater-app/stillwater/internal/infra/httpserver"
	minioStore "github.com/stillwater-app/stillwater/internal/infra/storage"
	"github.com/stillwater-app/stillwater/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// connect database, mysql or postgres per config
	var (
		db           interface{ Close() error }
		journalRepo  domjournal.Repository
		analysisRepo domanalyses.Repository
		dbChecker    middleware.HealthChecker
	)
	switch cfg.Database.Driver {
	case "postgres":
		conn, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		db = conn
		journalRepo = postgresp.NewJournalRepository(conn)
		analysisRepo = postgresp.NewAnalysisRepository(conn)
		dbChecker = &middleware.DatabaseHealthChecker{DB: conn}
	default:
		conn, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		db = conn
		journalRepo = mysqlp.NewJournalRepository(conn)
		analysisRepo = mysqlp.NewAnalysisRepository(conn)
		dbChecker = &middleware.DatabaseHealthChecker{DB: conn}
	}
	defer db.Close()

	// init model client
	gen := openai.NewClient(cfg.OpenAIKey(), cfg.AI.Model)

	// init raw-response archive, optional
	var archive domanalyses.Archive
	checkers := map[string]middleware.HealthChecker{
		"database": dbChecker,
		"ai_credential": middleware.CheckerFunc(func(ctx context.Context) error {
			return gen.CheckCredential()
		}),
	}
	if cfg.ArchiveEnabled() {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		archive = store
		checkers["object_store"] = middleware.CheckerFunc(store.Check)
	}

	// init services
	journalSvc := &appjournal.Service{
		Repo:  journalRepo,
		Clock: application.SystemClock{},
	}
	analysesSvc := &appanalyses.Service{
		Drops:     journalRepo,
		Analyses:  analysisRepo,
		Generator: gen,
		Archive:   archive,
		Clock:     application.SystemClock{},
		Checks:    serviceChecks(checkers),
	}

	// init router
	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.RateLimitMiddleware(60, 1))
	if len(cfg.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(cfg.APIKeys))
	}

	mux.Get("/health", middleware.HealthHandler(checkers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)
	mux.Mount("/", httpserver.NewRouter(journalSvc, analysesSvc))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // pipeline runs can take most of a minute
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func serviceChecks(checkers map[string]middleware.HealthChecker) map[string]appanalyses.HealthCheckFunc {
	out := make(map[string]appanalyses.HealthCheckFunc, len(checkers))
	for name, c := range checkers {
		out[name] = c.Check
	}
	return out
}
