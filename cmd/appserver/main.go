package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	app "github.com/oddside/automation-runtime/internal/app"
	"github.com/oddside/automation-runtime/internal/app/metrics"
	pgstore "github.com/oddside/automation-runtime/internal/app/storage/postgres"
	"github.com/oddside/automation-runtime/internal/config"
	"github.com/oddside/automation-runtime/internal/platform/database"
	"github.com/oddside/automation-runtime/internal/platform/migrations"
	"github.com/oddside/automation-runtime/pkg/logger"
)

// collections lists every table this runtime owns; EnsureTable runs against
// each of these at boot when DATABASE_URL is set.
var collections = []string{
	"automations", "automation_runs", "events", "engagement_log", "engagement_preferences",
	"ledger_entries", "feedback", "jobs", "plans",
	"host_decisions", "host_updates", "notifications", "email_logs", "group_messages",
	"payment_reconciliation_log", "payment_reminders_log", "polls",
}

// directoryCollections are product tables this runtime only reads (groups,
// group memberships, game nights, profiles); it connects to them through
// the same adapter but never runs EnsureTable since it doesn't own their
// schema.
var directoryCollections = []string{
	"groups", "group_members", "game_nights", "profiles",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	log_ := logger.New(logger.LoggingConfig{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stdout"})

	rootCtx := context.Background()

	stores := app.Stores{}
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Open(rootCtx, cfg.DatabaseURL)
		if err != nil {
			log_.Fatalf("connect to postgres: %v", err)
		}
		configurePool(db, cfg)
		if err := migrations.Apply(rootCtx, db); err != nil {
			log_.Fatalf("apply migrations: %v", err)
		}

		sdb := sqlx.NewDb(db, "postgres")
		tables := make(map[string]*pgstore.Store, len(collections)+len(directoryCollections))
		for _, name := range collections {
			s := pgstore.NewStore(sdb, name)
			if err := s.EnsureTable(rootCtx); err != nil {
				log_.Fatalf("ensure table %s: %v", name, err)
			}
			tables[name] = s
		}
		for _, name := range directoryCollections {
			tables[name] = pgstore.NewStore(sdb, name)
		}
		stores = app.Stores{
			Automations:           tables["automations"],
			AutomationRuns:        tables["automation_runs"],
			Events:                tables["events"],
			EngagementLog:         tables["engagement_log"],
			EngagementPreferences: tables["engagement_preferences"],
			LedgerEntries:         tables["ledger_entries"],
			Feedback:              tables["feedback"],
			Jobs:                  tables["jobs"],
			Plans:                 tables["plans"],
			HostDecisions:         tables["host_decisions"],
			HostUpdates:           tables["host_updates"],
			Notifications:         tables["notifications"],
			EmailLogs:             tables["email_logs"],
			GroupMessages:         tables["group_messages"],
			ReconciliationLog:     tables["payment_reconciliation_log"],
			RemindersLog:          tables["payment_reminders_log"],
			Polls:                 tables["polls"],
			Groups:                tables["groups"],
			GroupMembers:          tables["group_members"],
			GameNights:            tables["game_nights"],
			Profiles:              tables["profiles"],
		}
	}
	if db != nil {
		defer db.Close()
	}

	opts := []app.Option{app.WithSchedulerConfig(cfg)}
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		opts = append(opts, app.WithRedisCounter(redisClient))
	}

	application, err := app.New(stores, log_, opts...)
	if err != nil {
		log_.Fatalf("initialise application: %v", err)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		log_.Fatalf("start application: %v", err)
	}
	log_.Infof("automation runtime started (env=%s)", cfg.Env)

	opsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.OpsPort),
		Handler: opsRouter(application, cfg),
	}
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log_.Errorf("ops server: %v", err)
		}
	}()
	log_.Infof("ops surface listening on :%d", cfg.OpsPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = opsServer.Shutdown(shutdownCtx)
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log_.Fatalf("shutdown: %v", err)
	}
}

// opsRouter serves the operational surface (health, metrics, service
// descriptors) — never the product API, which is out of scope here.
func opsRouter(application *app.Application, cfg *config.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Get("/system/descriptors", func(w http.ResponseWriter, r *http.Request) {
		descriptors := application.Descriptors()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "%+v", descriptors)
	})

	return metrics.InstrumentHandler(r)
}

func configurePool(db *sql.DB, cfg *config.Config) {
	if cfg.DBMaxConnections > 0 {
		db.SetMaxOpenConns(cfg.DBMaxConnections)
		db.SetMaxIdleConns(cfg.DBMaxConnections)
	}
	if cfg.DBIdleTimeout > 0 {
		db.SetConnMaxIdleTime(cfg.DBIdleTimeout)
	}
}
