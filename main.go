package main

import (
	"database/sql"
	"net/http"
	"os"

	"tally-service/internal/broker"
	"tally-service/internal/config"
	"tally-service/internal/publisher"
	"tally-service/internal/repository"
	"tally-service/internal/server"
	"tally-service/internal/service"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn("Could not load .env file.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithField("error", err).Fatal("Could not load configuration")
	}

	log.Info("Starting database migration...")
	m, err := migrate.New(cfg.DB.MigrationsPath, cfg.DB.URL)
	if err != nil {
		log.WithField("error", err).Fatal("Could not create migrate instance")
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.WithField("error", err).Fatal("Could not apply migration")
	}
	log.Info("Database migration finished successfully.")

	db, err := sql.Open("postgres", cfg.DB.URL)
	if err != nil {
		log.WithField("error", err).Fatal("Could not connect to the database")
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DB.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		log.WithField("error", err).Fatal("Could not ping the database")
	}
	log.Info("Successfully connected to the PostgreSQL database.")

	// Create repositories
	countRepository := repository.NewPostgresCountRepository(db)
	eventRepository := repository.NewPostgresEventRepository(db)
	templeRepository := repository.NewPostgresTempleRepository(db)
	profileRepository := repository.NewPostgresProfileRepository(db)

	// Optional Kafka mirror for committed tally events
	var eventPublisher service.TallyEventPublisher
	if cfg.Kafka.BootstrapServers != "" {
		p, err := publisher.NewEventPublisher(cfg.Kafka.BootstrapServers, cfg.Kafka.Topic)
		if err != nil {
			log.WithField("error", err).Fatal("Could not create tally event publisher")
		}
		defer p.Close()
		eventPublisher = p
	} else {
		log.Warn("KAFKA_BOOTSTRAP_SERVERS not set, tally event mirror disabled")
	}

	// Create services
	liveBroker := broker.New()
	mirrorService := service.NewMirrorService(eventPublisher)
	counterService := service.NewCounterService(countRepository, mirrorService, liveBroker)
	reportService := service.NewReportService(eventRepository)
	registrationService := service.NewRegistrationService(
		profileRepository,
		cfg.Temple.DefaultID,
		cfg.Temple.DefaultName,
		cfg.Auth.AuthorityGrant,
	)

	// Create server
	srv := server.NewServer(counterService, reportService, registrationService, templeRepository, liveBroker, db)

	// Setup Echo
	e := echo.New()

	// Health check and metrics
	e.GET("/health", srv.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Authenticated API
	api := e.Group("/api", srv.SessionMiddleware)
	api.POST("/registration", srv.Register)

	temples := api.Group("/temples/:temple_id")
	temples.GET("", srv.GetTemple)
	temples.GET("/counts", srv.ListCounts)
	temples.GET("/counts/:servant_id", srv.GetCount)
	temples.POST("/counts/:servant_id/increment", srv.ApplyIncrement)
	temples.POST("/counts/:servant_id/reset", srv.ResetIndividual)
	temples.POST("/reset", srv.ResetAuthority)
	temples.GET("/stream", srv.StreamCounts)
	temples.GET("/calendar/:year/:month", srv.GetDailyTotals)
	temples.GET("/ledger/:date", srv.GetDayLedger)
	temples.GET("/ledger/:date/export", srv.ExportDayLedger)

	log.WithField("port", cfg.HTTP.Port).Info("Tally service is starting with Echo")

	if err := e.Start(":" + cfg.HTTP.Port); err != nil && err != http.ErrServerClosed {
		log.WithField("error", err).Fatal("Echo server failed to start")
	}
}
