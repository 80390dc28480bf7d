package main

import (
	"database/sql"
	"net/http"
	"os"

	"account-service/internal/audit"
	"account-service/internal/config"
	"account-service/internal/publisher"
	"account-service/internal/server"
	"account-service/internal/service"
	"account-service/internal/storage"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
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
	m, err := migrate.New(cfg.MigrationsURL, cfg.DB.URL)
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

	// Create document store
	store := storage.NewPostgresStore(db)

	// Create audit log writer, with the Kafka side channel when configured
	writer := audit.NewWriter(store)
	if cfg.Kafka.BootstrapServers != "" {
		auditPublisher, err := publisher.NewAuditPublisher(cfg.Kafka.BootstrapServers, cfg.Kafka.AuditTopic)
		if err != nil {
			log.WithField("error", err).Fatal("Could not create audit publisher")
		}
		defer auditPublisher.Close()
		writer.Publisher = auditPublisher
	}

	// Create service
	userService := service.NewUserService(store, writer, cfg.MinPasswordLength)

	// Create server
	srv := server.NewServer(userService, db)

	// Setup Echo
	e := echo.New()

	// Health check
	e.GET("/health", srv.HealthCheck)

	// CRUD endpoints
	api := e.Group("/api")
	users := api.Group("/users")
	users.POST("", srv.CreateUser)
	users.GET("", srv.ListUsers)
	users.GET("/:username", srv.GetUser)
	users.PUT("/:username", srv.UpdateUser)

	// Account operations
	users.POST("/:username/password", srv.SetPassword)
	users.POST("/:username/apikey", srv.ResetAPIKey)
	users.GET("/:username/logs", srv.GetLogs)

	// Attachments
	users.PUT("/:username/attachments/:filename", srv.PutAttachment)
	users.GET("/:username/attachments/:filename", srv.GetAttachment)
	users.DELETE("/:username/attachments/:filename", srv.DeleteAttachment)

	log.WithField("port", cfg.Port).Info("Account service is starting with Echo")

	if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
		log.WithField("error", err).Fatal("Echo server failed to start")
	}
}
