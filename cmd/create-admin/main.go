// Stand-alone command to create an enabled admin account. Runs outside any
// request context, so the resulting log entries carry the process name
// instead of a network origin.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	"account-service/internal/audit"
	"account-service/internal/config"
	"account-service/internal/domain"
	"account-service/internal/service"
	"account-service/internal/storage"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	log "github.com/sirupsen/logrus"
)

func main() {
	username := flag.String("username", "", "admin username")
	email := flag.String("email", "", "admin email address")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	if err := godotenv.Load(); err != nil {
		log.Warn("Could not load .env file.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithField("error", err).Fatal("Could not load configuration")
	}

	db, err := sql.Open("postgres", cfg.DB.URL)
	if err != nil {
		log.WithField("error", err).Fatal("Could not connect to the database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.WithField("error", err).Fatal("Could not ping the database")
	}

	store := storage.NewPostgresStore(db)
	writer := audit.NewWriter(store)
	users := service.NewUserService(store, writer, cfg.MinPasswordLength)

	reader := bufio.NewReader(os.Stdin)
	name := *username
	if name == "" {
		name = prompt(reader, "username")
	}
	addr := *email
	if addr == "" {
		addr = prompt(reader, "email")
	}
	password := prompt(reader, "password")

	ctx := context.Background()
	doc, err := users.Create(ctx, domain.Actor{}, domain.CreateUserRequest{
		Username: name,
		Email:    addr,
		Password: password,
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		log.WithField("error", err).Fatal("Could not create admin account")
	}
	if _, err := users.SetStatus(ctx, domain.Actor{}, name, domain.StatusEnabled); err != nil {
		log.WithField("error", err).Fatal("Could not enable admin account")
	}

	log.WithFields(log.Fields{
		"username": name,
		"user_id":  doc.ID(),
	}).Info("Admin account created and enabled")
}

func prompt(reader *bufio.Reader, field string) string {
	fmt.Printf("%s > ", field)
	line, err := reader.ReadString('\n')
	if err != nil {
		log.WithField("error", err).Fatalf("Could not read %s", field)
	}
	return strings.TrimSpace(line)
}
