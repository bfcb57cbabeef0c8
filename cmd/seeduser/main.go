// Command seeduser creates a user, or resets the password and role of an
// existing one.
//
//	go run ./cmd/seeduser -username ana -password s3cret -role staff
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"possales/internal/access"
	"possales/internal/config"
	"possales/internal/infra"
	"possales/internal/model"
	"possales/internal/repository"
	"possales/internal/service"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	username := flag.String("username", "admin", "login name")
	password := flag.String("password", "", "plain-text password (required)")
	role := flag.String("role", string(access.RoleAdmin), "admin | staff")
	flag.Parse()

	if *password == "" {
		flag.Usage()
		os.Exit(2)
	}
	if !access.Role(*role).Valid() {
		log.Fatal().Str("role", *role).Msg("unknown role")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	db, err := infra.NewDatabase(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	hash, err := service.HashPassword(*password)
	if err != nil {
		log.Fatal().Err(err).Msg("bcrypt error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	u := &model.User{Username: *username, PasswordHash: hash, Role: *role}
	if err := repository.NewUserRepository(db).Upsert(ctx, u); err != nil {
		log.Fatal().Err(err).Msg("upsert failed")
	}
	fmt.Printf("user %q saved with role %s\n", *username, *role)
}
