//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hugh/go-roster/internal/apperr"
	"github.com/hugh/go-roster/internal/audit"
	"github.com/hugh/go-roster/internal/database"
	"github.com/hugh/go-roster/internal/identity"
	"github.com/hugh/go-roster/internal/organizations"
	"github.com/hugh/go-roster/internal/quota"
	"github.com/hugh/go-roster/internal/store"
	"github.com/hugh/go-roster/pkg/config"
	"github.com/hugh/go-roster/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, "seed")
	ctx := context.Background()

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	if err := database.SeedTiers(ctx, db); err != nil {
		log.Fatalf("failed to seed tiers: %v", err)
	}

	st := store.New(db)
	identities := identity.NewService(identity.NewLocalProvider(db), identity.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry()))
	orgs := organizations.NewService(st, identities, quota.NewEvaluator(st, logger), audit.NewRecorder(st, logger), logger)

	email := envOr("OWNER_EMAIL", "owner@example.com")
	res, err := orgs.Signup(ctx, organizations.SignupInput{
		Email:            email,
		Password:         envOr("OWNER_PASSWORD", "Owner123!pass"),
		DisplayName:      envOr("OWNER_NAME", "Owner"),
		OrganizationName: envOr("ORG_NAME", "Default Organization"),
		TierName:         os.Getenv("ORG_TIER"),
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			fmt.Printf("Owner already exists: %s\n", email)
			return
		}
		log.Fatalf("failed to create owner: %v", err)
	}

	fmt.Printf("Owner created successfully!\n")
	fmt.Printf("Email: %s\n", email)
	fmt.Printf("Organization: %s (%s)\n", res.Organization.Name, res.Organization.ID)
	fmt.Printf("Token: %s\n", res.Session.Token)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
