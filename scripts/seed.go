//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/hugh/funnel-builder/internal/allocation"
	"github.com/hugh/funnel-builder/internal/auth"
	"github.com/hugh/funnel-builder/internal/database"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/pkg/config"
	"github.com/hugh/funnel-builder/pkg/util"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService)

	email := envOr("SEED_EMAIL", "owner@example.com")
	password := envOr("SEED_PASSWORD", "owner1234")
	name := envOr("SEED_NAME", "Demo Owner")
	plan := allocation.PlanTier(envOr("SEED_PLAN", string(allocation.PlanAgency)))
	if !plan.IsValid() {
		log.Fatalf("unknown SEED_PLAN %q", plan)
	}

	resp, err := authService.Register(context.Background(), auth.RegisterInput{
		Email:         email,
		Password:      password,
		Name:          name,
		WorkspaceName: "Demo Workspace",
	})
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			fmt.Printf("Seed user already exists: %s\n", email)
			return
		}
		log.Fatalf("failed to create seed user: %v", err)
	}

	if err := db.Model(resp.Workspace).Update("plan", plan).Error; err != nil {
		log.Fatalf("failed to set plan: %v", err)
	}

	funnel := models.Funnel{
		WorkspaceID: resp.Workspace.ID,
		Name:        "Demo Funnel",
		Slug:        util.Slugify("Demo Funnel"),
	}
	if err := db.Create(&funnel).Error; err != nil {
		log.Fatalf("failed to create funnel: %v", err)
	}

	fmt.Printf("Seed user created successfully!\n")
	fmt.Printf("Email: %s\n", resp.User.Email)
	fmt.Printf("Workspace: %s (%s, id %d)\n", resp.Workspace.Name, plan, resp.Workspace.ID)
	fmt.Printf("Funnel: %s (id %d)\n", funnel.Name, funnel.ID)
	fmt.Printf("Token: %s\n", resp.Token)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
