package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"tw-license-service/internal/config"
	"tw-license-service/internal/infra/api"
	pg "tw-license-service/internal/infra/db/postgres"
	"tw-license-service/internal/infra/logging"
	"tw-license-service/internal/usecase"
)

// Issues sample licenses into the configured Postgres database and prints
// tokens for calling the owner and admin endpoints.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	owner := flag.String("owner", "owner-demo", "owner id for the seeded licenses")
	product := flag.String("product", "tw-desktop", "product id for the seeded licenses")
	count := flag.Int("count", 3, "number of licenses to issue")
	limit := flag.Int("limit", 0, "activation limit (0 uses the configured default)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("seeding needs the postgres driver, got %q", cfg.Database.Driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	issuance := usecase.NewIssuanceUseCase(
		pg.NewLicenseRepo(pool),
		pg.NewDeviceRepo(pool, nil),
		nil, nil,
		usecase.LicenseSettings{
			StoreTimeout:           cfg.Server.StoreTimeout,
			KeyRetryLimit:          cfg.License.KeyRetryLimit,
			DefaultActivationLimit: cfg.License.DefaultActivationLimit,
			Dev:                    true,
		},
		logging.Nop(),
	)

	// order ids make reruns idempotent
	for i := 1; i <= *count; i++ {
		res, err := issuance.Issue(ctx, usecase.IssueRequest{
			OwnerID:         *owner,
			ProductID:       *product,
			ActivationLimit: *limit,
			OrderID:         fmt.Sprintf("seed-%s-%d", *owner, i),
		})
		if err != nil {
			log.Fatalf("issue license %d: %v", i, err)
		}
		state := "existing"
		if res.Created {
			state = "seeded"
		}
		fmt.Printf("%s: %s (owner=%s, limit=%d)\n", state, res.License.Key, res.License.OwnerID, res.License.ActivationLimit)
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = "dev-secret-do-not-use"
	}
	auth := api.NewAuthManager(secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	ownerTok, err := auth.Mint(*owner, api.RoleOwner)
	if err != nil {
		log.Fatalf("mint owner token: %v", err)
	}
	adminTok, err := auth.Mint("seed-admin", api.RoleAdmin)
	if err != nil {
		log.Fatalf("mint admin token: %v", err)
	}
	fmt.Printf("\nowner token: %s\nadmin token: %s\n", ownerTok, adminTok)
	fmt.Println("Seeding complete.")
}
