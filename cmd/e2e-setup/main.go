package main

import (
	"context"
	"flag"
	"log"
	"os"

	"tw-license-service/internal/config"
	"tw-license-service/internal/infra/db/postgres"
)

// Resets the Postgres database to an empty, migrated state for manual
// end-to-end testing. Run cmd/seed afterwards for sample licenses.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	schema := flag.String("schema", "deploy/postgres/init.sql", "schema file applied before wiping")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("database.driver is %q; nothing to set up", cfg.Database.Driver)
	}

	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	log.Println("[1/2] Applying schema...")
	ddl, err := os.ReadFile(*schema)
	if err != nil {
		log.Fatalf("read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(ddl)); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	log.Println("[2/2] Wiping license data...")
	if _, err := pool.Exec(ctx, `TRUNCATE device_activations, licenses CASCADE`); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	log.Println("--- E2E Environment Setup Complete ---")
}
