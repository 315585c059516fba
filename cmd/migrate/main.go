package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/samirrijal/pklocator/internal/adapters/filestore"
	"github.com/samirrijal/pklocator/internal/adapters/postgres"
	"github.com/samirrijal/pklocator/internal/app"
	"github.com/samirrijal/pklocator/internal/pkg/config"
	"github.com/samirrijal/pklocator/internal/pkg/logging"
)

const usage = "usage: migrate <up|import <dir>>"

func main() {
	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	cfg, err := config.Load("pklocator-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, "text")

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		runMigrations(ctx, db)
	case "import":
		if len(os.Args) < 3 {
			log.Fatal(usage)
		}
		runImport(ctx, db, os.Args[2])
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

func runMigrations(ctx context.Context, db *postgres.DB) {
	files := []string{
		"migrations/001_pk_tables.sql",
	}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}

		if _, err := db.Pool.Exec(ctx, string(data)); err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}

		fmt.Printf("OK  %s\n", f)
	}

	log.Println("all migrations applied")
}

func runImport(ctx context.Context, db *postgres.DB, dir string) {
	report, err := app.Import(ctx, filestore.New(dir), postgres.NewLineRepo(db))
	if err != nil {
		log.Fatalf("import %s: %v", dir, err)
	}

	fmt.Printf("OK  %d lines, %d points, %d corrections\n", report.Lines, report.Points, report.Corrections)
	for _, code := range report.Missing {
		fmt.Printf("--  %s has no point file\n", code)
	}
}
