package main

import (
	"context"
	"log"
	"os"

	"github.com/osmfj/MapComplete/internal/adapters/postgres"
	"github.com/osmfj/MapComplete/internal/pkg/config"
	"github.com/osmfj/MapComplete/internal/pkg/logging"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("mapsync-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("mapsync-migrate", cfg.Log.Level, "text")

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		err = postgres.Migrate(ctx, db)
	case "down":
		err = postgres.MigrateDown(ctx, db)
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", os.Args[1], err)
	}
	log.Println("all migrations applied")
}
