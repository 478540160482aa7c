package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"circlenet/backend/internal/graph"
	"circlenet/backend/internal/store"
	"circlenet/backend/pkg/config"
	"circlenet/backend/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	graphOnly := flag.Bool("graph-only", false, "Only apply Neo4j constraints and indexes")
	sqlOnly := flag.Bool("sql-only", false, "Only apply the PostgreSQL schema")
	timeout := flag.Duration("timeout", time.Minute, "Overall migration timeout")
	flag.Parse()

	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting schema migration...")

	if *graphOnly && *sqlOnly {
		log.Fatal("-graph-only and -sql-only are mutually exclusive")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if !*sqlOnly {
		if err := migrateGraph(ctx, cfg); err != nil {
			log.Fatal("Graph migration failed", zap.Error(err))
		}
	}
	if !*graphOnly {
		if err := migrateSQL(ctx, cfg); err != nil {
			log.Fatal("SQL migration failed", zap.Error(err))
		}
	}

	log.Info("Migration completed successfully!")
}

func migrateGraph(ctx context.Context, cfg *config.Config) error {
	driver, err := graph.NewDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		return err
	}
	repo := graph.NewRepository(driver, nil)
	defer repo.Close(context.Background())

	return repo.EnsureSchema(ctx)
}

func migrateSQL(ctx context.Context, cfg *config.Config) error {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Migrate(ctx)
}
