package main

import (
	"context"
	"time"

	mongoMigration "parkline/internal/migrations/mongo"
	postgresMigration "parkline/internal/migrations/postgres"
	"parkline/pkg/config"
)

const JobName = "parkline-migrate"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	defer cfg.GracefulShutdown()
	cfg.Log.Info("Starting migration job", "lock_backend", cfg.LockBackend)

	migratePostgres(ctx, cfg)
	if cfg.LockBackend == config.BackendMongo {
		migrateMongo(ctx, cfg)
	}

	cfg.Log.Info("Migration completed successfully")
}

func migratePostgres(ctx context.Context, cfg *config.Config) {
	cfg.SetPostgres()
	if err := postgresMigration.RunMigration(ctx, cfg.Client.Postgres, cfg.Log); err != nil {
		cfg.Log.Fatal("Postgres migration failed", "error", err)
	}
}

func migrateMongo(ctx context.Context, cfg *config.Config) {
	cfg.SetMongo()
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	if err := mongoMigration.RunMigration(ctx, db, cfg.Log); err != nil {
		cfg.Log.Fatal("Mongo migration failed", "error", err)
	}
}
