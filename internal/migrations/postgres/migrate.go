package postgres

import (
	"context"
	"fmt"

	"parkline/pkg/db/postgres"
	"parkline/pkg/logger"
)

// Migration is one idempotent schema step. Steps run in slice order.
type Migration struct {
	Name       string
	Statements []string
}

var Migrations = []Migration{
	{
		Name: "extensions",
		Statements: []string{
			`CREATE EXTENSION IF NOT EXISTS btree_gist`,
		},
	},
	{
		Name: "resource_pools",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS resource_pools (
				id         text PRIMARY KEY,
				name       text NOT NULL,
				created_at timestamptz NOT NULL DEFAULT now()
			)`,
		},
	},
	{
		Name: "resource_units",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS resource_units (
				id           text PRIMARY KEY,
				pool_id      text NOT NULL REFERENCES resource_pools (id),
				status       text NOT NULL DEFAULT 'available'
				             CHECK (status IN ('available', 'reserved', 'occupied', 'out_of_service')),
				version      bigint NOT NULL DEFAULT 1 CHECK (version >= 1),
				features     text[] NOT NULL DEFAULT '{}',
				occupant_ref text,
				updated_at   timestamptz NOT NULL DEFAULT now(),
				CONSTRAINT resource_units_occupant_check CHECK ((status IN ('reserved', 'occupied')) = (occupant_ref IS NOT NULL))
			)`,
			`CREATE INDEX IF NOT EXISTS resource_units_pool_status_idx ON resource_units (pool_id, status, id)`,
			`CREATE INDEX IF NOT EXISTS resource_units_features_idx ON resource_units USING gin (features)`,
		},
	},
	{
		Name: "bookings",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS bookings (
				id           text PRIMARY KEY,
				unit_id      text NOT NULL REFERENCES resource_units (id),
				pool_id      text NOT NULL,
				requester_id text NOT NULL,
				request_id   text NOT NULL,
				start_time   timestamptz NOT NULL,
				end_time     timestamptz NOT NULL,
				status       text NOT NULL
				             CHECK (status IN ('pending', 'confirmed', 'active', 'completed', 'cancelled', 'expired')),
				created_at   timestamptz NOT NULL DEFAULT now(),
				updated_at   timestamptz NOT NULL DEFAULT now(),
				CONSTRAINT bookings_window_check CHECK (end_time > start_time),
				CONSTRAINT bookings_request_id_key UNIQUE (request_id)
			)`,
			`CREATE INDEX IF NOT EXISTS bookings_unit_window_idx ON bookings (unit_id, start_time, end_time)`,
			`CREATE INDEX IF NOT EXISTS bookings_confirmed_end_idx ON bookings (end_time) WHERE status = 'confirmed'`,
		},
	},
	{
		Name: "bookings_no_overlap",
		Statements: []string{
			`DO $$
			BEGIN
				IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'bookings_no_overlap') THEN
					ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap
						EXCLUDE USING gist (unit_id WITH =, tstzrange(start_time, end_time) WITH &&)
						WHERE (status IN ('pending', 'confirmed', 'active'));
				END IF;
			END
			$$`,
		},
	},
}

// RunMigration applies every migration inside a single transaction.
func RunMigration(ctx context.Context, db postgres.DB, log *logger.Logger) error {
	return Run(ctx, db, Migrations, log)
}

func Run(ctx context.Context, db postgres.DB, migrations []Migration, log *logger.Logger) error {
	log.Info("Running Postgres migrations", "count", len(migrations))

	tm := postgres.NewTransactionManager(db)
	err := tm.ExecuteTransaction(ctx, func(ctx context.Context) error {
		conn := postgres.Conn(ctx, db)
		for _, m := range migrations {
			for i, stmt := range m.Statements {
				if _, err := conn.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("migration %s statement %d: %w", m.Name, i+1, err)
				}
			}
			log.Info("Applied migration", "migration", m.Name)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("All Postgres migrations applied")
	return nil
}
