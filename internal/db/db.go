package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type migration struct {
	name string
	stmt string
}

var migrations = []migration{
	{
		name: "create chat_snapshots",
		stmt: `CREATE TABLE IF NOT EXISTS chat_snapshots (
            name TEXT PRIMARY KEY,
            document JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	},
}

// Connect opens the Postgres pool behind the snapshot backend and makes sure
// its table exists. Only one writer touches a snapshot row, so the pool is
// kept small.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	database, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	database.SetMaxOpenConns(4)
	database.SetConnMaxIdleTime(5 * time.Minute)

	if err := migrate(ctx, database); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func migrate(ctx context.Context, database *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := database.ExecContext(ctx, m.stmt); err != nil {
			return fmt.Errorf("migration %q: %w", m.name, err)
		}
	}
	log.Printf("db: %d migrations applied", len(migrations))
	return nil
}
