package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/store"
)

// SnapshotRepo stores the state document as one JSONB row per name. It
// satisfies store.Backend.
type SnapshotRepo struct {
	db   *sqlx.DB
	name string
}

// NewSnapshotRepo constructs a SnapshotRepo for the document called name.
func NewSnapshotRepo(db *sqlx.DB, name string) *SnapshotRepo {
	return &SnapshotRepo{db: db, name: name}
}

// Load returns the stored document or store.ErrNoSnapshot.
func (r *SnapshotRepo) Load(ctx context.Context) ([]byte, error) {
	var document []byte
	err := r.db.GetContext(ctx, &document, `SELECT document FROM chat_snapshots WHERE name=$1`, r.name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return document, nil
}

// Save upserts the document in a single statement.
func (r *SnapshotRepo) Save(ctx context.Context, data []byte) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO chat_snapshots (name, document, updated_at) VALUES ($1, $2, NOW())
        ON CONFLICT (name) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`, r.name, string(data))
	return err
}

var _ store.Backend = (*SnapshotRepo)(nil)
