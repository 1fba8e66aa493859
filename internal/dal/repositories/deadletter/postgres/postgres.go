package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/dispatcher/internal/service/models/deadletter"
	"github.com/jackc/pgx/v5/pgconn"
)

// execer is the part of *pgxpool.Pool the repository needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DeadLetterRepository implements the dead letter repository for PostgreSQL.
type DeadLetterRepository struct {
	db execer
}

// NewDeadLetterRepository creates a new dead letter repository.
func NewDeadLetterRepository(db execer) *DeadLetterRepository {
	return &DeadLetterRepository{
		db: db,
	}
}

// Save stores a dead letter. Saving the same entry twice is a no-op.
func (r *DeadLetterRepository) Save(ctx context.Context, dl deadletter.DeadLetter) error {
	query, args, err := buildInsert(dl)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}

	return nil
}

func buildInsert(dl deadletter.DeadLetter) (string, []any, error) {
	query, args, err := sq.Insert("dead_letters").
		Columns(
			"entry_id",
			"recipient",
			"payload",
			"attempts",
			"not_before",
			"created_at",
		).
		Values(
			dl.EntryID,
			dl.Recipient,
			dl.Payload,
			dl.Attempts,
			dl.NotBefore,
			dl.CreatedAt,
		).
		Suffix("ON CONFLICT (entry_id) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build dead letter insert query: %w", err)
	}

	return query, args, nil
}
