package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/storm/internal/repository"
)

// Storage binds user and refresh token repositories to one connection.
// Inside InTx both repositories share the transaction, so rotation and lineage revoke commit together
type Storage struct {
	db     DBTX
	users  *UserRepo
	tokens *RefreshTokenRepo
}

func NewStorage(db DBTX) repository.Storage {
	return &Storage{
		db:     db,
		users:  &UserRepo{DB: db},
		tokens: &RefreshTokenRepo{DB: db},
	}
}

func (s *Storage) User() repository.UserRepo {
	return s.users
}

func (s *Storage) Refresh() repository.RefreshTokenRepo {
	return s.tokens
}

// InTx commits if fn returns nil. Nested calls become savepoints
func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(NewStorage(tx))
	})
}
