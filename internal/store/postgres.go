package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Postgres is the production profile store.
type Postgres struct {
	*sqlStore
}

// NewPostgres wraps an open database handle. The schema is not touched.
func NewPostgres(db *sql.DB, logger *zap.Logger) *Postgres {
	return &Postgres{sqlStore: newSQLStore(db, true, logger)}
}

// OpenPostgres connects to dsn, verifies the connection and migrates.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := NewPostgres(db, logger)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
