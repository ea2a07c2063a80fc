package storage

import (
	"context"
	"errors"
	"fmt"
)

// PostgresStore serves progress through pgx and grants through lib/pq
type PostgresStore struct {
	*PostgresRepository
	*SQLGrantRepository
}

// NewPostgresStore opens both pools against the same database
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	progress, err := NewPostgresRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	grants, err := NewSQLGrantRepository(ctx, cfg.DSN, int(cfg.MaxOpenConns), int(cfg.MaxIdleConns))
	if err != nil {
		progress.Close()
		return nil, err
	}

	return &PostgresStore{PostgresRepository: progress, SQLGrantRepository: grants}, nil
}

// Ping checks both pools
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.PostgresRepository.Ping(ctx); err != nil {
		return fmt.Errorf("pgx pool: %w", err)
	}
	if err := s.SQLGrantRepository.Ping(ctx); err != nil {
		return fmt.Errorf("sql pool: %w", err)
	}
	return nil
}

// Close closes both pools
func (s *PostgresStore) Close() error {
	return errors.Join(s.PostgresRepository.Close(), s.SQLGrantRepository.Close())
}
