package markersource

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/signalsfoundry/globe-poi/model"
)

// PostgresSource reads markers from a PostgreSQL table with name, lat and
// lon columns, ordered by name.
type PostgresSource struct {
	pool  *pgxpool.Pool
	table string
}

// OpenPostgres connects a pool to dsn. The connection is checked with a ping
// so a bad DSN fails at startup rather than on first load.
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresSource, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("markersource: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("markersource: ping postgres: %w", err)
	}
	return &PostgresSource{pool: pool, table: table}, nil
}

// NewPostgresSource wraps an existing pool.
func NewPostgresSource(pool *pgxpool.Pool, table string) (*PostgresSource, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return &PostgresSource{pool: pool, table: table}, nil
}

// Load implements Source.
func (s *PostgresSource) Load(ctx context.Context) ([]model.MarkerRecord, error) {
	query := fmt.Sprintf(`SELECT name, lat, lon FROM %s ORDER BY name`, s.table)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query markers: %w", err)
	}
	defer rows.Close()

	var records []model.MarkerRecord
	for rows.Next() {
		var r model.MarkerRecord
		if err := rows.Scan(&r.Name, &r.Lat, &r.Lon); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan marker row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate markers: %w", err)
	}
	if err := model.ValidateRecords(records); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return records, nil
}

func (s *PostgresSource) Describe() string { return "postgres:" + s.table }

// Close closes the pool.
func (s *PostgresSource) Close() error {
	s.pool.Close()
	return nil
}
