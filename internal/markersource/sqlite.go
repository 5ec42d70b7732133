package markersource

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/globe-poi/model"
)

// SQLiteSource reads markers from a table with name, lat and lon columns,
// in insertion order.
type SQLiteSource struct {
	db    *sql.DB
	dsn   string
	table string
}

// OpenSQLite opens dsn with the pure-Go SQLite driver.
func OpenSQLite(dsn, table string) (*SQLiteSource, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("markersource: open sqlite: %w", err)
	}
	// One connection, so an in-memory database is the same for every query.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return &SQLiteSource{db: db, dsn: dsn, table: table}, nil
}

// DB exposes the handle, for seeding.
func (s *SQLiteSource) DB() *sql.DB { return s.db }

// Load implements Source.
func (s *SQLiteSource) Load(ctx context.Context) ([]model.MarkerRecord, error) {
	query := fmt.Sprintf(`SELECT name, lat, lon FROM %s ORDER BY rowid`, s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("markersource: failed to query markers: %w", err)
	}
	defer rows.Close()

	var records []model.MarkerRecord
	for rows.Next() {
		var r model.MarkerRecord
		if err := rows.Scan(&r.Name, &r.Lat, &r.Lon); err != nil {
			return nil, fmt.Errorf("markersource: failed to scan marker row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("markersource: iterate markers: %w", err)
	}
	if err := model.ValidateRecords(records); err != nil {
		return nil, fmt.Errorf("markersource: %w", err)
	}
	return records, nil
}

func (s *SQLiteSource) Describe() string { return "sqlite:" + s.dsn + "/" + s.table }

// Close releases the database handle.
func (s *SQLiteSource) Close() error { return s.db.Close() }
