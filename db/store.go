// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/danielhkuo/quickly-tally/models"
)

// Driver names accepted by Open
const (
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
)

// Store is the tally store: one row per voter holding their current choice.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open connection pool
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database, verifies the connection and returns the pool.
// The pool is closed again if the ping fails.
func Open(ctx context.Context, dbType, url string) (*sql.DB, error) {
	driver := TypePostgres
	if dbType == TypeSQLite {
		driver = TypeSQLite
	}

	if driver == TypeSQLite {
		url = sqliteDSN(url)
	}

	conn, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == TypeSQLite {
		// SQLite allows a single writer; serialise through one connection
		conn.SetMaxOpenConns(1)
	}
	conn.SetConnMaxIdleTime(5 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return conn, nil
}

// sqliteDSN makes writers wait out readers on another pool instead of
// failing with SQLITE_BUSY. WAL lets reads and the single writer overlap.
func sqliteDSN(url string) string {
	if strings.Contains(url, "_pragma=busy_timeout") {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Connect opens the database, ensures the schema exists and returns a Store.
func Connect(ctx context.Context, dbType, url string) (*Store, error) {
	conn, err := Open(ctx, dbType, url)
	if err != nil {
		return nil, err
	}
	if err := CreateSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return NewStore(conn), nil
}

// UpsertVote records the voter's current choice in a single atomic statement.
// Reapplying the same vote is a no-op; a new choice overwrites the old one.
func (s *Store) UpsertVote(ctx context.Context, v models.Vote) error {
	if err := v.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO votes (voter_id, choice)
		VALUES ($1, $2)
		ON CONFLICT (voter_id) DO UPDATE SET choice = excluded.choice
	`, v.VoterID, v.Choice)
	if err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}
	return nil
}

// Tally groups the store by choice. Choices with no rows report zero and
// rows holding an unknown choice are ignored.
func (s *Store) Tally(ctx context.Context) (models.Tally, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT choice, COUNT(voter_id) FROM votes GROUP BY choice
	`)
	if err != nil {
		return nil, fmt.Errorf("query tally: %w", err)
	}
	defer rows.Close()

	tally := models.NewTally()
	for rows.Next() {
		var choice string
		var count int
		if err := rows.Scan(&choice, &count); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		if models.ValidChoice(choice) {
			tally[choice] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tally: %w", err)
	}
	return tally, nil
}

// Choice returns the stored choice for a voter
func (s *Store) Choice(ctx context.Context, voterID string) (string, error) {
	var choice string
	err := s.db.QueryRowContext(ctx, `
		SELECT choice FROM votes WHERE voter_id = $1
	`, voterID).Scan(&choice)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query choice: %w", err)
	}
	return choice, nil
}

// KeepAlive issues a trivial query so a connection silently dropped by an
// intermediary surfaces as an error.
func (s *Store) KeepAlive(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("keep-alive: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var ErrNotFound = errors.New("voter not found")

// IsConnectionError reports whether err means the store is unreachable rather
// than that a single statement was rejected.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08 connection exception, 53 insufficient resources, 57 operator
		// intervention; 25006 is a read-only standby during failover
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return true
		}
		return pqErr.Code == "25006"
	}
	return !errors.Is(err, models.ErrInvalidChoice) &&
		!errors.Is(err, models.ErrMissingVoter) &&
		!errors.Is(err, ErrNotFound)
}
