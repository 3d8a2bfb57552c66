// Package pg persists the retrieval record as ordered rows in PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"
	errorskg "github.com/sweetpotato0/coverwise/errors"
	"github.com/sweetpotato0/coverwise/rag/persistence"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds PostgreSQL connection configuration.
type Config struct {
	// DSN takes precedence over the individual connection fields.
	DSN       string
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	TableName string
}

// DefaultConfig returns default PostgreSQL configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:      "localhost",
		Port:      5432,
		User:      "postgres",
		Password:  "postgres",
		DBName:    "coverwise",
		SSLMode:   "disable",
		TableName: "policy_chunks",
	}
}

func (c *Config) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Store implements persistence.Store using PostgreSQL.
type Store struct {
	db    *sql.DB
	table string
}

var _ persistence.Store = (*Store)(nil)

// New connects to PostgreSQL and creates the chunk table if needed.
func New(config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	table := config.TableName
	if table == "" {
		table = DefaultConfig().TableName
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q: %w", table, errorskg.ErrInvalidInput)
	}

	db, err := sql.Open("postgres", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &Store{db: db, table: table}
	if err := store.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return store, nil
}

func (s *Store) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		ordinal INTEGER PRIMARY KEY,
		text TEXT NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}'
	)`, s.table)
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Load reads all rows in ordinal order.
func (s *Store) Load(ctx context.Context) (persistence.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT text, metadata FROM %s ORDER BY ordinal`, s.table))
	if err != nil {
		return persistence.Record{}, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var rec persistence.Record
	for rows.Next() {
		var (
			text     string
			metadata []byte
		)
		if err := rows.Scan(&text, &metadata); err != nil {
			return persistence.Record{}, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunk := persistence.ChunkRecord{Text: text}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &chunk.Metadata); err != nil {
				return persistence.Record{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
			if len(chunk.Metadata) == 0 {
				chunk.Metadata = nil
			}
		}
		rec.Chunks = append(rec.Chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return persistence.Record{}, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return rec, nil
}

// Save rewrites the table in one transaction.
func (s *Store) Save(ctx context.Context, rec persistence.Record) (err error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (ordinal, text, metadata) VALUES ($1, $2, $3)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range rec.Chunks {
		metadata := []byte("{}")
		if len(chunk.Metadata) > 0 {
			if metadata, err = json.Marshal(chunk.Metadata); err != nil {
				return fmt.Errorf("failed to marshal metadata: %w", err)
			}
		}
		if _, err = stmt.ExecContext(ctx, i, chunk.Text, string(metadata)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// Clear removes all rows.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table))
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
