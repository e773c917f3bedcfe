package sink

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"plutus/internal/engine"
)

// Postgres records matches into a matches table:
//
//	CREATE TABLE matches (
//	    address     TEXT PRIMARY KEY,
//	    private_key TEXT NOT NULL,
//	    public_key  TEXT NOT NULL,
//	    mnemonic    TEXT
//	);
//
// The upsert keeps re-discoveries of the same address harmless; the row
// content is identical because derivation is deterministic.
type Postgres struct {
	db     *sql.DB
	insert *sql.Stmt
}

// NewPostgres connects and prepares the insert statement.
func NewPostgres(connStr string, maxConns int) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	insert, err := db.Prepare(`
		INSERT INTO matches (address, private_key, public_key, mnemonic)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address)
		DO UPDATE SET private_key = EXCLUDED.private_key, public_key = EXCLUDED.public_key, mnemonic = EXCLUDED.mnemonic`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing insert statement: %w", err)
	}
	return &Postgres{db: db, insert: insert}, nil
}

// Record inserts one match. database/sql serializes statement use across
// goroutines, so no extra locking is needed here.
func (s *Postgres) Record(m engine.Match) error {
	if _, err := s.insert.Exec(m.Address, m.WIF, m.PublicKeyHex, m.Mnemonic); err != nil {
		return fmt.Errorf("inserting match: %w", err)
	}
	return nil
}

// Close releases the prepared statement and connection pool.
func (s *Postgres) Close() error {
	s.insert.Close()
	return s.db.Close()
}
