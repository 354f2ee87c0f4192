package replaystate

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/lib/pq"
)

// PostgresStore persists State as a single row, upserted on every save.
// Schema initialisation runs once per process via sync.Once, mirroring the
// teacher's postgres-backed state backend.
type PostgresStore struct {
	db       *sql.DB
	table    string
	row      string
	initOnce sync.Once
	initErr  error
}

// NewPostgresStore opens dsn and returns a Store keyed by row under table
// (both default to sensible names if empty).
func NewPostgresStore(dsn, table, row string) (*PostgresStore, error) {
	if table == "" {
		table = "ingestgw_replay_state"
	}
	if row == "" {
		row = "default"
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("replaystate: open postgres: %w", err)
	}
	return &PostgresStore{db: db, table: table, row: row}, nil
}

func (s *PostgresStore) ensureSchema() error {
	s.initOnce.Do(func() {
		query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			row_key TEXT PRIMARY KEY,
			state_json JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, postgresQuoteIdentifier(s.table))
		_, s.initErr = s.db.Exec(query)
	})
	return s.initErr
}

// Load returns the zero State if no row exists yet.
func (s *PostgresStore) Load() (State, error) {
	if err := s.ensureSchema(); err != nil {
		return State{}, err
	}
	query := fmt.Sprintf(`SELECT state_json FROM %s WHERE row_key = $1`, postgresQuoteIdentifier(s.table))
	var raw []byte
	err := s.db.QueryRow(query, s.row).Scan(&raw)
	if err == sql.ErrNoRows {
		return State{}, nil
	}
	if err != nil {
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, nil
	}
	return st, nil
}

// Save upserts the state row.
func (s *PostgresStore) Save(state State) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (row_key, state_json, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (row_key) DO UPDATE SET state_json = EXCLUDED.state_json, updated_at = EXCLUDED.updated_at`,
		postgresQuoteIdentifier(s.table))
	_, err = s.db.Exec(query, s.row, raw)
	return err
}

// Close releases the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func postgresQuoteIdentifier(name string) string {
	return `"` + sanitizeIdentifier(name) + `"`
}

func sanitizeIdentifier(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == '"' {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
