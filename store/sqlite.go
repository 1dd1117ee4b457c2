package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/contractgraph/contract"
)

func init() {
	sqlite_vec.Auto()
}

// SQLite is an on-disk snapshot of the corpus. Records live in a contracts
// table; summary vectors live in a sqlite-vec table.
type SQLite struct {
	db           *sql.DB
	embeddingDim int
}

// OpenSQLite opens (or creates) a snapshot database at path.
func OpenSQLite(path string, embeddingDim int) (*SQLite, error) {
	if embeddingDim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", embeddingDim)
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLite{db: db, embeddingDim: embeddingDim}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Save writes contracts to the snapshot, replacing existing rows with the
// same identifier. Vectors whose dimension does not match the table are
// dropped and the contract is stored without one.
func (s *SQLite) Save(ctx context.Context, contracts []*contract.Contract) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range contracts {
			if err := s.put(ctx, tx, c); err != nil {
				return fmt.Errorf("saving contract %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLite) put(ctx context.Context, tx *sql.Tx, c *contract.Contract) error {
	withVector := c.HasEmbedding() && len(c.Embedding) == s.embeddingDim
	if c.HasEmbedding() && !withVector {
		slog.Warn("store: dropping vector with wrong dimension",
			"contract", c.ID, "dim", len(c.Embedding), "want", s.embeddingDim)
	}

	record := c.Clone()
	record.Embedding = nil
	record.EmbeddingVersion = ""
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	var version any
	if withVector {
		version = c.EmbeddingVersion
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO contracts (id, summary, contract_type, effective_date, end_date, governing_law, embedding_version, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			summary = excluded.summary,
			contract_type = excluded.contract_type,
			effective_date = excluded.effective_date,
			end_date = excluded.end_date,
			governing_law = excluded.governing_law,
			embedding_version = excluded.embedding_version,
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`, c.ID, c.Summary, c.ContractType, c.EffectiveDate, c.EndDate, c.GoverningLaw, version, string(data)); err != nil {
		return err
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, "SELECT seq FROM contracts WHERE id = ?", c.ID).Scan(&seq); err != nil {
		return err
	}

	for _, stmt := range []string{
		"DELETE FROM parties WHERE contract_seq = ?",
		"DELETE FROM clauses WHERE contract_seq = ?",
		"DELETE FROM vec_contracts WHERE contract_seq = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, seq); err != nil {
			return err
		}
	}

	for i, p := range c.Parties {
		var country *string
		if p.Location != nil {
			country = p.Location.Country
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO parties (contract_seq, position, name, role, country) VALUES (?, ?, ?, ?, ?)",
			seq, i, p.Name, p.Role, country); err != nil {
			return err
		}
	}
	for i, cl := range c.Clauses {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO clauses (contract_seq, position, clause_type, content) VALUES (?, ?, ?, ?)",
			seq, i, cl.Type, cl.Text); err != nil {
			return err
		}
	}

	if withVector {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO vec_contracts (contract_seq, embedding) VALUES (?, ?)",
			seq, serializeFloat32(c.Embedding)); err != nil {
			return err
		}
	}
	return nil
}

// Load reads every contract in the snapshot, ordered by identifier, with
// its vector attached when one was saved.
func (s *SQLite) Load(ctx context.Context) ([]*contract.Contract, error) {
	vectors, err := s.vectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading vectors: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, id, embedding_version, data FROM contracts ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*contract.Contract
	for rows.Next() {
		var (
			seq     int64
			id      string
			version sql.NullString
			data    string
		)
		if err := rows.Scan(&seq, &id, &version, &data); err != nil {
			return nil, err
		}
		var c contract.Contract
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("decoding contract %s: %w", id, err)
		}
		if c.Parties == nil {
			c.Parties = []contract.Organization{}
		}
		if c.Clauses == nil {
			c.Clauses = []contract.Clause{}
		}
		if v, ok := vectors[seq]; ok && version.Valid {
			c.Embedding = v
			c.EmbeddingVersion = version.String
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLite) vectors(ctx context.Context) (map[int64][]float32, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT contract_seq, embedding FROM vec_contracts")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]float32)
	for rows.Next() {
		var (
			seq  int64
			blob []byte
		)
		if err := rows.Scan(&seq, &blob); err != nil {
			return nil, err
		}
		out[seq] = deserializeFloat32(blob)
	}
	return out, rows.Err()
}

// Count returns the number of contracts and of stored vectors.
func (s *SQLite) Count(ctx context.Context) (contracts, vectors int, err error) {
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contracts").Scan(&contracts); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vec_contracts").Scan(&vectors); err != nil {
		return 0, 0, err
	}
	return contracts, vectors, nil
}

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
