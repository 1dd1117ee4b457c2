package store

import "fmt"

// schemaSQL returns the DDL for the snapshot tables. embeddingDim sets the
// vec0 column width.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- One row per contract; data holds the full record without its vector
CREATE TABLE IF NOT EXISTS contracts (
    seq INTEGER PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    summary TEXT NOT NULL,
    contract_type TEXT,
    effective_date TEXT,
    end_date TEXT,
    governing_law TEXT,
    embedding_version TEXT,
    data JSON NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Parties and clauses, denormalized for ad-hoc SQL over the corpus
CREATE TABLE IF NOT EXISTS parties (
    contract_seq INTEGER NOT NULL REFERENCES contracts(seq) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    role TEXT,
    country TEXT,
    PRIMARY KEY (contract_seq, position)
);

CREATE TABLE IF NOT EXISTS clauses (
    contract_seq INTEGER NOT NULL REFERENCES contracts(seq) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    clause_type TEXT NOT NULL,
    content TEXT NOT NULL,
    PRIMARY KEY (contract_seq, position)
);

-- Summary embeddings via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_contracts USING vec0(
    contract_seq INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=cosine
);

CREATE INDEX IF NOT EXISTS idx_parties_name ON parties(name);
CREATE INDEX IF NOT EXISTS idx_clauses_type ON clauses(clause_type);
`, embeddingDim)
}
