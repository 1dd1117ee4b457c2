package graphsink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/brunobiangulo/contractgraph/contract"
)

// Neo4jConfig configures the Neo4j writer.
type Neo4jConfig struct {
	URI         string        `json:"uri" yaml:"uri"`
	User        string        `json:"user" yaml:"user"`
	Password    string        `json:"-" yaml:"password"`
	Database    string        `json:"database" yaml:"database"`
	MaxPoolSize int           `json:"max_pool_size" yaml:"max_pool_size"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	BatchSize   int           `json:"batch_size" yaml:"batch_size"`
}

// Neo4j writes records as a property graph:
//
//	(:Contract)-[:HAS_PARTY {position}]->(:Organization)-[:LOCATED_AT]->(:Location)
//	(:Contract)-[:HAS_CLAUSE {position}]->(:Clause)
//	(:Contract)-[:GOVERNED_BY]->(:Jurisdiction)
type Neo4j struct {
	driver   neo4j.DriverWithContext
	database string
	batch    int
}

// NewNeo4j connects and verifies connectivity.
func NewNeo4j(ctx context.Context, cfg Neo4jConfig) (*Neo4j, error) {
	if cfg.URI == "" {
		return nil, errors.New("graphsink: neo4j uri is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.User, cfg.Password, ""),
		func(c *neo4j.Config) {
			if cfg.MaxPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.MaxPoolSize
			}
			c.SocketConnectTimeout = cfg.Timeout
		},
	)
	if err != nil {
		return nil, fmt.Errorf("graphsink: creating neo4j driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(context.Background())
		return nil, fmt.Errorf("graphsink: neo4j unreachable at %s: %w", cfg.URI, err)
	}
	return &Neo4j{driver: driver, database: cfg.Database, batch: cfg.BatchSize}, nil
}

// Close releases the driver.
func (n *Neo4j) Close(ctx context.Context) error {
	return n.driver.Close(ctx)
}

var constraintStatements = []string{
	"CREATE CONSTRAINT contract_id IF NOT EXISTS FOR (c:Contract) REQUIRE c.id IS UNIQUE",
	"CREATE CONSTRAINT organization_key IF NOT EXISTS FOR (o:Organization) REQUIRE o.key IS UNIQUE",
	"CREATE CONSTRAINT location_key IF NOT EXISTS FOR (l:Location) REQUIRE l.key IS UNIQUE",
	"CREATE CONSTRAINT clause_key IF NOT EXISTS FOR (c:Clause) REQUIRE c.key IS UNIQUE",
	"CREATE CONSTRAINT jurisdiction_name IF NOT EXISTS FOR (j:Jurisdiction) REQUIRE j.name IS UNIQUE",
}

const (
	cypherDetach = `
UNWIND $ids AS id
MATCH (c:Contract {id: id})-[:HAS_PARTY|HAS_CLAUSE]->(x)
DETACH DELETE x`

	cypherContracts = `
UNWIND $rows AS r
MERGE (c:Contract {id: r.id})
SET c += r.props
WITH c, r
OPTIONAL MATCH (c)-[old:GOVERNED_BY]->()
DELETE old
WITH c, r
WHERE r.governing_law IS NOT NULL
MERGE (j:Jurisdiction {name: r.governing_law})
MERGE (c)-[:GOVERNED_BY]->(j)`

	cypherParties = `
UNWIND $rows AS r
MATCH (c:Contract {id: r.contract_id})
MERGE (o:Organization {key: r.key})
SET o.name = r.name, o.role = r.role
MERGE (c)-[p:HAS_PARTY]->(o)
SET p.position = r.position`

	cypherLocations = `
UNWIND $rows AS r
MATCH (o:Organization {key: r.party_key})
MERGE (l:Location {key: r.key})
SET l.address = r.address, l.city = r.city, l.state = r.state, l.country = r.country
MERGE (o)-[:LOCATED_AT]->(l)`

	cypherClauses = `
UNWIND $rows AS r
MATCH (c:Contract {id: r.contract_id})
MERGE (x:Clause {key: r.key})
SET x.type = r.type, x.text = r.text, x.source_position = r.source_position
MERGE (c)-[h:HAS_CLAUSE]->(x)
SET h.position = r.position`
)

// Write upserts records. A contract's previous parties and clauses are
// replaced; shared locations and jurisdictions are kept.
func (n *Neo4j) Write(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: n.database,
	})
	defer session.Close(ctx)

	for _, q := range constraintStatements {
		res, err := session.Run(ctx, q, nil)
		if err == nil {
			_, err = res.Consume(ctx)
		}
		if err != nil {
			slog.Warn("graphsink: neo4j constraint failed", "statement", q, "error", err)
		}
	}

	for start := 0; start < len(records); start += n.batch {
		end := min(start+n.batch, len(records))
		batch := buildBatch(records[start:end])
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			steps := []struct {
				cypher string
				params map[string]any
			}{
				{cypherDetach, map[string]any{"ids": batch.ids}},
				{cypherContracts, map[string]any{"rows": batch.contracts}},
				{cypherParties, map[string]any{"rows": batch.parties}},
				{cypherLocations, map[string]any{"rows": batch.locations}},
				{cypherClauses, map[string]any{"rows": batch.clauses}},
			}
			for _, s := range steps {
				res, err := tx.Run(ctx, s.cypher, s.params)
				if err != nil {
					return nil, err
				}
				if _, err := res.Consume(ctx); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
		if err != nil {
			return fmt.Errorf("graphsink: writing records %d-%d: %w", start, end-1, err)
		}
		slog.Debug("graphsink: neo4j batch written", "contracts", len(batch.ids), "clauses", len(batch.clauses))
	}
	return nil
}

// batchParams holds the UNWIND parameter rows for one write transaction.
type batchParams struct {
	ids       []string
	contracts []map[string]any
	parties   []map[string]any
	locations []map[string]any
	clauses   []map[string]any
}

func buildBatch(records []*Record) batchParams {
	var b batchParams
	syncedAt := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range records {
		c := r.Contract
		b.ids = append(b.ids, c.ID)

		props := map[string]any{
			"summary":           c.Summary,
			"contract_type":     optional(c.ContractType),
			"effective_date":    optional(c.EffectiveDate),
			"end_date":          optional(c.EndDate),
			"duration":          optional(c.Duration),
			"governing_law":     optional(c.GoverningLaw),
			"scope":             optional(c.Scope),
			"amount_value":      nil,
			"amount_currency":   nil,
			"embedding_version": nil,
			"synced_at":         syncedAt,
		}
		if c.TotalAmount != nil {
			props["amount_value"] = c.TotalAmount.Value
			props["amount_currency"] = c.TotalAmount.Currency
		}
		if c.EmbeddingVersion != "" {
			props["embedding_version"] = c.EmbeddingVersion
		}
		b.contracts = append(b.contracts, map[string]any{
			"id":            c.ID,
			"governing_law": optional(c.GoverningLaw),
			"props":         props,
		})

		for _, p := range r.Parties {
			b.parties = append(b.parties, map[string]any{
				"contract_id": c.ID,
				"key":         p.Key,
				"name":        p.Name,
				"role":        optional(p.Role),
				"position":    int64(p.Index),
			})
			if l := p.Location; l != nil {
				b.locations = append(b.locations, map[string]any{
					"party_key": p.Key,
					"key":       l.Key,
					"address":   optional(l.Address),
					"city":      optional(l.City),
					"state":     optional(l.State),
					"country":   optional(l.Country),
				})
			}
		}

		for _, cl := range r.Clauses {
			var src any
			if cl.Position != nil {
				src = int64(*cl.Position)
			}
			b.clauses = append(b.clauses, map[string]any{
				"contract_id":     c.ID,
				"key":             cl.Key,
				"type":            cl.Type,
				"text":            cl.Text,
				"position":        int64(cl.Index),
				"source_position": src,
			})
		}
	}
	return b
}

// optional maps a nil pointer to a Cypher null.
func optional(s *string) any {
	if s == nil {
		return nil
	}
	return contract.Deref(s)
}
