package refgraph

import (
	"context"
	"fmt"

	"jpe-compiler/internal/ir"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog/log"
)

// Exporter writes project graphs into Neo4j.
type Exporter struct {
	driver neo4j.DriverWithContext
}

// Connect opens a verified driver for uri.
func Connect(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("connect Neo4j: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("verify Neo4j connectivity: %w", err)
	}
	log.Info().Str("uri", uri).Msg("Connected to Neo4j")
	return driver, nil
}

// NewExporter creates an exporter on an open driver.
func NewExporter(driver neo4j.DriverWithContext) *Exporter {
	return &Exporter{driver: driver}
}

// EnsureSchema creates the uniqueness constraint on entity ids.
func (x *Exporter) EnsureSchema(ctx context.Context) error {
	session := x.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	constraints := []string{
		"CREATE CONSTRAINT IF NOT EXISTS FOR (e:Entity) REQUIRE e.rid IS UNIQUE",
		"CREATE INDEX IF NOT EXISTS FOR (e:Entity) ON (e.namespace)",
	}
	for _, c := range constraints {
		if _, err := session.Run(ctx, c, nil); err != nil {
			return fmt.Errorf("create constraint: %w", err)
		}
	}
	log.Info().Msg("Graph schema ensured")
	return nil
}

// Stats summarizes one export.
type Stats struct {
	Nodes   int
	Edges   int
	Removed int
}

// Export upserts every entity and reference of p. Entities of the same
// namespace that no longer exist, and their edges, are removed.
func (x *Exporter) Export(ctx context.Context, p *ir.ProjectIR) (Stats, error) {
	nodes, edges := Project(p)

	nodeRows := make([]map[string]any, len(nodes))
	rids := make([]string, len(nodes))
	for i, n := range nodes {
		nodeRows[i] = map[string]any{"rid": n.RID, "kind": n.Kind, "name": n.Name, "namespace": n.Namespace}
		rids[i] = n.RID
	}
	edgeRows := make([]map[string]any, len(edges))
	for i, e := range edges {
		edgeRows[i] = map[string]any{"from": e.From, "to": e.To, "field": e.Field}
	}

	session := x.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	removed, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (int, error) {
		res, err := tx.Run(ctx, `
			MATCH (e:Entity {namespace: $namespace})
			WHERE NOT e.rid IN $rids
			DETACH DELETE e
			RETURN count(*) AS removed
		`, map[string]any{"namespace": p.Namespace(), "rids": rids})
		if err != nil {
			return 0, fmt.Errorf("remove stale entities: %w", err)
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return 0, fmt.Errorf("remove stale entities: %w", err)
		}
		n, _, err := neo4j.GetRecordValue[int64](rec, "removed")
		if err != nil {
			return 0, fmt.Errorf("remove stale entities: %w", err)
		}

		if _, err := tx.Run(ctx, `
			UNWIND $rows AS row
			MERGE (e:Entity {rid: row.rid})
			SET e.kind = row.kind,
			    e.name = row.name,
			    e.namespace = row.namespace
		`, map[string]any{"rows": nodeRows}); err != nil {
			return 0, fmt.Errorf("upsert entities: %w", err)
		}

		// Edges are rebuilt so removed references disappear.
		if _, err := tx.Run(ctx, `
			MATCH (a:Entity {namespace: $namespace})-[r:REFERENCES]->()
			DELETE r
		`, map[string]any{"namespace": p.Namespace()}); err != nil {
			return 0, fmt.Errorf("clear references: %w", err)
		}
		if _, err := tx.Run(ctx, `
			UNWIND $rows AS row
			MATCH (a:Entity {rid: row.from})
			MATCH (b:Entity {rid: row.to})
			MERGE (a)-[:REFERENCES {field: row.field}]->(b)
		`, map[string]any{"rows": edgeRows}); err != nil {
			return 0, fmt.Errorf("upsert references: %w", err)
		}
		return int(n), nil
	})
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Nodes: len(nodes), Edges: len(edges), Removed: removed}
	log.Info().
		Int("nodes", stats.Nodes).
		Int("edges", stats.Edges).
		Int("removed", stats.Removed).
		Msg("Exported reference graph")
	return stats, nil
}

// Dependents lists the edges pointing at the entity with the given rid.
func (x *Exporter) Dependents(ctx context.Context, rid string) ([]Edge, error) {
	session := x.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (a:Entity)-[r:REFERENCES]->(b:Entity {rid: $rid})
		RETURN a.rid AS from_rid, r.field AS field
		ORDER BY from_rid, field
	`, map[string]any{"rid": rid})
	if err != nil {
		return nil, fmt.Errorf("query dependents: %w", err)
	}

	var out []Edge
	for result.Next(ctx) {
		record := result.Record()
		from, _ := record.Get("from_rid")
		field, _ := record.Get("field")
		out = append(out, Edge{From: fmt.Sprintf("%v", from), To: rid, Field: fmt.Sprintf("%v", field)})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("query dependents: %w", err)
	}
	return out, nil
}
