// Package dag stores a learned Bayesian-network structure and checks it
// against stage constraints.
package dag

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/danielpatrickdp/cropnet/internal/constraints"
)

// ErrSelfLoop is returned when an edge points at its own source.
var ErrSelfLoop = errors.New("self loop")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS dag_edges (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    source      TEXT NOT NULL,
    target      TEXT NOT NULL,
    weight      REAL NOT NULL DEFAULT 1.0,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL,
    UNIQUE(source, target)
);
CREATE INDEX IF NOT EXISTS idx_dag_source ON dag_edges(source);
CREATE INDEX IF NOT EXISTS idx_dag_target ON dag_edges(target);
`

// #endregion schema

// #region types
// Edge is a directed, weighted link in the learned structure.
type Edge struct {
	ID        int64     `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StructureStore manages the dag_edges table.
type StructureStore struct {
	db *sql.DB
}

// #endregion types

// #region constructor
// NewStructureStore creates tables and returns a StructureStore.
func NewStructureStore(db *sql.DB) (*StructureStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("dag schema: %w", err)
	}
	return &StructureStore{db: db}, nil
}

// #endregion constructor

// #region add-edge
// AddEdge inserts a new edge. If the edge already exists it is ignored.
func (g *StructureStore) AddEdge(from, to string, weight float64) error {
	if from == to {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrSelfLoop)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := g.db.Exec(
		`INSERT OR IGNORE INTO dag_edges (source, target, weight, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		from, to, weight, now, now,
	)
	return err
}

// SetEdge inserts an edge or overwrites the weight of an existing one.
func (g *StructureStore) SetEdge(from, to string, weight float64) error {
	if from == to {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrSelfLoop)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := g.db.Exec(
		`INSERT INTO dag_edges (source, target, weight, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(source, target) DO UPDATE SET
		   weight = excluded.weight,
		   updated_at = excluded.updated_at`,
		from, to, weight, now, now,
	)
	return err
}

// #endregion add-edge

// #region queries
// Edges returns every stored edge ordered by (from, to).
func (g *StructureStore) Edges() ([]Edge, error) {
	return g.queryEdges(`SELECT id, source, target, weight, created_at, updated_at
		 FROM dag_edges ORDER BY source, target`)
}

// Children returns the edges leaving node with weight >= minWeight, strongest first.
func (g *StructureStore) Children(node string, minWeight float64) ([]Edge, error) {
	return g.queryEdges(`SELECT id, source, target, weight, created_at, updated_at
		 FROM dag_edges
		 WHERE source = ? AND weight >= ?
		 ORDER BY weight DESC, target`, node, minWeight)
}

// Parents returns the edges entering node, ordered by source.
func (g *StructureStore) Parents(node string) ([]Edge, error) {
	return g.queryEdges(`SELECT id, source, target, weight, created_at, updated_at
		 FROM dag_edges
		 WHERE target = ?
		 ORDER BY source`, node)
}

func (g *StructureStore) queryEdges(query string, args ...any) ([]Edge, error) {
	rows, err := g.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		var createdAt, updatedAt string
		if err := rows.Scan(&e.ID, &e.From, &e.To, &e.Weight, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// #endregion queries

// #region descendants
// Descendants performs a BFS from node, following edges with weight >=
// minWeight up to maxDepth hops. The start node is not included. Nodes are
// returned in visit order.
func (g *StructureStore) Descendants(node string, maxDepth int, minWeight float64) ([]string, error) {
	if maxDepth <= 0 {
		maxDepth = 1 << 30
	}

	var out []string
	visited := map[string]bool{node: true}

	type queueItem struct {
		id    string
		depth int
	}
	queue := []queueItem{{node, 0}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.depth >= maxDepth {
			continue
		}

		children, err := g.Children(current.id, minWeight)
		if err != nil {
			return out, fmt.Errorf("walk children: %w", err)
		}

		for _, edge := range children {
			if visited[edge.To] {
				continue
			}
			visited[edge.To] = true
			out = append(out, edge.To)
			queue = append(queue, queueItem{edge.To, current.depth + 1})
		}
	}

	return out, nil
}

// #endregion descendants

// #region checks
// Violations returns the stored edges that set forbids, ordered by (from, to).
func (g *StructureStore) Violations(set constraints.Set) ([]Edge, error) {
	edges, err := g.Edges()
	if err != nil {
		return nil, fmt.Errorf("violations: %w", err)
	}
	var out []Edge
	for _, e := range edges {
		if set.Forbids(e.From, e.To) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Cycle returns one directed cycle as a node path whose first and last
// elements are equal, or nil if the structure is acyclic.
func (g *StructureStore) Cycle() ([]string, error) {
	edges, err := g.Edges()
	if err != nil {
		return nil, fmt.Errorf("cycle: %w", err)
	}

	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int)
	var stack []string
	var found []string

	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = grey
		stack = append(stack, n)
		for _, next := range adj[n] {
			switch color[next] {
			case grey:
				for i, s := range stack {
					if s == next {
						found = append(append([]string{}, stack[i:]...), next)
						break
					}
				}
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return false
	}

	for _, n := range nodes {
		if color[n] == white && visit(n) {
			return found, nil
		}
	}
	return nil, nil
}

// #endregion checks

// #region prune
// Prune deletes edges lighter than minWeight and returns how many were removed.
func (g *StructureStore) Prune(minWeight float64) (int64, error) {
	res, err := g.db.Exec(`DELETE FROM dag_edges WHERE weight < ?`, minWeight)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RemoveNode deletes all edges where node is either source or target.
func (g *StructureStore) RemoveNode(node string) error {
	_, err := g.db.Exec(
		`DELETE FROM dag_edges WHERE source = ? OR target = ?`,
		node, node,
	)
	return err
}

// #endregion prune

// #region import
// ReadEdgesCSV parses a from,to[,weight] edge list. A missing weight column
// defaults every edge to 1.
func ReadEdgesCSV(r io.Reader) ([]Edge, error) {
	rows, err := gocsv.CSVToMaps(r)
	if err != nil {
		return nil, fmt.Errorf("read edges: %w", err)
	}

	edges := make([]Edge, 0, len(rows))
	for i, row := range rows {
		e := Edge{
			From:   strings.TrimSpace(row["from"]),
			To:     strings.TrimSpace(row["to"]),
			Weight: 1,
		}
		if e.From == "" || e.To == "" {
			return nil, fmt.Errorf("row %d: from and to are required", i+1)
		}
		if w := strings.TrimSpace(row["weight"]); w != "" {
			v, err := strconv.ParseFloat(w, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d weight %q: %w", i+1, w, err)
			}
			e.Weight = v
		}
		edges = append(edges, e)
	}
	return edges, nil
}

// Import stores edges, overwriting the weight of edges already present.
func (g *StructureStore) Import(edges []Edge) error {
	for _, e := range edges {
		if err := g.SetEdge(e.From, e.To, e.Weight); err != nil {
			return fmt.Errorf("import %s -> %s: %w", e.From, e.To, err)
		}
	}
	return nil
}

// #endregion import
