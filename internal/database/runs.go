package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const runColumns = `id, source, metric, linkage, criterion, threshold, min_cluster_size, top_k,
	entity_count, attribute_count, pair_count, cluster_count, kept_count,
	output_dir, summary_markdown, annotations, created_at`

// InsertRun archives a run with all of its rows in one transaction. An empty
// run.ID is replaced by a new UUID. The stored ID is returned.
func (db *DB) InsertRun(run *Run, pairs []RankedPair, clusters [][]string, leaves []Leaf) (string, error) {
	id := run.ID
	if id == "" {
		id = uuid.NewString()
	}

	var annotationsJSON *string
	if len(run.Annotations) > 0 {
		data, err := json.Marshal(run.Annotations)
		if err != nil {
			return "", fmt.Errorf("encoding annotations: %w", err)
		}
		s := string(data)
		annotationsJSON = &s
	}

	err := db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO runs (`+runColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, datetime('now')))`,
			id, run.Source, run.Metric, run.Linkage, run.Criterion, run.Threshold,
			run.MinClusterSize, run.TopK, run.EntityCount, run.AttributeCount,
			len(pairs), run.ClusterCount, len(clusters), run.OutputDir,
			run.SummaryMarkdown, annotationsJSON, run.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}

		if err := insertPairs(tx, id, pairs); err != nil {
			return err
		}
		if err := insertClusters(tx, id, clusters); err != nil {
			return err
		}
		return insertLeaves(tx, id, leaves)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func insertPairs(tx *sql.Tx, runID string, pairs []RankedPair) error {
	stmt, err := tx.Prepare(
		`INSERT INTO ranked_pairs (run_id, rank, herb_1, herb_2, shared_symptoms, distance)
		VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range pairs {
		shared := p.Shared
		if shared == nil {
			shared = []string{}
		}
		data, err := json.Marshal(shared)
		if err != nil {
			return err
		}
		rank := p.Rank
		if rank == 0 {
			rank = i + 1
		}
		if _, err := stmt.Exec(runID, rank, p.Herb1, p.Herb2, string(data), p.Distance); err != nil {
			return fmt.Errorf("inserting ranked pair %d: %w", rank, err)
		}
	}
	return nil
}

func insertClusters(tx *sql.Tx, runID string, clusters [][]string) error {
	stmt, err := tx.Prepare(
		"INSERT INTO clusters (run_id, cluster_id, position, entity) VALUES (?, ?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for cid, members := range clusters {
		for pos, entity := range members {
			if _, err := stmt.Exec(runID, cid, pos, entity); err != nil {
				return fmt.Errorf("inserting cluster %d: %w", cid, err)
			}
		}
	}
	return nil
}

func insertLeaves(tx *sql.Tx, runID string, leaves []Leaf) error {
	stmt, err := tx.Prepare(
		"INSERT INTO leaves (run_id, position, entity, entity_index) VALUES (?, ?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, l := range leaves {
		if _, err := stmt.Exec(runID, i, l.Entity, l.Index); err != nil {
			return fmt.Errorf("inserting leaf %d: %w", i, err)
		}
	}
	return nil
}

// GetRuns returns all runs, newest first.
func (db *DB) GetRuns() ([]Run, error) {
	rows, err := db.conn.Query(
		"SELECT " + runColumns + " FROM runs ORDER BY created_at DESC, rowid DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given ID, or nil if it does not exist.
// A unique ID prefix is accepted as well.
func (db *DB) GetRun(id string) (*Run, error) {
	if id == "" {
		return nil, nil
	}
	rows, err := db.conn.Query(
		"SELECT "+runColumns+" FROM runs WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 2",
		id, id+"%", id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(found) == 0:
		return nil, nil
	case found[0].ID == id || len(found) == 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// GetLatestRun returns the newest run, or nil if the archive is empty.
func (db *DB) GetLatestRun() (*Run, error) {
	row := db.conn.QueryRow(
		"SELECT " + runColumns + " FROM runs ORDER BY created_at DESC, rowid DESC LIMIT 1",
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// GetRankedPairs returns a run's ranked pairs in rank order.
func (db *DB) GetRankedPairs(runID string) ([]RankedPair, error) {
	rows, err := db.conn.Query(
		`SELECT rank, herb_1, herb_2, shared_symptoms, distance
		FROM ranked_pairs WHERE run_id = ? ORDER BY rank`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []RankedPair
	for rows.Next() {
		var p RankedPair
		var sharedJSON *string
		if err := rows.Scan(&p.Rank, &p.Herb1, &p.Herb2, &sharedJSON, &p.Distance); err != nil {
			return nil, err
		}
		if sharedJSON != nil {
			if err := json.Unmarshal([]byte(*sharedJSON), &p.Shared); err != nil {
				p.Shared = nil
			}
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// GetClusters returns a run's kept clusters as member names, in cluster order.
func (db *DB) GetClusters(runID string) ([][]string, error) {
	rows, err := db.conn.Query(
		`SELECT cluster_id, entity FROM clusters
		WHERE run_id = ? ORDER BY cluster_id, position`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters [][]string
	last := -1
	for rows.Next() {
		var cid int
		var entity string
		if err := rows.Scan(&cid, &entity); err != nil {
			return nil, err
		}
		if cid != last {
			clusters = append(clusters, nil)
			last = cid
		}
		clusters[len(clusters)-1] = append(clusters[len(clusters)-1], entity)
	}
	return clusters, rows.Err()
}

// GetLeaves returns a run's entities in dendrogram order.
func (db *DB) GetLeaves(runID string) ([]Leaf, error) {
	rows, err := db.conn.Query(
		`SELECT position, entity, entity_index FROM leaves
		WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leaves []Leaf
	for rows.Next() {
		var l Leaf
		if err := rows.Scan(&l.Position, &l.Entity, &l.Index); err != nil {
			return nil, err
		}
		leaves = append(leaves, l)
	}
	return leaves, rows.Err()
}

// DeleteRun removes a run and all of its rows. It reports whether the run
// existed.
func (db *DB) DeleteRun(id string) (bool, error) {
	result, err := db.conn.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetStats returns aggregate archive statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest any
	}{
		{"SELECT COUNT(*) FROM runs", &s.Runs},
		{"SELECT COUNT(*) FROM ranked_pairs", &s.RankedPairs},
		{"SELECT COUNT(DISTINCT run_id || ':' || cluster_id) FROM clusters", &s.Clusters},
		{"SELECT COUNT(DISTINCT entity) FROM leaves", &s.Herbs},
		{"SELECT MAX(created_at) FROM runs", &s.LastRunAt},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var annotationsJSON *string
	if err := row.Scan(&r.ID, &r.Source, &r.Metric, &r.Linkage, &r.Criterion,
		&r.Threshold, &r.MinClusterSize, &r.TopK, &r.EntityCount,
		&r.AttributeCount, &r.PairCount, &r.ClusterCount, &r.KeptCount,
		&r.OutputDir, &r.SummaryMarkdown, &annotationsJSON, &r.CreatedAt); err != nil {
		return nil, err
	}
	if annotationsJSON != nil {
		if err := json.Unmarshal([]byte(*annotationsJSON), &r.Annotations); err != nil {
			r.Annotations = nil
		}
	}
	return &r, nil
}
