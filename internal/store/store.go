package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/cropnet/internal/constraints"
	"github.com/danielpatrickdp/cropnet/internal/discretize"
	"github.com/danielpatrickdp/cropnet/internal/logging"
)

// ErrNoActiveThresholds is returned before any table has been saved.
var ErrNoActiveThresholds = errors.New("no active threshold table")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS threshold_versions (
	version_id   TEXT PRIMARY KEY,
	parent_id    TEXT,
	table_json   TEXT NOT NULL,
	buckets      INTEGER NOT NULL,
	source       TEXT,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES threshold_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_thresholds (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	version_id   TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES threshold_versions(version_id)
);

CREATE TABLE IF NOT EXISTS constraint_sets (
	mapping_hash TEXT NOT NULL,
	markers      TEXT NOT NULL,
	stage_json   TEXT NOT NULL,
	set_json     TEXT NOT NULL,
	variables    INTEGER NOT NULL,
	edges        INTEGER NOT NULL,
	created_at   TEXT NOT NULL,
	PRIMARY KEY (mapping_hash, markers)
);

CREATE TABLE IF NOT EXISTS inference_log (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id        TEXT NOT NULL,
	method            TEXT NOT NULL,
	target            TEXT NOT NULL,
	threshold_version TEXT,
	request_json      TEXT NOT NULL,
	response_json     TEXT,
	decoded_json      TEXT,
	error             TEXT,
	created_at        TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store manages threshold tables, constraint sets and the inference log in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region save-thresholds
// SaveThresholds validates and stores a table as a new version, parented on
// the current active version, and makes it active.
func (s *Store) SaveThresholds(table discretize.Table, buckets int, source string) (ThresholdVersion, error) {
	if err := table.Validate(); err != nil {
		return ThresholdVersion{}, err
	}
	tableJSON, err := json.Marshal(table)
	if err != nil {
		return ThresholdVersion{}, fmt.Errorf("marshal table: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return ThresholdVersion{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRow(`SELECT version_id FROM active_thresholds WHERE id = 1`).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ThresholdVersion{}, fmt.Errorf("get active: %w", err)
	}

	rec := ThresholdVersion{
		VersionID: uuid.New().String(),
		ParentID:  parent.String,
		Table:     table,
		Buckets:   buckets,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.Exec(
		`INSERT INTO threshold_versions (version_id, parent_id, table_json, buckets, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.VersionID, nullIfEmpty(rec.ParentID), string(tableJSON), buckets, nullIfEmpty(source),
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return ThresholdVersion{}, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_thresholds (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rec.VersionID,
	)
	if err != nil {
		return ThresholdVersion{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ThresholdVersion{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// #endregion save-thresholds

// #region get-active
// GetActiveThresholds reads the active threshold table.
func (s *Store) GetActiveThresholds() (ThresholdVersion, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_thresholds WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return ThresholdVersion{}, ErrNoActiveThresholds
	}
	if err != nil {
		return ThresholdVersion{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetThresholds(versionID)
}

// #endregion get-active

// #region get-version
// GetThresholds retrieves a specific threshold version by ID.
func (s *Store) GetThresholds(id string) (ThresholdVersion, error) {
	row := s.db.QueryRow(
		`SELECT version_id, parent_id, table_json, buckets, source, created_at
		 FROM threshold_versions WHERE version_id = ?`, id,
	)
	rec, err := scanThresholds(row)
	if err != nil {
		return ThresholdVersion{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}

// #endregion get-version

// #region activate
// Activate points the active table at a previous version.
func (s *Store) Activate(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM threshold_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s not found", targetVersionID)
	}

	_, err = s.db.Exec(
		`INSERT INTO active_thresholds (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		targetVersionID,
	)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	return nil
}

// #endregion activate

// #region list-versions
// ListThresholds returns the most recent threshold versions.
func (s *Store) ListThresholds(limit int) ([]ThresholdVersion, error) {
	rows, err := s.db.Query(
		`SELECT version_id, parent_id, table_json, buckets, source, created_at
		 FROM threshold_versions ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []ThresholdVersion
	for rows.Next() {
		rec, err := scanThresholds(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-versions

// #region constraints
// SaveConstraints caches set under the mapping's hash and marker list,
// replacing any previous entry.
func (s *Store) SaveConstraints(m constraints.StageMap, markers []string, set constraints.Set) error {
	stageJSON, err := json.Marshal(m.Records())
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	setJSON, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal constraints: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO constraint_sets (mapping_hash, markers, stage_json, set_json, variables, edges, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(mapping_hash, markers) DO UPDATE SET
		   stage_json = excluded.stage_json,
		   set_json = excluded.set_json,
		   variables = excluded.variables,
		   edges = excluded.edges,
		   created_at = excluded.created_at`,
		m.Hash(), markerKey(markers), string(stageJSON), string(setJSON),
		len(set.Variables), len(set.Edges), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save constraints: %w", err)
	}
	return nil
}

// GetConstraints returns the cached set for the mapping, if any.
func (s *Store) GetConstraints(m constraints.StageMap, markers []string) (constraints.Set, bool, error) {
	var setJSON string
	err := s.db.QueryRow(
		`SELECT set_json FROM constraint_sets WHERE mapping_hash = ? AND markers = ?`,
		m.Hash(), markerKey(markers),
	).Scan(&setJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return constraints.Set{}, false, nil
	}
	if err != nil {
		return constraints.Set{}, false, fmt.Errorf("get constraints: %w", err)
	}

	var set constraints.Set
	if err := json.Unmarshal([]byte(setJSON), &set); err != nil {
		return constraints.Set{}, false, fmt.Errorf("unmarshal constraints: %w", err)
	}
	return set, true, nil
}

// ConstraintsFor returns the cached set for m, generating and caching a new
// one when the mapping (or marker list) has not been seen. The bool reports
// a cache hit.
func (s *Store) ConstraintsFor(m constraints.StageMap, gen *constraints.Generator) (constraints.Set, bool, error) {
	set, ok, err := s.GetConstraints(m, gen.Markers)
	if err != nil || ok {
		return set, ok, err
	}
	set = gen.Generate(m)
	if err := s.SaveConstraints(m, gen.Markers, set); err != nil {
		return constraints.Set{}, false, err
	}
	return set, false, nil
}

// ListConstraints returns the most recently generated constraint sets.
func (s *Store) ListConstraints(limit int) ([]ConstraintRecord, error) {
	rows, err := s.db.Query(
		`SELECT mapping_hash, markers, variables, edges, created_at
		 FROM constraint_sets ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list constraints: %w", err)
	}
	defer rows.Close()

	var out []ConstraintRecord
	for rows.Next() {
		var rec ConstraintRecord
		var createdStr string
		if err := rows.Scan(&rec.MappingHash, &rec.Markers, &rec.Variables, &rec.Edges, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion constraints

// #region inference-log
// LogInference records one predict call in the inference log.
func (s *Store) LogInference(entry logging.InferenceEntry) error {
	return logging.LogInference(s.db, entry)
}

// ListInferences returns the most recent inference log entries.
func (s *Store) ListInferences(limit int) ([]logging.InferenceEntry, error) {
	return logging.ListInferences(s.db, limit)
}

// #endregion inference-log

// #region helpers
type scanner interface {
	Scan(dest ...any) error
}

func scanThresholds(row scanner) (ThresholdVersion, error) {
	var rec ThresholdVersion
	var parentID, source sql.NullString
	var tableJSON, createdStr string

	if err := row.Scan(&rec.VersionID, &parentID, &tableJSON, &rec.Buckets, &source, &createdStr); err != nil {
		return ThresholdVersion{}, err
	}
	rec.ParentID = parentID.String
	rec.Source = source.String
	if err := json.Unmarshal([]byte(tableJSON), &rec.Table); err != nil {
		return ThresholdVersion{}, fmt.Errorf("unmarshal table: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

func markerKey(markers []string) string {
	return strings.Join(markers, ",")
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
