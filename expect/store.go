package expect

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS expectations (
	id            TEXT PRIMARY KEY,
	task_id       TEXT NOT NULL,
	pack_version  INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	body          TEXT NOT NULL,
	vector        BLOB,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_expectations_ns
	ON expectations(task_id, pack_version, kind);
`

// Store is the durable tier of the expectation cache: an SQLite database of
// fingerprint records keyed by (task_id, pack_version, kind). It survives
// process restarts, which is what makes cross-session learning from
// recorded failure motifs possible.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the database at path and runs
// migrations.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open expectation store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("expectation store pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate expectation store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put persists one fingerprint under the namespace and kind.
func (s *Store) Put(ns Namespace, kind Kind, fp Fingerprint) error {
	_, err := s.db.Exec(
		`INSERT INTO expectations
			(id, task_id, pack_version, kind, body, vector, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fp.ID,
		ns.TaskID,
		ns.PackVersion,
		string(kind),
		fp.Text,
		encodeVector(fp.Vector),
		fp.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put expectation %s: %w", fp.ID, err)
	}
	return nil
}

// Get returns all fingerprints stored under the namespace and kind, oldest
// first.
func (s *Store) Get(ns Namespace, kind Kind) ([]Fingerprint, error) {
	rows, err := s.db.Query(
		`SELECT id, body, vector, created_at
		 FROM expectations
		 WHERE task_id = ? AND pack_version = ? AND kind = ?
		 ORDER BY created_at`,
		ns.TaskID, ns.PackVersion, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("get expectations %s/%s: %w", ns.Key(), kind, err)
	}
	defer rows.Close()
	return scanFingerprints(rows)
}

// FailureMotifs returns every failure-motif fingerprint recorded for the
// task across all pack versions. This is the read side of cross-session
// learning: the curator merges these into candidate scoring.
func (s *Store) FailureMotifs(taskID string) ([]Fingerprint, error) {
	rows, err := s.db.Query(
		`SELECT id, body, vector, created_at
		 FROM expectations
		 WHERE task_id = ? AND kind = ?
		 ORDER BY created_at`,
		taskID, string(KindFailureMotif),
	)
	if err != nil {
		return nil, fmt.Errorf("get failure motifs for %s: %w", taskID, err)
	}
	defer rows.Close()
	return scanFingerprints(rows)
}

func scanFingerprints(rows *sql.Rows) ([]Fingerprint, error) {
	var out []Fingerprint
	for rows.Next() {
		var (
			fp        Fingerprint
			blob      []byte
			createdAt string
		)
		if err := rows.Scan(&fp.ID, &fp.Text, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expectation: %w", err)
		}
		fp.Vector = decodeVector(blob)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			fp.CreatedAt = ts
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

// encodeVector serializes a float32 vector as little-endian bytes; nil for
// an empty vector.
func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) []float32 {
	if len(blob) < 4 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
