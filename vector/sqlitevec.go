package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

var collectionNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// SQLiteVec is an embedded Index backed by sqlite-vec virtual tables.
// Each collection gets a vec0 table keyed by integer rowid plus a
// mapping table translating string chunk IDs to rowids.
type SQLiteVec struct {
	db   *sql.DB
	dims map[string]int
}

// NewSQLiteVec opens (or creates) the database at path and ensures a
// vec0 table per collection. Use ":memory:" for an ephemeral index.
func NewSQLiteVec(path string, collections map[string]int) (*SQLiteVec, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("vector: open %s: %w", path, err)
	}
	// vec0 rowid references break across connections for :memory:.
	db.SetMaxOpenConns(1)

	s := &SQLiteVec{db: db, dims: make(map[string]int, len(collections))}
	for name, dim := range collections {
		if !collectionNameRe.MatchString(name) {
			db.Close()
			return nil, fmt.Errorf("vector: invalid collection name %q", name)
		}
		if err := s.ensureCollection(name, dim); err != nil {
			db.Close()
			return nil, err
		}
		s.dims[name] = dim
	}
	return s, nil
}

func (s *SQLiteVec) ensureCollection(name string, dim int) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS map_%[1]s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chunk_id TEXT NOT NULL UNIQUE
);
CREATE VIRTUAL TABLE IF NOT EXISTS vec_%[1]s USING vec0(
    id INTEGER PRIMARY KEY,
    embedding float[%[2]d] distance_metric=cosine
);`, name, dim)
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("vector: create collection %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteVec) checkCollection(collection string, vecLen int) error {
	dim, ok := s.dims[collection]
	if !ok {
		return errUnknownCollection(collection)
	}
	if vecLen >= 0 && vecLen != dim {
		return errDimMismatch(collection, dim, vecLen)
	}
	return nil
}

func (s *SQLiteVec) Upsert(ctx context.Context, collection, chunkID string, vec []float32) error {
	if err := s.checkCollection(collection, len(vec)); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT OR IGNORE INTO map_%s (chunk_id) VALUES (?)", collection),
		chunkID); err != nil {
		return err
	}
	var rowID int64
	if err := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id FROM map_%s WHERE chunk_id = ?", collection),
		chunkID).Scan(&rowID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT OR REPLACE INTO vec_%s (id, embedding) VALUES (?, ?)", collection),
		rowID, serializeFloat32(vec)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteVec) Search(ctx context.Context, collection string, vec []float32, topK int) ([]Hit, error) {
	if err := s.checkCollection(collection, len(vec)); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT m.chunk_id, v.distance
		FROM vec_%[1]s v
		JOIN map_%[1]s m ON m.id = v.id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`, collection),
		serializeFloat32(vec), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var distance float64
		if err := rows.Scan(&h.ChunkID, &distance); err != nil {
			return nil, err
		}
		// Cosine distance to cosine similarity.
		h.Score = 1.0 - distance
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *SQLiteVec) Delete(ctx context.Context, collection string, chunkIDs []string) error {
	if err := s.checkCollection(collection, -1); err != nil {
		return err
	}
	if len(chunkIDs) == 0 {
		return nil
	}
	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}
	in := strings.TrimPrefix(strings.Repeat(", ?", len(chunkIDs)), ", ")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM vec_%[1]s WHERE id IN (SELECT id FROM map_%[1]s WHERE chunk_id IN (%[2]s))",
		collection, in), args...); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM map_%s WHERE chunk_id IN (%s)", collection, in), args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteVec) Count(ctx context.Context, collection string) (int, error) {
	if err := s.checkCollection(collection, -1); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM map_%s", collection)).Scan(&n)
	return n, err
}

func (s *SQLiteVec) Close() error {
	return s.db.Close()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for
// sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
