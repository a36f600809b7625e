// Package sqlitevec provides a SQLite-backed memory driver using
// sqlite-vec. Chunk and fact rows live in ordinary tables; their
// embeddings live in vec0 virtual tables keyed through rowid mapping
// tables, since vec0 only speaks integer rowids.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/keepsakeco/keepsake/pkg/memory"
)

// knnOversample widens KNN queries so post-filtering by user still has
// enough candidates. vec0 cannot filter inside the MATCH itself.
const knnOversample = 10

// Driver implements memory.Driver using SQLite with sqlite-vec.
type Driver struct {
	db         *sql.DB
	dimensions uint
	logger     *zap.Logger
}

// Config holds configuration for the SQLite memory driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewDriver creates a new SQLite memory driver backed by sqlite-vec.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	if err := createSchema(db, c.Dimensions); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite-vec memory driver initialized",
		zap.String("db_path", c.DBPath),
		zap.Uint("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &Driver{
		db:         db,
		dimensions: c.Dimensions,
		logger:     logger,
	}, nil
}

func createSchema(db *sql.DB, dimensions uint) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			layer TEXT NOT NULL DEFAULT '',
			part INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			recent INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_user ON chunks(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_conversation ON chunks(user_id, conversation_id)`,
		`CREATE TABLE IF NOT EXISTS chunk_vectors (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			chunk_id TEXT NOT NULL UNIQUE
		)`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(embedding float[%d] distance_metric=cosine)`, dimensions),
		`CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			statement TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			evidence TEXT NOT NULL DEFAULT '',
			source_message_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id, status)`,
		`CREATE TABLE IF NOT EXISTS fact_vectors (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			fact_id TEXT NOT NULL UNIQUE
		)`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_facts USING vec0(embedding float[%d] distance_metric=cosine)`, dimensions),
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func (d *Driver) checkDimensions(vec []float32) error {
	if uint(len(vec)) != d.dimensions {
		return fmt.Errorf("%w: got %d, store configured for %d",
			memory.ErrDimensionMismatch, len(vec), d.dimensions)
	}
	return nil
}

// InsertChunks stores chunk records. Records with the same ID are
// overwritten. Records without an embedding get a row but no vector; they
// stay reachable through keyword search.
func (d *Driver) InsertChunks(ctx context.Context, records []memory.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO chunks
				(id, user_id, conversation_id, title, layer, part, content, message_count, recent, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.UserID, rec.ConversationID, rec.Title, rec.Layer,
			rec.Part, rec.Content, rec.MessageCount, rec.Recent, rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", rec.ID, err)
		}

		if rec.Embedding == nil {
			continue
		}
		if err := d.checkDimensions(rec.Embedding); err != nil {
			return fmt.Errorf("chunk %s: %w", rec.ID, err)
		}

		if err := upsertVector(ctx, tx, "chunk_vectors", "chunk_id", "vec_chunks", rec.ID, rec.Embedding); err != nil {
			return fmt.Errorf("inserting embedding for chunk %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("inserted chunks", zap.Int("count", len(records)))

	return nil
}

func (d *Driver) InsertFacts(ctx context.Context, records []memory.FactRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO facts
				(id, user_id, category, statement, confidence, evidence, source_message_id, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.UserID, rec.Category, rec.Statement, rec.Confidence,
			rec.Evidence, rec.SourceMessageID, rec.Status, rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting fact %s: %w", rec.ID, err)
		}

		if rec.Embedding == nil {
			continue
		}
		if err := d.checkDimensions(rec.Embedding); err != nil {
			return fmt.Errorf("fact %s: %w", rec.ID, err)
		}

		if err := upsertVector(ctx, tx, "fact_vectors", "fact_id", "vec_facts", rec.ID, rec.Embedding); err != nil {
			return fmt.Errorf("inserting embedding for fact %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("inserted facts", zap.Int("count", len(records)))

	return nil
}

// upsertVector writes one embedding through a rowid mapping table into a
// vec0 table. vec0 does not support UPDATE, so replacement is DELETE +
// INSERT.
func upsertVector(ctx context.Context, tx *sql.Tx, mapTable, idCol, vecTable, id string, embedding []float32) error {
	blob := serializeFloat32(embedding)

	var rowID int64
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT rowid FROM %s WHERE %s = ?`, mapTable, idCol), id,
	).Scan(&rowID)

	switch err {
	case nil:
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, vecTable), rowID,
		); err != nil {
			return err
		}
	case sql.ErrNoRows:
		result, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s(%s) VALUES (?)`, mapTable, idCol), id,
		)
		if err != nil {
			return err
		}
		rowID, err = result.LastInsertId()
		if err != nil {
			return err
		}
	default:
		return err
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(rowid, embedding) VALUES (?, ?)`, vecTable), rowID, blob,
	)
	return err
}

// SearchChunks runs a KNN query over the chunk vectors, then filters by
// user and similarity floor. The KNN is oversampled because the user
// filter happens after the MATCH.
func (d *Driver) SearchChunks(ctx context.Context, userID string, query []float32, k int, minSimilarity float64) ([]memory.ScoredChunk, error) {
	if k <= 0 {
		k = 10
	}
	if err := d.checkDimensions(query); err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT
			c.id, c.user_id, c.conversation_id, c.title, c.layer, c.part,
			c.content, c.message_count, c.recent, c.created_at,
			vc.distance
		FROM vec_chunks vc
		INNER JOIN chunk_vectors m ON m.rowid = vc.rowid
		INNER JOIN chunks c ON c.id = m.chunk_id
		WHERE vc.embedding MATCH ?
			AND vc.k = ?
		ORDER BY vc.distance
	`, serializeFloat32(query), k*knnOversample)
	if err != nil {
		return nil, fmt.Errorf("querying chunk vectors: %w", err)
	}
	defer rows.Close()

	var results []memory.ScoredChunk
	for rows.Next() {
		var rec memory.ChunkRecord
		var distance float64
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.ConversationID, &rec.Title, &rec.Layer,
			&rec.Part, &rec.Content, &rec.MessageCount, &rec.Recent, &rec.CreatedAt,
			&distance,
		); err != nil {
			return nil, fmt.Errorf("scanning chunk result: %w", err)
		}

		// cosine distance = 1 - cosine similarity
		sim := 1.0 - distance
		if rec.UserID != userID || sim < minSimilarity {
			continue
		}

		results = append(results, memory.ScoredChunk{ChunkRecord: rec, Similarity: sim})
		if len(results) == k {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk results: %w", err)
	}

	d.logger.Debug("searched chunks", zap.Int("results", len(results)))

	return results, nil
}

func (d *Driver) SearchFacts(ctx context.Context, userID string, query []float32, k int, minSimilarity float64) ([]memory.ScoredFact, error) {
	if k <= 0 {
		k = 10
	}
	if err := d.checkDimensions(query); err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT
			f.id, f.user_id, f.category, f.statement, f.confidence,
			f.evidence, f.source_message_id, f.status, f.created_at,
			vf.distance
		FROM vec_facts vf
		INNER JOIN fact_vectors m ON m.rowid = vf.rowid
		INNER JOIN facts f ON f.id = m.fact_id
		WHERE vf.embedding MATCH ?
			AND vf.k = ?
		ORDER BY vf.distance
	`, serializeFloat32(query), k*knnOversample)
	if err != nil {
		return nil, fmt.Errorf("querying fact vectors: %w", err)
	}
	defer rows.Close()

	var results []memory.ScoredFact
	for rows.Next() {
		var rec memory.FactRecord
		var distance float64
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.Category, &rec.Statement, &rec.Confidence,
			&rec.Evidence, &rec.SourceMessageID, &rec.Status, &rec.CreatedAt,
			&distance,
		); err != nil {
			return nil, fmt.Errorf("scanning fact result: %w", err)
		}

		sim := 1.0 - distance
		if rec.UserID != userID || rec.Status != memory.FactStatusActive || sim < minSimilarity {
			continue
		}

		results = append(results, memory.ScoredFact{FactRecord: rec, Similarity: sim})
		if len(results) == k {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fact results: %w", err)
	}

	return results, nil
}

func (d *Driver) KeywordSearchChunks(ctx context.Context, userID string, keywords []string, limit int) ([]memory.ChunkRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	var clean []string
	for _, kw := range keywords {
		if kw != "" {
			clean = append(clean, kw)
		}
	}
	if len(clean) == 0 {
		return nil, nil
	}

	conditions := make([]string, len(clean))
	args := []any{userID}
	for i, kw := range clean {
		conditions[i] = `instr(lower(content), ?) > 0`
		args = append(args, strings.ToLower(kw))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, user_id, conversation_id, title, layer, part, content, message_count, recent, created_at
		FROM chunks
		WHERE user_id = ? AND (%s)
		ORDER BY recent DESC, created_at DESC
		LIMIT ?
	`, strings.Join(conditions, " OR "))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword searching chunks: %w", err)
	}
	defer rows.Close()

	var results []memory.ChunkRecord
	for rows.Next() {
		var rec memory.ChunkRecord
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.ConversationID, &rec.Title, &rec.Layer,
			&rec.Part, &rec.Content, &rec.MessageCount, &rec.Recent, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning keyword result: %w", err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keyword results: %w", err)
	}

	return results, nil
}

func (d *Driver) RecentFacts(ctx context.Context, userID string, limit int) ([]memory.FactRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, user_id, category, statement, confidence, evidence, source_message_id, status, created_at
		FROM facts
		WHERE user_id = ? AND status = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, memory.FactStatusActive, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent facts: %w", err)
	}
	defer rows.Close()

	var results []memory.FactRecord
	for rows.Next() {
		var rec memory.FactRecord
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.Category, &rec.Statement, &rec.Confidence,
			&rec.Evidence, &rec.SourceMessageID, &rec.Status, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating facts: %w", err)
	}

	return results, nil
}

func (d *Driver) DeleteChunks(ctx context.Context, userID, conversationID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT m.rowid
		FROM chunk_vectors m
		INNER JOIN chunks c ON c.id = m.chunk_id
		WHERE c.user_id = ? AND c.conversation_id = ?
	`, userID, conversationID)
	if err != nil {
		return fmt.Errorf("querying rowids for deletion: %w", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return fmt.Errorf("scanning rowid: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rowids: %w", err)
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_chunks WHERE rowid = ?`, rowID); err != nil {
			return fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE rowid = ?`, rowID); err != nil {
			return fmt.Errorf("deleting vector mapping rowid %d: %w", rowID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE user_id = ? AND conversation_id = ?`,
		userID, conversationID,
	); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("deleted conversation chunks",
		zap.String("conversation_id", conversationID),
		zap.Int("vectors", len(rowIDs)),
	)

	return nil
}

func (d *Driver) Stats(ctx context.Context, userID string) (memory.Stats, error) {
	var s memory.Stats

	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE user_id = ?`, userID,
	).Scan(&s.Chunks); err != nil {
		return s, fmt.Errorf("counting chunks: %w", err)
	}

	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM facts WHERE user_id = ? AND status = ?`,
		userID, memory.FactStatusActive,
	).Scan(&s.Facts); err != nil {
		return s, fmt.Errorf("counting facts: %w", err)
	}

	return s, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}

// Ensure Driver implements memory.Driver
var _ memory.Driver = (*Driver)(nil)
