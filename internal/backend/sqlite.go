package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/alloysearch/alloy/internal/retrieval"
)

// MemoryDSN is the SQLite data source for an in-memory store.
const MemoryDSN = ":memory:"

const chunkSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id       TEXT PRIMARY KEY,
	content  TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);
`

// SQLiteChunkStore is the SQLite-backed chunk store. It is the durable copy
// of chunk content; both indexes only persist IDs and rebuild result chunks
// from here.
type SQLiteChunkStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteChunkStore opens (creating if needed) a chunk store at path.
// Pass MemoryDSN for an in-memory store.
func NewSQLiteChunkStore(path string) (*SQLiteChunkStore, error) {
	if path != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}

	// A single connection keeps in-memory stores coherent and serializes
	// writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(chunkSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize chunk schema: %w", err)
	}

	return &SQLiteChunkStore{db: db, path: path}, nil
}

// SaveChunks upserts the chunks in one transaction.
func (s *SQLiteChunkStore) SaveChunks(ctx context.Context, chunks []retrieval.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, content, metadata) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, metadata = excluded.metadata`)
	if err != nil {
		return fmt.Errorf("prepare chunk save: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		meta, err := encodeMetadata(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for chunk %s: %w", chunk.ID(), err)
		}
		if _, err := stmt.ExecContext(ctx, chunk.ID(), chunk.Content, meta); err != nil {
			return fmt.Errorf("save chunk %s: %w", chunk.ID(), err)
		}
	}

	return tx.Commit()
}

// GetChunks returns chunks for the given IDs, preserving input order and
// skipping IDs the store does not know.
func (s *SQLiteChunkStore) GetChunks(ctx context.Context, ids []string) ([]retrieval.DocumentChunk, error) {
	if len(ids) == 0 {
		return []retrieval.DocumentChunk{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, metadata FROM chunks WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]retrieval.DocumentChunk, len(ids))
	for rows.Next() {
		var id, content, meta string
		if err := rows.Scan(&id, &content, &meta); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		metadata, err := decodeMetadata(meta)
		if err != nil {
			return nil, fmt.Errorf("decode metadata for chunk %s: %w", id, err)
		}
		byID[id] = retrieval.DocumentChunk{Content: content, Metadata: metadata}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk rows: %w", err)
	}

	out := make([]retrieval.DocumentChunk, 0, len(ids))
	for _, id := range ids {
		if chunk, ok := byID[id]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}

// Count returns the number of stored chunks.
func (s *SQLiteChunkStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteChunkStore) Close() error {
	return s.db.Close()
}

func encodeMetadata(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeMetadata(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// Verify interface implementation at compile time.
var _ ChunkStore = (*SQLiteChunkStore)(nil)
