package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore implements driven.ChunkStore using PostgreSQL. Embedding
// vectors are stored directly alongside chunk text as a REAL[] column
// (via github.com/lib/pq's Array support) since §4.10 requires cosine
// similarity computed in-process over loaded chunks.
type ChunkStore struct {
	db *DB
}

// NewChunkStore creates a new ChunkStore.
func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{db: db}
}

// ReplaceForPackage atomically deletes the prior chunk set for
// packageName and inserts chunks, per §3's "replaced atomically as a
// set" requirement.
func (s *ChunkStore) ReplaceForPackage(ctx context.Context, packageName string, chunks []domain.Chunk) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE package_name = $1`, packageName); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (package_name, chunk_index, text, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range chunks {
			var embeddingArg any
			if c.HasEmbedding() {
				embeddingArg = pq.Array(c.Embedding)
			}
			if _, err := stmt.ExecContext(ctx, c.PackageName, c.ChunkIndex, c.Text, embeddingArg, c.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ChunkStore) GetByPackage(ctx context.Context, packageName string) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package_name, chunk_index, text, embedding, created_at
		FROM chunks WHERE package_name = $1 ORDER BY chunk_index ASC
	`, packageName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *ChunkStore) AllWithEmbeddings(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package_name, chunk_index, text, embedding, created_at
		FROM chunks WHERE embedding IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *ChunkStore) All(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package_name, chunk_index, text, embedding, created_at FROM chunks
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *ChunkStore) UpdateEmbedding(ctx context.Context, packageName string, chunkIndex int, embedding []float32) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chunks SET embedding = $1 WHERE package_name = $2 AND chunk_index = $3
	`, pq.Array(embedding), packageName, chunkIndex)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *ChunkStore) CountTotal(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

func (s *ChunkStore) CountWithEmbeddings(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL`).Scan(&count)
	return count, err
}

func scanChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var embedding []float64
		if err := rows.Scan(&c.PackageName, &c.ChunkIndex, &c.Text, pq.Array(&embedding), &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan chunk: %w", err)
		}
		if embedding != nil {
			c.Embedding = make([]float32, len(embedding))
			for i, v := range embedding {
				c.Embedding[i] = float32(v)
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
