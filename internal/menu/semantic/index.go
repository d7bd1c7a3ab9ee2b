// Package semantic maintains a pgvector similarity index over menu item
// descriptions.
//
// The lexical matcher handles the common case of a customer naming a dish.
// When a query describes a dish instead ("something creamy with chicken"),
// the dialog layer falls back to this index: item name and description are
// embedded once per catalog load, the query is embedded per turn, and the
// nearest items by cosine distance are returned.
package semantic

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/rnmehta/dinevox/internal/menu"
	"github.com/rnmehta/dinevox/pkg/provider/embeddings"
)

// Result is a single similarity hit.
type Result struct {
	ItemName string
	Category string
	Content  string
	// Distance is the cosine distance to the query, smaller is closer.
	Distance float64
}

// Index stores one embedded chunk per menu item in Postgres and searches
// them with a pgvector HNSW index. Safe for concurrent use.
type Index struct {
	pool     *pgxpool.Pool
	provider embeddings.Provider
}

// New wires an Index to a connection pool and an embeddings provider.
func New(pool *pgxpool.Pool, provider embeddings.Provider) *Index {
	return &Index{pool: pool, provider: provider}
}

// Migrate creates the extension, chunk table and ANN index. The vector column
// width follows the provider's dimensionality, so switching embedding models
// requires dropping the table first.
func (ix *Index) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS menu_chunks (
			item_name  TEXT PRIMARY KEY,
			category   TEXT NOT NULL,
			content    TEXT NOT NULL,
			embedding  vector(%d) NOT NULL,
			model_id   TEXT NOT NULL
		)`, ix.provider.Dimensions()),
		`CREATE INDEX IF NOT EXISTS menu_chunks_embedding_idx
			ON menu_chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, q := range stmts {
		if _, err := ix.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("semantic index: migrate: %w", err)
		}
	}
	return nil
}

// Reindex embeds every item of the catalog in one batch and upserts the
// chunks. Items removed from the catalog are deleted from the index.
func (ix *Index) Reindex(ctx context.Context, repo menu.Repository) error {
	entries := repo.Items()
	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = chunkText(e)
	}

	vecs, err := ix.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("semantic index: reindex: %w", err)
	}

	tx, err := ix.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("semantic index: reindex: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM menu_chunks`); err != nil {
		return fmt.Errorf("semantic index: reindex: clear: %w", err)
	}

	const q = `
		INSERT INTO menu_chunks (item_name, category, content, embedding, model_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (item_name) DO UPDATE SET
		    category  = EXCLUDED.category,
		    content   = EXCLUDED.content,
		    embedding = EXCLUDED.embedding,
		    model_id  = EXCLUDED.model_id`
	for i, e := range entries {
		vec := pgvector.NewVector(vecs[i])
		if _, err := tx.Exec(ctx, q, e.Item.Name, e.Category, texts[i], vec, ix.provider.ModelID()); err != nil {
			return fmt.Errorf("semantic index: reindex %q: %w", e.Item.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("semantic index: reindex: commit: %w", err)
	}
	return nil
}

// Search embeds the query text and returns the topK closest items, most
// similar first.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	vec, err := ix.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("semantic index: search: %w", err)
	}

	const q = `
		SELECT item_name, category, content, embedding <=> $1 AS distance
		FROM   menu_chunks
		ORDER  BY distance
		LIMIT  $2`
	rows, err := ix.pool.Query(ctx, q, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("semantic index: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var r Result
		err := row.Scan(&r.ItemName, &r.Category, &r.Content, &r.Distance)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("semantic index: scan rows: %w", err)
	}
	if results == nil {
		results = []Result{}
	}
	return results, nil
}

// chunkText is the embedded representation of a menu item.
func chunkText(e menu.Entry) string {
	return fmt.Sprintf("%s (%s): %s", e.Item.Name, e.Category, e.Item.Description)
}
