package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/gesetzesinfo/lawsearch/pkg/postgres"
)

// PostgresLoader reads the corpus from the provisions table.
type PostgresLoader struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewPostgresLoader(db *postgres.Client) *PostgresLoader {
	return &PostgresLoader{
		db:     db,
		logger: slog.Default().With("component", "corpus-loader"),
	}
}

// Load returns every stored provision ordered by id.
func (l *PostgresLoader) Load(ctx context.Context) ([]Provision, error) {
	rows, err := l.db.DB.QueryContext(ctx,
		`SELECT id, book_code, title, text, source_url FROM provisions ORDER BY id`)
	if err != nil {
		return nil, loadFailure(fmt.Errorf("querying provisions: %w", err))
	}
	defer rows.Close()

	var out []Provision
	for rows.Next() {
		var p Provision
		if err := rows.Scan(&p.ID, &p.BookCode, &p.Title, &p.Text, &p.SourceURL); err != nil {
			return nil, loadFailure(fmt.Errorf("scanning provision: %w", err))
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, loadFailure(fmt.Errorf("iterating provisions: %w", err))
	}
	l.logger.Info("provisions loaded", "count", len(out))
	return out, nil
}

// Importer upserts provisions into PostgreSQL.
type Importer struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewImporter(db *postgres.Client) *Importer {
	return &Importer{
		db:     db,
		logger: slog.Default().With("component", "corpus-importer"),
	}
}

// Import writes provisions in one transaction. Existing ids are overwritten.
func (im *Importer) Import(ctx context.Context, provisions []Provision) (int, error) {
	err := im.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO provisions (id, book_code, title, text, source_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			book_code = EXCLUDED.book_code,
			title = EXCLUDED.title,
			text = EXCLUDED.text,
			source_url = EXCLUDED.source_url,
			updated_at = now()`)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, p := range provisions {
			if _, err := stmt.ExecContext(ctx, p.ID, p.BookCode, p.Title, p.Text, p.SourceURL); err != nil {
				return fmt.Errorf("upserting provision %d: %w", p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	im.logger.Info("provisions imported", "count", len(provisions))
	return len(provisions), nil
}
