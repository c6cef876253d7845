package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/deusflow/newswire/internal/news"
)

// SQLBackend stores records in a single table of a SQLite or PostgreSQL
// database. Passthrough columns are kept as a JSON array in the extra column.
type SQLBackend struct {
	db     *sql.DB
	driver string
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return newSQLBackend(ctx, db, "sqlite")
}

// OpenPostgres connects to the database named by dsn.
func OpenPostgres(ctx context.Context, dsn string) (*SQLBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return newSQLBackend(ctx, db, "postgres")
}

func newSQLBackend(ctx context.Context, db *sql.DB, driver string) (*SQLBackend, error) {
	b := &SQLBackend{db: db, driver: driver}
	if err := b.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return b, nil
}

func (b *SQLBackend) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		position INTEGER NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		full_text TEXT NOT NULL DEFAULT '',
		published_at TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		delivered INTEGER NOT NULL DEFAULT 0,
		extra TEXT NOT NULL DEFAULT '[]'
	)`
	if _, err := b.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := b.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_articles_position ON articles(position)`); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func (b *SQLBackend) Load(ctx context.Context) ([]news.Record, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT title, url, summary, full_text, published_at, source, delivered, extra
		FROM articles
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var records []news.Record
	for rows.Next() {
		var (
			rec       news.Record
			published string
			delivered int
			extra     string
		)
		if err := rows.Scan(&rec.Title, &rec.URL, &rec.Summary, &rec.FullText, &published, &rec.Source, &delivered, &extra); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		rec.SetPublished(published)
		rec.Delivered = delivered != 0
		if extra != "" {
			if err := json.Unmarshal([]byte(extra), &rec.Extra); err != nil {
				return nil, fmt.Errorf("decode extra columns of %q: %w", rec.Title, err)
			}
			if len(rec.Extra) == 0 {
				rec.Extra = nil
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Save replaces every row inside one transaction.
func (b *SQLBackend) Save(ctx context.Context, records []news.Record) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM articles`); err != nil {
		return fmt.Errorf("clear articles: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, b.insertQuery())
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		extra := []byte("[]")
		if len(r.Extra) > 0 {
			if extra, err = json.Marshal(r.Extra); err != nil {
				return fmt.Errorf("encode extra columns: %w", err)
			}
		}
		delivered := 0
		if r.Delivered {
			delivered = 1
		}
		if _, err := stmt.ExecContext(ctx, i, r.Title, r.URL, r.Summary, r.FullText,
			r.PublishedString(), r.Source, delivered, string(extra)); err != nil {
			return fmt.Errorf("insert article %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (b *SQLBackend) insertQuery() string {
	const cols = 9
	ph := make([]string, cols)
	for i := range ph {
		if b.driver == "postgres" {
			ph[i] = fmt.Sprintf("$%d", i+1)
		} else {
			ph[i] = "?"
		}
	}
	return `INSERT INTO articles (position, title, url, summary, full_text, published_at, source, delivered, extra)
		VALUES (` + strings.Join(ph, ", ") + `)`
}

func (b *SQLBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
