// Package localindex implements core.Index on a local SQLite database using
// FTS5 full-text search. It needs no external services, which makes it the
// default retrieval backend for development and evaluation runs.
package localindex

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/logging"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// DefaultChunkSize is the maximum passage length in runes.
const DefaultChunkSize = 2000

// Filter keys that map onto passage columns.
var filterColumns = map[string]string{
	"type":        "type",
	"name":        "name",
	"source":      "source",
	"document_id": "document_id",
}

var termPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Index is a SQLite-backed retrieval index.
type Index struct {
	db        *sql.DB
	chunkSize int
	log       *logging.Logger
}

var _ core.Index = (*Index)(nil)

// Option configures the index.
type Option func(*Index)

// WithChunkSize sets the maximum passage length in runes.
func WithChunkSize(n int) Option {
	return func(x *Index) {
		if n > 0 {
			x.chunkSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(x *Index) {
		if l != nil {
			x.log = l.With("component", "localindex")
		}
	}
}

// Open opens (creating if needed) the index database at path.
func Open(path string, opts ...Option) (*Index, error) {
	x := &Index{chunkSize: DefaultChunkSize, log: logging.NewNop()}
	for _, opt := range opts {
		opt(x)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	x.db = db

	if err := x.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return x, nil
}

func (x *Index) migrate() error {
	if _, err := x.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var current int
	if err := x.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	for i, migration := range []string{migrationV1} {
		version := i + 1
		if version <= current {
			continue
		}
		tx, err := x.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration transaction: %w", err)
		}
		for _, stmt := range splitStatements(migration) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("executing migration v%d: %w", version, err)
			}
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", version, err)
		}
	}
	return nil
}

// Upsert replaces the document and its passages.
func (x *Index) Upsert(ctx context.Context, doc core.Document) error {
	uploaded := doc.UploadedAt
	if uploaded.IsZero() {
		uploaded = time.Now()
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return indexErr("beginning upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteTx(ctx, tx, doc.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO documents (id, name, type, uploaded_at) VALUES (?, ?, ?, ?)",
		doc.ID, doc.Name, string(doc.Type), uploaded.UTC().Format(time.RFC3339)); err != nil {
		return indexErr("inserting document", err)
	}

	passages := Passages(doc.Content, x.chunkSize)
	for i, p := range passages {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO passages (text, passage_id, document_id, page, name, type, source) VALUES (?, ?, ?, ?, ?, ?, ?)",
			p.Text, fmt.Sprintf("%s_%d", doc.ID, i), doc.ID, p.Page, doc.Name, string(doc.Type), doc.Name); err != nil {
			return indexErr("inserting passage", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return indexErr("committing upsert", err)
	}
	x.log.Debug("document indexed", "document_id", doc.ID, "passages", len(passages))
	return nil
}

// Delete removes a document and its passages. Unknown IDs are ignored.
func (x *Index) Delete(ctx context.Context, documentID string) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return indexErr("beginning delete", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := deleteTx(ctx, tx, documentID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return indexErr("committing delete", err)
	}
	return nil
}

func deleteTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM passages WHERE document_id = ?", id); err != nil {
		return indexErr("deleting passages", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return indexErr("deleting document", err)
	}
	return nil
}

// Search ranks passages with BM25. A query without searchable terms matches
// nothing.
func (x *Index) Search(ctx context.Context, query string, topK int, filter core.Filter) ([]core.Match, error) {
	expr := matchExpression(query)
	if expr == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	var sb strings.Builder
	sb.WriteString(`SELECT passage_id, document_id, page, name, type, source, text, bm25(passages) AS bm25_score
		FROM passages WHERE passages MATCH ?`)
	args := []any{expr}
	for key, value := range filter {
		col, ok := filterColumns[key]
		if !ok {
			return nil, core.ErrValidation(core.CodeRetrievalFailed, fmt.Sprintf("unsupported filter key %q", key))
		}
		sb.WriteString(" AND " + col + " = ?")
		args = append(args, value)
	}
	sb.WriteString(" ORDER BY bm25_score LIMIT ?")
	args = append(args, topK)

	rows, err := x.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, core.ErrExecution(core.CodeRetrievalFailed, "searching local index").WithCause(err)
	}
	defer rows.Close()

	var matches []core.Match
	for rows.Next() {
		var (
			m      core.Match
			docID  string
			docTyp string
			rank   float64
		)
		if err := rows.Scan(&m.ID, &docID, &m.Metadata.Page, &m.Metadata.Name, &docTyp,
			&m.Metadata.Source, &m.Metadata.Text, &rank); err != nil {
			return nil, core.ErrExecution(core.CodeRetrievalFailed, "reading search results").WithCause(err)
		}
		m.Metadata.Type = core.DocumentType(docTyp)
		m.Metadata.Extra = map[string]string{"document_id": docID}
		// bm25 is lower-is-better and negative for matches.
		m.Score = -rank
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, core.ErrExecution(core.CodeRetrievalFailed, "reading search results").WithCause(err)
	}
	return matches, nil
}

// DocumentCount returns the number of indexed documents.
func (x *Index) DocumentCount(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, indexErr("counting documents", err)
	}
	return n, nil
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}

// matchExpression turns free text into an FTS5 OR query of quoted terms.
func matchExpression(query string) string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range termPattern.FindAllString(strings.ToLower(query), -1) {
		if seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, `"`+t+`"`)
	}
	return strings.Join(terms, " OR ")
}

func indexErr(op string, err error) error {
	return core.ErrExecution(core.CodeIndexFailed, op).WithCause(err)
}

// splitStatements splits a SQL script into individual statements.
func splitStatements(script string) []string {
	var statements []string
	for _, stmt := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}
	return statements
}
