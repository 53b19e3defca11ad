package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

// Build describes one successful build pass.
type Build struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Documents  int       `json:"documents"`
	References int       `json:"references"`
	Checksum   string    `json:"checksum"`
}

// DocumentRow is a row in the documents table.
type DocumentRow struct {
	Path        string     `json:"path"`
	Layout      string     `json:"layout"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags"`
	PublicPath  string     `json:"public_path"`
	Checksum    string     `json:"checksum"`
	Published   bool       `json:"published"`
	Date        *time.Time `json:"date,omitempty"`
	Body        string     `json:"body,omitempty"`
	BuildID     string     `json:"build_id"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path       string `json:"path"`
	Title      string `json:"title"`
	PublicPath string `json:"public_path"`
	Snippet    string `json:"snippet"`
}

// Publish replaces the catalog contents with one build in a single
// transaction. Readers see either the previous build or this one.
//
// stage, when non-nil, runs after every row is in place and before commit.
// Its error rolls the transaction back, and it never runs if an insert fails.
func (db *DB) Publish(b Build, pages []models.Page, refs []models.Reference, stage func() error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM refs`); err != nil {
		return fmt.Errorf("catalog: clear refs: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM documents`); err != nil {
		return fmt.Errorf("catalog: clear documents: %w", err)
	}
	if err := ftsClear(tx); err != nil {
		return err
	}

	docStmt, err := tx.Prepare(`
		INSERT INTO documents (path, seq, layout, title, description, tags, public_path, checksum, published, date, body, build_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("catalog: prepare document insert: %w", err)
	}
	defer docStmt.Close()

	for i, p := range pages {
		d := p.Document
		tags := d.Tags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, _ := json.Marshal(tags)
		var date any
		if !d.Date.IsZero() {
			date = d.Date.UTC()
		}
		if _, err := docStmt.Exec(d.Path, i, d.Layout, d.Title, d.Description, string(tagsJSON),
			p.PublicPath, d.Checksum, d.Published, date, p.Body, b.ID); err != nil {
			return fmt.Errorf("catalog: insert document %s: %w", d.Path, err)
		}
		if err := ftsInsert(tx, d.Path, d.Title, p.Body, d.Tags); err != nil {
			return err
		}
	}

	if len(refs) > 0 {
		refStmt, err := tx.Prepare(`INSERT OR IGNORE INTO refs (source, target, fragment) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("catalog: prepare ref insert: %w", err)
		}
		defer refStmt.Close()
		for _, r := range refs {
			if _, err := refStmt.Exec(r.Source, r.Target, r.Fragment); err != nil {
				return fmt.Errorf("catalog: insert ref: %w", err)
			}
		}
	}

	_, err = tx.Exec(`
		INSERT INTO builds (id, started_at, finished_at, documents, refs, checksum)
		VALUES (?, ?, ?, ?, ?, ?)
	`, b.ID, b.StartedAt.UTC(), b.FinishedAt.UTC(), b.Documents, b.References, b.Checksum)
	if err != nil {
		return fmt.Errorf("catalog: insert build: %w", err)
	}

	if stage != nil {
		if err := stage(); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}

const documentColumns = `path, layout, title, description, tags, public_path, checksum, published, date, body, build_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*DocumentRow, error) {
	var (
		r    DocumentRow
		tags string
		date sql.NullTime
	)
	if err := s.Scan(&r.Path, &r.Layout, &r.Title, &r.Description, &tags, &r.PublicPath,
		&r.Checksum, &r.Published, &date, &r.Body, &r.BuildID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return nil, fmt.Errorf("catalog: decode tags of %s: %w", r.Path, err)
	}
	if date.Valid {
		t := date.Time
		r.Date = &t
	}
	return &r, nil
}

// GetDocument returns one document of the last build.
func (db *DB) GetDocument(path string) (*DocumentRow, error) {
	row := db.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE path = ?`, path)
	r, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: document %q: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get document: %w", err)
	}
	return r, nil
}

// ListDocuments returns a page of documents, optionally filtered by tag, and
// the total count. sort is one of "seq" (default, insertion order), "title",
// "path" or "date".
func (db *DB) ListDocuments(limit, offset int, tag, sort string) ([]DocumentRow, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	order := "seq"
	switch sort {
	case "title", "path":
		order = sort
	case "date":
		order = "date DESC, seq"
	}

	where := ""
	args := []any{}
	if tag != "" {
		where = `WHERE EXISTS (SELECT 1 FROM json_each(documents.tags) WHERE json_each.value = ?)`
		args = append(args, tag)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count documents: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+documentColumns+` FROM documents `+where+
		` ORDER BY `+order+` LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		r, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		r.Body = ""
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

// Referrers returns the paths of documents that reference target.
func (db *DB) Referrers(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT source FROM refs WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("catalog: referrers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LastBuild returns the most recent successful build.
func (db *DB) LastBuild() (*Build, error) {
	var b Build
	err := db.conn.QueryRow(`
		SELECT id, started_at, finished_at, documents, refs, checksum
		FROM builds ORDER BY finished_at DESC LIMIT 1
	`).Scan(&b.ID, &b.StartedAt, &b.FinishedAt, &b.Documents, &b.References, &b.Checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: last build: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: last build: %w", err)
	}
	return &b, nil
}
