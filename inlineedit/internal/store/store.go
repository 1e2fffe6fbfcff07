// Package store is a small SQLite-backed wiki: pages with a revision
// history and a minimal wikitext renderer. It serves as the local
// development backend and as a test double for the MediaWiki client.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/hazyhaar/wikiedit/dbopen"
	"github.com/hazyhaar/wikiedit/idgen"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/session"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/wiki"
	"github.com/hazyhaar/wikiedit/kit"
)

// Store is the local wiki database handle.
type Store struct {
	DB       *sql.DB
	IndexURL string

	newID idgen.Generator
	now   func() time.Time
}

var _ wiki.Backend = (*Store)(nil)

// Open opens (or creates) the local wiki at path.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an already opened database; Schema must be applied.
func New(db *sql.DB) *Store {
	return &Store{
		DB:       db,
		IndexURL: "/index.php",
		newID:    idgen.Prefixed("rev_", idgen.Default),
		now:      time.Now,
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// PageMeta describes a page.
type PageMeta struct {
	Title        string `json:"title"`
	Namespace    int    `json:"namespace"`
	ContentModel string `json:"content_model"`
	Language     string `json:"language"`
	LatestRev    string `json:"latest_rev"`
	UpdatedAt    int64  `json:"updated_at"`
}

// Revision is one saved version of a page.
type Revision struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	Summary   string   `json:"summary"`
	Minor     bool     `json:"minor"`
	Tags      []string `json:"tags"`
	Author    string   `json:"author,omitempty"`
	CreatedAt int64    `json:"created_at"`
}

// CreatePage stores a page with text as its first revision. An existing
// page gets a new revision and its metadata replaced.
func (s *Store) CreatePage(ctx context.Context, meta PageMeta, text string) error {
	if meta.ContentModel == "" {
		meta.ContentModel = "wikitext"
	}
	if meta.Language == "" {
		meta.Language = "en"
	}
	now := s.now().UnixMilli()
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pages (title, namespace, content_model, language, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(title) DO UPDATE SET
				namespace = excluded.namespace,
				content_model = excluded.content_model,
				language = excluded.language,
				updated_at = excluded.updated_at`,
			meta.Title, meta.Namespace, meta.ContentModel, meta.Language, now, now)
		if err != nil {
			return fmt.Errorf("store: upsert page: %w", err)
		}
		_, err = s.insertRevision(ctx, tx, session.WriteRequest{Title: meta.Title, Text: text, Summary: "Created page"}, "", now)
		return err
	})
}

func (s *Store) insertRevision(ctx context.Context, tx *sql.Tx, req session.WriteRequest, author string, now int64) (string, error) {
	tags, _ := json.Marshal(req.Tags)
	if req.Tags == nil {
		tags = []byte("[]")
	}
	id := s.newID()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO revisions (id, title, text, summary, minor, tags, author, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, req.Title, req.Text, req.Summary, req.Minor, string(tags), author, now); err != nil {
		return "", fmt.Errorf("store: insert revision: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE pages SET latest_rev = ?, updated_at = ? WHERE title = ?`, id, now, req.Title); err != nil {
		return "", fmt.Errorf("store: update page: %w", err)
	}
	return id, nil
}

// GetPage returns a page's metadata.
func (s *Store) GetPage(ctx context.Context, title string) (*PageMeta, error) {
	var m PageMeta
	err := s.DB.QueryRowContext(ctx, `
		SELECT title, namespace, content_model, language, latest_rev, updated_at
		FROM pages WHERE title = ?`, title).
		Scan(&m.Title, &m.Namespace, &m.ContentModel, &m.Language, &m.LatestRev, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", wiki.ErrPageNotFound, title)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get page: %w", err)
	}
	return &m, nil
}

// ReadSource returns the text of the page's latest revision.
func (s *Store) ReadSource(ctx context.Context, title string) (string, error) {
	var text string
	err := s.DB.QueryRowContext(ctx, `
		SELECT r.text FROM pages p JOIN revisions r ON r.id = p.latest_rev
		WHERE p.title = ?`, title).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", wiki.ErrPageNotFound, title)
	}
	if err != nil {
		return "", fmt.Errorf("store: read source: %w", err)
	}
	return text, nil
}

// WriteSource saves a new revision of an existing page and returns its ID.
// The acting user from the context, if any, is recorded as the author. A
// base revision other than the latest one is an edit conflict.
func (s *Store) WriteSource(ctx context.Context, req session.WriteRequest) (string, error) {
	var id string
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		var latest string
		err := tx.QueryRowContext(ctx, `SELECT latest_rev FROM pages WHERE title = ?`, req.Title).Scan(&latest)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", wiki.ErrPageNotFound, req.Title)
		}
		if err != nil {
			return fmt.Errorf("store: read page: %w", err)
		}
		if req.BaseRevision != "" && req.BaseRevision != latest {
			return fmt.Errorf("%w: %s is at %s, edit based on %s", session.ErrEditConflict, req.Title, latest, req.BaseRevision)
		}
		id, err = s.insertRevision(ctx, tx, req, kit.GetUserID(ctx), s.now().UnixMilli())
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// History lists a page's revisions, newest first.
func (s *Store) History(ctx context.Context, title string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, title, text, summary, minor, tags, author, created_at
		FROM revisions WHERE title = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, title, limit)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	defer rows.Close()

	var out []Revision
	for rows.Next() {
		var r Revision
		var tags string
		if err := rows.Scan(&r.ID, &r.Title, &r.Text, &r.Summary, &r.Minor, &tags, &r.Author, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan revision: %w", err)
		}
		_ = json.Unmarshal([]byte(tags), &r.Tags)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Render converts wikitext to HTML.
func (s *Store) Render(_ context.Context, _ string, text string) (string, error) {
	return RenderWikitext(text), nil
}

// FetchPage renders the page's latest revision.
func (s *Store) FetchPage(ctx context.Context, title string) (*wiki.RenderedPage, error) {
	meta, err := s.GetPage(ctx, title)
	if err != nil {
		return nil, err
	}
	text, err := s.ReadSource(ctx, title)
	if err != nil {
		return nil, err
	}
	return &wiki.RenderedPage{
		Title:        meta.Title,
		Namespace:    meta.Namespace,
		ContentModel: meta.ContentModel,
		Language:     meta.Language,
		RevisionID:   meta.LatestRev,
		HTML:         `<div class="mw-parser-output">` + RenderWikitext(text) + `</div>`,
	}, nil
}

// EditURL returns the local index URL for editing a section.
func (s *Store) EditURL(title string, section int) string {
	return s.IndexURL + "?title=" + url.QueryEscape(title) + "&action=edit&section=" + strconv.Itoa(section)
}
