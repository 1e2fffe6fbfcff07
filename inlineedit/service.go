// Package inlineedit edits single rendered fragments of a wiki page in
// place: a paragraph, list item, reply, table caption or cell.
//
// A page view is the rendered content of one page with its editable
// fragments tagged. Editing a fragment opens a session that finds the
// fragment's unique source line, shows that line in an editor inside the
// fragment, and on save writes the full page source back with a composed
// summary. When no unique line exists the session hands over to the
// wiki's own section editor.
//
// Usage:
//
//	svc, err := inlineedit.New(cfg, logger)
//	defer svc.Close()
//	svc.Start(ctx)
//	svc.RegisterHTTP(router)
//	svc.RegisterMCP(mcpServer)
package inlineedit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/wikiedit/connectivity"
	"github.com/hazyhaar/wikiedit/dbopen"
	"github.com/hazyhaar/wikiedit/horosafe"
	"github.com/hazyhaar/wikiedit/idgen"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/assets"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/fragment"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/locate"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/mediawiki"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/session"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/store"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/wiki"
	"github.com/hazyhaar/wikiedit/observability"
)

var (
	ErrViewNotFound     = errors.New("inlineedit: view not found")
	ErrFragmentNotFound = errors.New("inlineedit: fragment not found")
	ErrSessionNotFound  = errors.New("inlineedit: session not found")
	ErrFragmentBusy     = errors.New("inlineedit: fragment already being edited")
	ErrNotEditable      = errors.New("inlineedit: page is not editable")
)

// Service is the wikiedit orchestrator.
type Service struct {
	cfg     *Config
	logger  *slog.Logger
	db      *sql.DB
	backend wiki.Backend
	local   *store.Store
	remote  *mediawiki.Client
	assets  *assets.Loader
	journal *observability.Journal
	kinds   []fragment.Kind

	newViewID    idgen.Generator
	newSessionID idgen.Generator
	now          func() time.Time

	mu       sync.Mutex
	views    map[string]*View
	sessions map[string]*entry
}

type entry struct {
	sess *session.Session
	view *View
}

// New creates a Service. It opens the database at cfg.DBPath and, for the
// MediaWiki backend, logs the bot in when credentials are configured.
func New(cfg *Config, logger *slog.Logger) (*Service, error) {
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	kinds, _ := fragment.KindsForSelectors(cfg.Selectors)

	opts := []dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema)}
	if cfg.Wiki.Backend == BackendLocal {
		opts = append(opts, dbopen.WithSchema(store.Schema))
	}
	db, err := dbopen.Open(cfg.DBPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("inlineedit: open db: %w", err)
	}

	s := &Service{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		kinds:        kinds,
		journal:      observability.NewJournal(db, logger),
		newViewID:    idgen.Prefixed("view_", idgen.Default),
		newSessionID: idgen.Prefixed("ses_", idgen.Default),
		now:          time.Now,
		views:        make(map[string]*View),
		sessions:     make(map[string]*entry),
	}

	switch cfg.Wiki.Backend {
	case BackendLocal:
		s.local = store.New(db)
		if cfg.Wiki.IndexURL != "" {
			s.local.IndexURL = cfg.Wiki.IndexURL
		}
		s.backend = s.local
	case BackendMediaWiki:
		c, err := mediawiki.New(mediawiki.Config{
			APIURL:       cfg.Wiki.APIURL,
			IndexURL:     cfg.Wiki.IndexURL,
			Timeout:      cfg.Wiki.Timeout,
			AllowPrivate: cfg.Wiki.AllowPrivateHosts,
			BotUser:      cfg.Wiki.BotUser,
			BotPassword:  cfg.Wiki.BotPassword,
		}, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Wiki.Timeout)
		err = c.Login(ctx)
		cancel()
		if err != nil {
			c.Close()
			db.Close()
			return nil, err
		}
		s.remote = c
		s.backend = c
	}

	s.assets = assets.NewLoader(cfg.Assets, connectivity.HTTPFactory(
		connectivity.WithUserAgent("wikiedit/1.0"),
	), logger)
	return s, nil
}

// Start launches the view expiry loop until ctx is done.
func (s *Service) Start(ctx context.Context) {
	go s.sweepLoop(ctx)
	s.logger.Info("inlineedit: started", "backend", s.cfg.Wiki.Backend, "db", s.cfg.DBPath)
}

// Close releases the wiki client and the database.
func (s *Service) Close() error {
	if s.remote != nil {
		s.remote.Close()
	}
	return s.db.Close()
}

// Store returns the local wiki, nil with the MediaWiki backend.
func (s *Service) Store() *store.Store { return s.local }

// SeedPage stores text as the latest revision of a main-namespace
// wikitext page. Only the local backend accepts it.
func (s *Service) SeedPage(ctx context.Context, title, text string) error {
	if s.local == nil {
		return fmt.Errorf("inlineedit: seeding needs the %s backend", BackendLocal)
	}
	if err := horosafe.ValidateTitle(title); err != nil {
		return err
	}
	return s.local.CreatePage(ctx, store.PageMeta{Title: title, Language: s.cfg.Language}, text)
}

// Style returns the editor stylesheet.
func (s *Service) Style(ctx context.Context) (string, error) {
	return s.assets.Style(ctx)
}

// Journal lists recorded session outcomes, newest first. Empty outcome
// or title match everything.
func (s *Service) Journal(ctx context.Context, outcome, title string, limit int) ([]observability.Entry, error) {
	return s.journal.Recent(ctx, observability.Query{Outcome: outcome, Title: title, Limit: limit})
}

// View is one rendered page held for editing.
type View struct {
	ID         string
	Title      string
	RevisionID string
	OpenedAt   time.Time

	page  *session.Page
	kinds []fragment.Kind

	mu       sync.Mutex
	newID    idgen.Generator
	lastUsed time.Time
}

// FragmentInfo describes an editable fragment.
type FragmentInfo struct {
	ID   string        `json:"id"`
	Kind fragment.Kind `json:"kind"`
	Text string        `json:"text"`
}

// HTML returns the view's current content root markup.
func (v *View) HTML() string { return v.page.HTML() }

// Style returns the editor stylesheet loaded for the view's page. Sessions
// on the page reuse it.
func (v *View) Style(ctx context.Context) string { return v.page.LoadStyle(ctx) }

// Fragments lists the editable fragments currently on the page. Fragments
// inserted by a render get fresh IDs; existing ones keep theirs.
func (v *View) Fragments() []FragmentInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	frags := v.page.Fragments(v.kinds, v.newID)
	out := make([]FragmentInfo, 0, len(frags))
	for _, f := range frags {
		out = append(out, FragmentInfo{ID: f.ID, Kind: f.Kind, Text: f.Signature()})
	}
	return out
}

// FragmentHTML returns the outer markup of one fragment.
func (v *View) FragmentHTML(id string) (string, error) {
	f := v.page.Find(id)
	if f == nil {
		return "", ErrFragmentNotFound
	}
	var out string
	v.page.Read(func() { out = fragment.OuterHTML(f.Node) })
	return out, nil
}

func (v *View) touch(now time.Time) {
	v.mu.Lock()
	v.lastUsed = now
	v.mu.Unlock()
}

func (v *View) idleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastUsed
}

// OpenView fetches the rendered page, checks it can be edited inline and
// tags its fragments.
func (s *Service) OpenView(ctx context.Context, title string) (*View, error) {
	if err := horosafe.ValidateTitle(title); err != nil {
		return nil, err
	}
	rp, err := s.backend.FetchPage(ctx, title)
	if err != nil {
		return nil, err
	}
	if !rp.Editable() {
		return nil, fmt.Errorf("%w: %s (model %s, namespace %d)", ErrNotEditable, rp.Title, rp.ContentModel, rp.Namespace)
	}

	root := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "id", Val: s.cfg.ContentRootID}},
	}
	nodes, err := fragment.ParseInner(root, rp.HTML)
	if err != nil {
		return nil, fmt.Errorf("inlineedit: parse %s: %w", title, err)
	}
	fragment.ReplaceChildren(root, nodes...)

	lang := rp.Language
	if lang == "" {
		lang = s.cfg.Language
	}
	var tags []string
	if s.cfg.Summary.ChangeTag != "" {
		tags = []string{s.cfg.Summary.ChangeTag}
	}
	page := session.NewPage(rp.Title, lang, root, session.Deps{
		Wiki:         s.backend,
		Editor:       s.backend,
		Assets:       s.assets,
		BaseMessages: assets.DefaultMessages(),
		DocPage:      s.cfg.Summary.DocPage,
		Hashtag:      s.cfg.Summary.Hashtag,
		Tags:         tags,
		Logger:       s.logger,
	})
	page.SetRevision(rp.RevisionID)

	now := s.now()
	v := &View{
		ID:         s.newViewID(),
		Title:      rp.Title,
		RevisionID: rp.RevisionID,
		OpenedAt:   now,
		page:       page,
		kinds:      s.kinds,
		newID:      idgen.Sequence("f"),
		lastUsed:   now,
	}
	n := len(v.Fragments())

	s.mu.Lock()
	s.views[v.ID] = v
	s.mu.Unlock()
	s.logger.InfoContext(ctx, "inlineedit: view opened", "view", v.ID, "title", v.Title, "fragments", n)
	return v, nil
}

// View returns an open view.
func (s *Service) View(id string) (*View, error) {
	s.mu.Lock()
	v, ok := s.views[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrViewNotFound
	}
	v.touch(s.now())
	return v, nil
}

// SessionInfo is the externally visible state of a session.
type SessionInfo struct {
	ID         string        `json:"id"`
	ViewID     string        `json:"view_id"`
	FragmentID string        `json:"fragment_id"`
	Kind       fragment.Kind `json:"kind"`
	State      session.State `json:"state"`
	Excerpt    string        `json:"excerpt,omitempty"`
	Line       int           `json:"line,omitempty"`
	Section    int           `json:"section,omitempty"`
	EditURL    string        `json:"edit_url,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func describe(sess *session.Session, v *View) *SessionInfo {
	ex := sess.Excerpt()
	info := &SessionInfo{
		ID:         sess.ID,
		ViewID:     v.ID,
		FragmentID: sess.Fragment().ID,
		Kind:       sess.Fragment().Kind,
		State:      sess.State(),
		Excerpt:    ex.Text,
		Line:       ex.LineNumber,
		Section:    sess.Section(),
		EditURL:    sess.EditURL(),
	}
	if err := sess.Err(); err != nil {
		info.Error = err.Error()
	}
	return info
}

// BeginEdit opens a session on a fragment of a view. The returned session
// is either Editing or, when the fragment's source cannot be pinned to one
// line, Handover with the section editor URL.
func (s *Service) BeginEdit(ctx context.Context, viewID, fragmentID string) (*SessionInfo, error) {
	v, err := s.View(viewID)
	if err != nil {
		return nil, err
	}
	frag := v.page.Find(fragmentID)
	if frag == nil {
		return nil, ErrFragmentNotFound
	}

	s.mu.Lock()
	for _, e := range s.sessions {
		if e.view == v && e.sess.Fragment().ID == fragmentID {
			s.mu.Unlock()
			return nil, ErrFragmentBusy
		}
	}
	sess := session.New(s.newSessionID(), v.page, frag)
	s.sessions[sess.ID] = &entry{sess: sess, view: v}
	s.mu.Unlock()

	if err := sess.Begin(ctx); err != nil {
		s.drop(sess.ID)
		s.audit(ctx, observability.OutcomeFailed, sess, v, err)
		return nil, err
	}
	if sess.State() == session.Handover {
		s.drop(sess.ID)
		s.audit(ctx, observability.OutcomeHandover, sess, v, nil)
	}
	return describe(sess, v), nil
}

func (s *Service) lookup(id string) (*entry, error) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.view.touch(s.now())
	return e, nil
}

func (s *Service) drop(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Session returns the state of a live session.
func (s *Service) Session(id string) (*SessionInfo, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return describe(e.sess, e.view), nil
}

// Submit saves a session's edited text. On a failed write the session
// stays live so the caller can retry or cancel.
func (s *Service) Submit(ctx context.Context, sessionID string, sub session.Submission) (*SessionInfo, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if err := e.sess.Submit(ctx, sub); err != nil {
		s.audit(ctx, observability.OutcomeFailed, e.sess, e.view, err)
		return describe(e.sess, e.view), err
	}
	switch e.sess.State() {
	case session.Restored:
		s.audit(ctx, observability.OutcomeNoop, e.sess, e.view, nil)
	case session.Success:
		s.audit(ctx, observability.OutcomeSaved, e.sess, e.view, nil)
	}
	s.drop(sessionID)
	return describe(e.sess, e.view), nil
}

// Cancel restores the fragment and ends the session.
func (s *Service) Cancel(ctx context.Context, sessionID string) (*SessionInfo, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if err := e.sess.Cancel(); err != nil {
		return describe(e.sess, e.view), err
	}
	s.drop(sessionID)
	s.audit(ctx, observability.OutcomeCancelled, e.sess, e.view, nil)
	return describe(e.sess, e.view), nil
}

// LocateResult is the outcome of a one-shot lookup.
type LocateResult struct {
	Title   string          `json:"title"`
	Found   bool            `json:"found"`
	Matches int             `json:"matches"`
	Excerpt *locate.Excerpt `json:"excerpt,omitempty"`
}

// Locate finds the source line of a page that uniquely contains text.
func (s *Service) Locate(ctx context.Context, title, text string) (*LocateResult, error) {
	if err := horosafe.ValidateTitle(title); err != nil {
		return nil, err
	}
	src, err := s.backend.ReadSource(ctx, title)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	res := &LocateResult{Title: title, Matches: len(locate.MatchingLines(text, src))}
	if ex, ok := locate.Locate(text, src); ok {
		res.Found = true
		res.Excerpt = &ex
	}
	return res, nil
}

func (s *Service) audit(ctx context.Context, outcome string, sess *session.Session, v *View, err error) {
	e := observability.Entry{
		Outcome:    outcome,
		Title:      v.Title,
		SessionID:  sess.ID,
		FragmentID: sess.Fragment().ID,
		Kind:       sess.Fragment().Kind.String(),
		Section:    sess.Section(),
	}
	if err != nil {
		e.Failure = err.Error()
	}
	s.journal.Record(ctx, e)
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "inlineedit: session "+outcome,
		"session", sess.ID, "title", v.Title, "fragment", sess.Fragment().ID)
}

func (s *Service) sweepLoop(ctx context.Context) {
	interval := s.cfg.ViewTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sweep(); n > 0 {
				s.logger.Debug("inlineedit: expired views", "count", n)
			}
		}
	}
}

// sweep drops views idle for longer than ViewTTL, with their sessions.
func (s *Service) sweep() int {
	cutoff := s.now().Add(-s.cfg.ViewTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, v := range s.views {
		if !v.idleSince().Before(cutoff) {
			continue
		}
		delete(s.views, id)
		for sid, e := range s.sessions {
			if e.view == v {
				delete(s.sessions, sid)
			}
		}
		n++
	}
	return n
}
