// Package session implements the per-fragment edit workflow: load the page
// source and editor assets, locate the fragment's source excerpt, show an
// editor, and save or restore.
//
//	Idle → LoadingSource → LoadingAssets → Located → Editing → Saving → Success
//	                                          │          │
//	                                          ▼          ▼
//	                                       Handover   Restored
//
// A fragment whose text cannot be located uniquely is handed over to the
// full-section editor. Source, write and render failures stop the session
// and are shown in the form footer; asset failures are ignored.
package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/wikiedit/inlineedit/internal/fragment"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/locate"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/source"
)

// State is a session's position in the workflow.
type State int

const (
	Idle State = iota
	LoadingSource
	LoadingAssets
	Located
	Editing
	Saving
	Success
	Restored
	Handover
)

var stateNames = [...]string{
	Idle:          "idle",
	LoadingSource: "loading-source",
	LoadingAssets: "loading-assets",
	Located:       "located",
	Editing:       "editing",
	Saving:        "saving",
	Success:       "success",
	Restored:      "restored",
	Handover:      "handover",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Success || s == Restored || s == Handover
}

// Submission is what the user sends from the form.
type Submission struct {
	Text    string `json:"text"`
	Summary string `json:"summary,omitempty"`
	Minor   bool   `json:"minor,omitempty"`
}

// Session edits one fragment once.
type Session struct {
	ID        string
	CreatedAt time.Time

	page *Page
	frag *fragment.Fragment
	snap fragment.Snapshot

	mu      sync.Mutex
	state   State
	excerpt locate.Excerpt
	surface *surface
	newText string
	section int
	editURL string
	err     error
}

// New starts a session on frag. The fragment's current state is captured
// immediately so cancel restores what was on screen at this point.
func New(id string, page *Page, frag *fragment.Fragment) *Session {
	s := &Session{ID: id, CreatedAt: time.Now(), page: page, frag: frag}
	page.withDOM(func() { s.snap = fragment.Take(frag.Node) })
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that stopped the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Fragment returns the fragment being edited.
func (s *Session) Fragment() *fragment.Fragment { return s.frag }

// Excerpt returns the located excerpt; zero before Located.
func (s *Session) Excerpt() locate.Excerpt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.excerpt
}

// EditURL returns the full-section editor location after a handover.
func (s *Session) EditURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editURL
}

// Section returns the section number computed for a handover.
func (s *Session) Section() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.section
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	return err
}

// Begin loads what the session needs and either shows the editor
// (Editing) or hands over to the full editor (Handover). It returns an
// error only for a failed source load.
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return fmt.Errorf("%w: begin in %s", ErrInvalidState, s.state)
	}
	s.mu.Unlock()

	p := s.page
	logger := p.deps.Logger

	if src := p.sourceStage(); Pending(src) {
		s.setState(LoadingSource)
		if err := RunStages(ctx, logger, src); err != nil {
			return s.fail(err)
		}
	}
	if assets := p.assetStages(); Pending(assets...) {
		s.setState(LoadingAssets)
		if err := RunStages(ctx, logger, assets...); err != nil {
			return s.fail(err)
		}
	}

	s.setState(Located)
	ex, ok := locate.Locate(s.frag.Signature(), p.Source.Text())
	if !ok {
		var section int
		p.withDOM(func() {
			section = fragment.SectionNumber(fragment.NearestSection(s.frag.Node, p.Root), p.Root)
		})
		url := ""
		if p.deps.Editor != nil {
			url = p.deps.Editor.EditURL(p.Title, section)
		}
		s.mu.Lock()
		s.section = section
		s.editURL = url
		s.state = Handover
		s.mu.Unlock()
		logger.DebugContext(ctx, "session: no unique source line, handing over",
			"session", s.ID, "fragment", s.frag.ID, "section", section)
		return nil
	}

	sf := newSurface(ex.Text, p.Messages)
	p.withDOM(func() {
		if fragment.Attached(s.frag.Node, p.Root) {
			fragment.ReplaceChildren(s.frag.Node, sf.form)
		}
	})
	s.mu.Lock()
	s.excerpt = ex
	s.surface = sf
	s.state = Editing
	s.mu.Unlock()
	return nil
}

// Cancel restores the fragment as it was when the session started. It is
// allowed while editing and after a failed save.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing && !(s.state == Saving && s.err != nil) {
		return fmt.Errorf("%w: cancel in %s", ErrInvalidState, s.state)
	}
	s.restoreLocked()
	return nil
}

func (s *Session) restoreLocked() {
	p := s.page
	p.withDOM(func() {
		if fragment.Attached(s.frag.Node, p.Root) {
			if err := s.snap.Restore(s.frag.Node); err != nil {
				p.deps.Logger.Warn("session: restore failed", "session", s.ID, "error", err)
			}
		}
	})
	s.state = Restored
	s.err = nil
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Normalize trims text and collapses runs of three or more line breaks to
// two.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)
	return blankRuns.ReplaceAllString(text, "\n\n")
}

// Submit saves the edited text. An unchanged text restores the fragment
// without writing. A failed write leaves the session in Saving with the
// error shown; Submit may then be called again. After a render failure,
// Submit retries the render only.
func (s *Session) Submit(ctx context.Context, sub Submission) error {
	s.mu.Lock()
	switch {
	case s.state == Editing, s.state == Saving && s.err != nil:
	case s.state == Success && s.err != nil:
		s.mu.Unlock()
		return s.render(ctx)
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: submit in %s", ErrInvalidState, st)
	}

	text := Normalize(sub.Text)
	if text == s.excerpt.Text || text == Normalize(s.excerpt.Text) {
		s.restoreLocked()
		s.mu.Unlock()
		return nil
	}
	s.state = Saving
	s.err = nil
	s.newText = text
	ex := s.excerpt
	sf := s.surface
	s.mu.Unlock()

	p := s.page
	p.withDOM(func() {
		sf.setInput(text)
		sf.showSaving(p.Messages)
	})

	doc, ok := Apply(p.Source.Text(), ex, text)
	if !ok {
		return s.saveFailed(ErrExcerptMissing)
	}

	var heading string
	p.withDOM(func() {
		heading = fragment.HeadingText(fragment.NearestSection(s.frag.Node, p.Root))
	})
	req := WriteRequest{
		Title:   p.Title,
		Text:    doc,
		Summary: p.composer.Compose(sub.Summary, heading, s.frag.Kind, text),
		Minor:   sub.Minor,
		Tags:    p.deps.Tags,

		BaseRevision: p.Revision(),
	}
	rev, err := p.deps.Wiki.WriteSource(ctx, req)
	if err != nil {
		return s.saveFailed(&StepError{Step: "write", Err: err})
	}
	p.Source.Commit(doc)
	if rev != "" {
		p.SetRevision(rev)
	}
	s.setState(Success)

	if text == "" {
		p.withDOM(func() {
			if deletesLine(ex) {
				fragment.Remove(s.frag.Node)
			} else {
				fragment.ReplaceChildren(s.frag.Node)
			}
		})
		return nil
	}
	return s.render(ctx)
}

func (s *Session) saveFailed(err error) error {
	p := s.page
	p.withDOM(func() { s.surface.showError(p.Messages, err) })
	return s.fail(err)
}

// render replaces the editing surface with the rendered new text.
func (s *Session) render(ctx context.Context) error {
	p := s.page
	s.mu.Lock()
	text := s.newText
	s.err = nil
	s.mu.Unlock()

	out, err := p.deps.Wiki.Render(ctx, p.Title, text)
	if err != nil {
		p.withDOM(func() { s.surface.showError(p.Messages, err) })
		return s.fail(&StepError{Step: "render", Err: err})
	}
	nodes, err := unwrap(p.deps.Sanitizer.Sanitize(out))
	if err != nil {
		return s.fail(&StepError{Step: "render", Err: err})
	}
	p.withDOM(func() {
		if fragment.Attached(s.frag.Node, p.Root) {
			fragment.ReplaceChildren(s.frag.Node, nodes...)
		}
	})
	return nil
}

// unwrap parses rendered markup and returns the children of its first
// element, so the fragment keeps its own tag. A parser output wrapper is
// looked through. Markup without any element is returned as is.
func unwrap(markup string) ([]*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		for n.DataAtom == atom.Div && fragment.HasClass(n, "mw-parser-output") {
			first := firstElement(n)
			if first == nil {
				break
			}
			n = first
		}
		var children []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			children = append(children, c)
		}
		return children, nil
	}
	return nodes, nil
}

func firstElement(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// Apply returns doc with the excerpt replaced by text. The replacement is
// made at the excerpt's source line: markup in front of the excerpt stays.
// Deleting a paragraph or list item removes the whole line with its
// trailing line breaks; deleting any other kind empties the cell or
// parameter and keeps the line. When the line is gone from doc, the first
// occurrence of the excerpt text is used instead.
func Apply(doc string, ex locate.Excerpt, text string) (string, bool) {
	i := strings.Index(doc, ex.Line)
	if ex.Line == "" || i < 0 || !strings.HasSuffix(ex.Line, ex.Text) {
		return source.Replace(doc, ex.Text, text)
	}
	if text == "" && deletesLine(ex) {
		return source.Replace(doc, ex.Line, "")
	}
	end := i + len(ex.Line)
	start := end - len(ex.Text)
	return doc[:start] + text + doc[end:], true
}

// deletesLine reports whether deleting the excerpt drops its source line.
// Cells, captions and parameters keep theirs so the table or template
// stays well formed.
func deletesLine(ex locate.Excerpt) bool {
	return ex.Rule == "" || ex.Rule == locate.RuleListItem
}
