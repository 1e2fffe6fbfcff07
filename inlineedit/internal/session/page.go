package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/hazyhaar/wikiedit/idgen"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/fragment"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/messages"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/source"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/summary"
)

// SourceReader returns the full current source of a page.
type SourceReader interface {
	ReadSource(ctx context.Context, title string) (string, error)
}

// WriteRequest is a full-page save.
type WriteRequest struct {
	Title   string
	Text    string
	Summary string
	Minor   bool
	Tags    []string
	// BaseRevision is the revision the edit was made against. A writer
	// refuses the save with ErrEditConflict once the page has moved past
	// it. Empty skips the check.
	BaseRevision string
}

// SourceWriter durably stores a page's new source and returns the ID of
// the revision it created, "" when the wiki recorded no change.
type SourceWriter interface {
	WriteSource(ctx context.Context, req WriteRequest) (string, error)
}

// Renderer converts a source excerpt to HTML in the context of a page.
type Renderer interface {
	Render(ctx context.Context, title, text string) (string, error)
}

// Wiki is the remote store.
type Wiki interface {
	SourceReader
	SourceWriter
	Renderer
}

// FullEditor builds the location of the whole-section editor.
type FullEditor interface {
	EditURL(title string, section int) string
}

// AssetLoader fetches the optional presentation resources.
type AssetLoader interface {
	Style(ctx context.Context) (string, error)
	Messages(ctx context.Context, lang string) (map[string]string, error)
}

// Dep names a page-level dependency.
type Dep string

const (
	DepStyle        Dep = "style"
	DepMessages     Dep = "messages"
	DepTranslations Dep = "translations"
)

// Deps are the collaborators shared by every session of a page.
type Deps struct {
	Wiki   Wiki
	Editor FullEditor
	Assets AssetLoader
	// BaseMessages seed the catalog before any asset load.
	BaseMessages map[string]string
	DocPage      string
	Hashtag      string
	Tags         []string
	// Sanitizer cleans rendered HTML before it is spliced in. Nil means
	// bluemonday's UGC policy plus class attributes.
	Sanitizer *bluemonday.Policy
	Logger    *slog.Logger
}

// Page is the context of one page view: its DOM, its source cache and the
// load state of the editor's assets. All sessions on the page share it.
type Page struct {
	Title    string
	Language string
	Root     *html.Node
	Source   source.Cache
	Messages *messages.Catalog

	deps     Deps
	composer summary.Composer

	// mu guards the DOM under Root, style, revision and done.
	mu       sync.Mutex
	style    string
	revision string
	done     map[Dep]bool
}

// NewPage creates the context for a page view rooted at root.
func NewPage(title, language string, root *html.Node, deps Deps) *Page {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Sanitizer == nil {
		p := bluemonday.UGCPolicy()
		p.AllowAttrs("class").Globally()
		deps.Sanitizer = p
	}
	if language == "" {
		language = "en"
	}
	cat := messages.NewCatalog(deps.BaseMessages)
	return &Page{
		Title:    title,
		Language: language,
		Root:     root,
		Messages: cat,
		deps:     deps,
		composer: summary.Composer{Messages: cat, DocPage: deps.DocPage, Hashtag: deps.Hashtag},
		done:     make(map[Dep]bool),
	}
}

// Satisfied reports whether dep has been loaded (or given up on).
func (p *Page) Satisfied(dep Dep) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if dep == DepTranslations && p.Language == "en" {
		return true
	}
	return p.done[dep]
}

func (p *Page) satisfy(dep Dep) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done[dep] = true
}

// Style returns the loaded stylesheet, "" before the style step ran.
func (p *Page) Style() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.style
}

// SetRevision records the revision the page view shows.
func (p *Page) SetRevision(rev string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revision = rev
}

// Revision returns the revision saves are based on: the one the view was
// opened at, then the latest one saved through the page.
func (p *Page) Revision() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.revision
}

// HTML serialises the content root.
func (p *Page) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fragment.OuterHTML(p.Root)
}

// Find returns the fragment with the given ID if it is still on the page.
func (p *Page) Find(id string) *fragment.Fragment {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := fragment.ByFragmentID(p.Root, id)
	if n == nil {
		return nil
	}
	k, ok := fragment.KindForTag(n.Data)
	if !ok {
		return nil
	}
	return &fragment.Fragment{ID: id, Kind: k, Node: n}
}

// Fragments lists the editable fragments currently on the page.
func (p *Page) Fragments(kinds []fragment.Kind, newID idgen.Generator) []*fragment.Fragment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fragment.Discover(p.Root, kinds, newID)
}

// Read runs fn with the DOM locked against concurrent sessions.
func (p *Page) Read(fn func()) { p.withDOM(fn) }

// withDOM runs fn under the page lock.
func (p *Page) withDOM(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

func (p *Page) sourceStage() Stage {
	return Stage{{
		Name: "source",
		Hard: true,
		Done: p.Source.Loaded,
		Run: func(ctx context.Context) error {
			return p.Source.Load(ctx, func(ctx context.Context) (string, error) {
				return p.deps.Wiki.ReadSource(ctx, p.Title)
			})
		},
	}}
}

func (p *Page) styleStep() Step {
	return Step{
		Name: string(DepStyle),
		Done: func() bool { return p.Satisfied(DepStyle) },
		Run: func(ctx context.Context) error {
			css, err := p.deps.Assets.Style(ctx)
			if err != nil {
				return err
			}
			p.mu.Lock()
			p.style = css
			p.mu.Unlock()
			return nil
		},
		Satisfy: func() { p.satisfy(DepStyle) },
	}
}

// LoadStyle returns the page's stylesheet, running the style step first
// when no session has loaded it yet. A failed load gives "" and is not
// retried.
func (p *Page) LoadStyle(ctx context.Context) string {
	if p.deps.Assets != nil && !p.Satisfied(DepStyle) {
		_ = RunStages(ctx, p.deps.Logger, Stage{p.styleStep()})
	}
	return p.Style()
}

// assetStages: style and base messages together, then the page-language
// messages on top of the base ones.
func (p *Page) assetStages() []Stage {
	if p.deps.Assets == nil {
		return nil
	}
	return []Stage{
		{
			p.styleStep(),
			{
				Name: string(DepMessages),
				Done: func() bool { return p.Satisfied(DepMessages) },
				Run: func(ctx context.Context) error {
					msgs, err := p.deps.Assets.Messages(ctx, "en")
					if err != nil {
						return err
					}
					p.Messages.Set(msgs)
					return nil
				},
				Satisfy: func() { p.satisfy(DepMessages) },
			},
		},
		{
			{
				Name: string(DepTranslations),
				Done: func() bool { return p.Satisfied(DepTranslations) },
				Run: func(ctx context.Context) error {
					msgs, err := p.deps.Assets.Messages(ctx, p.Language)
					if err != nil {
						return err
					}
					p.Messages.Set(msgs)
					return nil
				},
				Satisfy: func() { p.satisfy(DepTranslations) },
			},
		},
	}
}
