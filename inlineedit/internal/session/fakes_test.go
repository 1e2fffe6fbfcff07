package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/wikiedit/idgen"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/fragment"
)

type fakeWiki struct {
	mu        sync.Mutex
	source    string
	reads     int
	writes    []WriteRequest
	readErr   error
	writeErr  error
	renderErr error
}

func (w *fakeWiki) ReadSource(ctx context.Context, title string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reads++
	if w.readErr != nil {
		return "", w.readErr
	}
	return w.source, nil
}

func (w *fakeWiki) WriteSource(ctx context.Context, req WriteRequest) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return "", w.writeErr
	}
	w.writes = append(w.writes, req)
	w.source = req.Text
	return fmt.Sprintf("rev%d", len(w.writes)), nil
}

func (w *fakeWiki) Render(ctx context.Context, title, text string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.renderErr != nil {
		return "", w.renderErr
	}
	return `<div class="mw-parser-output"><p>` + html.EscapeString(text) + "\n</p></div>", nil
}

type fakeEditor struct{}

func (fakeEditor) EditURL(title string, section int) string {
	return fmt.Sprintf("/index.php?title=%s&action=edit&section=%d", title, section)
}

type fakeAssets struct {
	mu       sync.Mutex
	calls    map[string]int
	styleErr error
	msgErr   error
	msgs     map[string]map[string]string
}

func (a *fakeAssets) count(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calls == nil {
		a.calls = map[string]int{}
	}
	a.calls[name]++
}

func (a *fakeAssets) Calls(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[name]
}

func (a *fakeAssets) Style(ctx context.Context) (string, error) {
	a.count("style")
	if a.styleErr != nil {
		return "", a.styleErr
	}
	return ".wikiedit-form{}", nil
}

func (a *fakeAssets) Messages(ctx context.Context, lang string) (map[string]string, error) {
	a.count("messages:" + lang)
	if a.msgErr != nil {
		return nil, a.msgErr
	}
	return a.msgs[lang], nil
}

var baseMessages = map[string]string{
	"wikiedit-form-save":              "Save",
	"wikiedit-form-cancel":            "Cancel",
	"wikiedit-form-minor":             "Minor edit",
	"wikiedit-form-saving":            "Saving...",
	"wikiedit-form-error":             "Error: $1",
	"wikiedit-summary-edit":           "Edit made with [[$1|WikiEdit]]",
	"wikiedit-summary-delete":         "Delete made with [[$1|WikiEdit]]",
	"wikiedit-summary-edit-paragraph": "Edit paragraph with [[$1|WikiEdit]]",
}

type fixture struct {
	page   *Page
	wiki   *fakeWiki
	assets *fakeAssets
	frags  []*fragment.Fragment
}

func newFixture(t *testing.T, body, src, lang string) *fixture {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(`<html><body><div id="mw-content-text">` + body + `</div></body></html>`))
	if err != nil {
		t.Fatal(err)
	}
	root := fragment.ElementByID(doc, fragment.DefaultContentRoot)
	wiki := &fakeWiki{source: src}
	assets := &fakeAssets{msgs: map[string]map[string]string{
		"en": {"wikiedit-form-save": "Save"},
		"fr": {"wikiedit-form-save": "Publier"},
	}}
	page := NewPage("Springfield", lang, root, Deps{
		Wiki:         wiki,
		Editor:       fakeEditor{},
		Assets:       assets,
		BaseMessages: baseMessages,
		Tags:         []string{"wikiedit"},
	})
	return &fixture{
		page:   page,
		wiki:   wiki,
		assets: assets,
		frags:  page.Fragments(nil, idgen.Sequence("f")),
	}
}

func (f *fixture) find(t *testing.T, signature string) *fragment.Fragment {
	t.Helper()
	for _, fr := range f.frags {
		if fr.Signature() == signature {
			return fr
		}
	}
	t.Fatalf("no fragment with signature %q", signature)
	return nil
}
