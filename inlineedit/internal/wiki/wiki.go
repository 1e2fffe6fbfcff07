// Package wiki defines what a wiki backend provides to the editor.
package wiki

import (
	"context"
	"errors"

	"github.com/hazyhaar/wikiedit/inlineedit/internal/session"
)

// ErrPageNotFound is returned for a title with no page.
var ErrPageNotFound = errors.New("wiki: page not found")

// RenderedPage is the current rendering of a page plus the metadata that
// decides whether it can be edited inline.
type RenderedPage struct {
	Title        string `json:"title"`
	Namespace    int    `json:"namespace"`
	ContentModel string `json:"content_model"`
	Language     string `json:"language"`
	RevisionID   string `json:"revision_id,omitempty"`
	// HTML is the parser output for the page body.
	HTML string `json:"-"`
}

// Backend is a wiki the editor can read, write and render against.
type Backend interface {
	session.Wiki
	session.FullEditor
	FetchPage(ctx context.Context, title string) (*RenderedPage, error)
}

// editableNamespaces are main, user, project, help and category; talk
// namespaces (odd numbers) are always editable.
var editableNamespaces = map[int]bool{0: true, 2: true, 4: true, 12: true, 14: true}

// Editable reports whether inline editing applies to the page.
func (p *RenderedPage) Editable() bool {
	if p.ContentModel != "wikitext" {
		return false
	}
	return editableNamespaces[p.Namespace] || p.Namespace%2 == 1
}
