package session

import (
	"errors"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/wikiedit/inlineedit/internal/fragment"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/messages"
)

// surface is the editing form spliced into a fragment while it is edited.
type surface struct {
	form   *html.Node
	input  *html.Node
	footer *html.Node
}

func element(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func newSurface(excerpt string, cat *messages.Catalog) *surface {
	s := &surface{
		form:   element(atom.Div, "class", "wikiedit-form"),
		input:  element(atom.Div, "class", "wikiedit-form-input", "contenteditable", "true"),
		footer: element(atom.Div, "class", "wikiedit-form-footer"),
	}
	s.input.AppendChild(text(excerpt))
	s.form.AppendChild(s.input)
	s.form.AppendChild(s.footer)
	s.showControls(cat)
	return s
}

func (s *surface) controls(cat *messages.Catalog) []*html.Node {
	save := element(atom.Button, "type", "submit", "class", "wikiedit-form-save")
	save.AppendChild(text(cat.Get(messages.FormSave)))
	cancel := element(atom.Button, "type", "button", "class", "wikiedit-form-cancel")
	cancel.AppendChild(text(cat.Get(messages.FormCancel)))
	minor := element(atom.Label, "class", "wikiedit-form-minor")
	minor.AppendChild(element(atom.Input, "type", "checkbox", "name", "minor"))
	minor.AppendChild(text(" " + cat.Get(messages.FormMinor)))
	return []*html.Node{save, cancel, minor}
}

func (s *surface) showControls(cat *messages.Catalog) {
	fragment.ReplaceChildren(s.footer, s.controls(cat)...)
}

// showSaving replaces the controls with the saving indicator.
func (s *surface) showSaving(cat *messages.Catalog) {
	fragment.ReplaceChildren(s.footer, text(cat.Get(messages.FormSaving)))
}

// showError puts the error message in place of the saving indicator and
// brings the controls back so the submit can be retried.
func (s *surface) showError(cat *messages.Catalog, err error) {
	var se *StepError
	if errors.As(err, &se) {
		err = se.Err
	}
	msg := element(atom.Span, "class", "wikiedit-form-error")
	msg.AppendChild(text(cat.Get(messages.FormError, err.Error())))
	fragment.ReplaceChildren(s.footer, append([]*html.Node{msg}, s.controls(cat)...)...)
}

// setInput shows text in the editable area.
func (s *surface) setInput(t string) {
	fragment.ReplaceChildren(s.input, text(t))
}
