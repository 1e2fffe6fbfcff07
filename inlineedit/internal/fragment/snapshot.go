package fragment

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Snapshot is the serialised pre-edit state of one element. It holds no
// pointers into the live tree, so later edits cannot alter it.
type Snapshot struct {
	tag   string
	attrs []html.Attribute
	inner string
}

// Take captures n's attributes and children.
func Take(n *html.Node) Snapshot {
	attrs := make([]html.Attribute, len(n.Attr))
	copy(attrs, n.Attr)
	return Snapshot{tag: n.Data, attrs: attrs, inner: InnerHTML(n)}
}

// InnerHTML returns the captured children markup.
func (s Snapshot) InnerHTML() string { return s.inner }

// Restore puts the captured attributes and children back on n.
func (s Snapshot) Restore(n *html.Node) error {
	if n.Data != s.tag {
		return fmt.Errorf("fragment: restore %s snapshot onto <%s>", s.tag, n.Data)
	}
	ctx := &html.Node{Type: html.ElementNode, Data: s.tag, DataAtom: atom.Lookup([]byte(s.tag))}
	nodes, err := html.ParseFragment(strings.NewReader(s.inner), ctx)
	if err != nil {
		return fmt.Errorf("fragment: restore: %w", err)
	}
	ReplaceChildren(n, nodes...)
	n.Attr = make([]html.Attribute, len(s.attrs))
	copy(n.Attr, s.attrs)
	return nil
}
