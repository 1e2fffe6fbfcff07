// Package fragment models the editable units of a rendered page: discovery
// over an x/net/html tree, signature text, section headings, and
// snapshot/restore of a fragment's pre-edit state.
package fragment

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/wikiedit/idgen"
)

// IDAttr carries the fragment ID on the element in the page DOM.
const IDAttr = "data-wikiedit-id"

// DefaultContentRoot is the id of the element holding the page content.
const DefaultContentRoot = "mw-content-text"

// Fragment is one editable element of a page view.
type Fragment struct {
	ID   string     `json:"id"`
	Kind Kind       `json:"kind"`
	Node *html.Node `json:"-"`
}

// Signature returns the fragment's longest bare text run.
func (f *Fragment) Signature() string {
	return LongestText(f.Node)
}

// Discover walks root in document order and returns every element of one
// of the given kinds that has a non-empty bare text run. The table of
// contents is not searched. Each returned
// element is tagged with IDAttr; an element that already carries one keeps
// it, so rediscovery after a splice is stable.
func Discover(root *html.Node, kinds []Kind, newID idgen.Generator) []*Fragment {
	if root == nil {
		return nil
	}
	if len(kinds) == 0 {
		kinds, _ = KindsForSelectors(DefaultSelectors)
	}
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	var out []*Fragment
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
			if IsTOC(n) {
				return
			}
			if k, ok := kindTags[n.DataAtom]; ok && want[k] && LongestText(n) != "" {
				id := Attr(n, IDAttr)
				if id == "" {
					id = newID()
					SetAttr(n, IDAttr, id)
				}
				out = append(out, &Fragment{ID: id, Kind: k, Node: n})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// LongestText returns the longest trimmed text among n's direct text
// children. Text inside child elements is ignored. Ties go to the first.
func LongestText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var longest string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			continue
		}
		if t := strings.TrimSpace(c.Data); len(t) > len(longest) {
			longest = t
		}
	}
	return longest
}

// ElementByID returns the first element under n whose id attribute is id.
func ElementByID(n *html.Node, id string) *html.Node {
	return find(n, func(c *html.Node) bool { return Attr(c, "id") == id })
}

// ByFragmentID returns the element tagged with the given fragment ID.
func ByFragmentID(n *html.Node, id string) *html.Node {
	return find(n, func(c *html.Node) bool { return Attr(c, IDAttr) == id })
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

// Attr returns the value of attribute key on n, "" if absent.
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// SetAttr sets or replaces attribute key on n.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// HasClass reports whether n's class attribute lists class.
func HasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// Attached reports whether n is still reachable from root through its
// parent chain.
func Attached(n, root *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == root {
			return true
		}
	}
	return false
}

// ReplaceChildren removes all of n's children and appends nodes.
func ReplaceChildren(n *html.Node, nodes ...*html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	for _, c := range nodes {
		if c.Parent != nil {
			c.Parent.RemoveChild(c)
		}
		n.AppendChild(c)
	}
}

// Remove detaches n from its parent. A detached node is left alone.
func Remove(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// OuterHTML serialises n.
func OuterHTML(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}

// InnerHTML serialises n's children.
func InnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&buf, c)
	}
	return buf.String()
}

// ParseInner parses markup as the content of an element shaped like
// context (only its tag is used).
func ParseInner(context *html.Node, markup string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: context.Data, DataAtom: context.DataAtom}
	return html.ParseFragment(strings.NewReader(markup), ctx)
}

// Text returns the visible text of n's subtree, whitespace-collapsed.
func Text(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
