package fragment

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// IsHeading reports whether n is a section heading: h1..h6, or the
// div.mw-heading wrapper newer parsers emit around them.
func IsHeading(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	case atom.Div:
		return HasClass(n, "mw-heading")
	}
	return false
}

// IsTOC reports whether n is the table of contents block the parser
// inserts. Its own "Contents" heading is not a page section.
func IsTOC(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	return Attr(n, "id") == "toc" || HasClass(n, "toc")
}

// NearestSection returns the heading of the section n belongs to: n itself
// if it is a heading, else its nearest preceding sibling heading, else the
// same search from its parent. The walk never looks at root or beyond; nil
// means no heading.
func NearestSection(n, root *html.Node) *html.Node {
	for cur := n; cur != nil && cur != root; cur = cur.Parent {
		if cur.Type == html.DocumentNode {
			return nil
		}
		if IsHeading(cur) {
			return cur
		}
		for p := cur.PrevSibling; p != nil; p = p.PrevSibling {
			if IsHeading(p) {
				return p
			}
		}
	}
	return nil
}

// SectionNumber returns 1 + the number of headings preceding heading in
// document order under root, or 0 when heading is nil. A wrapper and the
// h element it contains count once; the table of contents is skipped.
func SectionNumber(heading, root *html.Node) int {
	if heading == nil || root == nil {
		return 0
	}
	count := 0
	found := false
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil && !found; c = c.NextSibling {
			if c == heading {
				found = true
				return
			}
			if IsTOC(c) {
				continue
			}
			if IsHeading(c) {
				if Attached(heading, c) {
					found = true
					return
				}
				count++
				continue
			}
			walk(c)
		}
	}
	walk(root)
	if !found {
		return 0
	}
	return count + 1
}

// HeadingText returns the title of a heading: the id of its .mw-headline
// span with underscores turned into spaces, else the id of the heading
// element itself, else its text.
func HeadingText(heading *html.Node) string {
	if heading == nil {
		return ""
	}
	if span := find(heading, func(c *html.Node) bool { return HasClass(c, "mw-headline") }); span != nil {
		if id := Attr(span, "id"); id != "" {
			return strings.ReplaceAll(id, "_", " ")
		}
		return Text(span)
	}
	h := heading
	if heading.DataAtom == atom.Div {
		if inner := find(heading, func(c *html.Node) bool { return IsHeading(c) && c.DataAtom != atom.Div }); inner != nil {
			h = inner
		}
	}
	if id := Attr(h, "id"); id != "" {
		return strings.ReplaceAll(id, "_", " ")
	}
	return Text(h)
}
