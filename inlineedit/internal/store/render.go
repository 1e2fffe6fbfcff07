package store

import (
	"regexp"
	"strings"
)

// RenderWikitext renders the subset of wikitext the local wiki supports:
// headings, paragraphs, nested lists, definition lists, tables, bold,
// italic, internal and external links. Templates are shown verbatim.
// Output follows the shape of MediaWiki's parser output closely enough
// for fragment discovery and section lookup.
func RenderWikitext(text string) string {
	r := &renderer{}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		r.line(line)
	}
	r.flush()
	return r.out.String()
}

type renderer struct {
	out     strings.Builder
	para    []string
	list    string // prefix of the open list items
	inTable bool
	inRow   bool
}

var headingRe = regexp.MustCompile(`^(={1,6})\s*(.+?)\s*(={1,6})\s*$`)

func (r *renderer) line(line string) {
	trimmed := strings.TrimSpace(line)

	if r.inTable {
		r.tableLine(trimmed)
		return
	}

	switch {
	case trimmed == "":
		r.flush()
	case strings.HasPrefix(trimmed, "{|"):
		r.flush()
		r.out.WriteString("<table class=\"wikitable\">\n")
		r.inTable = true
	case headingRe.MatchString(line):
		r.flush()
		m := headingRe.FindStringSubmatch(line)
		level := min(len(m[1]), len(m[3]))
		title := m[2]
		id := strings.ReplaceAll(title, " ", "_")
		tag := "h" + string(rune('0'+level))
		r.out.WriteString("<" + tag + "><span class=\"mw-headline\" id=\"" + escape(id) + "\">" +
			inline(title) + "</span></" + tag + ">\n")
	case strings.ContainsRune("*#:;", rune(line[0])):
		r.flushPara()
		r.listLine(line)
	default:
		r.closeLists()
		r.para = append(r.para, line)
	}
}

func (r *renderer) flushPara() {
	if len(r.para) == 0 {
		return
	}
	r.out.WriteString("<p>" + inline(strings.Join(r.para, "\n")) + "\n</p>")
	r.para = r.para[:0]
}

func (r *renderer) flush() {
	r.flushPara()
	r.closeLists()
}

// listKind folds ; and : together: both live in a definition list.
func listKind(c byte) byte {
	if c == ';' {
		return ':'
	}
	return c
}

func listOpen(c byte) string {
	switch c {
	case '*':
		return "<ul>"
	case '#':
		return "<ol>"
	}
	return "<dl>"
}

func listClose(c byte) string {
	switch c {
	case '*':
		return "</ul>"
	case '#':
		return "</ol>"
	}
	return "</dl>"
}

func itemOpen(c byte) string {
	switch c {
	case ';':
		return "<dt>"
	case ':':
		return "<dd>"
	}
	return "<li>"
}

func itemClose(c byte) string {
	switch c {
	case ';':
		return "</dt>"
	case ':':
		return "</dd>"
	}
	return "</li>"
}

func (r *renderer) listLine(line string) {
	n := 0
	for n < len(line) && strings.IndexByte("*#:;", line[n]) >= 0 {
		n++
	}
	prefix, content := line[:n], strings.TrimSpace(line[n:])

	common := 0
	for common < len(prefix) && common < len(r.list) && listKind(prefix[common]) == listKind(r.list[common]) {
		common++
	}
	for i := len(r.list) - 1; i >= common; i-- {
		r.out.WriteString(itemClose(r.list[i]) + listClose(r.list[i]))
	}
	if common == len(prefix) {
		// Same depth as an open item: start a sibling.
		last := len(prefix) - 1
		r.out.WriteString(itemClose(r.list[last]) + itemOpen(prefix[last]))
	} else {
		// Deeper levels nest inside the item left open at common-1.
		for i := common; i < len(prefix); i++ {
			r.out.WriteString(listOpen(prefix[i]) + itemOpen(prefix[i]))
		}
	}
	r.out.WriteString(inline(content))
	r.list = prefix
}

func (r *renderer) closeLists() {
	for i := len(r.list) - 1; i >= 0; i-- {
		r.out.WriteString(itemClose(r.list[i]) + listClose(r.list[i]) + "\n")
	}
	r.list = ""
}

func (r *renderer) tableLine(line string) {
	switch {
	case strings.HasPrefix(line, "|}"):
		r.closeRow()
		r.out.WriteString("</table>\n")
		r.inTable = false
	case strings.HasPrefix(line, "|+"):
		r.out.WriteString("<caption>" + inline(strings.TrimSpace(line[2:])) + "\n</caption>")
	case strings.HasPrefix(line, "|-"):
		r.closeRow()
	case strings.HasPrefix(line, "!"):
		r.openRow()
		for _, cell := range strings.Split(line[1:], "!!") {
			r.out.WriteString("<th>" + inline(cellText(cell)) + "\n</th>")
		}
	case strings.HasPrefix(line, "|"):
		r.openRow()
		for _, cell := range splitCells(line[1:]) {
			r.out.WriteString("<td>" + inline(cellText(cell)) + "\n</td>")
		}
	}
}

func (r *renderer) openRow() {
	if !r.inRow {
		r.out.WriteString("<tr>")
		r.inRow = true
	}
}

func (r *renderer) closeRow() {
	if r.inRow {
		r.out.WriteString("</tr>\n")
		r.inRow = false
	}
}

// splitCells splits on || outside [[links]].
func splitCells(s string) []string {
	var cells []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], "[["):
			depth++
			i++
		case strings.HasPrefix(s[i:], "]]") && depth > 0:
			depth--
			i++
		case depth == 0 && strings.HasPrefix(s[i:], "||"):
			cells = append(cells, s[start:i])
			start = i + 2
			i++
		}
	}
	return append(cells, s[start:])
}

// cellText drops a leading attribute block ("style=... | text").
func cellText(cell string) string {
	depth := 0
	for i := 0; i < len(cell); i++ {
		switch {
		case strings.HasPrefix(cell[i:], "[["):
			depth++
			i++
		case strings.HasPrefix(cell[i:], "]]") && depth > 0:
			depth--
			i++
		case depth == 0 && cell[i] == '|':
			if strings.Contains(cell[:i], "=") {
				return strings.TrimSpace(cell[i+1:])
			}
		}
	}
	return strings.TrimSpace(cell)
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escape(s string) string { return escaper.Replace(s) }

var (
	boldRe     = regexp.MustCompile(`'''(.+?)'''`)
	italicRe   = regexp.MustCompile(`''(.+?)''`)
	linkRe     = regexp.MustCompile(`\[\[([^\[\]|]+)(?:\|([^\[\]]+))?\]\]`)
	extLinkRe  = regexp.MustCompile(`\[(https?://[^\s\]]+)(?:\s+([^\]]+))?\]`)
	underscore = strings.NewReplacer(" ", "_")
)

func inline(s string) string {
	s = escape(s)
	s = linkRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := linkRe.FindStringSubmatch(m)
		target, label := strings.TrimSpace(sub[1]), sub[2]
		if label == "" {
			label = target
		}
		return `<a href="/wiki/` + underscore.Replace(target) + `" title="` + target + `">` + label + `</a>`
	})
	s = extLinkRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := extLinkRe.FindStringSubmatch(m)
		label := sub[2]
		if label == "" {
			label = sub[1]
		}
		return `<a class="external" href="` + sub[1] + `">` + label + `</a>`
	})
	s = boldRe.ReplaceAllString(s, "<b>$1</b>")
	s = italicRe.ReplaceAllString(s, "<i>$1</i>")
	return s
}
