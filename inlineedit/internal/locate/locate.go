// Package locate maps the plain text of a rendered fragment back to the
// single line of page source that produced it.
//
// Source markup and its rendering share only plain text, so the fragment's
// longest bare text run (its signature) is searched literally in the
// source. A match is accepted only when exactly one line contains the
// signature; everything else is reported as not found and the caller falls
// back to whole-section editing. The matched line is then stripped of the
// structural markup in front of the prose (list bullets, table cell
// markers, template parameter names, heading equals signs).
package locate

import (
	"regexp"
	"strings"
)

// Excerpt is a located piece of source.
type Excerpt struct {
	// Line is the full matched source line, without its line break.
	Line string `json:"line"`
	// LineNumber is 1-based.
	LineNumber int `json:"line_number"`
	// Text is Line after cleanup: what the editor shows and what a save
	// replaces.
	Text string `json:"text"`
	// Rule names the cleanup rule that fired, "" if none did.
	Rule string `json:"rule,omitempty"`
}

// Locate returns the excerpt of source produced by a fragment whose
// signature text is signature. ok is false when the signature is empty,
// absent from source, present on more than one line, or when cleanup
// leaves nothing.
func Locate(signature, source string) (Excerpt, bool) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return Excerpt{}, false
	}

	lines := MatchingLines(signature, source)
	if len(lines) != 1 {
		return Excerpt{}, false
	}

	line := lines[0]
	text, rule := Cleanup(line.Text)
	if text == "" {
		return Excerpt{}, false
	}
	return Excerpt{
		Line:       line.Text,
		LineNumber: line.Number,
		Text:       text,
		Rule:       rule,
	}, true
}

// Line is one source line matched by MatchingLines.
type Line struct {
	Number int
	Text   string
}

// MatchingLines returns every line of source containing signature as a
// literal substring. A line is a maximal run without \r or \n; several
// occurrences on one line count once.
func MatchingLines(signature, source string) []Line {
	if signature == "" {
		return nil
	}
	re := linePattern(signature)
	locs := re.FindAllStringIndex(source, -1)
	if len(locs) == 0 {
		return nil
	}

	lines := make([]Line, 0, len(locs))
	number, scanned := 1, 0
	for _, loc := range locs {
		number += strings.Count(source[scanned:loc[0]], "\n")
		scanned = loc[0]
		lines = append(lines, Line{Number: number, Text: source[loc[0]:loc[1]]})
	}
	return lines
}

// linePattern matches a whole line around the escaped signature. The
// leftmost-first semantics make each match start at its line's first
// character, since [^\r\n]* can always extend back to it.
func linePattern(signature string) *regexp.Regexp {
	return regexp.MustCompile(`[^\r\n]*` + Escape(signature) + `[^\r\n]*`)
}

// Escape quotes every character that is meaningful in a pattern
// (quantifiers, anchors, grouping, brackets, braces, backslash) so the
// signature matches literally.
func Escape(s string) string {
	return regexp.QuoteMeta(s)
}
