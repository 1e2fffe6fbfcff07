package locate

import "regexp"

// Names reported in Excerpt.Rule.
const (
	RuleListItem          = "list-item"
	RuleTemplateParameter = "template-parameter"
	RuleTableCaption      = "table-caption"
	RuleTableHeader       = "table-header"
	RuleTableCell         = "table-cell"
	RuleHeading           = "heading"
)

// rule strips one kind of structural prefix from a matched line.
type rule struct {
	name    string
	pattern *regexp.Regexp
	// repl is the replacement template; "" deletes the match.
	repl string
}

// rules are tried in order; the first one whose pattern matches is the
// only one applied. Their prefixes are mutually exclusive markup.
var rules = []rule{
	{name: RuleListItem, pattern: regexp.MustCompile(`^[*#:;]+ *`)},
	{name: RuleTemplateParameter, pattern: regexp.MustCompile(`^\| *[^=|{}\[\]<>]+?= *`)},
	{name: RuleTableCaption, pattern: regexp.MustCompile(`^\|\+ *`)},
	{name: RuleTableHeader, pattern: regexp.MustCompile(`^! *`)},
	{name: RuleTableCell, pattern: regexp.MustCompile(`^\| *`)},
	{name: RuleHeading, pattern: regexp.MustCompile(`^==+ *(.*?) *==+`), repl: "$1"},
}

// Cleanup removes the structural markup in front of the prose of a source
// line and returns the remaining text plus the name of the rule applied.
func Cleanup(line string) (string, string) {
	for _, r := range rules {
		loc := r.pattern.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		var out []byte
		out = r.pattern.ExpandString(out, r.repl, line, loc)
		return string(out) + line[loc[1]:], r.name
	}
	return line, ""
}
