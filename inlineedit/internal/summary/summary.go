// Package summary builds edit summaries.
package summary

import (
	"strings"

	"github.com/hazyhaar/wikiedit/inlineedit/internal/fragment"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/messages"
)

// Defaults for Composer fields left empty.
const (
	DefaultDocPage = "mw:WikiEdit"
	DefaultHashtag = "#wikiedit"
)

// Composer turns an edit into a summary line.
type Composer struct {
	Messages *messages.Catalog
	// DocPage is the link target passed to the summary templates as $1.
	DocPage string
	// Hashtag is appended to every summary.
	Hashtag string
}

// Compose returns the summary for an edit of a fragment of the given kind
// under the section titled section ("" when there is none). An empty
// newText is a deletion. userSummary, when not blank, replaces the
// localized template.
func (c Composer) Compose(userSummary, section string, kind fragment.Kind, newText string) string {
	s := strings.TrimSpace(userSummary)
	if s == "" {
		s = c.template(kind, newText == "")
	}
	if section != "" {
		s = "/* " + section + " */ " + s
	}
	hashtag := c.Hashtag
	if hashtag == "" {
		hashtag = DefaultHashtag
	}
	return s + " " + hashtag
}

func (c Composer) template(kind fragment.Kind, deleted bool) string {
	action := messages.SummaryEdit
	if deleted {
		action = messages.SummaryDel
	}
	page := c.DocPage
	if page == "" {
		page = DefaultDocPage
	}
	if c.Messages == nil {
		return ""
	}
	if m, ok := c.Messages.Lookup(action + "-" + kind.String()); ok {
		return messages.Format(m, page)
	}
	return c.Messages.Get(action, page)
}
