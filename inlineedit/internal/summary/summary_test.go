package summary

import (
	"strings"
	"testing"

	"github.com/hazyhaar/wikiedit/inlineedit/internal/fragment"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/messages"
)

func testCatalog() *messages.Catalog {
	return messages.NewCatalog(map[string]string{
		"wikiedit-summary-edit":           "Edit made with [[$1|WikiEdit]]",
		"wikiedit-summary-delete":         "Delete made with [[$1|WikiEdit]]",
		"wikiedit-summary-edit-paragraph": "Edit paragraph with [[$1|WikiEdit]]",
	})
}

func TestCompose_HeadingAndTemplate(t *testing.T) {
	c := Composer{Messages: testCatalog()}
	got := c.Compose("", "History", fragment.Paragraph, "The sky is red.")
	want := "/* History */ Edit paragraph with [[mw:WikiEdit|WikiEdit]] #wikiedit"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
	if !strings.HasPrefix(got, "/* History */ ") || !strings.HasSuffix(got, " #wikiedit") {
		t.Error("prefix or suffix missing")
	}
}

func TestCompose_DeleteFallsBackToGenericTemplate(t *testing.T) {
	c := Composer{Messages: testCatalog(), DocPage: "Help:Inline", Hashtag: "#inline"}
	got := c.Compose("", "", fragment.ListItem, "")
	want := "Delete made with [[Help:Inline|WikiEdit]] #inline"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCompose_UserSummary(t *testing.T) {
	c := Composer{Messages: testCatalog()}
	got := c.Compose("  typo  ", "Early history", fragment.TableCell, "x")
	if got != "/* Early history */ typo #wikiedit" {
		t.Errorf("got %q", got)
	}
}
