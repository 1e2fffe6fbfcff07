package fragment

import (
	"testing"

	"github.com/hazyhaar/wikiedit/idgen"
)

func TestNearestSection(t *testing.T) {
	doc := parse(t, testPage)
	root := ElementByID(doc, DefaultContentRoot)
	frags := Discover(root, nil, idgen.Sequence("f"))

	tests := []struct {
		idx     int
		heading string
		number  int
	}{
		{0, "", 0},              // before any heading
		{1, "Early history", 1}, // preceding sibling h2 with mw-headline
		{2, "Early history", 1}, // li: walks up to the ul, then back
		{3, "Modern era", 2},    // caption: table follows the mw-heading wrapper
		{5, "Modern era", 2},    // td inside tr inside tbody
		{6, "Modern era", 2},
	}
	for _, tt := range tests {
		h := NearestSection(frags[tt.idx].Node, root)
		if got := HeadingText(h); got != tt.heading {
			t.Errorf("fragment %d: heading %q, want %q", tt.idx, got, tt.heading)
		}
		if got := SectionNumber(h, root); got != tt.number {
			t.Errorf("fragment %d: section %d, want %d", tt.idx, got, tt.number)
		}
	}
}

func TestNearestSection_HeadingItself(t *testing.T) {
	doc := parse(t, `<div id="root"><h3 id="Notes">Notes</h3></div>`)
	root := ElementByID(doc, "root")
	h := findTag(doc, "h3")
	if NearestSection(h, root) != h {
		t.Fatal("a heading is its own section")
	}
	if got := HeadingText(h); got != "Notes" {
		t.Errorf("got %q", got)
	}
}

func TestNearestSection_StopsAtRoot(t *testing.T) {
	doc := parse(t, `<h2 id="Outside">Outside</h2><div id="root"><p>Text</p></div>`)
	root := ElementByID(doc, "root")
	if h := NearestSection(findTag(doc, "p"), root); h != nil {
		t.Fatalf("heading outside the content root leaked: %q", HeadingText(h))
	}
}

func TestSectionNumber_DocumentOrder(t *testing.T) {
	doc := parse(t, `<div id="root">
<h2 id="A">A</h2><p>a</p>
<div><h3 id="A1">A1</h3><p>a1</p></div>
<h2 id="B">B</h2><p id="target">b</p>
</div>`)
	root := ElementByID(doc, "root")
	h := NearestSection(ElementByID(doc, "target"), root)
	if got := HeadingText(h); got != "B" {
		t.Fatalf("heading %q", got)
	}
	if got := SectionNumber(h, root); got != 3 {
		t.Errorf("section %d, want 3", got)
	}
}

func TestSectionNumber_SkipsTOC(t *testing.T) {
	doc := parse(t, `<div id="root"><div class="mw-parser-output">
<p>Lead.</p>
<div id="toc" class="toc" role="navigation"><div class="toctitle"><h2 id="mw-toc-heading">Contents</h2></div>
<ul><li class="toclevel-1"><a href="#History"><span class="toctext">History</span></a></li></ul></div>
<h2><span class="mw-headline" id="History">History</span></h2><p>Old.</p>
<h2><span class="mw-headline" id="Geography">Geography</span></h2><p id="target">Hills.</p>
</div></div>`)
	root := ElementByID(doc, "root")
	h := NearestSection(ElementByID(doc, "target"), root)
	if got := HeadingText(h); got != "Geography" {
		t.Fatalf("heading %q", got)
	}
	if got := SectionNumber(h, root); got != 2 {
		t.Errorf("section %d, want 2", got)
	}

	frags := Discover(root, nil, idgen.Sequence("f"))
	if len(frags) != 3 {
		t.Fatalf("discovered %d fragments, want the 3 paragraphs", len(frags))
	}
	for _, f := range frags {
		if f.Kind != Paragraph {
			t.Errorf("table of contents entry discovered: %s %q", f.Kind, f.Signature())
		}
	}
}

func TestHeadingText_Fallbacks(t *testing.T) {
	doc := parse(t, `<h2>Plain <i>title</i></h2>`)
	if got := HeadingText(findTag(doc, "h2")); got != "Plain title" {
		t.Errorf("got %q", got)
	}
	if HeadingText(nil) != "" {
		t.Error("nil heading should have empty text")
	}
}
