package locate

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLocate_UniqueMatch(t *testing.T) {
	doc := "Intro.\nThe sky is blue.\nMore text."
	ex, ok := Locate("The sky is blue.", doc)
	if !ok {
		t.Fatal("expected a match")
	}
	if ex.Text != "The sky is blue." {
		t.Errorf("Text = %q", ex.Text)
	}
	if ex.LineNumber != 2 {
		t.Errorf("LineNumber = %d, want 2", ex.LineNumber)
	}
	if ex.Rule != "" {
		t.Errorf("Rule = %q, want none", ex.Rule)
	}
}

func TestLocate_AmbiguousMatch(t *testing.T) {
	doc := "== Vote ==\n* Yes.\nSomething else.\n* Yes."
	if _, ok := Locate("Yes.", doc); ok {
		t.Fatal("signature on two lines must not match")
	}
}

func TestLocate_NoMatch(t *testing.T) {
	doc := "{{Infobox|population=1000}}\nBody text."
	if _, ok := Locate("Population 1,000", doc); ok {
		t.Fatal("text produced by a template must not match")
	}
}

func TestLocate_EmptySignature(t *testing.T) {
	if _, ok := Locate("   ", "anything"); ok {
		t.Fatal("empty signature must not match")
	}
}

func TestLocate_TwiceOnOneLine(t *testing.T) {
	doc := "first\nred and red again\nlast"
	ex, ok := Locate("red", doc)
	if !ok {
		t.Fatal("two occurrences on the same line are one matching line")
	}
	if ex.Text != "red and red again" {
		t.Errorf("Text = %q", ex.Text)
	}
}

func TestLocate_PatternCharactersAreLiteral(t *testing.T) {
	doc := "a\nCost (approx.) is $5+ [est.] {x} ^y | z\\w\nb"
	ex, ok := Locate("Cost (approx.) is $5+ [est.] {x} ^y | z\\w", doc)
	if !ok {
		t.Fatal("expected literal match")
	}
	if ex.LineNumber != 2 {
		t.Errorf("LineNumber = %d", ex.LineNumber)
	}

	// "a.c" must not match "abc" as a pattern would.
	if _, ok := Locate("a.c", "abc\nxyz"); ok {
		t.Fatal("dot must be literal")
	}
}

func TestLocate_CRLF(t *testing.T) {
	doc := "Intro.\r\nThe sky is blue.\r\nMore."
	ex, ok := Locate("sky is blue", doc)
	if !ok {
		t.Fatal("expected a match")
	}
	if ex.Line != "The sky is blue." {
		t.Errorf("Line = %q, carriage return must not be part of the line", ex.Line)
	}
}

func TestLocate_TableCell(t *testing.T) {
	doc := "{| class=\"wikitable\"\n|-\n! City\n|-\n| Population\n|}"
	ex, ok := Locate("Population", doc)
	if !ok {
		t.Fatal("expected a match")
	}
	if ex.Text != "Population" {
		t.Errorf("Text = %q, want Population", ex.Text)
	}
	if ex.Rule != "table-cell" {
		t.Errorf("Rule = %q", ex.Rule)
	}
}

func TestLocate_CleanupToEmpty(t *testing.T) {
	// The only line with the signature is the heading markup itself; a
	// heading whose title is spaces cleans up to nothing.
	if _, ok := Locate("==", "text\n== ==\nmore"); ok {
		t.Fatal("excerpt that cleans to empty must be reported as not found")
	}
}

func TestUniquenessInvariant(t *testing.T) {
	docs := []string{
		"Yes.\nYes.",
		"* Yes.\n# Yes.\n",
		"x Yes. x\n\n| Yes.",
	}
	for _, doc := range docs {
		if n := len(MatchingLines("Yes.", doc)); n < 2 {
			t.Fatalf("fixture %q has %d matching lines", doc, n)
		}
		if _, ok := Locate("Yes.", doc); ok {
			t.Errorf("Locate matched in %q despite repeated signature", doc)
		}
	}
}

func TestNoFalsePositive(t *testing.T) {
	doc := strings.Join([]string{
		"== History ==",
		"The town was founded in 1200.",
		"* It grew quickly after the railway arrived.",
		"{| class=\"wikitable\"",
		"|+ Census results",
		"! Year",
		"| 1900",
		"|}",
	}, "\n")
	sigs := []string{"founded in 1200", "railway arrived", "Census results", "Year", "1900", "History"}
	for _, sig := range sigs {
		ex, ok := Locate(sig, doc)
		if !ok {
			t.Errorf("%q: expected a match", sig)
			continue
		}
		if !strings.Contains(doc, ex.Line) || !strings.Contains(ex.Line, sig) {
			t.Errorf("%q: line %q is not a source line containing the signature", sig, ex.Line)
		}
		if n := len(MatchingLines(sig, doc)); n != 1 {
			t.Errorf("%q: %d matching lines", sig, n)
		}
	}
}

func TestMatchingLines_Numbers(t *testing.T) {
	doc := "cat\ndog\ncat food\n\ncat"
	lines := MatchingLines("cat", doc)
	want := []int{1, 3, 5}
	if len(lines) != len(want) {
		t.Fatalf("lines = %+v", lines)
	}
	for i, n := range want {
		if lines[i].Number != n {
			t.Errorf("lines[%d].Number = %d, want %d", i, lines[i].Number, n)
		}
	}
}

func TestLocate_Excerpts(t *testing.T) {
	doc := strings.Join([]string{
		"{{Infobox settlement",
		"| name = Springfield",
		"}}",
		"== History ==",
		"* Founded by [[Jebediah Jones|Jebediah]].",
		"{|",
		"|+ Census results",
		"|}",
	}, "\n")
	tests := map[string]Excerpt{
		"Springfield":    {Line: "| name = Springfield", LineNumber: 2, Text: "Springfield", Rule: "template-parameter"},
		"Founded by":     {Line: "* Founded by [[Jebediah Jones|Jebediah]].", LineNumber: 5, Text: "Founded by [[Jebediah Jones|Jebediah]].", Rule: "list-item"},
		"Census results": {Line: "|+ Census results", LineNumber: 7, Text: "Census results", Rule: "table-caption"},
		"History":        {Line: "== History ==", LineNumber: 4, Text: "History", Rule: "heading"},
	}
	for sig, want := range tests {
		got, ok := Locate(sig, doc)
		if !ok {
			t.Errorf("%q: no match", sig)
			continue
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%q (-want +got):\n%s", sig, diff)
		}
	}
}
