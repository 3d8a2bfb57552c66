package preprocess

import (
	"strings"
	"testing"
)

func TestCleanBasic(t *testing.T) {
	in := "Clause 1:\t\tcover  applies.\x07\n\n\n\n  Clause 2: excess. "
	got := CleanBasic(in)
	want := "Clause 1: cover applies.\n\nClause 2: excess."
	if got != want {
		t.Errorf("CleanBasic = %q, want %q", got, want)
	}
	if CleanBasic("") != "" {
		t.Error("empty input should stay empty")
	}
}

func TestHTMLToText(t *testing.T) {
	html := `<html><body>
<h1>Motor Policy</h1>
<p>Roadside assistance is included.</p>
<ul><li>Towing up to 50km</li><li></li></ul>
<table><tr><th>Age</th><th>Premium</th></tr><tr><td>18-25</td><td>500</td></tr></table>
<script>ignored()</script>
</body></html>`

	got, err := HTMLToText(html)
	if err != nil {
		t.Fatalf("HTMLToText failed: %v", err)
	}
	paragraphs := strings.Split(got, "\n\n")
	want := []string{
		"Motor Policy",
		"Roadside assistance is included.",
		"- Towing up to 50km",
		"| Age | Premium |\n| 18-25 | 500 |",
	}
	if len(paragraphs) != len(want) {
		t.Fatalf("expected %d paragraphs, got %d: %q", len(want), len(paragraphs), got)
	}
	for i := range want {
		if paragraphs[i] != want[i] {
			t.Errorf("paragraph %d = %q, want %q", i, paragraphs[i], want[i])
		}
	}
	if strings.Contains(got, "ignored") {
		t.Error("script content should be dropped")
	}
}
