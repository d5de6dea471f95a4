package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dgallion1/folio/internal/manuscript"
	"github.com/dgallion1/folio/internal/story"
)

func history() []story.Fragment {
	return []story.Fragment{
		{ID: "f1", ChapterTitle: "The Harbor", Content: "## Chapter 1: The Harbor\nFog rolled in.\n\nGulls cried."},
		{ID: "f2", ChapterTitle: "Chapter 1: The Harbor", Content: "She boarded the ship."},
		{ID: "f3", ChapterTitle: "Open Water", Content: "Night fell.\n## Chapter 2: Open Water\nWaves & wind."},
	}
}

func TestMarkdown(t *testing.T) {
	got := Markdown("The Voyage", history())
	want := "# The Voyage\n" +
		"\n## Chapter 1: The Harbor\n" +
		"\nFog rolled in.\n\nGulls cried.\n" +
		"\nShe boarded the ship.\n" +
		"\n## Open Water\n" +
		"\nNight fell.\n" +
		"\n## Chapter 2: Open Water\n" +
		"\nWaves & wind.\n"
	if got != want {
		t.Errorf("Markdown mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := HTML(&buf, "Tom & Jerry", history()); err != nil {
		t.Fatalf("HTML: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"<title>Tom &amp; Jerry</title>",
		"<h2>Chapter 1: The Harbor</h2>",
		"<p>Fog rolled in.</p>",
		"<p>Waves &amp; wind.</p>",
		"</html>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestDOCXReadsBackAsChapters(t *testing.T) {
	var buf bytes.Buffer
	if err := DOCX(&buf, "The Voyage", history()); err != nil {
		t.Fatalf("DOCX: %v", err)
	}

	m, err := (&manuscript.DOCXReader{}).Read(bytes.NewReader(buf.Bytes()), "voyage.docx")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	var titles []string
	for _, ch := range m.Chapters {
		if ch.Title != "" {
			titles = append(titles, ch.Title)
		}
	}
	want := []string{"Chapter 1: The Harbor", "Open Water", "Chapter 2: Open Water"}
	if strings.Join(titles, "|") != strings.Join(want, "|") {
		t.Errorf("chapter titles = %v, want %v", titles, want)
	}
	if !strings.Contains(m.Content(), "She boarded the ship.") {
		t.Error("prose missing from docx")
	}
}

func TestWriteDispatch(t *testing.T) {
	for _, f := range []Format{FormatMarkdown, FormatHTML, FormatDOCX} {
		var buf bytes.Buffer
		if err := Write(&buf, f, "x", history()); err != nil {
			t.Errorf("Write(%s): %v", f, err)
		}
		if buf.Len() == 0 {
			t.Errorf("Write(%s) produced nothing", f)
		}
	}
	if err := Write(&bytes.Buffer{}, Format("pdf"), "x", nil); err == nil {
		t.Error("expected error for pdf")
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"": FormatMarkdown, "markdown": FormatMarkdown, "HTML": FormatHTML, "docx": FormatDOCX}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("epub"); err == nil {
		t.Error("expected error for epub")
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("The Salt Road!", FormatDOCX); got != "the-salt-road.docx" {
		t.Errorf("Filename = %q", got)
	}
	if got := Filename("???", FormatMarkdown); got != "story.md" {
		t.Errorf("Filename = %q", got)
	}
}
