package chapter

import (
	"strings"
	"testing"

	"github.com/coursemind/coursemind/internal/domain"
)

func onePage(text string) domain.ExtractedText {
	return domain.ExtractedText{Text: text, PageOffsets: []int{0}}
}

func TestDetectChapterHeadings(t *testing.T) {
	text := "Chapter 1: Introduction\nSome intro text here.\n" +
		"Chapter 2 - Methods\nMethod details.\n" +
		"chapter 3. Results\nFindings.\n"

	chapters := New().Detect(onePage(text), "fallback")
	if len(chapters) != 3 {
		t.Fatalf("got %d chapters, want 3", len(chapters))
	}

	wantTitles := []string{"Introduction", "Methods", "Results"}
	for i, want := range wantTitles {
		if chapters[i].Title != want {
			t.Errorf("chapter %d title = %q, want %q", i, chapters[i].Title, want)
		}
		if chapters[i].Ordinal != i {
			t.Errorf("chapter %d ordinal = %d, want %d", i, chapters[i].Ordinal, i)
		}
	}
}

func TestDetectMarkdownHeadings(t *testing.T) {
	text := "# Overview\nBody one.\n## Deep Dive\nBody two.\n"

	chapters := New().Detect(onePage(text), "fallback")
	if len(chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(chapters))
	}
	if chapters[0].Title != "Overview" || chapters[1].Title != "Deep Dive" {
		t.Errorf("titles = %q, %q", chapters[0].Title, chapters[1].Title)
	}
}

func TestDetectNumberedHeadings(t *testing.T) {
	text := "1. Getting Started\nBody.\n1.2 Configuration Basics\nMore body.\n"

	chapters := New().Detect(onePage(text), "fallback")
	if len(chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(chapters))
	}
	if chapters[0].Title != "Getting Started" {
		t.Errorf("first title = %q", chapters[0].Title)
	}
	if chapters[1].Title != "Configuration Basics" {
		t.Errorf("second title = %q", chapters[1].Title)
	}
}

func TestDetectRejectsNumberedSentences(t *testing.T) {
	// A numbered line ending with terminal punctuation reads like a list
	// item, not a heading.
	text := "Notes\n1. This is a full sentence ending with a period.\nMore text.\n"

	chapters := New().Detect(onePage(text), "fallback")
	for _, ch := range chapters {
		if strings.Contains(ch.Title, "full sentence") {
			t.Errorf("numbered sentence promoted to heading: %q", ch.Title)
		}
	}
}

func TestDetectAllCapsHeadings(t *testing.T) {
	text := "INTRODUCTION\nBody text follows.\nRELATED WORK\nMore body.\n"

	chapters := New().Detect(onePage(text), "fallback")
	if len(chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(chapters))
	}
	if chapters[0].Title != "INTRODUCTION" || chapters[1].Title != "RELATED WORK" {
		t.Errorf("titles = %q, %q", chapters[0].Title, chapters[1].Title)
	}
}

func TestDetectNoHeadingsFallback(t *testing.T) {
	text := "just flowing body text without any structure at all\nand a second line\n"

	chapters := New().Detect(onePage(text), "mydoc.txt")
	if len(chapters) != 1 {
		t.Fatalf("got %d chapters, want 1", len(chapters))
	}
	ch := chapters[0]
	if ch.Title != "mydoc.txt" {
		t.Errorf("title = %q, want fallback name", ch.Title)
	}
	if ch.StartOffset != 0 || ch.EndOffset != len(text) {
		t.Errorf("span = [%d, %d), want [0, %d)", ch.StartOffset, ch.EndOffset, len(text))
	}
}

func TestDetectEmptyFallbackTitle(t *testing.T) {
	chapters := New().Detect(onePage("plain body text only\n"), "")
	if len(chapters) != 1 {
		t.Fatalf("got %d chapters, want 1", len(chapters))
	}
	if chapters[0].Title != DefaultTitle {
		t.Errorf("title = %q, want %q", chapters[0].Title, DefaultTitle)
	}
}

func TestDetectKeepsPreface(t *testing.T) {
	text := "Some preface text before any heading.\nChapter 1: Real Start\nBody.\n"

	chapters := New().Detect(onePage(text), "course notes")
	if len(chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(chapters))
	}
	if chapters[0].Title != "course notes" {
		t.Errorf("preface title = %q, want fallback", chapters[0].Title)
	}
	if chapters[1].Title != "Real Start" {
		t.Errorf("second title = %q", chapters[1].Title)
	}
	if chapters[0].EndOffset != chapters[1].StartOffset {
		t.Errorf("chapters not contiguous: %d != %d", chapters[0].EndOffset, chapters[1].StartOffset)
	}
}

func TestDetectSpansAreContiguous(t *testing.T) {
	text := "Chapter 1: One\naaa bbb ccc\nChapter 2: Two\nddd eee\nChapter 3: Three\nfff\n"

	chapters := New().Detect(onePage(text), "fallback")
	if len(chapters) != 3 {
		t.Fatalf("got %d chapters, want 3", len(chapters))
	}
	if chapters[0].StartOffset != 0 {
		t.Errorf("first chapter starts at %d, want 0", chapters[0].StartOffset)
	}
	for i := 1; i < len(chapters); i++ {
		if chapters[i].StartOffset != chapters[i-1].EndOffset {
			t.Errorf("gap between chapter %d and %d: %d != %d",
				i-1, i, chapters[i-1].EndOffset, chapters[i].StartOffset)
		}
	}
	if chapters[len(chapters)-1].EndOffset != len(text) {
		t.Errorf("last chapter ends at %d, want %d", chapters[len(chapters)-1].EndOffset, len(text))
	}
}

func TestDetectRejectsLongLines(t *testing.T) {
	long := "Chapter 1 " + strings.Repeat("word ", 20)
	text := long + "\nbody\n"

	chapters := New().Detect(onePage(text), "fallback")
	if len(chapters) != 1 || chapters[0].Title != "fallback" {
		t.Errorf("overlong line should not be a heading, got %d chapters", len(chapters))
	}
}

func TestDetectDeterministic(t *testing.T) {
	text := "Chapter 1: Alpha\nbody body body\nChapter 2: Beta\nmore body\n"
	d := New()

	first := d.Detect(onePage(text), "x")
	second := d.Detect(onePage(text), "x")
	if len(first) != len(second) {
		t.Fatalf("counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chapter %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestDetectPages(t *testing.T) {
	page1 := "Chapter 1: First\nbody on page one\n"
	page2 := "Chapter 2: Second\nbody on page two\n"
	text := domain.ExtractedText{
		Text:        page1 + page2,
		PageOffsets: []int{0, len(page1)},
	}

	chapters := New().Detect(text, "fallback")
	if len(chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(chapters))
	}
	if chapters[0].StartPage != 1 || chapters[0].EndPage != 1 {
		t.Errorf("first chapter pages = [%d, %d], want [1, 1]", chapters[0].StartPage, chapters[0].EndPage)
	}
	if chapters[1].StartPage != 2 || chapters[1].EndPage != 2 {
		t.Errorf("second chapter pages = [%d, %d], want [2, 2]", chapters[1].StartPage, chapters[1].EndPage)
	}
}
