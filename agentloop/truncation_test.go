package agentloop

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateOutput(t *testing.T) {
	if got := TruncateOutput("short", 10); got != "short" {
		t.Errorf("short output should be unchanged, got %q", got)
	}

	out := strings.Repeat("a", 10) + strings.Repeat("b", 10)
	got := TruncateOutput(out, 10)
	if !strings.HasPrefix(got, "aaaaa\n") || !strings.HasSuffix(got, "\nbbbbb") {
		t.Errorf("unexpected head/tail truncation %q", got)
	}
	if !strings.Contains(got, "[... 10 characters omitted ...]") {
		t.Errorf("missing omission marker in %q", got)
	}
}

func TestTruncateOutputKeepsRunesWhole(t *testing.T) {
	got := TruncateOutput("a"+strings.Repeat("é", 11), 5)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation split a rune: %q", got)
	}
	if want := "a\n[... 10 characters omitted ...]\né"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	got = TruncateOutput(strings.Repeat("日本語", 20), 16)
	if !utf8.ValidString(got) {
		t.Errorf("truncation split a rune: %q", got)
	}
}

func TestTruncateLines(t *testing.T) {
	lines := []string{"1", "2", "3", "4", "5", "6"}
	got := TruncateLines(strings.Join(lines, "\n"), 4)
	want := "1\n2\n[... 2 lines omitted ...]\n5\n6"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if got := TruncateLines("1\n2", 4); got != "1\n2" {
		t.Errorf("short output should be unchanged, got %q", got)
	}
}

func TestPreviewToolOutput(t *testing.T) {
	long := strings.Repeat("line\n", 100)
	got := PreviewToolOutput(long, ToolReadFile)
	if !strings.Contains(got, "lines omitted") {
		t.Errorf("expected read_file preview to be line-truncated")
	}
	if got := PreviewToolOutput("ok", ToolWriteFile); got != "ok" {
		t.Errorf("expected unchanged preview, got %q", got)
	}
}
