package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"

	kit "playbookd/internal/transport"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	got := splitText("Every Friday at 5:00 PM (Eastern)", textLimit, "")
	if len(got) != 1 || got[0] != "Every Friday at 5:00 PM (Eastern)" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("x", 30)
	text := strings.Repeat(line+"\n", 10)
	got := splitText(text, 100, "")
	for i, c := range got {
		if utf8.RuneCountInString(c) > 100 {
			t.Fatalf("chunk %d too long: %d", i, utf8.RuneCountInString(c))
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %d has stray newline: %q", i, c)
		}
		for _, l := range strings.Split(c, "\n") {
			if l != line {
				t.Fatalf("chunk %d split a line: %q", i, l)
			}
		}
	}
	if strings.Join(got, "\n") != strings.TrimRight(text, "\n") {
		t.Fatal("content lost")
	}
}

func TestSplitTextRunes(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("▶", 250)
	got := splitText(text, 100, "")
	if len(got) != 3 || utf8.RuneCountInString(got[2]) != 50 {
		t.Fatalf("chunks = %d", len(got))
	}
}

func TestSplitTextHTML(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 98) + "<b>bold</b>"
	got := splitText(text, 100, "HTML")
	if len(got) != 2 || got[0] != strings.Repeat("a", 98) || got[1] != "<b>bold</b>" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestMenuCommands(t *testing.T) {
	t.Parallel()
	got := menuCommands([]kit.BotCommand{
		{Command: "/triggers", Description: "List triggers"},
		{Command: " "},
		{Command: "help"},
		{Command: "long", Description: strings.Repeat("d", 300)},
	})
	if len(got) != 3 {
		t.Fatalf("menuCommands = %+v", got)
	}
	if got[0].Text != "triggers" || got[1].Description != "help" || len(got[2].Description) != 256 {
		t.Fatalf("menuCommands = %+v", got)
	}
}
