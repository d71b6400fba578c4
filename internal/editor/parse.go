package editor

import (
	"strings"

	"github.com/google/uuid"
)

func newReqID() string { return uuid.NewString()[:8] }

// splitCommand returns the command word of a "/cmd@bot args" message and the
// tokenized arguments. ok is false for plain text.
func splitCommand(text string) (word string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return "", nil, false
	}
	word = strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	if word == "" {
		return "", nil, false
	}
	return word, parts[1:], true
}

// tokenizeCommandLine splits command text into tokens while supporting quotes.
// Examples:
//
//	/trigger_set "spring sale" daily 9:00 am
func tokenizeCommandLine(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out    []string
		buf    strings.Builder
		inQ    bool
		qChar  byte
		esc    bool
		quoted bool
	)
	flush := func() {
		if buf.Len() > 0 || quoted {
			out = append(out, buf.String())
			buf.Reset()
		}
		quoted = false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if esc {
			buf.WriteByte(ch)
			esc = false
			continue
		}
		if ch == '\\' {
			esc = true
			continue
		}
		if inQ {
			if ch == qChar {
				inQ = false
				continue
			}
			buf.WriteByte(ch)
			continue
		}
		switch ch {
		case '"', '\'':
			inQ = true
			quoted = true
			qChar = ch
		case ' ', '\t', '\n', '\r':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}
