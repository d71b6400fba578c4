package telegram

import "strings"

const textLimit = 4000

// splitText splits long messages into chunks of at most limit runes,
// preferring newline boundaries. With HTML parse mode it avoids cutting
// inside a tag.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	html := strings.EqualFold(parseMode, "HTML")
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end >= len(rs) {
			end = len(rs)
		} else {
			end = cutPoint(rs, start, end, limit, html)
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func cutPoint(rs []rune, start, end, limit int, html bool) int {
	// A newline in the last two thirds of the window.
	for i := end - 1; i-start >= limit/3; i-- {
		if rs[i] == '\n' {
			end = i + 1
			break
		}
	}
	if !html {
		return end
	}
	lastOpen, lastClose := -1, -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			lastOpen = i
		case '>':
			lastClose = i
		}
	}
	if lastOpen > lastClose && lastOpen > start+1 {
		return lastOpen
	}
	return end
}
