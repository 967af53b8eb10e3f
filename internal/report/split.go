package report

import (
	"strings"
	"unicode/utf8"
)

// Split breaks text into chunks of at most limit runes. Cuts prefer a
// Separator, then a blank line, then a newline; the boundary itself is
// dropped and every chunk is trimmed. Text that already fits is returned
// unchanged as a single chunk.
func Split(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	rest := text
	for {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			break
		}
		if utf8.RuneCountInString(rest) <= limit {
			chunks = append(chunks, rest)
			break
		}

		window := prefixRunes(rest, limit)
		cut, skip := len(window), 0
		for _, sep := range []string{Separator, "\n\n", "\n"} {
			if i := strings.LastIndex(window, sep); i > 0 {
				cut, skip = i, len(sep)
				break
			}
		}

		if chunk := strings.TrimSpace(rest[:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		rest = rest[cut+skip:]
	}
	return chunks
}

// prefixRunes returns the longest prefix of s holding at most n runes.
func prefixRunes(s string, n int) string {
	i := 0
	for range n {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}
