package localindex

import (
	"strings"
	"unicode"
)

// Passage is one searchable slice of a document.
type Passage struct {
	Page int // 1-based; 0 when the text carries no page breaks
	Text string
}

// Passages splits text into pages on form feeds and each page into chunks of
// at most size runes, breaking on whitespace where possible.
func Passages(text string, size int) []Passage {
	if size <= 0 {
		size = DefaultChunkSize
	}
	pages := strings.Split(text, "\f")
	paged := len(pages) > 1

	var out []Passage
	for i, page := range pages {
		num := 0
		if paged {
			num = i + 1
		}
		for _, chunk := range chunk(page, size) {
			out = append(out, Passage{Page: num, Text: chunk})
		}
	}
	return out
}

func chunk(text string, size int) []string {
	runes := []rune(strings.TrimSpace(text))
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= size {
			chunks = append(chunks, string(runes))
			break
		}
		cut := size
		for j := size; j > size/2; j-- {
			if unicode.IsSpace(runes[j]) {
				cut = j
				break
			}
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[:cut])))
		runes = []rune(strings.TrimSpace(string(runes[cut:])))
	}
	return chunks
}
