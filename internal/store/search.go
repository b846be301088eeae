package store

import (
	"context"
	"strings"
)

const snippetRadius = 32

// SearchResult is a message matching a search, with the matched text highlighted.
type SearchResult struct {
	Message Message `json:"message"`
	Snippet string  `json:"snippet"`
}

// SearchMessages finds messages whose body or caption contains query, case-insensitively
// for ASCII, newest first. conversationID narrows the search to one conversation when set.
func (db *DB) SearchMessages(ctx context.Context, query, conversationID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(query) + "%"

	q := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (body LIKE ? ESCAPE '\' OR caption LIKE ? ESCAPE '\')`
	args := []any{pattern, pattern}
	if conversationID != "" {
		q += " AND conversation_id = ?"
		args = append(args, conversationID)
	}
	q += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(msgs))
	for _, m := range msgs {
		text := m.Body
		if !containsFold(text, query) {
			text = m.Caption
		}
		results = append(results, SearchResult{Message: m, Snippet: snippet(text, query)})
	}
	return results, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// snippet returns text around the first match of query, marked as <<match>>, with "..."
// where text was cut.
func snippet(text, query string) string {
	runes := []rune(text)
	lower := []rune(strings.ToLower(text))
	needle := []rune(strings.ToLower(query))
	at := indexRunes(lower, needle)
	if at < 0 || len(lower) != len(runes) {
		return text
	}

	start := max(at-snippetRadius, 0)
	end := min(at+len(needle)+snippetRadius, len(runes))

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(string(runes[start:at]))
	b.WriteString("<<")
	b.WriteString(string(runes[at : at+len(needle)]))
	b.WriteString(">>")
	b.WriteString(string(runes[at+len(needle) : end]))
	if end < len(runes) {
		b.WriteString("...")
	}
	return b.String()
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
