// Package clean turns ticketing HTML fields into plain text.
package clean

import (
	"strings"

	"golang.org/x/net/html"
)

// HTML returns the visible text of content with script and style elements
// removed. Text nodes are trimmed and joined by single spaces. Content that
// arrives entity-encoded (as GLPI stores rich text) is decoded first.
func HTML(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if isEntityEncoded(content) {
		content = html.UnescapeString(content)
	}

	z := html.NewTokenizer(strings.NewReader(content))
	var parts []string
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(parts, " ")
		case html.StartTagToken:
			if isHidden(z) {
				skip++
			}
		case html.EndTagToken:
			if skip > 0 && isHidden(z) {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if text := strings.TrimSpace(string(z.Text())); text != "" {
				parts = append(parts, text)
			}
		}
	}
}

func isHidden(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}

func isEntityEncoded(s string) bool {
	return !strings.Contains(s, "<") && strings.Contains(s, "&lt;")
}
