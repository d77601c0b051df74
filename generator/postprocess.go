package generator

import (
	"regexp"
	"strings"
)

var hashtagRe = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// cleanContent trims model output. Empty output is an error.
func cleanContent(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// extractTags returns the distinct hashtags in text, in order of appearance.
func extractTags(text string) []string {
	matches := hashtagRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := "#" + m[1]
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, tag)
	}
	return tags
}

// Excerpt 取正文压缩后的前 limit 个字符，用于列表展示。
func Excerpt(text string, limit int) string {
	joined := strings.Join(strings.Fields(text), " ")
	r := []rune(joined)
	if len(r) <= limit {
		return joined
	}
	return string(r[:limit]) + "…"
}
