package model

import (
	"regexp"
	"strings"
)

var hashtagPattern = regexp.MustCompile(`#[^\s]*`)

// ExtractHashtags returns the distinct, lowercased hashtag titles found in
// content, in order of first appearance. A bare "#" is ignored.
func ExtractHashtags(content string) []string {
	matches := hashtagPattern.FindAllString(content, -1)
	seen := make(map[string]bool, len(matches))
	var titles []string
	for _, m := range matches {
		title := strings.ToLower(strings.TrimPrefix(m, "#"))
		if title == "" || seen[title] {
			continue
		}
		seen[title] = true
		titles = append(titles, title)
	}
	return titles
}
