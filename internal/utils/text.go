package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	everyoneToken = "@everyone"
	hereToken     = "@here"
)

// MentionInfo is the mention-related part of a chat message.
type MentionInfo struct {
	Content         string
	UserMentions    int
	RoleMentions    int
	MentionEveryone bool
}

// NormalizeContent decomposes text (NFKD), drops control and formatting
// characters, lower-cases it and collapses whitespace runs.
func NormalizeContent(text string) string {
	// transformers carry state, build a fresh chain per call
	chain := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.C)))
	clean, _, err := transform.String(chain, text)
	if err != nil {
		clean = text
	}
	return strings.Join(strings.Fields(strings.ToLower(clean)), " ")
}

// CountMentions never under-counts: a structural broadcast mention and the
// literal token in the text are both counted.
func CountMentions(info MentionInfo) int {
	count := info.UserMentions + info.RoleMentions
	if info.MentionEveryone {
		count++
	}
	count += strings.Count(info.Content, everyoneToken) + strings.Count(info.Content, hereToken)
	return count
}

func HasMassMention(info MentionInfo) bool {
	return info.MentionEveryone || strings.Contains(info.Content, everyoneToken) || strings.Contains(info.Content, hereToken)
}

// Similarity returns 2*LCS/(len(a)+len(b)) over runes, in [0,1].
func Similarity(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return float64(2*lcsLength(ra, rb)) / float64(total)
}

func lcsLength(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// ContainsKeyword reports whether any keyword is a case-insensitive substring of content.
func ContainsKeyword(content string, keywords []string) bool {
	lower := strings.ToLower(content)
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for idx := range s {
		if count == limit {
			return s[:idx]
		}
		count++
	}
	return s
}
