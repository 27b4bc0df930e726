package agents

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const explanationLimit = 1000

var (
	complexityRe = regexp.MustCompile(`(?i)(?:time|space) complexity[:\s]*[^\n]+`)
	scoreRe      = regexp.MustCompile(`(?i)score[:\s]*(\d+)`)
	listMarkerRe = regexp.MustCompile(`^\s*(?:\d+[.)]\s*|[-*•]\s*)`)
	nonSlugRe    = regexp.MustCompile(`[^a-z0-9]`)
)

var contributionTypes = []string{
	"Bug fix",
	"Feature enhancement",
	"Documentation improvement",
	"Test coverage improvement",
	"Performance optimization",
}

func extractComplexity(content string) string {
	matches := complexityRe.FindAllString(content, -1)
	if len(matches) == 0 {
		return "Not specified"
	}
	for i, m := range matches {
		matches[i] = strings.TrimSpace(m)
	}
	return strings.Join(matches, "\n")
}

// extractExplanation returns the text from the first explanation or approach heading,
// capped at explanationLimit runes.
func extractExplanation(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		l := strings.ToLower(line)
		if strings.Contains(l, "explanation") || strings.Contains(l, "approach") {
			return truncateRunes(strings.Join(lines[i:], "\n"), explanationLimit)
		}
	}
	return truncateRunes(content, explanationLimit)
}

func extractContributionType(content string) string {
	lower := strings.ToLower(content)
	for _, t := range contributionTypes {
		if strings.Contains(lower, strings.ToLower(t)) {
			return t
		}
	}
	return "Documentation improvement"
}

func extractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, "title") || strings.Contains(line, "Title") ||
			strings.HasPrefix(line, "**") || strings.HasPrefix(line, "##") {
			title := strings.TrimSpace(strings.Map(func(r rune) rune {
				switch r {
				case '*', '#', '-', ':':
					return -1
				}
				return r
			}, line))
			if title != "" {
				return title
			}
		}
	}
	return "Contribute to project improvement"
}

func extractScore(content string) int {
	m := scoreRe.FindStringSubmatch(content)
	if m == nil {
		return 75
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n > 100 {
		return 75
	}
	return n
}

var (
	defaultStrengths    = []string{"Consistent problem solving", "Active learning", "Technical growth"}
	defaultImprovements = []string{"Increase problem diversity", "Build portfolio projects", "Engage with community"}
)

func extractStrengths(content string) []string {
	if items := extractSection(content, "strength", "improvement", 3); len(items) > 0 {
		return items
	}
	return append([]string(nil), defaultStrengths...)
}

func extractImprovements(content string) []string {
	if items := extractSection(content, "improvement", "recommendation", 5); len(items) > 0 {
		return items
	}
	return append([]string(nil), defaultImprovements...)
}

// extractSection collects list items following the first line mentioning header, up to
// the first later line mentioning stop.
func extractSection(content, header, stop string, limit int) []string {
	lines := strings.Split(content, "\n")
	start := -1
	for i, line := range lines {
		if strings.Contains(strings.ToLower(line), header) {
			start = i
			break
		}
	}
	if start == -1 {
		return nil
	}
	var items []string
	first := lines[start]
	if idx := strings.Index(strings.ToLower(first), header); idx >= 0 {
		rest := strings.TrimLeft(first[idx+len(header):], "sS")
		if item := cleanItem(strings.TrimLeft(rest, ": \t*")); item != "" {
			items = append(items, item)
		}
	}
	for _, line := range lines[start+1:] {
		if strings.Contains(strings.ToLower(line), stop) {
			break
		}
		if item := cleanItem(line); item != "" {
			items = append(items, item)
		}
		if len(items) == limit {
			break
		}
	}
	return items
}

func cleanItem(line string) string {
	line = listMarkerRe.ReplaceAllString(line, "")
	return strings.TrimSpace(strings.ReplaceAll(line, "**", ""))
}

func slugify(title string) string {
	return nonSlugRe.ReplaceAllString(strings.ToLower(title), "-")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
