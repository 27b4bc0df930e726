package selection

import "strings"

// Candidate is a repository returned by project discovery.
type Candidate struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Stars       int    `json:"stars"`
	Forks       int    `json:"forks"`
	OpenIssues  int    `json:"open_issues"`
	URL         string `json:"url"`
}

// Signal weights.
const (
	WeightSweetSpot   = 10
	WeightSubBand     = 5
	WeightActivity    = 8
	WeightLanguage    = 5
	WeightDescription = 3
)

// Bands configures the scoring signals. Star bands are inclusive, the open-issue range
// is exclusive on both ends.
type Bands struct {
	SweetSpotMin         int
	SweetSpotMax         int
	SubBandMin           int
	SubBandMax           int
	IssuesMin            int
	IssuesMax            int
	PreferredLanguages   []string
	MinDescriptionLength int
}

// Score sums the independent signal weights for one candidate.
func (b Bands) Score(c Candidate) int {
	score := 0
	if c.Stars >= b.SweetSpotMin && c.Stars <= b.SweetSpotMax {
		score += WeightSweetSpot
	}
	if c.Stars >= b.SubBandMin && c.Stars <= b.SubBandMax {
		score += WeightSubBand
	}
	if c.OpenIssues > b.IssuesMin && c.OpenIssues < b.IssuesMax {
		score += WeightActivity
	}
	for _, lang := range b.PreferredLanguages {
		if strings.EqualFold(c.Language, lang) {
			score += WeightLanguage
			break
		}
	}
	if len(strings.TrimSpace(c.Description)) > b.MinDescriptionLength {
		score += WeightDescription
	}
	return score
}

// Dedupe drops repeated full names, keeping the first occurrence and the original order.
func Dedupe(candidates []Candidate) []Candidate {
	seen := make(map[string]bool, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := strings.ToLower(c.FullName)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// Ranking is the outcome of Rank.
type Ranking struct {
	Candidate Candidate
	Score     int
	// Fallback is set when every candidate was excluded and the first raw candidate was
	// returned instead. Such a pick may repeat an earlier assignment.
	Fallback bool
}

// Rank picks the highest-scoring candidate whose full name is not in excluded. Names are
// compared case-insensitively, as in Dedupe. Ties go to the candidate observed first. ok is false only when candidates is empty.
func (b Bands) Rank(candidates []Candidate, excluded map[string]bool) (Ranking, bool) {
	if len(candidates) == 0 {
		return Ranking{}, false
	}
	skip := make(map[string]bool, len(excluded))
	for name, ex := range excluded {
		if ex {
			skip[strings.ToLower(name)] = true
		}
	}
	best := -1
	var bestScore int
	for i, c := range candidates {
		if skip[strings.ToLower(c.FullName)] {
			continue
		}
		s := b.Score(c)
		if best == -1 || s > bestScore {
			best, bestScore = i, s
		}
	}
	if best == -1 {
		first := candidates[0]
		return Ranking{Candidate: first, Score: b.Score(first), Fallback: true}, true
	}
	return Ranking{Candidate: candidates[best], Score: bestScore}, true
}

// ProjectDifficulty buckets a repository by popularity.
func ProjectDifficulty(stars int) string {
	switch {
	case stars < 100:
		return "Beginner"
	case stars < 500:
		return "Intermediate"
	}
	return "Advanced"
}
