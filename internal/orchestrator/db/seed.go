package db

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// CatalogEntry is one problem in the YAML seed file.
type CatalogEntry struct {
	ID          int    `yaml:"id"`
	Title       string `yaml:"title"`
	Slug        string `yaml:"slug"`
	Difficulty  string `yaml:"difficulty"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
}

type catalogFile struct {
	Problems []CatalogEntry `yaml:"problems"`
}

// ParseCatalog decodes a problem catalog document.
func ParseCatalog(data []byte) ([]Problem, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse problem catalog: %w", err)
	}
	problems := make([]Problem, 0, len(file.Problems))
	seen := make(map[int]bool, len(file.Problems))
	for i, e := range file.Problems {
		if e.ID <= 0 || e.Title == "" {
			return nil, fmt.Errorf("catalog entry %d: id and title are required", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("catalog entry %d: duplicate id %d", i, e.ID)
		}
		seen[e.ID] = true
		difficulty, err := normalizeDifficulty(e.Difficulty)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %d (%s): %w", i, e.Title, err)
		}
		slug := e.Slug
		if slug == "" {
			slug = strings.ReplaceAll(strings.ToLower(e.Title), " ", "-")
		}
		problems = append(problems, Problem{
			ID:          uuid.NewString(),
			ExternalID:  e.ID,
			Title:       e.Title,
			Slug:        slug,
			Difficulty:  difficulty,
			Category:    e.Category,
			Description: e.Description,
		})
	}
	return problems, nil
}

func normalizeDifficulty(d string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "easy":
		return "Easy", nil
	case "medium":
		return "Medium", nil
	case "hard":
		return "Hard", nil
	}
	return "", fmt.Errorf("unknown difficulty %q", d)
}

// SeedCatalogFile loads the YAML catalog at path into the problems table.
// Re-seeding updates existing entries by their external id.
func (r *Repository) SeedCatalogFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read problem catalog %s: %w", path, err)
	}
	problems, err := ParseCatalog(data)
	if err != nil {
		return 0, err
	}
	if err := r.UpsertProblems(ctx, problems); err != nil {
		return 0, err
	}
	return len(problems), nil
}
