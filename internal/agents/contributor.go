package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"agent-orchestration-service/internal/collaborators/llm"
	"agent-orchestration-service/internal/models"
	"agent-orchestration-service/internal/orchestrator/db"
	"agent-orchestration-service/internal/selection"
)

// WarningDuplicateSuggestion marks a contributor result that re-suggests a project the
// user was already assigned.
const WarningDuplicateSuggestion = "DuplicateSuggestion"

// ContributorStore is the persistence the contributor agent needs.
type ContributorStore interface {
	GetUser(ctx context.Context, id string) (*db.User, error)
	ContributedProjectNames(ctx context.Context, userID string) ([]string, error)
	UpsertProject(ctx context.Context, p *db.Project) (*db.Project, error)
	CreateContribution(ctx context.Context, c *db.Contribution) error
}

// ProjectDiscovery searches for candidate repositories.
type ProjectDiscovery interface {
	Search(ctx context.Context, token, query string) ([]selection.Candidate, error)
}

const contributorInputSchema = `{
  "type": "object",
  "properties": {
    "queries": {"type": "array", "items": {"type": "string", "minLength": 1}, "minItems": 1, "maxItems": 10}
  },
  "additionalProperties": false
}`

const contributorSystemPrompt = "You are an experienced open source contributor who helps developers find " +
	"meaningful ways to contribute to projects."

type ContributorOptions struct {
	Active        bool
	Schedule      string
	Queries       []string
	MaxCandidates int
	Bands         selection.Bands
}

// ContributorAgent finds an open-source project for the user and plans a contribution.
type ContributorAgent struct {
	opts      ContributorOptions
	store     ContributorStore
	discovery ProjectDiscovery
	generator llm.ContentGenerator
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewContributorAgent(opts ContributorOptions, store ContributorStore, discovery ProjectDiscovery, gen llm.ContentGenerator, log logrus.FieldLogger) *ContributorAgent {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 20
	}
	return &ContributorAgent{opts: opts, store: store, discovery: discovery, generator: gen, log: log, now: time.Now}
}

func (a *ContributorAgent) Descriptor() models.AgentDescriptor {
	return models.AgentDescriptor{
		Type:        TypeContributor,
		Name:        "Open Source Contributor",
		Description: "Finds and contributes to open source projects",
		Schedule:    a.opts.Schedule,
		Active:      a.opts.Active,
		InputSchema: contributorInputSchema,
	}
}

func (a *ContributorAgent) Execute(ctx context.Context, task models.Task) (models.Result, error) {
	user, err := a.store.GetUser(ctx, task.UserID)
	if errors.Is(err, db.ErrUserNotFound) {
		return models.Failed(models.KindUserNotFound, "user "+task.UserID+" not found"), nil
	}
	if err != nil {
		return models.Result{}, err
	}
	if user.GithubToken == "" {
		return models.Failed(models.KindUserNotFound, "user "+task.UserID+" has not connected GitHub"), nil
	}

	queries := inputStrings(task.Input, "queries")
	if len(queries) == 0 {
		queries = a.opts.Queries
	}
	candidates, err := a.discover(ctx, user.GithubToken, queries)
	if err != nil {
		return models.Result{}, err
	}
	if len(candidates) == 0 {
		return models.Failed(models.KindNoEligibleProject, "discovery returned no candidate projects"), nil
	}

	contributed, err := a.store.ContributedProjectNames(ctx, user.ID)
	if err != nil {
		return models.Result{}, err
	}
	excluded := make(map[string]bool, len(contributed))
	for _, name := range contributed {
		excluded[name] = true
	}

	ranking, _ := a.opts.Bands.Rank(candidates, excluded)
	picked := ranking.Candidate
	logger := a.log.WithFields(logrus.Fields{"task_id": task.ID, "user_id": user.ID, "project": picked.FullName})
	if ranking.Fallback {
		logger.Warn("every discovered project was already assigned, re-suggesting the first candidate")
	}

	content, err := a.generator.Generate(ctx, llm.Prompt{
		System:      contributorSystemPrompt,
		User:        contributorPrompt(picked),
		Temperature: 0.7,
	})
	if err != nil {
		return models.Result{}, fmt.Errorf("generate contribution for %s: %w", picked.FullName, err)
	}

	project, err := a.store.UpsertProject(ctx, &db.Project{
		ID:           uuid.NewString(),
		FullName:     picked.FullName,
		Name:         picked.Name,
		Description:  picked.Description,
		Language:     picked.Language,
		Stars:        picked.Stars,
		Forks:        picked.Forks,
		OpenIssues:   picked.OpenIssues,
		URL:          picked.URL,
		Difficulty:   selection.ProjectDifficulty(picked.Stars),
		LastAnalyzed: a.now().UTC(),
	})
	if err != nil {
		return models.Result{}, err
	}

	contribution := &db.Contribution{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		ProjectID:   project.ID,
		TaskID:      task.ID,
		Type:        extractContributionType(content),
		Title:       extractTitle(content),
		Description: content,
		Status:      "Planned",
		CreatedAt:   a.now().UTC(),
	}
	if err := a.store.CreateContribution(ctx, contribution); err != nil {
		return models.Result{}, err
	}

	output := map[string]any{
		"projectName":       picked.FullName,
		"projectScore":      ranking.Score,
		"contributionType":  contribution.Type,
		"contributionTitle": contribution.Title,
		"contributionId":    contribution.ID,
	}
	res := models.Succeeded(output)
	if ranking.Fallback {
		output["warning"] = WarningDuplicateSuggestion
		res.Warning = WarningDuplicateSuggestion
	}
	return res, nil
}

// discover runs every query, tolerating individual failures. It fails only when all
// queries failed; the error kind is Timeout when every failure was a timeout.
func (a *ContributorAgent) discover(ctx context.Context, token string, queries []string) ([]selection.Candidate, error) {
	var (
		all      []selection.Candidate
		failures []error
		timeouts int
	)
	for _, q := range queries {
		found, err := a.discovery.Search(ctx, token, q)
		if err != nil {
			a.log.WithField("query", q).WithError(err).Warn("project discovery query failed")
			failures = append(failures, err)
			if models.KindOf(err) == models.KindTimeout {
				timeouts++
			}
			continue
		}
		all = append(all, found...)
	}
	if len(queries) > 0 && len(failures) == len(queries) {
		kind := models.KindCollaboratorFault
		if timeouts == len(failures) {
			kind = models.KindTimeout
		}
		return nil, models.NewError(kind, fmt.Sprintf("project discovery: all %d queries failed", len(queries)), errors.Join(failures...))
	}
	candidates := selection.Dedupe(all)
	if len(candidates) > a.opts.MaxCandidates {
		candidates = candidates[:a.opts.MaxCandidates]
	}
	return candidates, nil
}

func contributorPrompt(c selection.Candidate) string {
	return fmt.Sprintf(`Analyze this open source project and suggest a meaningful contribution:

**Project:** %s
**Description:** %s
**Language:** %s
**Stars:** %d
**Open Issues:** %d

Suggest one of the following types of contributions:
1. Bug fix
2. Feature enhancement
3. Documentation improvement
4. Test coverage improvement
5. Performance optimization

Provide:
- Contribution type
- Specific title for the contribution
- Brief description of what to implement/fix
- Why this would be valuable to the project

Keep suggestions realistic and achievable for a developer looking to contribute.`,
		c.FullName, c.Description, c.Language, c.Stars, c.OpenIssues)
}
