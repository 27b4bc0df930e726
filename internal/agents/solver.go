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

// SolverStore is the persistence the solver agent needs.
type SolverStore interface {
	GetUser(ctx context.Context, id string) (*db.User, error)
	RecentSolutions(ctx context.Context, userID string, limit int) ([]db.Solution, error)
	SolvedProblemIDs(ctx context.Context, userID string) ([]string, error)
	Problems(ctx context.Context) ([]db.Problem, error)
	CreateSolution(ctx context.Context, s *db.Solution) error
	SetSolutionRepoPath(ctx context.Context, id, path string) error
}

// CodeHost receives generated solutions.
type CodeHost interface {
	Publish(ctx context.Context, token, owner, repo, path, message, content string) (string, error)
}

const solverInputSchema = `{
  "type": "object",
  "properties": {
    "difficulty": {"type": "string", "enum": ["Easy", "Medium", "Hard"]}
  },
  "additionalProperties": false
}`

const solverSystemPrompt = "You are an expert software engineer who creates educational content for LeetCode problems. " +
	"Provide clear, well-structured solutions with detailed explanations."

// SolverOptions configures a SolverAgent.
type SolverOptions struct {
	Active        bool
	Schedule      string
	HistoryWindow int
	Relay         bool
	RelayRepo     string
}

// SolverAgent picks the user's next practice problem and generates a worked solution.
type SolverAgent struct {
	opts      SolverOptions
	store     SolverStore
	generator llm.ContentGenerator
	codeHost  CodeHost // nil disables relay
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewSolverAgent(opts SolverOptions, store SolverStore, gen llm.ContentGenerator, host CodeHost, log logrus.FieldLogger) *SolverAgent {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	if opts.RelayRepo == "" {
		opts.RelayRepo = "leetcode-solutions"
	}
	return &SolverAgent{opts: opts, store: store, generator: gen, codeHost: host, log: log, now: time.Now}
}

func (a *SolverAgent) Descriptor() models.AgentDescriptor {
	return models.AgentDescriptor{
		Type:        TypeSolver,
		Name:        "LeetCode Solver",
		Description: "Generates solutions for LeetCode problems with detailed explanations",
		Schedule:    a.opts.Schedule,
		Active:      a.opts.Active,
		InputSchema: solverInputSchema,
	}
}

func (a *SolverAgent) Execute(ctx context.Context, task models.Task) (models.Result, error) {
	user, err := a.store.GetUser(ctx, task.UserID)
	if errors.Is(err, db.ErrUserNotFound) {
		return models.Failed(models.KindUserNotFound, "user "+task.UserID+" not found"), nil
	}
	if err != nil {
		return models.Result{}, err
	}

	problem, target, found, err := a.selectProblem(ctx, task)
	if err != nil {
		return models.Result{}, err
	}
	if !found {
		return models.Failed(models.KindNoSuitableItem, fmt.Sprintf("no unsolved problem at or above %s", target)), nil
	}

	content, err := a.generator.Generate(ctx, llm.Prompt{
		System:      solverSystemPrompt,
		User:        solverPrompt(problem),
		Temperature: 0.3,
	})
	if err != nil {
		return models.Result{}, fmt.Errorf("generate solution for %q: %w", problem.Title, err)
	}

	solution := &db.Solution{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		ProblemID:   problem.ID,
		TaskID:      task.ID,
		Content:     content,
		Language:    "python",
		Complexity:  extractComplexity(content),
		Explanation: extractExplanation(content),
		CreatedAt:   a.now().UTC(),
	}
	if err := a.store.CreateSolution(ctx, solution); err != nil {
		return models.Result{}, err
	}

	output := map[string]any{
		"problemId":    problem.ID,
		"problemTitle": problem.Title,
		"difficulty":   problem.Difficulty,
		"solutionId":   solution.ID,
	}
	if path := a.relay(ctx, user, problem, content); path != "" {
		if err := a.store.SetSolutionRepoPath(ctx, solution.ID, path); err != nil {
			return models.Result{}, err
		}
		output["repoPath"] = path
	}
	return models.Succeeded(output), nil
}

// selectProblem applies difficulty progression over the recent history, or the tier
// pinned by the task input.
func (a *SolverAgent) selectProblem(ctx context.Context, task models.Task) (db.Problem, selection.Tier, bool, error) {
	target, pinned := selection.ParseTier(inputString(task.Input, "difficulty"))
	if !pinned {
		recent, err := a.store.RecentSolutions(ctx, task.UserID, a.opts.HistoryWindow)
		if err != nil {
			return db.Problem{}, 0, false, err
		}
		tiers := make([]selection.Tier, 0, len(recent))
		for _, s := range recent {
			if t, ok := selection.ParseTier(s.Problem.Difficulty); ok {
				tiers = append(tiers, t)
			}
		}
		target = selection.TargetTier(tiers)
	}

	solvedIDs, err := a.store.SolvedProblemIDs(ctx, task.UserID)
	if err != nil {
		return db.Problem{}, target, false, err
	}
	solved := make(map[string]bool, len(solvedIDs))
	for _, id := range solvedIDs {
		solved[id] = true
	}

	catalog, err := a.store.Problems(ctx)
	if err != nil {
		return db.Problem{}, target, false, err
	}
	byID := make(map[string]db.Problem, len(catalog))
	items := make([]selection.Item, 0, len(catalog))
	for _, p := range catalog {
		t, ok := selection.ParseTier(p.Difficulty)
		if !ok {
			continue
		}
		byID[p.ID] = p
		items = append(items, selection.Item{ID: p.ID, ExternalID: p.ExternalID, Tier: t})
	}

	item, ok := selection.PickNext(items, solved, target)
	if !ok {
		return db.Problem{}, target, false, nil
	}
	return byID[item.ID], target, true, nil
}

// relay publishes the solution to the user's repository. Failures are logged and
// reported as an empty path.
func (a *SolverAgent) relay(ctx context.Context, user *db.User, problem db.Problem, content string) string {
	if !a.opts.Relay || a.codeHost == nil || user.GithubToken == "" || user.GithubUsername == "" {
		return ""
	}
	path := fmt.Sprintf("leetcode/%s/%s/solution.md", a.now().UTC().Format("2006-01-02"), slugify(problem.Title))
	stored, err := a.codeHost.Publish(ctx, user.GithubToken, user.GithubUsername, a.opts.RelayRepo, path,
		"Add solution for "+problem.Title, content)
	if err != nil {
		a.log.WithFields(logrus.Fields{
			"user_id": user.ID,
			"problem": problem.Slug,
		}).WithError(err).Warn("solution relay failed, keeping local copy only")
		return ""
	}
	return stored
}

func solverPrompt(p db.Problem) string {
	return fmt.Sprintf(`Generate a comprehensive solution for this LeetCode problem:

**Problem:** %s
**Difficulty:** %s
**Category:** %s
**Description:** %s

Please provide:
1. A clean, well-commented solution in Python
2. Time and space complexity analysis
3. Step-by-step explanation of the approach
4. Alternative approaches if applicable
5. Key insights and patterns

Format the response as a markdown document suitable for a GitHub repository.`,
		p.Title, p.Difficulty, p.Category, p.Description)
}
