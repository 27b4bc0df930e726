package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"agent-orchestration-service/internal/collaborators/llm"
	"agent-orchestration-service/internal/models"
	"agent-orchestration-service/internal/orchestrator/db"
)

// ProfileStore is the persistence the profile agent needs.
type ProfileStore interface {
	GetUser(ctx context.Context, id string) (*db.User, error)
	RecentSolutions(ctx context.Context, userID string, limit int) ([]db.Solution, error)
	CompletedTasksByUser(ctx context.Context, userID string, limit int) ([]db.AgentTask, error)
	CreateProfileAnalysis(ctx context.Context, a *db.ProfileAnalysis) error
	CreateTasks(ctx context.Context, tasks []db.AgentTask) error
}

// Enhancement is a profile improvement that becomes a follow-up task.
type Enhancement struct {
	Type        string   `json:"type"`
	Priority    int      `json:"priority"`
	Description string   `json:"description"`
	ActionItems []string `json:"actionItems"`
}

var enhancementCatalog = []Enhancement{
	{"README_OPTIMIZATION", 8, "Optimize GitHub profile README with stats, projects, and skills showcase", []string{
		"Add GitHub stats widgets", "Showcase top projects with descriptions",
		"Include technology stack and skills", "Add contact information and social links"}},
	{"PORTFOLIO_GENERATION", 9, "Create a professional portfolio website showcasing projects and skills", []string{
		"Design responsive portfolio layout", "Integrate GitHub projects automatically",
		"Add LeetCode progress visualization", "Include testimonials and achievements"}},
	{"SKILL_ASSESSMENT", 7, "Assess current skills and identify learning gaps", []string{
		"Analyze code quality and patterns", "Identify trending technologies to learn",
		"Suggest certification paths", "Recommend practice projects"}},
	{"NETWORKING_SUGGESTIONS", 6, "Provide networking opportunities and community engagement suggestions", []string{
		"Identify relevant tech communities", "Suggest conferences and meetups",
		"Recommend open source projects to follow", "Find potential mentors in the field"}},
	{"LEARNING_PATH", 8, "Create personalized learning roadmap based on career goals", []string{
		"Define short-term and long-term goals", "Create structured learning schedule",
		"Identify key projects to build", "Set measurable milestones"}},
}

// Enhancements returns the catalog ordered by priority, highest first. Equal priorities
// keep catalog order.
func Enhancements() []Enhancement {
	out := append([]Enhancement(nil), enhancementCatalog...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

const profileSystemPrompt = "You are a senior technical recruiter and career coach who helps developers " +
	"optimize their profiles for career growth."

const profileInputSchema = `{"type": "object", "additionalProperties": false}`

type ProfileOptions struct {
	Active         bool
	Schedule       string
	FollowUps      int
	FollowUpWindow time.Duration
}

// ProfileAnalysisAgent assesses the user's own activity and schedules follow-ups. It also
// executes those follow-ups, recognised by a task kind naming an enhancement.
type ProfileAnalysisAgent struct {
	opts      ProfileOptions
	store     ProfileStore
	generator llm.ContentGenerator
	log       logrus.FieldLogger
	now       func() time.Time
	jitter    func(max time.Duration) time.Duration
}

func NewProfileAnalysisAgent(opts ProfileOptions, store ProfileStore, gen llm.ContentGenerator, log logrus.FieldLogger) *ProfileAnalysisAgent {
	if opts.FollowUps <= 0 {
		opts.FollowUps = 3
	}
	if opts.FollowUpWindow <= 0 {
		opts.FollowUpWindow = 7 * 24 * time.Hour
	}
	return &ProfileAnalysisAgent{
		opts:      opts,
		store:     store,
		generator: gen,
		log:       log,
		now:       time.Now,
		jitter: func(max time.Duration) time.Duration {
			return time.Duration(rand.Int64N(int64(max)))
		},
	}
}

func (a *ProfileAnalysisAgent) Descriptor() models.AgentDescriptor {
	return models.AgentDescriptor{
		Type:        TypeProfile,
		Name:        "Profile Enhancer",
		Description: "Analyzes and suggests improvements for developer profiles and portfolios",
		Schedule:    a.opts.Schedule,
		Active:      a.opts.Active,
		InputSchema: profileInputSchema,
	}
}

func (a *ProfileAnalysisAgent) Execute(ctx context.Context, task models.Task) (models.Result, error) {
	user, err := a.store.GetUser(ctx, task.UserID)
	if errors.Is(err, db.ErrUserNotFound) {
		return models.Failed(models.KindUserNotFound, "user "+task.UserID+" not found"), nil
	}
	if err != nil {
		return models.Result{}, err
	}
	if task.Kind != "" && task.Kind != TypeProfile {
		return a.followUp(ctx, task, user)
	}
	return a.assess(ctx, task, user)
}

func (a *ProfileAnalysisAgent) assess(ctx context.Context, task models.Task, user *db.User) (models.Result, error) {
	solutions, err := a.store.RecentSolutions(ctx, user.ID, 20)
	if err != nil {
		return models.Result{}, err
	}
	completed, err := a.store.CompletedTasksByUser(ctx, user.ID, 30)
	if err != nil {
		return models.Result{}, err
	}
	now := a.now().UTC()

	analysis, err := a.generator.Generate(ctx, llm.Prompt{
		System:      profileSystemPrompt,
		User:        profilePrompt(user, summarizeSolutions(solutions, now), summarizeActivity(completed, now), now),
		Temperature: 0.3,
	})
	if err != nil {
		return models.Result{}, fmt.Errorf("generate profile analysis: %w", err)
	}

	score := extractScore(analysis)
	strengths := extractStrengths(analysis)
	improvements := extractImprovements(analysis)
	strengthsJSON, _ := json.Marshal(strengths)
	improvementsJSON, _ := json.Marshal(improvements)

	record := &db.ProfileAnalysis{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		TaskID:       task.ID,
		Kind:         "assessment",
		Score:        score,
		Strengths:    string(strengthsJSON),
		Improvements: string(improvementsJSON),
		Analysis:     analysis,
		CreatedAt:    now,
	}
	if err := a.store.CreateProfileAnalysis(ctx, record); err != nil {
		return models.Result{}, err
	}

	followUps, err := a.scheduleFollowUps(ctx, user.ID, now)
	if err != nil {
		return models.Result{}, err
	}
	return models.Succeeded(map[string]any{
		"analysisId":       record.ID,
		"profileScore":     score,
		"strengths":        strengths,
		"improvements":     improvements,
		"enhancementTasks": followUps,
	}), nil
}

// scheduleFollowUps writes the top enhancements as Pending tasks at random times within
// the follow-up window.
func (a *ProfileAnalysisAgent) scheduleFollowUps(ctx context.Context, userID string, now time.Time) ([]map[string]any, error) {
	top := Enhancements()
	if len(top) > a.opts.FollowUps {
		top = top[:a.opts.FollowUps]
	}
	rows := make([]db.AgentTask, 0, len(top))
	summary := make([]map[string]any, 0, len(top))
	for _, e := range top {
		input, err := json.Marshal(map[string]any{
			"description": e.Description,
			"actionItems": e.ActionItems,
			"priority":    e.Priority,
		})
		if err != nil {
			return nil, fmt.Errorf("encode follow-up input: %w", err)
		}
		at := now.Add(a.jitter(a.opts.FollowUpWindow))
		row := db.AgentTask{
			ID:          uuid.NewString(),
			AgentType:   TypeProfile,
			UserID:      userID,
			Kind:        e.Type,
			Input:       string(input),
			Status:      string(models.StatusPending),
			ScheduledAt: &at,
			CreatedAt:   now,
		}
		rows = append(rows, row)
		summary = append(summary, map[string]any{
			"id":          row.ID,
			"type":        e.Type,
			"description": e.Description,
			"actionItems": e.ActionItems,
			"priority":    e.Priority,
			"scheduledAt": at,
		})
	}
	if err := a.store.CreateTasks(ctx, rows); err != nil {
		return nil, err
	}
	return summary, nil
}

func (a *ProfileAnalysisAgent) followUp(ctx context.Context, task models.Task, user *db.User) (models.Result, error) {
	description := inputString(task.Input, "description")
	items := inputStrings(task.Input, "actionItems")
	if description == "" {
		for _, e := range enhancementCatalog {
			if e.Type == task.Kind {
				description, items = e.Description, e.ActionItems
			}
		}
	}
	if description == "" {
		return models.Failed(models.KindInvalidInput, "unknown follow-up kind "+task.Kind), nil
	}

	prompt := fmt.Sprintf(`Create a focused, step-by-step plan for this developer profile improvement.

**Developer:** %s
**Goal:** %s
**Action items:**
- %s

Keep each step concrete and achievable within one week.`, user.Name, description, strings.Join(items, "\n- "))
	plan, err := a.generator.Generate(ctx, llm.Prompt{System: profileSystemPrompt, User: prompt, Temperature: 0.3})
	if err != nil {
		return models.Result{}, fmt.Errorf("generate %s plan: %w", task.Kind, err)
	}

	record := &db.ProfileAnalysis{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		TaskID:       task.ID,
		Kind:         "followup",
		Strengths:    "[]",
		Improvements: "[]",
		Analysis:     plan,
		CreatedAt:    a.now().UTC(),
	}
	if err := a.store.CreateProfileAnalysis(ctx, record); err != nil {
		return models.Result{}, err
	}
	return models.Succeeded(map[string]any{
		"analysisId":  record.ID,
		"enhancement": task.Kind,
	}), nil
}

type solutionStats struct {
	Total, Easy, Medium, Hard int
	LastActivity              string
	Consistency               string
}

func summarizeSolutions(solutions []db.Solution, now time.Time) solutionStats {
	s := solutionStats{Total: len(solutions), LastActivity: "Never"}
	recent := 0
	for _, sol := range solutions {
		switch strings.ToLower(sol.Problem.Difficulty) {
		case "easy":
			s.Easy++
		case "medium":
			s.Medium++
		case "hard":
			s.Hard++
		}
		if sol.CreatedAt.After(now.Add(-30 * 24 * time.Hour)) {
			recent++
		}
	}
	if len(solutions) > 0 {
		days := int(now.Sub(solutions[0].CreatedAt).Hours() / 24)
		s.LastActivity = fmt.Sprintf("%d days ago", days)
	}
	s.Consistency = fmt.Sprintf("%d problems in last 30 days", recent)
	return s
}

type activityStats struct {
	Total          int
	RecentActivity string
	ByKind         map[string]int
}

func summarizeActivity(tasks []db.AgentTask, now time.Time) activityStats {
	s := activityStats{Total: len(tasks), ByKind: map[string]int{}}
	recent := 0
	for _, t := range tasks {
		s.ByKind[t.Kind]++
		if t.CompletedAt != nil && t.CompletedAt.After(now.Add(-7*24*time.Hour)) {
			recent++
		}
	}
	s.RecentActivity = fmt.Sprintf("%d tasks completed in last week", recent)
	return s
}

func profilePrompt(u *db.User, ls solutionStats, as activityStats, now time.Time) string {
	connected := "No"
	if u.GithubUsername != "" {
		connected = "Yes"
	}
	kinds, _ := json.Marshal(as.ByKind)
	return fmt.Sprintf(`Analyze this developer's profile and provide a comprehensive assessment:

**Developer Profile:**
- Name: %s
- GitHub Connected: %s
- Account Age: %d days

**LeetCode Progress:**
- Total Problems Solved: %d
- Easy: %d, Medium: %d, Hard: %d
- Most Recent Activity: %s
- Consistency: %s

**Activity Pattern:**
- Total Completed Tasks: %d
- Recent Activity: %s
- Task Types: %s

Provide:
1. Overall profile score (1-100)
2. Top 3 strengths
3. Top 5 areas for improvement
4. Specific recommendations for profile enhancement

Focus on actionable insights that will help improve their developer profile and career prospects.`,
		u.Name, connected, int(now.Sub(u.CreatedAt).Hours()/24),
		ls.Total, ls.Easy, ls.Medium, ls.Hard, ls.LastActivity, ls.Consistency,
		as.Total, as.RecentActivity, kinds)
}
