package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agent-orchestration-service/internal/models"
)

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskTerminal   = errors.New("task already reached a terminal state")
	ErrTaskNotPending = errors.New("task is not pending")
	ErrTaskNotStarted = errors.New("task has not started")
	ErrUserNotFound   = errors.New("user not found")
)

// Repository is the gorm-backed store for tasks, users and agent artifacts.
// Any error other than the sentinels above is reported as a PersistenceFault.
type Repository struct {
	DB *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{DB: db}
}

// Migrate creates or updates every table.
func (r *Repository) Migrate() error {
	if err := r.DB.AutoMigrate(AllModels()...); err != nil {
		return fault("migrate", err)
	}
	return nil
}

func fault(op string, err error) error {
	return models.NewError(models.KindPersistenceFault, op, err)
}

// ---- tasks ----

func (r *Repository) CreateTask(ctx context.Context, task *AgentTask) error {
	if err := r.DB.WithContext(ctx).Create(task).Error; err != nil {
		return fault("create task", err)
	}
	return nil
}

// CreateTasks inserts several tasks atomically.
func (r *Repository) CreateTasks(ctx context.Context, tasks []AgentTask) error {
	if len(tasks) == 0 {
		return nil
	}
	if err := r.DB.WithContext(ctx).Create(&tasks).Error; err != nil {
		return fault("create tasks", err)
	}
	return nil
}

func (r *Repository) GetTask(ctx context.Context, id string) (*AgentTask, error) {
	var task AgentTask
	if err := r.DB.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fault("get task", err)
	}
	return &task, nil
}

// StartPendingTask moves a Pending task to InProgress and records owner as the process
// running it.
func (r *Repository) StartPendingTask(ctx context.Context, id, owner string, startedAt time.Time) error {
	res := r.DB.WithContext(ctx).Model(&AgentTask{}).
		Where("id = ? AND status IN ?", id, models.SourcesOf(models.StatusInProgress)).
		Updates(map[string]interface{}{"status": string(models.StatusInProgress), "owner": owner, "started_at": startedAt})
	if res.Error != nil {
		return fault("start pending task", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetTask(ctx, id); err != nil {
			return err
		}
		return ErrTaskNotPending
	}
	return nil
}

// FinishTask writes a terminal status. The update only applies to InProgress tasks, so a
// Completed or Failed row never changes again and a Pending row must be started first.
func (r *Repository) FinishTask(ctx context.Context, id string, status models.Status, output, errMsg string, completedAt time.Time) error {
	if !status.IsTerminal() {
		return fault("finish task", errors.New("finish requires a terminal status, got "+string(status)))
	}
	res := r.DB.WithContext(ctx).Model(&AgentTask{}).
		Where("id = ? AND status IN ?", id, models.SourcesOf(status)).
		Updates(map[string]interface{}{
			"status":       string(status),
			"output":       output,
			"error":        errMsg,
			"completed_at": completedAt,
		})
	if res.Error != nil {
		return fault("finish task", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := r.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == string(models.StatusPending) {
			return ErrTaskNotStarted
		}
		return ErrTaskTerminal
	}
	return nil
}

// FailInterrupted marks every InProgress row started by owner as Failed. It runs before
// that owner starts dispatching, so any such row died with its previous process. Rows of
// other owners sharing the database are left alone.
func (r *Repository) FailInterrupted(ctx context.Context, owner, reason string, at time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&AgentTask{}).
		Where("status IN ? AND owner = ?", models.SourcesOf(models.StatusFailed), owner).
		Updates(map[string]interface{}{
			"status":       string(models.StatusFailed),
			"error":        reason,
			"completed_at": at,
		})
	if res.Error != nil {
		return 0, fault("reconcile interrupted tasks", res.Error)
	}
	return res.RowsAffected, nil
}

// DuePendingTasks returns Pending tasks whose scheduled time has passed, oldest first.
func (r *Repository) DuePendingTasks(ctx context.Context, now time.Time, limit int) ([]AgentTask, error) {
	var tasks []AgentTask
	err := r.DB.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", string(models.StatusPending), now).
		Order("scheduled_at ASC").Limit(limit).Find(&tasks).Error
	if err != nil {
		return nil, fault("list due pending tasks", err)
	}
	return tasks, nil
}

// TaskWithUser is an AgentTask joined with its owner's display name.
type TaskWithUser struct {
	AgentTask `gorm:"embedded"`
	UserName  string `json:"user_name"`
}

// RecentTasksByAgent returns the newest tasks for an agent type.
func (r *Repository) RecentTasksByAgent(ctx context.Context, agentType string, limit int) ([]TaskWithUser, error) {
	var rows []TaskWithUser
	err := r.DB.WithContext(ctx).Model(&AgentTask{}).
		Select("agent_tasks.*, users.name AS user_name").
		Joins("LEFT JOIN users ON users.id = agent_tasks.user_id").
		Where("agent_tasks.agent_type = ?", agentType).
		Order("agent_tasks.created_at DESC").Order("agent_tasks.id DESC").
		Limit(limit).Scan(&rows).Error
	if err != nil {
		return nil, fault("list recent tasks", err)
	}
	return rows, nil
}

// TasksByUser returns the newest tasks owned by a user.
func (r *Repository) TasksByUser(ctx context.Context, userID string, limit int) ([]AgentTask, error) {
	var tasks []AgentTask
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").Limit(limit).Find(&tasks).Error
	if err != nil {
		return nil, fault("list user tasks", err)
	}
	return tasks, nil
}

// CompletedTasksByUser returns the user's newest completed tasks by completion time.
func (r *Repository) CompletedTasksByUser(ctx context.Context, userID string, limit int) ([]AgentTask, error) {
	var tasks []AgentTask
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, string(models.StatusCompleted)).
		Order("completed_at DESC").Limit(limit).Find(&tasks).Error
	if err != nil {
		return nil, fault("list completed tasks", err)
	}
	return tasks, nil
}

// ---- users ----

func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	if err := r.DB.WithContext(ctx).Create(user).Error; err != nil {
		return fault("create user", err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	if err := r.DB.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fault("get user", err)
	}
	return &user, nil
}

// VerifiedUsers lists users eligible for scheduled dispatches.
func (r *Repository) VerifiedUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := r.DB.WithContext(ctx).Where("verified = ?", true).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fault("list verified users", err)
	}
	return users, nil
}

// ---- solver artifacts ----

// UpsertProblems inserts catalog entries, updating existing ones by external id.
func (r *Repository) UpsertProblems(ctx context.Context, problems []Problem) error {
	if len(problems) == 0 {
		return nil
	}
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "slug", "difficulty", "category", "description"}),
	}).Create(&problems).Error
	if err != nil {
		return fault("upsert problems", err)
	}
	return nil
}

// RecentSolutions returns the user's newest solutions with their problems loaded.
func (r *Repository) RecentSolutions(ctx context.Context, userID string, limit int) ([]Solution, error) {
	var solutions []Solution
	err := r.DB.WithContext(ctx).Preload("Problem").Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").Limit(limit).Find(&solutions).Error
	if err != nil {
		return nil, fault("list recent solutions", err)
	}
	return solutions, nil
}

// SolvedProblemIDs returns every problem the user already has a solution for.
func (r *Repository) SolvedProblemIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&Solution{}).Where("user_id = ?", userID).
		Distinct().Pluck("problem_id", &ids).Error
	if err != nil {
		return nil, fault("list solved problems", err)
	}
	return ids, nil
}

// Problems returns the whole catalog ordered by external id.
func (r *Repository) Problems(ctx context.Context) ([]Problem, error) {
	var problems []Problem
	if err := r.DB.WithContext(ctx).Order("external_id ASC").Find(&problems).Error; err != nil {
		return nil, fault("list problems", err)
	}
	return problems, nil
}

// UnsolvedProblems returns catalog entries the user has not solved, ordered by external id.
func (r *Repository) UnsolvedProblems(ctx context.Context, userID string) ([]Problem, error) {
	var problems []Problem
	solved := r.DB.Model(&Solution{}).Select("problem_id").Where("user_id = ?", userID)
	err := r.DB.WithContext(ctx).Where("id NOT IN (?)", solved).
		Order("external_id ASC").Find(&problems).Error
	if err != nil {
		return nil, fault("list unsolved problems", err)
	}
	return problems, nil
}

func (r *Repository) CreateSolution(ctx context.Context, solution *Solution) error {
	if err := r.DB.WithContext(ctx).Omit("Problem").Create(solution).Error; err != nil {
		return fault("create solution", err)
	}
	return nil
}

func (r *Repository) SetSolutionRepoPath(ctx context.Context, id, path string) error {
	err := r.DB.WithContext(ctx).Model(&Solution{}).Where("id = ?", id).Update("repo_path", path).Error
	if err != nil {
		return fault("update solution repo path", err)
	}
	return nil
}

func (r *Repository) CountSolutions(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&Solution{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, fault("count solutions", err)
	}
	return n, nil
}

// ---- contributor artifacts ----

// UpsertProject stores a discovered project keyed by full name and returns the stored row.
func (r *Repository) UpsertProject(ctx context.Context, project *Project) (*Project, error) {
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "full_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "language", "stars", "forks", "open_issues", "url", "last_analyzed",
		}),
	}).Create(project).Error
	if err != nil {
		return nil, fault("upsert project", err)
	}
	var stored Project
	if err := r.DB.WithContext(ctx).First(&stored, "full_name = ?", project.FullName).Error; err != nil {
		return nil, fault("reload project", err)
	}
	return &stored, nil
}

// ContributedProjectNames returns the full names of every project ever assigned to the user.
func (r *Repository) ContributedProjectNames(ctx context.Context, userID string) ([]string, error) {
	var names []string
	err := r.DB.WithContext(ctx).Model(&Contribution{}).
		Joins("JOIN projects ON projects.id = contributions.project_id").
		Where("contributions.user_id = ?", userID).
		Distinct().Pluck("projects.full_name", &names).Error
	if err != nil {
		return nil, fault("list contributed projects", err)
	}
	return names, nil
}

func (r *Repository) CreateContribution(ctx context.Context, contribution *Contribution) error {
	if err := r.DB.WithContext(ctx).Omit("Project").Create(contribution).Error; err != nil {
		return fault("create contribution", err)
	}
	return nil
}

// ---- profile artifacts ----

func (r *Repository) CreateProfileAnalysis(ctx context.Context, analysis *ProfileAnalysis) error {
	if err := r.DB.WithContext(ctx).Create(analysis).Error; err != nil {
		return fault("create profile analysis", err)
	}
	return nil
}
