package db

import (
	"time"
)

// AgentTask is the persisted audit record of one dispatch attempt. Rows are never deleted.
type AgentTask struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	AgentType   string     `json:"agent_type" gorm:"index;size:64"`
	UserID      string     `json:"user_id" gorm:"index;size:64"`
	Kind        string     `json:"kind" gorm:"size:64"`
	Owner       string     `json:"owner,omitempty" gorm:"index;size:64"` // process role that started the task
	Input       string     `json:"input" gorm:"type:text"`
	Status      string     `json:"status" gorm:"index;size:16"` // Pending, InProgress, Completed, Failed
	ScheduledAt *time.Time `json:"scheduled_at,omitempty" gorm:"index"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Output      string     `json:"output,omitempty" gorm:"type:text"`
	Error       string     `json:"error,omitempty" gorm:"type:text"`
	CreatedAt   time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (AgentTask) TableName() string { return "agent_tasks" }

// User is the subset of the account record the orchestrator reads.
type User struct {
	ID             string    `json:"id" gorm:"primaryKey;size:64"`
	Name           string    `json:"name"`
	Email          string    `json:"email" gorm:"uniqueIndex;size:191"`
	Verified       bool      `json:"verified" gorm:"index"`
	GithubUsername string    `json:"github_username,omitempty"`
	GithubToken    string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Problem is a practice item in the solver catalog.
type Problem struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	ExternalID  int    `json:"external_id" gorm:"uniqueIndex"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Difficulty  string `json:"difficulty" gorm:"index;size:16"`
	Category    string `json:"category"`
	Description string `json:"description" gorm:"type:text"`
}

// Solution is the solver agent's artifact.
type Solution struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	UserID      string    `json:"user_id" gorm:"index;size:64"`
	ProblemID   string    `json:"problem_id" gorm:"index;size:36"`
	TaskID      string    `json:"task_id" gorm:"size:36"`
	Content     string    `json:"content" gorm:"type:text"`
	Language    string    `json:"language"`
	Complexity  string    `json:"complexity" gorm:"type:text"`
	Explanation string    `json:"explanation" gorm:"type:text"`
	RepoPath    string    `json:"repo_path,omitempty"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
	Problem     Problem   `json:"problem" gorm:"foreignKey:ProblemID"`
}

// Project is an open-source repository seen through discovery.
type Project struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	FullName     string    `json:"full_name" gorm:"uniqueIndex;size:191"`
	Name         string    `json:"name"`
	Description  string    `json:"description" gorm:"type:text"`
	Language     string    `json:"language"`
	Stars        int       `json:"stars"`
	Forks        int       `json:"forks"`
	OpenIssues   int       `json:"open_issues"`
	URL          string    `json:"url"`
	Difficulty   string    `json:"difficulty"`
	LastAnalyzed time.Time `json:"last_analyzed"`
}

// Contribution is the contributor agent's artifact.
type Contribution struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	UserID      string    `json:"user_id" gorm:"index;size:64"`
	ProjectID   string    `json:"project_id" gorm:"index;size:36"`
	TaskID      string    `json:"task_id" gorm:"size:36"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description" gorm:"type:text"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	Project     Project   `json:"project" gorm:"foreignKey:ProjectID"`
}

// ProfileAnalysis is the profile agent's artifact. Kind is "assessment" for the weekly
// analysis and "followup" for a plan produced by a follow-up task.
type ProfileAnalysis struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	UserID       string    `json:"user_id" gorm:"index;size:64"`
	TaskID       string    `json:"task_id" gorm:"size:36"`
	Kind         string    `json:"kind" gorm:"size:32"`
	Score        int       `json:"score"`
	Strengths    string    `json:"strengths" gorm:"type:text"`    // JSON array
	Improvements string    `json:"improvements" gorm:"type:text"` // JSON array
	Analysis     string    `json:"analysis" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}

// AllModels lists every table the service migrates.
func AllModels() []interface{} {
	return []interface{}{
		&User{}, &AgentTask{}, &Problem{}, &Solution{}, &Project{}, &Contribution{}, &ProfileAnalysis{},
	}
}
