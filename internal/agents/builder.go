package agents

import (
	"github.com/sirupsen/logrus"

	"agent-orchestration-service/internal/collaborators/llm"
	"agent-orchestration-service/internal/config"
	"agent-orchestration-service/internal/orchestrator/db"
	"agent-orchestration-service/internal/selection"
)

// Deps are the collaborators shared by every agent.
type Deps struct {
	Store     *db.Repository
	Generator llm.ContentGenerator
	Discovery ProjectDiscovery
	CodeHost  CodeHost
	Log       logrus.FieldLogger
}

// BandsFromConfig converts the scoring section into selection bands.
func BandsFromConfig(c config.ScoringConfig) selection.Bands {
	return selection.Bands{
		SweetSpotMin:         c.SweetSpotMin,
		SweetSpotMax:         c.SweetSpotMax,
		SubBandMin:           c.SubBandMin,
		SubBandMax:           c.SubBandMax,
		IssuesMin:            c.IssuesMin,
		IssuesMax:            c.IssuesMax,
		PreferredLanguages:   c.PreferredLanguages,
		MinDescriptionLength: c.MinDescriptionLength,
	}
}

// Build constructs the agent set described by cfg, in a fixed registration order.
func Build(cfg *config.Config, deps Deps) []Agent {
	a := cfg.Agents
	return []Agent{
		NewSolverAgent(SolverOptions{
			Active:        a.Solver.Active,
			Schedule:      a.Solver.Schedule,
			HistoryWindow: a.Solver.HistoryWindow,
			Relay:         a.Solver.Relay,
			RelayRepo:     cfg.GitHub.RepoName,
		}, deps.Store, deps.Generator, deps.CodeHost, deps.Log.WithField("agent", TypeSolver)),
		NewContributorAgent(ContributorOptions{
			Active:        a.Contributor.Active,
			Schedule:      a.Contributor.Schedule,
			Queries:       cfg.GitHub.Queries,
			MaxCandidates: a.Contributor.MaxCandidates,
			Bands:         BandsFromConfig(cfg.Scoring),
		}, deps.Store, deps.Discovery, deps.Generator, deps.Log.WithField("agent", TypeContributor)),
		NewProfileAnalysisAgent(ProfileOptions{
			Active:         a.Profile.Active,
			Schedule:       a.Profile.Schedule,
			FollowUps:      a.Profile.FollowUps,
			FollowUpWindow: a.Profile.FollowUpWindow,
		}, deps.Store, deps.Generator, deps.Log.WithField("agent", TypeProfile)),
	}
}
