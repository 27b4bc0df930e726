package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"agent-orchestration-service/internal/bootstrap"
	"agent-orchestration-service/internal/models"
	"agent-orchestration-service/internal/orchestrator/db"
	"agent-orchestration-service/internal/orchestrator/services"
	gormdb "agent-orchestration-service/pkg/db"
)

// withApp builds an in-process orchestrator with timers off. Tasks it starts are owned
// by owner.
func withApp(ctx context.Context, owner string, fn func(app *bootstrap.App) error) error {
	app, err := bootstrap.New(ctx, cfg, log, bootstrap.Options{DisableScheduler: true, Owner: owner})
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func withRepo(fn func(repo *db.Repository) error) error {
	gormDB, repo, err := bootstrap.OpenRepository(cfg)
	if err != nil {
		return err
	}
	defer gormdb.Close(gormDB)
	return fn(repo)
}

func dispatchCmd() *cobra.Command {
	var userID, input string
	cmd := &cobra.Command{
		Use:   "dispatch <agent-type>",
		Short: "Run one agent for one user now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in map[string]any
			if input != "" {
				if err := json.Unmarshal([]byte(input), &in); err != nil {
					return fmt.Errorf("--input must be a JSON object: %w", err)
				}
			}
			return withApp(cmd.Context(), services.OwnerCLI, func(app *bootstrap.App) error {
				spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Running %s for %s", args[0], userID))
				res, err := app.Orchestrator.DispatchManual(cmd.Context(), args[0], userID, in)
				if err != nil {
					spinner.Fail(err.Error())
					return err
				}
				if !res.Success {
					spinner.Warning(res.Error)
				} else {
					spinner.Success("task " + res.TaskID + " completed")
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
	cmd.Flags().StringVarP(&input, "input", "i", "", "JSON object passed to the agent")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printResult(res models.Result) error {
	rows := [][]string{{"task", res.TaskID}, {"success", strconv.FormatBool(res.Success)}}
	if res.Error != "" {
		rows = append(rows, []string{"error", res.Error})
	}
	if res.Warning != "" {
		rows = append(rows, []string{"warning", res.Warning})
	}
	for _, k := range sortedKeys(res.Output) {
		rows = append(rows, []string{k, formatValue(res.Output[k])})
	}
	return printTable([]string{"Field", "Value"}, rows)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [agent-type]",
		Short: "Show registered agents, or the recent tasks of one agent",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), services.OwnerCLI, func(app *bootstrap.App) error {
				if len(args) == 0 {
					all, err := app.Orchestrator.GetAllAgentsStatus(cmd.Context())
					if err != nil {
						return err
					}
					return printTable([]string{"Type", "Name", "Active", "Schedule", "Recent"}, agentRows(all))
				}
				st, ok, err := app.Orchestrator.GetAgentStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return models.Errorf(models.KindAgentNotFound, "no agent registered for type: %s", args[0])
				}
				pterm.DefaultSection.Println(st.Name)
				pterm.Info.Println(st.Description)
				return printTable([]string{"Task", "User", "Status", "Created", "Error"}, taskRows(st.RecentTasks, true))
			})
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <user-id>",
		Short: "Show a user's task history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), services.OwnerCLI, func(app *bootstrap.App) error {
				history, err := app.Orchestrator.GetUserHistory(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				return printTable([]string{"Task", "Agent", "Status", "Created", "Error"}, taskRows(history, false))
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", services.DefaultHistoryLimit, "page size (max 100)")
	return cmd
}

func reconcileCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Fail tasks left InProgress by a stopped process",
		Long:  "Only tasks started by --owner are touched. Run it while no process with that owner is running.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), owner, func(app *bootstrap.App) error {
				n, err := app.Orchestrator.Reconcile(cmd.Context())
				if err != nil {
					return err
				}
				pterm.Success.Printf("%d interrupted task(s) of %s marked Failed\n", n, owner)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", services.OwnerWorker, "task owner to reconcile (orchestrator instance, worker or agentctl)")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [catalog.yaml]",
		Short: "Load the practice problem catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.Database.SeedCatalog
			if len(args) == 1 {
				path = args[0]
			}
			return withRepo(func(repo *db.Repository) error {
				n, err := repo.SeedCatalogFile(cmd.Context(), path)
				if err != nil {
					return err
				}
				pterm.Success.Printf("%d problem(s) loaded from %s\n", n, path)
				return nil
			})
		},
	}
}

func problemsCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "problems",
		Short: "List catalog problems, or only those a user has not solved",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(repo *db.Repository) error {
				var problems []db.Problem
				var err error
				if userID != "" {
					problems, err = repo.UnsolvedProblems(cmd.Context(), userID)
				} else {
					problems, err = repo.Problems(cmd.Context())
				}
				if err != nil {
					return err
				}
				return printTable([]string{"#", "Title", "Difficulty", "Category"}, problemRows(problems))
			})
		},
	}
	cmd.Flags().StringVarP(&userID, "unsolved-by", "u", "", "only problems this user has not solved")
	return cmd
}

func agentRows(all []services.AgentStatus) [][]string {
	rows := make([][]string, 0, len(all))
	for _, st := range all {
		schedule := st.Schedule
		if schedule == "" {
			schedule = "manual"
		}
		rows = append(rows, []string{st.Type, st.Name, strconv.FormatBool(st.Active), schedule, strconv.Itoa(len(st.RecentTasks))})
	}
	return rows
}

// taskRows renders tasks; withUser picks the user column over the agent column.
func taskRows(tasks []services.TaskView, withUser bool) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		who := t.AgentName
		if withUser {
			who = t.UserName
			if who == "" {
				who = t.UserID
			}
		}
		rows = append(rows, []string{t.ID, who, string(t.Status), t.CreatedAt.Local().Format(time.DateTime), t.Error})
	}
	return rows
}

func problemRows(problems []db.Problem) [][]string {
	rows := make([][]string, 0, len(problems))
	for _, p := range problems {
		rows = append(rows, []string{strconv.Itoa(p.ExternalID), p.Title, p.Difficulty, p.Category})
	}
	return rows
}
