package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"agent-orchestration-service/internal/config"
	"agent-orchestration-service/internal/logging"
)

var (
	cfgFile string
	verbose bool

	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "Operate the agent orchestrator from the command line",
	Long: `agentctl runs dispatches and inspects task history against the orchestrator database.

Examples:
  agentctl dispatch LeetcodeSolver --user u1
  agentctl status
  agentctl history u1 --limit 50
  agentctl seed configs/problems.yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.NewLoader(cfgFile).Load()
		if err != nil {
			return err
		}
		cfg = loaded
		if verbose {
			log, err = logging.New(cfg.Log)
			if err != nil {
				return err
			}
			pterm.EnableDebugMessages()
			return nil
		}
		log = logging.Discard()
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log orchestrator activity to the configured log output")

	rootCmd.AddCommand(dispatchCmd(), statusCmd(), historyCmd(), reconcileCmd(), seedCmd(), problemsCmd())
}

func printTable(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		pterm.Warning.Println("No results found.")
		return nil
	}
	data := pterm.TableData{headers}
	data = append(data, rows...)
	if err := pterm.DefaultTable.WithHasHeader(true).WithBoxed(false).WithData(data).Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
