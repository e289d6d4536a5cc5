package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskrouter/internal/config"
)

var configFile string

// Execute builds and runs the root command. Grounded on the teacher's
// cmd/cobra_cli.go: persistent flags bound once on the root command,
// viper-backed config loading, one cobra.Command per subcommand with its
// own RunE.
func Execute() error {
	root := newRootCommand()
	return root.Execute()
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskrouterd",
		Short: "Routes tasks through a workspace's ordered agent pipeline",
		Long: `taskrouterd serves the task routing API (spec-driven: Workspace/Agent/Task/
TaskRouting/Execution) and the operator tools around it: standalone
migration, a one-shot recovery sweep, and a live terminal dashboard.`,
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config.json/config.yaml (default: none, use env/defaults)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newRecoverCommand())
	root.AddCommand(newWatchCommand())

	return root
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
