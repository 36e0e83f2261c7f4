package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "aura",
		Short:         "Aura workflow orchestration engine",
		Long:          "Aura registers automation workflows, evaluates their triggers every cycle and runs their steps with retry and recovery.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to settings file (default $AURA_HOME/settings.yaml)")

	root.AddCommand(
		newServeCommand(&configFile),
		newValidateCommand(),
		newHistoryCommand(&configFile),
		newWorkflowsCommand(&configFile),
		newVersionCommand(),
	)
	return root
}
