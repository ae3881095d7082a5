package cli

import "github.com/spf13/cobra"

func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow-engine",
		Short: "Multi-tenant workflow execution engine",
	}

	cmd.Flags().String("config", "config.yaml", "Path to config file")
	return cmd
}
