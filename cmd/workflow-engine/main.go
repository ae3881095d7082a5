package main

import (
	"os"

	"github.com/conduitcrm/workflow-engine/internal/cli"
	"github.com/conduitcrm/workflow-engine/internal/config"
	grpcserver "github.com/conduitcrm/workflow-engine/internal/grpc"
	"github.com/conduitcrm/workflow-engine/internal/httpserver"
	"github.com/conduitcrm/workflow-engine/internal/logging"
	"github.com/conduitcrm/workflow-engine/internal/metrics"
	"github.com/conduitcrm/workflow-engine/internal/otel"
	"github.com/conduitcrm/workflow-engine/internal/scheduler"
	"github.com/conduitcrm/workflow-engine/internal/workflow"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	rootCmd := cli.NewRootCommand()

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		startServer(configPath)
		return nil
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func startServer(configPath string) {
	app := fx.New(
		config.Module(configPath),
		logging.Module(),
		otel.Module("workflow-engine"),
		metrics.Module(),
		workflow.Module(),
		grpcserver.Module,
		httpserver.Module(),
		scheduler.Module(),
	)

	app.Run()
}
