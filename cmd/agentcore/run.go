package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/agentcore/internal/agent/credential/k8ssecret"
	"github.com/vitaliisemenov/agentcore/internal/agent/manager"
	"github.com/vitaliisemenov/agentcore/internal/agent/paramstore"
	"github.com/vitaliisemenov/agentcore/internal/agent/plugincontext"
	"github.com/vitaliisemenov/agentcore/internal/sink/perfcounter"
	"github.com/vitaliisemenov/agentcore/internal/sink/telemetry"
)

const stopTimeout = 60 * time.Second

func (cli *CLI) runCommand() *cobra.Command {
	var paramsAddr string
	var selfUpdateCmd string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the agent and block until terminated",
		Long:  "Loads the configured topology, starts every source/pipe/sink, and blocks until SIGINT/SIGTERM, hot-reloading on configuration change in the background.",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			params, err := buildParamStore(paramsAddr, cli.logger)
			if err != nil {
				return fmt.Errorf("agentcore: parameter store: %w", err)
			}

			mgr, err := manager.New(manager.Config{
				ConfigPath:    configPath,
				LogConfigPath: cli.logConfigPath,
				Logger:        cli.logger,
				Params:        params,
				BuildNumber:   cli.build.version,
				Providers: []manager.FactoryProvider{
					perfcounter.Provider,
					telemetry.Provider,
					k8ssecret.Provider,
				},
				SelfUpdateFn: selfUpdateTrigger(selfUpdateCmd, cli.logger),
			})
			if err != nil {
				return fmt.Errorf("agentcore: construct manager: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := mgr.Start(ctx); err != nil {
				return fmt.Errorf("agentcore: start: %w", err)
			}
			cli.logger.Info("agentcore started", "config", configPath)

			<-ctx.Done()
			cli.logger.Info("shutdown signal received, stopping")

			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			mgr.Stop(stopCtx, true)

			cli.logger.Info("agentcore stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&paramsAddr, "params-redis-addr", "", "Redis address for the parameter store; empty uses an in-memory store")
	cmd.Flags().StringVar(&selfUpdateCmd, "self-update-cmd", "", "shell command invoked when the self-update timer fires; empty disables self-update even if the config requests it")

	return cmd
}

func buildParamStore(redisAddr string, logger *slog.Logger) (plugincontext.ParameterStore, error) {
	if redisAddr == "" {
		return paramstore.NewMemory(), nil
	}
	return paramstore.NewRedis(paramstore.RedisConfig{Addr: redisAddr}, logger)
}

// selfUpdateTrigger adapts an operator-supplied shell command into the
// trigger the manager invokes when its self-update timer fires; the actual
// package-manager invocation is this external command, since that is an
// injected collaborator the runtime itself never implements.
func selfUpdateTrigger(command string, logger *slog.Logger) func() error {
	if command == "" {
		return nil
	}
	return func() error {
		logger.Info("invoking self-update command", "command", command)
		c := exec.Command("/bin/sh", "-c", command)
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		return c.Run()
	}
}
