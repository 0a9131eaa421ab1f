package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmstreamer/engine/internal/config"
	"github.com/mmstreamer/engine/internal/logger"
	"github.com/mmstreamer/engine/internal/server"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var logLevel string

	cmd := &cobra.Command{
		Use:     "mmstreamer-server",
		Short:   "Run the link servers described by a configuration document",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the engine configuration file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")
	cmd.MarkFlagRequired("config")

	return cmd
}

func run(configPath, logLevel string) error {
	logger.Init()
	if logLevel != "" {
		if err := logger.SetLevel(logLevel); err != nil {
			fmt.Printf("warning: invalid log level %q, using default\n", logLevel)
		}
	}
	log := logger.WithComponent(logger.Logger(), "cli")

	doc, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	instances := make([]*server.Instance, 0, len(doc.Servers))
	for _, spec := range doc.Servers {
		cfg, err := spec.ToServerConfig()
		if err != nil {
			stopAll(instances)
			return fmt.Errorf("server %q: %w", spec.Name, err)
		}
		cfg.OnClientStateChanged = func(id uint32, state server.ClientState) {
			log.Info("client state changed", "server", cfg.Name, "client_id", id, "state", state.String())
		}

		inst, err := server.Start(cfg)
		if err != nil {
			stopAll(instances)
			return fmt.Errorf("start server %q: %w", spec.Name, err)
		}
		log.Info("server started", "name", spec.Name, "kind", cfg.Kind.String(), "mode", cfg.Mode.String())
		instances = append(instances, inst)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		stopAll(instances)
		close(done)
	}()

	select {
	case <-done:
		log.Info("all servers stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after shutdown timeout")
	}
	return nil
}

func stopAll(instances []*server.Instance) {
	for _, inst := range instances {
		if err := inst.Stop(); err != nil {
			logger.Logger().Error("server stop error", "name", inst.Name(), "error", err)
		}
	}
}
