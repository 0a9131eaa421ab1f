package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmstreamer/engine/internal/client"
	"github.com/mmstreamer/engine/internal/config"
	"github.com/mmstreamer/engine/internal/logger"
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
		Use:     "mmstreamer-client",
		Short:   "Connect to the link servers described by a configuration document",
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

	instances := make([]*client.Instance, 0, len(doc.Clients))
	for _, spec := range doc.Clients {
		cfg, err := spec.ToClientConfig()
		if err != nil {
			stopAll(instances)
			return fmt.Errorf("client %q: %w", spec.Name, err)
		}
		name := cfg.Name
		cfg.OnFrame = func(buf []byte) {
			log.Debug("frame delivered", "client", name, "bytes", len(buf))
		}
		cfg.OnLinkBroken = func(err error) {
			log.Warn("link broken", "client", name, "error", err)
		}

		inst, err := client.Start(cfg)
		if err != nil {
			stopAll(instances)
			return fmt.Errorf("start client %q: %w", spec.Name, err)
		}
		log.Info("client started", "name", spec.Name, "kind", cfg.Kind.String(), "mode", cfg.Mode.String())
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
		log.Info("all clients stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after shutdown timeout")
	}
	return nil
}

func stopAll(instances []*client.Instance) {
	for _, inst := range instances {
		if err := inst.Stop(); err != nil {
			logger.Logger().Error("client stop error", "name", inst.Name(), "error", err)
		}
	}
}
