package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"studioprov/internal/config"
	"studioprov/internal/controlplane/fake"
	"studioprov/internal/reconciler"
	"studioprov/internal/server"
	"studioprov/internal/spool"
	"studioprov/pkg/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lifecycle event dispatcher",
	Long: `Starts the HTTP ingest endpoint and, when a spool directory is
configured, the spool watcher. Both feed the same reconciler registry:
events come in as envelope JSON and are answered with the success or
failure payload they produced.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.InitForCLI(logging.ParseLevel(cfg.LogLevel), os.Stderr)

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(baseCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	srv := server.New(cfg.ListenAddr, registry)
	group.Go(srv.Start)
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.SpoolDir != "" {
		watcher := spool.NewWatcher(cfg.SpoolDir, registry)
		group.Go(func() error {
			return watcher.Start(ctx)
		})
	}

	return group.Wait()
}

// buildRegistry wires the reconcilers against the in-memory control plane.
// Deployments against real management APIs supply their own
// controlplane.Client and friends here.
func buildRegistry(cfg config.Config) (*reconciler.Registry, error) {
	if cfg.MountRoot == "" {
		return nil, fmt.Errorf("mountRoot must not be empty")
	}
	cp := fake.New()
	return reconciler.DefaultRegistry(cp, cp, cp, cp, cfg.MountRoot, cfg.Wait.WaiterConfig()), nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
