// Command axlinkd runs the AX.25 connected-mode link layer described in
// SPEC_FULL.md: a KISS-facing TX queue and channel-access worker per
// radio channel, a single-consumer DLSM event loop, and KISS TCP/serial
// front ends bridging host applications to the channel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/la5nta/axlink/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "axlinkd",
		Short: "AX.25 connected-mode data link daemon",
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the data link daemon until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), configPath)
		},
	}
	run.Flags().StringVar(&configPath, "config", "axlinkd.yaml", "path to the YAML configuration file")
	root.AddCommand(run)

	return root
}

func runDaemon(ctx context.Context, configPath string) error {
	logger := log.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("axlinkd: %w", err)
	}

	app, err := newApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("axlinkd: %w", err)
	}
	defer app.recoverPoolExhaustion()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	app.start(ctx, &wg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig)

	cancel()
	closeErr := app.close()
	wg.Wait()
	return closeErr
}
