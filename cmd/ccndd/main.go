// Command ccndd runs the forwarding daemon described by
// SPEC_FULL.md, grounded on teacher's fw/cmd/cmd.go cobra wiring.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ccnhub/ccnd/internal/config"
	"github.com/ccnhub/ccnd/internal/daemon"
	"github.com/ccnhub/ccnd/internal/log"
)

var configFile string

var cmdRoot = &cobra.Command{
	Use:     "ccndd [CONFIG-FILE]",
	Short:   "Content-centric networking forwarding daemon",
	Version: "0.1.0",
	Args:    cobra.MaximumNArgs(1),
	Run:     run,
}

func init() {
	cmdRoot.Flags().StringVar(&configFile, "config", "", "path to a YAML configuration file")
}

func run(cmd *cobra.Command, args []string) {
	path := configFile
	if path == "" && len(args) == 1 {
		path = args[0]
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Default().Fatal(cmd, "failed to load configuration", "err", err)
	}
	if cfg.Debug != 0 {
		log.Default().SetLevel(log.LevelDebug)
	}

	d, err := daemon.New(cfg, log.Default())
	if err != nil {
		log.Default().Fatal(cmd, "failed to construct daemon", "err", err)
	}

	if err := d.ListenUnix(); err != nil {
		log.Default().Fatal(cmd, "failed to open local control socket", "err", err)
	}
	if err := d.ListenTCP(); err != nil {
		log.Default().Fatal(cmd, "failed to open unicast TCP listener", "err", err)
	}
	if err := d.ListenUDP(); err != nil {
		log.Default().Fatal(cmd, "failed to open unicast UDP listener", "err", err)
	}
	if err := d.ListenWebSocket(); err != nil {
		log.Default().Fatal(cmd, "failed to open websocket listener", "err", err)
	}
	if err := d.ListenWebTransport(); err != nil {
		log.Default().Fatal(cmd, "failed to open webtransport listener", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.ListenStatus(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		sig := <-sigCh
		log.Default().Info(cmd, "received signal, shutting down", "signal", sig)
		cancel()
	}()

	d.Run(ctx)

	if err := d.Close(); err != nil {
		log.Default().Warn(cmd, "error while closing daemon", "err", err)
	}
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		os.Exit(1)
	}
}
