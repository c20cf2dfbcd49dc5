package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/bonecast/internal/config"
)

var version = "dev"

// environ is replaced in tests.
var environ = os.Environ

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	host       string
	port       int
	transport  string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var gf globalFlags
	root := &cobra.Command{
		Use:           "bonecast",
		Short:         "Stream skeleton animation keyframes between processes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&gf.configPath, "config", "", "config file (.yaml, .toml or KEY=VALUE .conf)")
	root.PersistentFlags().StringVar(&gf.host, "host", "", "override "+config.KeyHost)
	root.PersistentFlags().IntVar(&gf.port, "port", 0, "override "+config.KeyPort)
	root.PersistentFlags().StringVar(&gf.transport, "transport", "", "override "+config.KeyTransport+": udp, quic or srt")

	root.AddCommand(
		newTransmitCmd(&gf),
		newListenCmd(&gf),
		newBaseModelCmd(&gf),
		newDropKeysCmd(),
		newVersionCmd(),
	)
	return root
}

// resolveConfig layers the config file, BONECAST_* environment variables
// and explicitly set flags, in that order.
func resolveConfig(cmd *cobra.Command, gf *globalFlags, environ []string) (config.Config, error) {
	var store config.Store
	if gf.configPath != "" {
		var err error
		if store, err = config.Load(gf.configPath); err != nil {
			return config.Config{}, err
		}
	}
	store.ApplyEnv(environ)

	flags := cmd.Flags()
	if flags.Changed("host") {
		store.Set(config.KeyHost, gf.host)
	}
	if flags.Changed("port") {
		store.Set(config.KeyPort, strconv.Itoa(gf.port))
	}
	if flags.Changed("transport") {
		store.Set(config.KeyTransport, gf.transport)
	}

	cfg, err := config.FromStore(store)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// setupLogger installs a text handler on stderr. DEBUG in the environment
// forces debug level.
func setupLogger(level slog.Level) *slog.Logger {
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	return log
}

// runUntilSignal runs fn with a context that SIGINT or SIGTERM cancels.
func runUntilSignal(parent context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})
	return g.Wait()
}
