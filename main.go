package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lost-woods/entropyd/src/config"
	"github.com/lost-woods/entropyd/src/rng"
	"github.com/lost-woods/entropyd/src/server"
)

var (
	configPath string
	debug      bool

	readBytes   uint64
	readTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "entropyd",
	Short: "Local entropy gateway",
	Long: `entropyd reads from one or more entropy sources concurrently, XORs
their output together and serves the result to local consumers.

Example:
  entropyd serve --config /etc/entropyd/config.yaml
  entropyd read --bytes 32 --timeout 50ms`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	Long: `Serve entropy over HTTP. SIGHUP rebuilds the source set from the
configuration file; SIGINT and SIGTERM shut down gracefully.`,
	RunE: runServe,
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read bytes once from the configured sources",
	RunE:  runRead,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and list the sources it enables",
	RunE:  runCheck,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/entropyd/config.yaml", "configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	readCmd.Flags().Uint64VarP(&readBytes, "bytes", "n", 32, "number of bytes to read")
	readCmd.Flags().DurationVarP(&readTimeout, "timeout", "t", 0, "deadline for the read (0 waits for all bytes)")

	rootCmd.AddCommand(serveCmd, readCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger from it.
func setup() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	log, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, log, nil
}

func newAggregator(cfg *config.Config, log *zap.SugaredLogger) *rng.Aggregator {
	set := rng.BuildSourceSet("default", cfg.Specs(log), log)
	return rng.NewAggregator(set, cfg.StragglerGrace, log)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	gw := rng.NewGateway(newAggregator(cfg, log), cfg.MaxRequestBytes, log)
	defer func() {
		if err := gw.Close(); err != nil {
			log.Warnw("closing sources", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				reload(gw, log)
			}
		}
	}()

	srv := server.New(server.Options{
		Addr:           cfg.Listen,
		APIKey:         cfg.APIKey,
		HealthInterval: cfg.HealthInterval,
	}, gw, rng.NewHealth(), log)
	return srv.Run(ctx)
}

// reload rebuilds the source set from the configuration file and swaps it
// in. Listener settings are not reloaded.
func reload(gw *rng.Gateway, log *zap.SugaredLogger) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Errorw("reload failed; keeping current sources", "error", err)
		return
	}
	log.Infow("reloading entropy sources", "config", configPath)
	gw.Swap(newAggregator(cfg, log))
}

func runRead(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	gw := rng.NewGateway(newAggregator(cfg, log), cfg.MaxRequestBytes, log)
	defer gw.Close() //nolint:errcheck

	res := gw.Read(cmd.Context(), readBytes, readTimeout)
	fmt.Fprintf(cmd.OutOrStdout(), "%s %x\n", res.Status, res.Bytes)
	if res.Status == rng.StatusError {
		return res.Err
	}
	return nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	specs := cfg.Specs(log)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tTARGET\tBUFFER")
	for _, s := range specs {
		target := "-"
		switch s.Kind {
		case rng.KindFile:
			target = s.Path
			if s.Loop {
				target += " (loop)"
			}
		case rng.KindSerial:
			target = fmt.Sprintf("%s @ %d", s.Serial.Device, s.Serial.Baud)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.Key, s.Kind, target, s.BufferSize)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(specs) == 0 {
		return rng.ErrConfiguration
	}
	return nil
}
