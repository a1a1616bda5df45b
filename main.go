package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/spf13/cobra"
	"github.com/twistyyb/insurefire/config"
	"github.com/twistyyb/insurefire/internal/apperr"
	"github.com/twistyyb/insurefire/internal/metrics"
	"golang.org/x/sync/errgroup"
)

var metricsAddr string

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	config.LoadEnvFile()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "insurefire: %s\n", apperr.UserMessage(err))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var closeLog func()
	cmd := &cobra.Command{
		Use:           "insurefire",
		Short:         "Submit inventory videos, browse detected items and talk to the assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			closeLog, err = setupLogging(cfg.Service.LogLevel, cfg.Service.LogFile)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = cfg.Service.MetricsAddr
			}
			cmd.SetContext(withConfig(cmd.Context(), cfg))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if closeLog != nil {
				closeLog()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
	cmd.AddCommand(
		newSubmitCmd(),
		newResultsCmd(),
		newTalkCmd(),
	)
	return cmd
}

// setupLogging writes to stderr and, outside systemd, to a log file as well.
func setupLogging(level, logFile string) (func(), error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)

	// JOURNAL_STREAM is set by systemd when running as a service.
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd || logFile == "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return func() {}, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
	fileWriter := zerolog.ConsoleWriter{Out: f, NoColor: true}
	log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))
	log.Debug().Str("logFile", logFile).Msg("logging to file")

	return func() { f.Close() }, nil
}

// runWithMetrics runs fn and, when a metrics address is set, serves
// /metrics alongside it until fn returns.
func runWithMetrics(ctx context.Context, fn func(ctx context.Context) error) error {
	if metricsAddr == "" {
		return fn(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		log.Info().Str("addr", metricsAddr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		defer cancel()
		return fn(ctx)
	})

	return g.Wait()
}
