package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/examwright/examwright/internal/config"
	"github.com/examwright/examwright/internal/obsmetrics"
)

// Version is set via ldflags at release build time.
var Version = "dev"

var configFile string

func main() {
	root := &cobra.Command{
		Use:     "examwright",
		Short:   "Retrieval-augmented, dual-grader exam grading core",
		Version: Version,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "config/examwright.yaml", "configuration file path")

	root.AddCommand(newGradeCmd(), newBatchCmd(), newScheduleCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(configFile); err != nil {
		return config.Default(), nil
	}
	return config.LoadConfig(configFile)
}

// withSignalContext returns a context cancelled on SIGINT/SIGTERM for
// graceful shutdown.
func withSignalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx, cancel
}

// serveMetrics starts the Prometheus exposition endpoint in the
// background and returns a shutdown function.
func serveMetrics(addr string) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", obsmetrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
