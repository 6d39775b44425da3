// Command zhilan collects recent items on the configured topics, scores
// them in batches with an LLM judge, and renders a ranked digest.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/weizhiyuan62/zhilan/infrastructure/metrics"
	"github.com/weizhiyuan62/zhilan/internal/application"
	"github.com/weizhiyuan62/zhilan/internal/logging"
)

var (
	cfgFile     string
	fresh       bool
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "zhilan",
	Short: "Batched LLM-judge scoring for topical intelligence digests",
	Long: `zhilan collects recent articles, papers, and search results on the
configured topics, scores each item with an LLM judge across relevance,
importance, timeliness, and reliability, and writes a ranked markdown
digest. Interrupted runs resume from per-batch checkpoints.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect, score, and render a digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "path to the YAML config file")
	runCmd.Flags().BoolVar(&fresh, "fresh", false, "discard checkpoints and start over")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(runCmd)
}

func run(ctx context.Context) error {
	cfg, err := application.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	collector := metrics.NewPrometheusMetrics(registry)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		logger.Info("serving metrics", "addr", metricsAddr)
	}

	pipeline, err := application.Build(cfg, logger, collector)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := pipeline.Run(ctx, fresh)
	if err != nil {
		return err
	}

	fmt.Printf("%s in %s\n", result.Summary, time.Since(start).Round(time.Second))
	if result.ReportPath != "" {
		fmt.Printf("report: %s\n", result.ReportPath)
	}
	if result.HTMLPath != "" {
		fmt.Printf("html:   %s\n", result.HTMLPath)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
