package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/r2d2/r2d2/internal/logging"
)

var (
	version = "0.3.0"

	// Global flags
	configPath      string
	bucketName      string
	verbose         bool
	logLevel        string
	metricsTextfile string
	noProgress      bool
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)

	if werr := writeMetrics(); werr != nil {
		logging.Warn("failed to write metrics textfile", logging.Err(werr))
	}
	_ = logging.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "r2d2",
		Short: "r2d2 - Cloudflare R2 toolbox",
		Long: `r2d2 manages Cloudflare R2 buckets:
  • Verify API tokens and show per-bucket usage
  • Chunked multipart uploads with progress
  • Wipe bucket contents or whole buckets
  • Initialize and inspect encrypted backup repositories stored in R2`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogging("", "console")
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: .r2, then .env)")
	rootCmd.PersistentFlags().StringVarP(&bucketName, "bucket", "b", "", "Bucket to operate on (overrides R2_BUCKET)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write storage metrics to this file on exit")
	rootCmd.PersistentFlags().BoolVarP(&noProgress, "no-progress", "q", false, "Hide progress output")

	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(overviewCmd())
	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(wipeCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(snapshotsCmd())

	return rootCmd
}
