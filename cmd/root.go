package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:          "imgvec",
	Short:        "Embed image batches into a durable store and publish them to a vector index",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `imgvec turns a manifest of image locators into embedding records, keeps them
in an append-only JSONL store and publishes the store to a vector index.

  imgvec materialize --manifest images.json
  imgvec publish
  imgvec query --image cat.jpg -k 3`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default imgvec.yaml)")
}

// Execute is called by main.go.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
