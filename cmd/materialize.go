package cmd

import (
	"errors"
	"fmt"
	"io"

	"image-vector-index/application"
	"image-vector-index/domain"
	"image-vector-index/infrastructure/recordstore"

	"github.com/spf13/cobra"
)

var (
	flagMaterializeManifest string
	flagMaterializeResume   bool
	flagMaterializeStore    string
)

var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "Embed every manifest item and write one record per item to the store",
	Long: `Embed every item of the manifest (a JSON array, a JSONL file or a directory of
images) and append one record per item to the store. Items that cannot be
embedded are still written, without a vector, and listed at the end.

With --resume the existing store is kept and items already present are skipped.`,
	Args: cobra.NoArgs,
	RunE: runMaterialize,
}

func init() {
	materializeCmd.Flags().StringVarP(&flagMaterializeManifest, "manifest", "m", "", "Manifest file or image directory (required)")
	materializeCmd.Flags().BoolVar(&flagMaterializeResume, "resume", false, "Append to the existing store, skipping items already written")
	materializeCmd.Flags().StringVar(&flagMaterializeStore, "store", "", "Store path (overrides store.path)")
	_ = materializeCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(materializeCmd)
}

func runMaterialize(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	if flagMaterializeStore != "" {
		rt.cfg.Store.Path = flagMaterializeStore
	}

	items, err := application.LoadManifest(flagMaterializeManifest)
	if err != nil {
		return err
	}
	embedder, err := rt.embedder()
	if err != nil {
		return err
	}

	var (
		w    *recordstore.Writer
		opts application.RunOptions
	)
	if flagMaterializeResume {
		w, err = recordstore.OpenAppend(rt.cfg.Store.Path)
		if err != nil {
			return err
		}
		if w.Repaired > 0 {
			rt.logger.Warn("dropped torn trailing line", "path", rt.cfg.Store.Path, "bytes", w.Repaired)
		}
		existing, err := rt.loadStore()
		if err != nil {
			_ = w.Close()
			return err
		}
		opts.Existing = existing.IDs()
	} else {
		w, err = recordstore.Create(rt.cfg.Store.Path)
		if err != nil {
			return err
		}
	}

	report, runErr := application.NewMaterializer(embedder, rt.logger).Run(cmd.Context(), items, w, opts)
	closeErr := w.Close()
	if report != nil {
		printReport(cmd.OutOrStdout(), rt.cfg.Store.Path, report)
	}
	return errors.Join(runErr, closeErr)
}

func printReport(out io.Writer, path string, r *domain.BatchReport) {
	fmt.Fprintf(out, "run %s: %d items, %d embedded, %d failed, %d skipped -> %s\n",
		r.RunID, r.Total, r.Embedded, len(r.Failures), r.Skipped, path)
	if len(r.Failures) == 0 {
		return
	}
	fmt.Fprintln(out, "items written without a vector:")
	for _, f := range r.Failures {
		fmt.Fprintf(out, "  ✗  [%d] %s: %s\n", f.Index, f.Locator, f.Cause)
	}
}
