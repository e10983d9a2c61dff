package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"image-vector-index/application"

	"github.com/spf13/cobra"
)

var (
	flagPublishStore string
	flagPublishQuiet bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload every record of the store to the vector index",
	Args:  cobra.NoArgs,
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&flagPublishStore, "store", "", "Store path (overrides store.path)")
	publishCmd.Flags().BoolVarP(&flagPublishQuiet, "quiet", "q", false, "Only print the summary line")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	if flagPublishStore != "" {
		rt.cfg.Store.Path = flagPublishStore
	}

	loaded, err := rt.loadStore()
	if err != nil {
		return err
	}
	index, closeIndex, err := rt.index("")
	if err != nil {
		return err
	}
	defer closeIndex()

	summary, err := rt.publisher(index).Publish(cmd.Context(), loaded.Records)
	if err != nil {
		return err
	}
	printPublishSummary(cmd.OutOrStdout(), summary, len(loaded.Corrupt), flagPublishQuiet)
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d records were rejected by the index", summary.Failed, len(summary.Outcomes))
	}
	return nil
}

func printPublishSummary(out io.Writer, s *application.PublishSummary, corrupt int, quiet bool) {
	if !quiet {
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tMESSAGE")
		for _, o := range s.Outcomes {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", o.ID, o.StatusCode, o.Message)
		}
		_ = tw.Flush()
	}
	fmt.Fprintf(out, "published %d records: %d succeeded, %d failed", len(s.Outcomes), s.Succeeded, s.Failed)
	if corrupt > 0 {
		fmt.Fprintf(out, " (%d corrupt store lines skipped)", corrupt)
	}
	fmt.Fprintln(out)
}
