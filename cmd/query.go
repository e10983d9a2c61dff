package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"image-vector-index/domain"

	"github.com/spf13/cobra"
)

var (
	flagQueryVector  string
	flagQueryImage   string
	flagQueryText    string
	flagQueryK       int
	flagQueryBackend string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Find the records most similar to a vector, an image or a text",
	Long: `Find the k records most similar to the query, ordered by similarity.
Exactly one of --vector, --image or --text must be given.

  imgvec query --vector 0.9,0.1 -k 1
  imgvec query --image ./cat.jpg
  imgvec query --text "a red bicycle" --backend memory`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&flagQueryVector, "vector", "", "Comma separated query vector")
	queryCmd.Flags().StringVar(&flagQueryImage, "image", "", "Image locator to embed and search with")
	queryCmd.Flags().StringVar(&flagQueryText, "text", "", "Text to embed and search with")
	queryCmd.Flags().IntVarP(&flagQueryK, "k", "k", 5, "Number of results to show")
	queryCmd.Flags().StringVar(&flagQueryBackend, "backend", "", "Index backend: qdrant or memory (loads the store)")
	queryCmd.MarkFlagsMutuallyExclusive("vector", "image", "text")
	queryCmd.MarkFlagsOneRequired("vector", "image", "text")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, _ []string) error {
	if flagQueryK <= 0 {
		return fmt.Errorf("-k must be positive, got %d", flagQueryK)
	}
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var vector domain.Embedding
	if flagQueryVector != "" {
		vector, err = parseVector(flagQueryVector)
	} else {
		embedder, eerr := rt.embedder()
		if eerr != nil {
			return eerr
		}
		if flagQueryImage != "" {
			vector, err = embedder.EmbedImage(ctx, flagQueryImage)
		} else {
			vector, err = embedder.EmbedText(ctx, flagQueryText)
		}
	}
	if err != nil {
		return err
	}

	index, closeIndex, err := rt.index(flagQueryBackend)
	if err != nil {
		return err
	}
	defer closeIndex()

	svc := rt.publisher(index)
	if backend := flagQueryBackend; backend == "memory" || (backend == "" && rt.cfg.Index.Backend == "memory") {
		loaded, err := rt.loadStore()
		if err != nil {
			return err
		}
		if _, err := svc.Publish(ctx, loaded.Records); err != nil {
			return err
		}
	}

	matches, err := svc.Query(ctx, vector, flagQueryK)
	if err != nil {
		return err
	}
	printMatches(cmd.OutOrStdout(), matches)
	return nil
}

// parseVector reads a comma or whitespace separated list of floats.
func parseVector(s string) (domain.Embedding, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, errors.New("query vector is empty")
	}
	out := make(domain.Embedding, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %d %q: %w", i, f, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

func printMatches(out io.Writer, matches []domain.QueryMatch) {
	if len(matches) == 0 {
		fmt.Fprintln(out, "no matches")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSCORE\tID\tDESCRIPTION")
	for i, m := range matches {
		fmt.Fprintf(tw, "%d\t%.4f\t%s\t%s\n", i+1, m.Score, m.ID, m.Description)
	}
	_ = tw.Flush()
}
