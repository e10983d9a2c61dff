package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Create the vector index, or update its parameters if it already exists",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	index, closeIndex, err := rt.index("")
	if err != nil {
		return err
	}
	defer closeIndex()

	if err := rt.publisher(index).EnsureIndex(cmd.Context()); err != nil {
		return err
	}
	s := rt.schema()
	fmt.Fprintf(cmd.OutOrStdout(), "  ✓  index %s ready (%d dimensions, hnsw m=%d ef_construct=%d)\n",
		s.Name, s.Dimensions, s.HNSWM, s.HNSWEfConstruct)
	return nil
}
