package cmd

import (
	"encoding/json"
	"fmt"

	"image-vector-index/domain"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of one record store line",
	Args:  cobra.NoArgs,
	RunE:  runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, _ []string) error {
	out, err := json.MarshalIndent(recordSchema(), "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode schema: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// recordSchema reflects the store line type, inlined so the document is self-contained.
func recordSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	s := reflector.Reflect(&domain.OutputRecord{})
	s.Title = "image vector record"
	return s
}
