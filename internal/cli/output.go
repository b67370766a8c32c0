package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// addOutputFlag registers the shared --output flag on a command.
func addOutputFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "output", "o", "table",
		"Output format: table, json, or yaml")
}

// printData writes v in the requested format. The table renderer is
// lazy so structured formats never pay for styling.
func printData(w io.Writer, format string, v any, table func() string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "table", "":
		_, err := fmt.Fprint(w, table())
		return err
	default:
		return fmt.Errorf("unknown output format %q (expected table, json, or yaml)", format)
	}
}
