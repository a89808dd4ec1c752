package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nainya/entitystore/pkg/mapping"
	"github.com/nainya/entitystore/pkg/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect entity schemas",
}

var schemaCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a schema and print the keys each class writes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := schema.Load(args[0])
		if err != nil {
			fatal("Error loading schema", err)
		}

		out := cmd.OutOrStdout()
		for _, class := range s.Classes() {
			e, _ := s.Entity(class)
			meta := e.Metadata()
			footprint := mapping.Footprint(meta)

			fmt.Fprintf(out, "%s\n", class)
			fmt.Fprintf(out, "  record:  %s\n", mapping.HashKey(meta, "<id>"))
			fmt.Fprintf(out, "  columns: %s\n", strings.Join(footprint.ColumnNames(), ", "))
			for _, key := range footprint.IndexKeys() {
				fmt.Fprintf(out, "  index:   %s\n", key)
			}
		}
	},
}

func init() {
	schemaCmd.AddCommand(schemaCheckCmd)
	rootCmd.AddCommand(schemaCmd)
}
