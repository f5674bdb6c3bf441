package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Skufu/il17a-response/internal/features"
)

func newSchemaCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the model's input features in model order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(v)
			if err != nil {
				return err
			}
			return writeSchema(cmd.OutOrStdout(), features.Default(), format)
		},
	}
}

func writeSchema(w io.Writer, schema features.Schema, format string) error {
	defs := schema.Definitions()
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(defs)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(defs); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tALLOWED\tDEFAULT\tLABEL")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\n", d.Name, d.Kind, allowed(d), d.Default, d.Label)
	}
	return tw.Flush()
}

func allowed(d features.Definition) string {
	if d.Kind == features.Categorical {
		return fmt.Sprint(d.Options)
	}
	return fmt.Sprintf("[%g, %g]", d.Min, d.Max)
}
