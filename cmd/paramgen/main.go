// Command paramgen writes a Go parameters type for a parameter table:
//
//	paramgen --table params.yaml --type C14Params --pkg model --out c14_gen.go
//	paramgen --model radiocarbon --pkg model
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/san-kum/tracersim/internal/config"
	"github.com/san-kum/tracersim/internal/models"
	"github.com/san-kum/tracersim/internal/paramgen"
	"github.com/san-kum/tracersim/internal/params"
)

func main() {
	var tablePath, model, typeName, pkg, out string

	cmd := &cobra.Command{
		Use:           "paramgen",
		Short:         "generate a Go parameters type from a parameter table",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, name, err := loadTable(tablePath, model)
			if err != nil {
				return err
			}
			if typeName != "" {
				name = typeName
			}
			s, err := params.Generate(tbl, name)
			if err != nil {
				return err
			}
			src, err := paramgen.Generate(s, pkg)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = os.Stdout.Write(src)
				return err
			}
			return os.WriteFile(out, src, 0o644)
		},
	}
	cmd.Flags().StringVar(&tablePath, "table", "", "parameter table file (yaml or toml)")
	cmd.Flags().StringVar(&model, "model", "", "use the table of a built-in model")
	cmd.Flags().StringVar(&typeName, "type", "", "name of the generated type")
	cmd.Flags().StringVar(&pkg, "pkg", "params", "package of the generated file")
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	cmd.MarkFlagsMutuallyExclusive("table", "model")
	cmd.MarkFlagsOneRequired("table", "model")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "paramgen:", err)
		os.Exit(1)
	}
}

func loadTable(path, model string) (*params.Table, string, error) {
	if path != "" {
		tbl, err := config.LoadTable(path)
		return tbl, "Parameters", err
	}
	def, err := models.Lookup(model)
	if err != nil {
		return nil, "", err
	}
	tbl, err := def.Table()
	return tbl, def.TypeName, err
}
