package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	tempo "github.com/overturetool/tempo-plotting-tool"
	"github.com/overturetool/tempo-plotting-tool/internal/errors"
	"github.com/overturetool/tempo-plotting-tool/internal/jsoncodec"
	"github.com/overturetool/tempo-plotting-tool/internal/logging"
	"github.com/overturetool/tempo-plotting-tool/pkg/model"
)

func classesCmd() *cobra.Command {
	var mf modelFlags

	cmd := &cobra.Command{
		Use:   "classes",
		Short: "List the classes the model declares",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := mf.load()
			if err != nil {
				return err
			}
			cfg.Model.Root = ""
			app, err := tempo.New(cmd.Context(), cfg, tempo.WithLogger(logging.NewNop()))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, c := range app.Runtime().Classes() {
				fmt.Fprintf(w, "%s\t%d fields\t%s\n", c.Name, len(c.Fields), operationNames(c))
			}
			return w.Flush()
		},
	}
	mf.register(cmd)
	return cmd
}

func operationNames(c *model.ClassDef) string {
	names := make([]string, 0, len(c.Operations))
	for _, op := range c.Operations {
		names = append(names, op.Name+"()")
	}
	return strings.Join(names, " ")
}

func structureCmd() *cobra.Command {
	var (
		mf     modelFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "structure",
		Short: "Print the structural model of a root class",
		Long: `Instantiate the root class and print its field tree.

Examples:
  tempo structure --model plant.go --root Plant
  tempo structure --root Plant --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := mf.load()
			if err != nil {
				return err
			}
			if cfg.Model.Root == "" {
				return errors.Newf(errors.CategoryCLI, "no root class").
					WithSuggestion("Pass --root or set model.root in tempo.json")
			}

			ctx := cmd.Context()
			app, err := tempo.New(ctx, cfg, tempo.WithLogger(logging.NewNop()))
			if err != nil {
				return err
			}
			s, err := app.Builder().Build(ctx)
			if err != nil {
				return errors.New("T203").Wrap(err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := jsoncodec.MarshalIndent(s, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintln(out, s.RootClass)
			s.Walk(func(n *model.Node) bool {
				if n.Parent == nil {
					return true
				}
				depth := strings.Count(n.Name, model.Separator)
				fmt.Fprintf(out, "%s%s  %s (%s)\n", strings.Repeat("  ", depth+1), n.Name, n.Type.Name, n.Type.Kind)
				return true
			})
			return nil
		},
	}
	mf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON as sent to clients")
	return cmd
}
