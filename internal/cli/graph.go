package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/pipeconfig/internal/compiler"
)

var (
	graphFile   string
	graphStrict bool
	graphDOT    bool
)

var graphCmd = &cobra.Command{
	Use:   "graph [CONFIG]",
	Short: "Show the stage build order or export the dependency graph",
	Args:  maxArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(args, graphFile)
		if err != nil {
			return err
		}
		res, err := compiler.New(compiler.Options{
			ConfigPath: path,
			Strict:     graphStrict,
			Logger:     logger.With("config", path),
		}).Compile(cfg)
		if err != nil {
			return err
		}

		if graphDOT {
			return res.Graph.WriteDOT(cmd.OutOrStdout())
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STEP\tSTAGE\tOUTPUT\tNEEDS")
		for i, r := range res.Rules {
			needs := strings.Join(r.Prerequisites, " ")
			if needs == "" {
				needs = "-"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, r.Stage, r.Target, needs)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		for _, name := range res.Unused {
			cmd.Printf("note: stage %s is not needed by any target\n", name)
		}
		return nil
	},
}

func init() {
	graphCmd.Flags().StringVarP(&graphFile, "file", "f", "", "path to pipeline config file")
	graphCmd.Flags().BoolVar(&graphStrict, "strict", false, "require every plain file dependency to exist")
	graphCmd.Flags().BoolVar(&graphDOT, "dot", false, "print the graph in Graphviz DOT format")
}
