package internal

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the build targets of each root",
	Long:  `Targets lists every target discovered in each project root. The active target is marked with '*'.`,
	Args:  cobra.NoArgs,
	RunE:  runTargets,
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}

func runTargets(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	out := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, root := range s.roots {
		targets, err := s.manager.Targets(ctx, root)
		if err != nil {
			return err
		}
		active, _ := s.manager.ActiveTarget(root)

		fmt.Fprintf(out, "%s\n", root)
		if len(targets) == 0 {
			fmt.Fprintln(out, "  (no targets)")
			continue
		}
		for _, t := range targets {
			mark := " "
			if t.Name == active.Name {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %s\t%s\t%s\t%s\n", mark, t.Name, t.Provider, t.CommandName, t.Keymap)
		}
	}
	return out.Flush()
}
