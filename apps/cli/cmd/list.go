package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/tentspec/packages/core/runner"
	"github.com/abdul-hamid-achik/tentspec/packages/spec"
	"github.com/abdul-hamid-achik/tentspec/packages/validators"
)

var listDepthFlag int

var listCmd = &cobra.Command{
	Use:   "list [validator...]",
	Short: "List validators and their expectations",
	Long: `List every validator with its describe and context tree. Each
line shows how many expectations sit under that node.

Examples:
  tentspec list
  tentspec list '*Feed*' --depth 2`,
	RunE: listCommand,
}

func init() {
	listCmd.Flags().IntVar(&listDepthFlag, "depth", 0, "Maximum tree depth to print (0 = unlimited)")
	listCmd.Flags().StringVar(&schemaDirFlag, "schema-dir", "", "Directory of extra YAML schemas")
}

func listCommand(cmd *cobra.Command, args []string) error {
	reg, err := loadSchemas(schemaDirFlag)
	if err != nil {
		return withCode(ExitConfigError, err)
	}

	r := runner.NewRunner(&runner.Config{NameFilter: args})
	selected := r.Select(validators.All(validators.Deps{Schemas: reg}))
	if len(selected) == 0 {
		return withCode(ExitUsageError, fmt.Errorf("no validator matches %s", strings.Join(args, ", ")))
	}

	out := cmd.OutOrStdout()
	for _, v := range selected {
		fmt.Fprintf(out, "%s (%d)\n", v.Name(), v.Count())
		// The peer only exists during a run.
		if err := v.Err(); err != nil && !errors.Is(err, validators.ErrNoPeer) {
			fmt.Fprintf(out, "  ! %v\n", err)
		}
		for _, child := range v.Root().Children() {
			printNode(out, child, 1)
		}
	}
	return nil
}

func printNode(w io.Writer, n *spec.Node, depth int) {
	if listDepthFlag > 0 && depth > listDepthFlag {
		return
	}
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%s%s (%d)\n", indent, n.Name(), n.Count())
	for _, e := range n.Expectations() {
		if listDepthFlag == 0 || depth < listDepthFlag {
			fmt.Fprintf(w, "%s  - %s\n", indent, e.Description())
		}
	}
	for _, child := range n.Children() {
		printNode(w, child, depth+1)
	}
}
