package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapcalc/internal/cli/output"
	"github.com/leapstack-labs/leapcalc/internal/engine"
	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
	"github.com/spf13/cobra"
)

// DepsOptions holds flags for the deps command.
type DepsOptions struct {
	Depth int
}

// NewDepsCommand creates the deps command.
func NewDepsCommand() *cobra.Command {
	opts := &DepsOptions{}

	cmd := &cobra.Command{
		Use:   "deps <book.yaml> <cell>",
		Short: "Show a cell's precedents and dependents",
		Long: `Display the dependency neighborhood of one cell: the cells its
formula reads (precedents) and the cells whose formulas read it
(dependents). Addresses qualify with a sheet as Sheet2!B4; a bare
address resolves against the first sheet.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Direct neighbors of B2
  leapcalc deps budget.yaml B2

  # Two levels deep on another sheet
  leapcalc deps budget.yaml Totals!C9 --depth 2

  # Output as JSON
  leapcalc deps budget.yaml B2 --output json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeps(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().IntVar(&opts.Depth, "depth", 1, "levels of the graph to expand")

	return cmd
}

func runDeps(cmd *cobra.Command, path, cell string, opts *DepsOptions) error {
	cctx := NewCommandContext(cmd)

	eng, err := openBook(cctx, path)
	if err != nil {
		return err
	}
	if _, err := eng.RecalculateAll(cmd.Context()); err != nil {
		return err
	}

	sheet, a1 := splitCell(eng, cell)
	if _, ok := ref.ParseA1(a1); !ok {
		return fmt.Errorf("invalid cell address %q", cell)
	}

	pre, err := depTree(eng, sheet, a1, opts.Depth, eng.Precedents)
	if err != nil {
		return err
	}
	dep, err := depTree(eng, sheet, a1, opts.Depth, eng.Dependents)
	if err != nil {
		return err
	}

	return renderDeps(cctx, eng, sheet, a1, pre, dep)
}

// depEntry is one cell in an expanded dependency tree, kept with its
// typed value so each output mode formats it its own way.
type depEntry struct {
	Key      ref.CellKey
	Formula  string
	Val      value.Value
	Children []depEntry
}

// depTree expands one direction of the dependency graph. The walk is
// depth-bounded, so a circular chain simply repeats until the budget
// runs out instead of recursing forever.
func depTree(eng *engine.Engine, sheet, a1 string, depth int, next func(string, string) ([]ref.CellKey, error)) ([]depEntry, error) {
	if depth <= 0 {
		return nil, nil
	}

	keys, err := next(sheet, a1)
	if err != nil {
		return nil, err
	}

	entries := make([]depEntry, 0, len(keys))
	for _, k := range keys {
		ka1 := ref.FormatA1(k.Addr())
		e := depEntry{Key: k, Val: eng.GetCellValue(k.Sheet, ka1)}
		if f, ok := eng.CellFormula(k.Sheet, ka1); ok {
			e.Formula = f
		}
		if e.Children, err = depTree(eng, k.Sheet, ka1, depth-1, next); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func renderDeps(cctx *CommandContext, eng *engine.Engine, sheet, a1 string, pre, dep []depEntry) error {
	r := cctx.Renderer
	loc := eng.Locale()
	target := sheet + "!" + a1
	formula, _ := eng.CellFormula(sheet, a1)
	val := eng.GetCellValue(sheet, a1)

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(output.DepsOutput{
			Cell:       target,
			Formula:    formula,
			Precedents: depNodes(pre),
			Dependents: depNodes(dep),
		})

	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, target))
		r.Println("")
		if formula != "" {
			r.Println(output.FormatKeyValue("Formula", formula))
		}
		r.Println(output.FormatKeyValue("Value", output.DisplayValue(val, loc)))
		r.Println("")

		r.Println(output.FormatHeader(2, "Precedents"))
		markdownDepTree(r, loc, pre, 0)
		r.Println("")
		r.Println(output.FormatHeader(2, "Dependents"))
		markdownDepTree(r, loc, dep, 0)
		return nil

	default:
		styles := r.Styles()

		r.Header(1, target)
		if formula != "" {
			r.Println(styles.Formula.Render(formula))
		}
		r.Printf("value: %s\n", output.DisplayValue(val, loc))
		r.Println("")

		r.Println(styles.Header2.Render("Precedents:"))
		printDepTree(r, loc, pre, 1)
		r.Println("")
		r.Println(styles.Header2.Render("Dependents:"))
		printDepTree(r, loc, dep, 1)
		return nil
	}
}

// printDepTree writes one styled line per cell, indented by depth.
func printDepTree(r *output.Renderer, loc *locale.Locale, entries []depEntry, indent int) {
	if len(entries) == 0 && indent == 1 {
		r.Println(r.Styles().Muted.Render("  (none)"))
		return
	}

	styles := r.Styles()
	pad := strings.Repeat("  ", indent)
	for _, e := range entries {
		line := fmt.Sprintf("%s%s = %s", pad, styles.CellAddr.Render(e.Key.String()), output.DisplayValue(e.Val, loc))
		if e.Formula != "" {
			line += "  " + styles.Muted.Render(e.Formula)
		}
		r.Println(line)
		printDepTree(r, loc, e.Children, indent+1)
	}
}

// markdownDepTree writes a nested bullet list.
func markdownDepTree(r *output.Renderer, loc *locale.Locale, entries []depEntry, indent int) {
	if len(entries) == 0 && indent == 0 {
		r.Println("- (none)")
		return
	}

	pad := strings.Repeat("  ", indent)
	for _, e := range entries {
		line := fmt.Sprintf("%s- %s = %s", pad, e.Key.String(), output.DisplayValue(e.Val, loc))
		if e.Formula != "" {
			line += fmt.Sprintf(" (`%s`)", e.Formula)
		}
		r.Println(line)
		markdownDepTree(r, loc, e.Children, indent+1)
	}
}

// depNodes converts a tree to its JSON shape.
func depNodes(entries []depEntry) []output.DepNode {
	nodes := make([]output.DepNode, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, output.DepNode{
			Cell:     e.Key.String(),
			Formula:  e.Formula,
			Value:    output.JSONValue(e.Val),
			Children: depNodes(e.Children),
		})
	}
	return nodes
}
