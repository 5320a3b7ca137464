package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapcalc/internal/cli/output"
	"github.com/leapstack-labs/leapcalc/internal/fn"
	"github.com/spf13/cobra"
)

// FnsOptions holds flags for the fns command.
type FnsOptions struct {
	Category string
}

// NewFnsCommand creates the fns command.
func NewFnsCommand() *cobra.Command {
	opts := &FnsOptions{}

	cmd := &cobra.Command{
		Use:   "fns",
		Short: "List the builtin functions",
		Long: `List every builtin spreadsheet function with its category, arity
and volatility. Localized workbooks spell these names per locale; the
listing shows the canonical names.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # All functions
  leapcalc fns

  # Just the lookup functions
  leapcalc fns --category lookup

  # Output as JSON
  leapcalc fns --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFns(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Category, "category", "", "only list one category")

	return cmd
}

func runFns(cmd *cobra.Command, opts *FnsOptions) error {
	cctx := NewCommandContext(cmd)

	tbl := fn.NewTable()
	descs, err := selectFunctions(tbl, opts.Category)
	if err != nil {
		return err
	}

	r := cctx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		out := output.FnsOutput{
			Functions: make([]output.FnInfo, 0, len(descs)),
			Total:     len(descs),
		}
		for _, d := range descs {
			out.Functions = append(out.Functions, output.FnInfo{
				Name:     d.Name,
				Category: string(d.Category),
				MinArgs:  d.MinArgs,
				MaxArgs:  d.MaxArgs,
				Volatile: d.Volatile,
			})
		}
		return r.JSON(out)

	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Functions"))
		r.Println("")
		r.Println("| Name | Category | Args | Volatile |")
		r.Println("| --- | --- | --- | --- |")
		for _, d := range descs {
			vol := ""
			if d.Volatile {
				vol = "yes"
			}
			r.Printf("| %s | %s | %s | %s |\n", d.Name, d.Category, argRange(d.MinArgs, d.MaxArgs), vol)
		}
		r.Println("")
		r.Println(output.FormatKeyValue("Total", fmt.Sprintf("%d", len(descs))))
		return nil

	default:
		r.Header(1, "Functions")
		renderFnTable(r.Writer(), descs)
		r.Println(r.Styles().Muted.Render(fmt.Sprintf("(%d functions)", len(descs))))
		return nil
	}
}

// selectFunctions resolves the optional category filter to a sorted
// descriptor list.
func selectFunctions(tbl *fn.Table, category string) ([]*fn.Descriptor, error) {
	if category == "" {
		descs := make([]*fn.Descriptor, 0, tbl.Len())
		for _, name := range tbl.Names() {
			d, _ := tbl.Lookup(name)
			descs = append(descs, d)
		}
		return descs, nil
	}

	want := fn.Category(strings.ToLower(category))
	for _, c := range fn.Categories() {
		if c == want {
			return tbl.ByCategory(want), nil
		}
	}

	names := make([]string, 0, len(fn.Categories()))
	for _, c := range fn.Categories() {
		names = append(names, string(c))
	}
	return nil, fmt.Errorf("unknown category %q (have %s)", category, strings.Join(names, ", "))
}

func renderFnTable(w io.Writer, descs []*fn.Descriptor) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Category", "Args", "Volatile"})
	for _, d := range descs {
		vol := ""
		if d.Volatile {
			vol = "yes"
		}
		t.AppendRow(table.Row{d.Name, d.Category, argRange(d.MinArgs, d.MaxArgs), vol})
	}
	t.Render()
}

// argRange renders arity bounds; a max of -1 means variadic.
func argRange(minArgs, maxArgs int) string {
	switch {
	case maxArgs == -1:
		return fmt.Sprintf("%d+", minArgs)
	case minArgs == maxArgs:
		return fmt.Sprintf("%d", minArgs)
	default:
		return fmt.Sprintf("%d-%d", minArgs, maxArgs)
	}
}
