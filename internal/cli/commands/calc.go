package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/leapstack-labs/leapcalc/internal/cli/output"
	"github.com/leapstack-labs/leapcalc/internal/engine"
	"github.com/leapstack-labs/leapcalc/internal/loader"
	"github.com/spf13/cobra"
)

// CalcOptions holds options for the calc command.
type CalcOptions struct {
	Watch bool
	Sheet string
}

// NewCalcCommand creates the calc command.
func NewCalcCommand() *cobra.Command {
	opts := &CalcOptions{}

	cmd := &cobra.Command{
		Use:   "calc <book.yaml>",
		Short: "Recalculate a workbook and print its sheets",
		Long: `Load a workbook file, evaluate every formula in dependency order and
print the resulting sheets.

Broken formulas and circular references do not stop the pass; they
surface as error values in their cells and as issues in the summary.

Output adapts to environment:
  - Terminal: Styled tables with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Recalculate and print all sheets
  leapcalc calc budget.yaml

  # Print a single sheet
  leapcalc calc budget.yaml --sheet Summary

  # Recalculate whenever the file changes
  leapcalc calc budget.yaml --watch

  # Output as JSON
  leapcalc calc budget.yaml --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalc(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Recalculate whenever the file changes")
	cmd.Flags().StringVar(&opts.Sheet, "sheet", "", "Print only the named sheet")

	return cmd
}

func runCalc(cmd *cobra.Command, path string, opts *CalcOptions) error {
	cctx := NewCommandContext(cmd)

	doc, eng, res, err := loadAndCalc(cmd.Context(), cctx, path)
	if err != nil {
		if !opts.Watch {
			return err
		}
		// In watch mode a broken book is reported, then watched for
		// the fix.
		cctx.Renderer.Errorf("Error: %v\n", err)
	} else if err := renderBook(cctx, eng, filepath.Base(path), res, opts.Sheet); err != nil {
		return err
	}

	if !opts.Watch {
		return nil
	}
	return watchBook(cmd, cctx, path, opts, doc, eng)
}

// loadAndCalc builds an engine from a workbook file and runs a full
// calculation pass.
func loadAndCalc(ctx context.Context, cctx *CommandContext, path string) (*loader.Document, *engine.Engine, *engine.RecalcResult, error) {
	doc, err := loader.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	bopts, err := bookOptions(cctx, path)
	if err != nil {
		return nil, nil, nil, err
	}
	eng, err := loader.Build(doc, bopts)
	if err != nil {
		return nil, nil, nil, err
	}
	res, err := eng.RecalculateAll(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return doc, eng, res, nil
}

// renderBook prints the recalculated workbook in the renderer's mode.
func renderBook(cctx *CommandContext, eng *engine.Engine, book string, res *engine.RecalcResult, only string) error {
	r := cctx.Renderer
	loc := eng.Locale()

	sheets := eng.Sheets()
	if only != "" {
		if !slices.Contains(sheets, only) {
			return fmt.Errorf("no sheet named %q in %s", only, book)
		}
		sheets = []string{only}
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		co := output.CalcOutput{Book: book, Pass: passOutput(res)}
		for _, name := range sheets {
			co.Sheets = append(co.Sheets, sheetOutput(name, collectCells(eng, name)))
		}
		return r.JSON(co)

	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, book))
		r.Println("")
		for _, name := range sheets {
			r.Println(output.FormatHeader(2, name))
			renderSheetMarkdown(r.Writer(), loc, collectCells(eng, name))
			r.Println("")
		}
		r.Println(output.FormatKeyValue("Evaluated", fmt.Sprintf("%d cells", res.Evaluated)))
		r.Println(output.FormatKeyValue("Duration", res.Duration.String()))
		if res.Circular > 0 {
			r.Println(output.FormatKeyValue("Circular", fmt.Sprintf("%d cells", res.Circular)))
		}
		for _, issue := range issueStrings(res.Issues) {
			r.Println(output.FormatKeyValue("Issue", issue))
		}

	default:
		styles := r.Styles()
		r.Header(1, book)
		for _, name := range sheets {
			r.Println(styles.Header2.Render(name))
			renderSheetTable(r.Writer(), loc, collectCells(eng, name))
			r.Println("")
		}
		renderPassSummary(r, res)
	}

	return nil
}
