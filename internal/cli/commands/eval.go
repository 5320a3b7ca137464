package commands

import (
	"strings"

	"github.com/leapstack-labs/leapcalc/internal/cli/output"
	"github.com/leapstack-labs/leapcalc/internal/engine"
	"github.com/leapstack-labs/leapcalc/pkg/value"
	"github.com/spf13/cobra"
)

// EvalOptions holds options for the eval command.
type EvalOptions struct {
	Book string
	Cell string
}

// NewEvalCommand creates the eval command.
func NewEvalCommand() *cobra.Command {
	opts := &EvalOptions{}

	cmd := &cobra.Command{
		Use:   "eval <formula>",
		Short: "Evaluate a single formula",
		Long: `Evaluate one formula and print its result.

With --book the formula reads the workbook's recalculated cells;
without it the formula runs against an empty sheet. Relative
references resolve from the origin cell set by --cell.`,
		Example: `  # Plain arithmetic
  leapcalc eval '=SUM(1,2,3)*2'

  # Against a workbook
  leapcalc eval '=Revenue!B2*1.19' --book budget.yaml

  # In another locale
  leapcalc eval '=SUMME(1,5;2,5)' --locale de-DE

  # Anchored for relative references
  leapcalc eval '=A1+A2' --book budget.yaml --cell Main!B1

  # Output as JSON
  leapcalc eval '=TODAY()' --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Book, "book", "b", "", "Workbook file to evaluate against")
	cmd.Flags().StringVar(&opts.Cell, "cell", "", "Origin cell for relative references (e.g. Sheet1!B2)")

	return cmd
}

func runEval(cmd *cobra.Command, formula string, opts *EvalOptions) error {
	cctx := NewCommandContext(cmd)

	var eng *engine.Engine
	var err error
	if opts.Book != "" {
		eng, err = openBook(cctx, opts.Book)
		if err != nil {
			return err
		}
		if _, err := eng.RecalculateAll(cmd.Context()); err != nil {
			return err
		}
	} else {
		eng, err = scratchEngine(cctx)
		if err != nil {
			return err
		}
	}

	sheet, a1 := splitCell(eng, opts.Cell)
	v, err := eng.Evaluate(sheet, a1, formula)
	if err != nil {
		return err
	}

	return renderEval(cctx, eng, formula, sheet+"!"+a1, v)
}

// splitCell resolves the origin flag to a sheet and address. Empty
// input anchors at A1 of the first sheet; a bare address anchors on
// the first sheet.
func splitCell(eng *engine.Engine, cell string) (sheet, a1 string) {
	sheet = "Sheet1"
	if sheets := eng.Sheets(); len(sheets) > 0 {
		sheet = sheets[0]
	}
	if cell == "" {
		return sheet, "A1"
	}
	if i := strings.LastIndexByte(cell, '!'); i >= 0 {
		return strings.Trim(cell[:i], "'"), cell[i+1:]
	}
	return sheet, cell
}

func renderEval(cctx *CommandContext, eng *engine.Engine, formula, cell string, v value.Value) error {
	r := cctx.Renderer
	loc := eng.Locale()

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(output.EvalOutput{
			Formula: formula,
			Cell:    cell,
			Locale:  loc.Name,
			Kind:    v.Kind().String(),
			Value:   output.JSONValue(v),
		})

	case output.ModeMarkdown:
		r.Println(output.FormatCodeBlock("", formula))
		r.Println(output.FormatKeyValue("Result", output.DisplayValue(v, loc)))
		return nil

	default:
		styles := r.Styles()
		display := output.DisplayValue(v, loc)
		if v.IsError() {
			display = styles.ErrValue.Render(display)
		}
		r.Println(display)
		return nil
	}
}
