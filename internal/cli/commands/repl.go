package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/leapcalc/internal/cli/output"
	"github.com/leapstack-labs/leapcalc/internal/engine"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
	"github.com/spf13/cobra"
)

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl [book.yaml]",
		Short: "Interactive formula session",
		Long: `Start an interactive session for evaluating formulas and editing
cells. With a workbook argument the session starts on its sheets;
without one it starts on an empty Sheet1.

  =SUM(A1:A9)     evaluate a formula on the active sheet
  B2 = 42         assign a value to a cell and recalculate
  B3 = =B2*2      assign a formula
  .help           list the dot-commands`,
		Example: `  # Empty session
  leapcalc repl

  # Session over a workbook
  leapcalc repl budget.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runREPL(cmd, path)
		},
	}
}

// replSession holds the interactive state: the engine and the sheet
// that unqualified cell references resolve against.
type replSession struct {
	cctx  *CommandContext
	eng   *engine.Engine
	sheet string
	out   io.Writer
	errW  io.Writer
}

func runREPL(cmd *cobra.Command, path string) error {
	cctx := NewCommandContext(cmd)

	var eng *engine.Engine
	var err error
	if path != "" {
		eng, err = openBook(cctx, path)
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

	s := &replSession{
		cctx:  cctx,
		eng:   eng,
		sheet: eng.Sheets()[0],
		out:   cmd.OutOrStdout(),
		errW:  cmd.ErrOrStderr(),
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		HistoryFile:     filepath.Join(os.TempDir(), "leapcalc_history"),
		AutoComplete:    newFormulaCompleter(eng),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	if path != "" {
		_, _ = fmt.Fprintf(s.out, "leapcalc REPL (book: %s)\n", path)
	} else {
		_, _ = fmt.Fprintln(s.out, "leapcalc REPL")
	}
	_, _ = fmt.Fprintln(s.out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(s.out)

	ctx := cmd.Context()
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if quit := s.handleDotCommand(ctx, line); quit {
				break
			}
			rl.SetPrompt(s.prompt())
			continue
		}

		s.handleInput(ctx, line)
	}

	return nil
}

// prompt shows the active sheet, the way unqualified input resolves.
func (s *replSession) prompt() string {
	return s.sheet + "> "
}

// handleInput applies a cell assignment or evaluates a formula.
func (s *replSession) handleInput(ctx context.Context, line string) {
	if target, rest, ok := splitAssignment(line); ok {
		s.assign(ctx, target, rest)
		return
	}
	s.evaluate(line)
}

// splitAssignment recognizes "A1 = ..." and "Sheet!A1 = ...". A line
// opening with "=" is always a formula, never an assignment.
func splitAssignment(line string) (target, rest string, ok bool) {
	if strings.HasPrefix(line, "=") {
		return "", "", false
	}
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	target = strings.TrimSpace(line[:i])
	rest = strings.TrimSpace(line[i+1:])

	addr := target
	if j := strings.LastIndexByte(target, '!'); j >= 0 {
		addr = target[j+1:]
	}
	if _, ok := ref.ParseA1(addr); !ok {
		return "", "", false
	}
	return target, rest, true
}

// assign writes a value or formula into a cell and recalculates the
// cells that depend on it.
func (s *replSession) assign(ctx context.Context, target, input string) {
	sheet, a1 := s.splitTarget(target)

	var err error
	if strings.HasPrefix(input, "=") {
		err = s.eng.SetCellFormula(sheet, a1, input)
	} else {
		err = s.eng.SetCellValue(sheet, a1, s.parseScalar(input))
	}
	if err != nil {
		_, _ = fmt.Fprintf(s.errW, "Error: %v\n", err)
		return
	}

	res, err := s.eng.Recalculate(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(s.errW, "Error: %v\n", err)
		return
	}

	v := s.eng.GetCellValue(sheet, a1)
	_, _ = fmt.Fprintf(s.out, "%s!%s = %s\n", sheet, a1, output.DisplayValue(v, s.eng.Locale()))
	for _, issue := range issueStrings(res.Issues) {
		_, _ = fmt.Fprintf(s.errW, "issue: %s\n", issue)
	}
}

// parseScalar interprets assigned input the way cells read: localized
// numbers, boolean words and error literals become typed values, a
// leading apostrophe escapes literal text, anything else is text.
func (s *replSession) parseScalar(input string) value.Value {
	loc := s.eng.Locale()
	if n, ok := loc.ParseNumber(input); ok {
		return value.Number(n)
	}
	if b, ok := loc.ParseBool(input); ok {
		return value.Bool(b)
	}
	if k, ok := loc.ParseError(input); ok {
		return value.Error(k)
	}
	return value.Text(strings.TrimPrefix(input, "'"))
}

// evaluate runs a one-shot formula without storing it.
func (s *replSession) evaluate(line string) {
	v, err := s.eng.Evaluate(s.sheet, "A1", line)
	if err != nil {
		_, _ = fmt.Fprintf(s.errW, "Error: %v\n", err)
		return
	}
	_, _ = fmt.Fprintln(s.out, output.DisplayValue(v, s.eng.Locale()))
}

// splitTarget resolves "Sheet!A1" or a bare address against the active
// sheet.
func (s *replSession) splitTarget(target string) (sheet, a1 string) {
	if i := strings.LastIndexByte(target, '!'); i >= 0 {
		return strings.Trim(target[:i], "'"), target[i+1:]
	}
	return s.sheet, target
}

func (s *replSession) handleDotCommand(ctx context.Context, line string) (quit bool) {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(s.out)

	case ".sheet":
		if len(parts) < 2 {
			_, _ = fmt.Fprintf(s.out, "Active sheet: %s (have %s)\n", s.sheet, strings.Join(s.eng.Sheets(), ", "))
			return false
		}
		name := parts[1]
		if !slices.Contains(s.eng.Sheets(), name) {
			s.eng.AddSheet(name)
			_, _ = fmt.Fprintf(s.out, "Added sheet %s\n", name)
		}
		s.sheet = name

	case ".show":
		renderSheetTable(s.out, s.eng.Locale(), collectCells(s.eng, s.sheet))

	case ".deps":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(s.errW, "Usage: .deps <cell>")
			return false
		}
		s.showDeps(parts[1])

	case ".dirty":
		if s.eng.HasDirtyCells() {
			_, _ = fmt.Fprintln(s.out, "Edits are awaiting recalculation; run .calc")
		} else {
			_, _ = fmt.Fprintln(s.out, "All cells are up to date")
		}

	case ".calc":
		full := len(parts) > 1 && strings.EqualFold(parts[1], "all")
		var res *engine.RecalcResult
		var err error
		if full {
			res, err = s.eng.RecalculateAll(ctx)
		} else {
			res, err = s.eng.Recalculate(ctx)
		}
		if err != nil {
			_, _ = fmt.Fprintf(s.errW, "Error: %v\n", err)
			return false
		}
		renderPassSummary(s.cctx.Renderer, res)

	case ".fns":
		filter := ""
		if len(parts) > 1 {
			filter = parts[1]
		}
		s.showFunctions(filter)

	default:
		_, _ = fmt.Fprintf(s.errW, "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

// showDeps prints the direct precedents and dependents of a cell.
func (s *replSession) showDeps(target string) {
	sheet, a1 := s.splitTarget(target)

	pre, err := s.eng.Precedents(sheet, a1)
	if err != nil {
		_, _ = fmt.Fprintf(s.errW, "Error: %v\n", err)
		return
	}
	dep, err := s.eng.Dependents(sheet, a1)
	if err != nil {
		_, _ = fmt.Fprintf(s.errW, "Error: %v\n", err)
		return
	}

	_, _ = fmt.Fprintf(s.out, "precedents: %s\n", keyNames(pre))
	_, _ = fmt.Fprintf(s.out, "dependents: %s\n", keyNames(dep))
}

// showFunctions lists function names, or the signature of one function.
func (s *replSession) showFunctions(filter string) {
	tbl := s.eng.Functions()

	if filter != "" {
		d, ok := tbl.Lookup(filter)
		if !ok {
			_, _ = fmt.Fprintf(s.errW, "Unknown function: %s\n", filter)
			return
		}
		_, _ = fmt.Fprintf(s.out, "%s  category %s, args %s", d.Name, d.Category, argRange(d.MinArgs, d.MaxArgs))
		if d.Volatile {
			_, _ = fmt.Fprint(s.out, ", volatile")
		}
		_, _ = fmt.Fprintln(s.out)
		return
	}

	names := tbl.Names()
	for i := 0; i < len(names); i += 6 {
		end := min(i+6, len(names))
		_, _ = fmt.Fprintln(s.out, strings.Join(names[i:end], "  "))
	}
	_, _ = fmt.Fprintf(s.out, "(%d functions)\n", len(names))
}

func keyNames(keys []ref.CellKey) string {
	if len(keys) == 0 {
		return "(none)"
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ", ")
}

func printREPLHelp(w io.Writer) {
	help := `
Input:
  =SUM(A1:A9)      Evaluate a formula on the active sheet
  B2 = 42          Assign a value and recalculate dependents
  B3 = =B2*2       Assign a formula
  B4 = 'text       Assign literal text (apostrophe escapes)

Commands:
  .sheet [name]    Show or switch the active sheet (adds missing sheets)
  .show            Print the active sheet's cells
  .deps <cell>     Show a cell's precedents and dependents
  .dirty           Report whether edits await recalculation
  .calc [all]      Recalculate changed cells, or everything with "all"
  .fns [name]      List functions, or show one signature
  .help            Show this help message
  .quit / .exit    Exit the REPL

Tips:
  - Use arrow keys to navigate history
  - Tab completion works for function names and commands
`
	_, _ = fmt.Fprintln(w, help)
}

// newFormulaCompleter completes function names and dot-commands.
func newFormulaCompleter(eng *engine.Engine) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, name := range eng.Functions().Names() {
		items = append(items, readline.PcItem(name))
	}

	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".sheet"),
		readline.PcItem(".show"),
		readline.PcItem(".deps"),
		readline.PcItem(".dirty"),
		readline.PcItem(".calc"),
		readline.PcItem(".fns"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)

	return readline.NewPrefixCompleter(items...)
}
