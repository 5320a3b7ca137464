package commands

import (
	"fmt"
	"io"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapcalc/internal/cli/output"
	"github.com/leapstack-labs/leapcalc/internal/engine"
	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// cellEntry is one populated cell prepared for rendering.
type cellEntry struct {
	Row, Col int
	Addr     string
	Val      value.Value
	Formula  string
}

// collectCells gathers the populated cells of a sheet in row-major
// order. Formula cells count as populated even when their result is
// blank or lies outside the written extent.
func collectCells(eng *engine.Engine, sheet string) []cellEntry {
	rows, cols := eng.SheetDims(sheet)

	seen := make(map[[2]int]bool)
	var entries []cellEntry
	add := func(row, col int) {
		if seen[[2]int{row, col}] {
			return
		}
		seen[[2]int{row, col}] = true
		a1 := ref.FormatA1(ref.Addr{Row: row, Col: col})
		v := eng.GetCellValue(sheet, a1)
		f, hasFormula := eng.CellFormula(sheet, a1)
		if v.IsEmpty() && !hasFormula {
			return
		}
		entries = append(entries, cellEntry{Row: row, Col: col, Addr: a1, Val: v, Formula: f})
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			add(r, c)
		}
	}
	for _, key := range eng.FormulaCells() {
		if key.Sheet == sheet {
			add(key.Row, key.Col)
		}
	}

	slices.SortFunc(entries, func(a, b cellEntry) int {
		if a.Row != b.Row {
			return a.Row - b.Row
		}
		return a.Col - b.Col
	})
	return entries
}

// renderSheetTable writes a sheet's populated cells as a bordered table.
func renderSheetTable(w io.Writer, loc *locale.Locale, entries []cellEntry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "(empty sheet)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Cell", "Value", "Formula"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Addr, output.DisplayValue(e.Val, loc), e.Formula})
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d cells)\n", len(entries))
}

// renderSheetMarkdown writes a sheet's populated cells as a markdown
// table.
func renderSheetMarkdown(w io.Writer, loc *locale.Locale, entries []cellEntry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "(empty sheet)")
		return
	}

	_, _ = fmt.Fprintln(w, "| Cell | Value | Formula |")
	_, _ = fmt.Fprintln(w, "| --- | --- | --- |")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "| %s | %s | %s |\n", e.Addr, output.DisplayValue(e.Val, loc), e.Formula)
	}
}

// sheetOutput converts a sheet's cells for JSON rendering.
func sheetOutput(name string, entries []cellEntry) output.SheetOutput {
	so := output.SheetOutput{Name: name, Cells: make([]output.CellOutput, 0, len(entries))}
	for _, e := range entries {
		so.Cells = append(so.Cells, output.CellOutput{
			Address: e.Addr,
			Value:   output.JSONValue(e.Val),
			Kind:    e.Val.Kind().String(),
			Formula: e.Formula,
		})
	}
	return so
}

// passOutput converts a recalculation result for JSON rendering.
func passOutput(res *engine.RecalcResult) output.PassOutput {
	return output.PassOutput{
		Pass:       res.Pass,
		Evaluated:  res.Evaluated,
		Components: res.Components,
		Circular:   res.Circular,
		Iterations: res.Iterations,
		Sweeps:     res.Sweeps,
		DurationMs: float64(res.Duration.Microseconds()) / 1000.0,
		Issues:     issueStrings(res.Issues),
	}
}

// issueStrings flattens the joined issue error into one line per issue.
func issueStrings(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs := joined.Unwrap()
		out := make([]string, 0, len(errs))
		for _, e := range errs {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

// renderPassSummary prints a one-line pass summary plus any issues.
func renderPassSummary(r *output.Renderer, res *engine.RecalcResult) {
	styles := r.Styles()

	line := fmt.Sprintf("Evaluated %d cells in %d components (%s)",
		res.Evaluated, res.Components, res.Duration)
	if res.Circular > 0 {
		line += fmt.Sprintf(", %d circular", res.Circular)
	}
	if res.Iterations > 0 {
		line += fmt.Sprintf(", %d iterations", res.Iterations)
	}
	r.Println(styles.Muted.Render(line))

	for _, issue := range issueStrings(res.Issues) {
		r.Errorf("%s\n", styles.Warning.Render("issue: "+issue))
	}
}
