package loader

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/leapcalc/internal/engine"
	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// Options override document-level settings, typically from CLI flags.
type Options struct {
	// Locale wins over the document's locale field.
	Locale *locale.Locale
	// Workers wins over the document's workers field when positive.
	Workers int
	// Iterative applies when the document carries no iterative block
	// of its own.
	Iterative *engine.IterativeConfig
	// Filename seeds CELL("filename") unless the document's metadata
	// sets it explicitly.
	Filename string
	// Logger is handed to the engine.
	Logger *slog.Logger
}

// Build constructs an engine from a document: settings first, then
// sheets in workbook order with cells in address order, then names,
// tables and metadata. A formula that fails to parse stays in its
// cell and evaluates to #NAME?; the first pass reports it as an
// issue. Nothing is calculated here.
func Build(doc *Document, opts Options) (*engine.Engine, error) {
	loc := opts.Locale
	if loc == nil && doc.Locale != "" {
		l, ok := locale.Get(doc.Locale)
		if !ok {
			return nil, fmt.Errorf("unknown locale %q, have %s",
				doc.Locale, strings.Join(locale.List(), ", "))
		}
		loc = l
	}
	cfg := engine.Config{
		Locale:  loc,
		Workers: doc.Workers,
		Logger:  opts.Logger,
	}
	if opts.Workers > 0 {
		cfg.Workers = opts.Workers
	}
	switch {
	case doc.Iterative != nil:
		cfg.Iterative = engine.IterativeConfig{
			Enabled:       doc.Iterative.Enabled,
			MaxIterations: doc.Iterative.MaxIterations,
			Epsilon:       doc.Iterative.Epsilon,
		}
	case opts.Iterative != nil:
		cfg.Iterative = *opts.Iterative
	}
	if len(doc.External) > 0 {
		provider := make(engine.MapProvider, len(doc.External))
		for key, raw := range doc.External {
			f, v, err := cellInput(raw)
			if err != nil {
				return nil, fmt.Errorf("external.%s: %w", key, err)
			}
			if f != "" {
				return nil, fmt.Errorf("external.%s: stub must be a plain value", key)
			}
			provider[key] = v
		}
		cfg.Provider = provider
	}

	e, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	order := doc.sheetOrder()
	for _, sheet := range order {
		e.AddSheet(sheet)
	}
	for _, sheet := range order {
		cells := doc.Sheets[sheet]
		addrs := make([]string, 0, len(cells))
		for a := range cells {
			addrs = append(addrs, a)
		}
		slices.Sort(addrs)
		for _, a := range addrs {
			f, v, err := cellInput(cells[a])
			if err != nil {
				return nil, fmt.Errorf("sheets.%s.%s: %w", sheet, a, err)
			}
			switch {
			case f != "":
				// a parse failure is stored with the cell; the
				// address itself was validated in check
				_ = e.SetCellFormula(sheet, a, f)
			case !v.IsEmpty():
				if err := e.SetCellValue(sheet, a, v); err != nil {
					return nil, fmt.Errorf("sheets.%s.%s: %w", sheet, a, err)
				}
			}
		}
	}
	for _, n := range doc.Names {
		if err := e.DefineName(n.Sheet, n.Name, n.Value); err != nil {
			return nil, fmt.Errorf("names.%s: %w", n.Name, err)
		}
	}
	for _, t := range doc.Tables {
		r, _ := ref.ParseA1Range(t.Range)
		err := e.DefineTable(engine.Table{
			Name:       t.Name,
			Sheet:      t.Sheet,
			Range:      r,
			HeaderRow:  t.HeaderRow,
			TotalsRows: t.TotalsRows,
		})
		if err != nil {
			return nil, fmt.Errorf("tables.%s: %w", t.Name, err)
		}
	}
	if opts.Filename != "" {
		e.SetMetadata("filename", opts.Filename)
	}
	for k, v := range doc.Metadata {
		e.SetMetadata(k, v)
	}
	for sheet, meta := range doc.SheetMeta {
		for k, v := range meta {
			e.SetSheetMetadata(sheet, k, v)
		}
	}
	return e, nil
}

// sheetOrder returns the declared order followed by the remaining
// sheets alphabetically, so workbook order is reproducible.
func (doc *Document) sheetOrder() []string {
	seen := make(map[string]bool, len(doc.Order))
	out := make([]string, 0, len(doc.Sheets)+len(doc.Order))
	for _, s := range doc.Order {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	rest := make([]string, 0, len(doc.Sheets))
	for s := range doc.Sheets {
		if !seen[s] {
			rest = append(rest, s)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

// Classify maps a document cell scalar to either formula text or a
// plain value, exactly as Build ingests cells. Hosts that edit a live
// engine from a reloaded document use it to apply cell changes.
func Classify(raw any) (formulaText string, v value.Value, err error) {
	return cellInput(raw)
}

// cellInput classifies one document scalar: a "=" string is a
// formula, a leading apostrophe escapes literal text, timestamps
// become day serials, everything else is a plain value.
func cellInput(raw any) (formulaText string, v value.Value, err error) {
	switch x := raw.(type) {
	case nil:
		return "", value.Empty(), nil
	case bool:
		return "", value.Bool(x), nil
	case int:
		return "", value.Number(float64(x)), nil
	case int64:
		return "", value.Number(float64(x)), nil
	case uint64:
		return "", value.Number(float64(x)), nil
	case float64:
		return "", value.Number(x), nil
	case string:
		if strings.HasPrefix(x, "=") {
			return x, value.Value{}, nil
		}
		return "", value.Text(strings.TrimPrefix(x, "'")), nil
	case time.Time:
		return "", value.Number(daySerial(x)), nil
	}
	return "", value.Value{}, fmt.Errorf("unsupported value type %T", raw)
}

// daySerial converts a timestamp to the spreadsheet serial with the
// 1899-12-30 epoch.
func daySerial(t time.Time) float64 {
	epoch := time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
	return t.Sub(epoch).Hours() / 24
}
