// Package loader reads workbook documents for the CLI host. The YAML
// format is ingest only, not an owned persistence format: sheets map
// cell addresses to scalars or formula strings, with optional defined
// names, tables, external stub values and calculation settings.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapcalc/pkg/ref"
)

// Document is one parsed workbook file.
type Document struct {
	// Locale names the formula locale, such as "en-US" or "de-DE".
	Locale string `yaml:"locale"`
	// Workers bounds parallel recalculation.
	Workers int `yaml:"workers"`
	// Iterative enables fixed-point resolution of circular groups.
	Iterative *IterativeDoc `yaml:"iterative"`
	// Order fixes the workbook sheet order. Sheets not listed follow
	// alphabetically.
	Order []string `yaml:"order"`
	// Sheets maps sheet names to cell maps. A string starting with
	// "=" is a formula, a leading apostrophe escapes literal text,
	// every other scalar is a plain value.
	Sheets map[string]map[string]any `yaml:"sheets"`
	Names  []NameDoc                 `yaml:"names"`
	Tables []TableDoc                `yaml:"tables"`
	// External stubs cell values of other workbooks, keyed
	// "[Book]Sheet!A1".
	External map[string]any `yaml:"external"`
	// Metadata feeds INFO and CELL("filename").
	Metadata  map[string]string            `yaml:"metadata"`
	SheetMeta map[string]map[string]string `yaml:"sheet_metadata"`
}

// NameDoc is one defined name. Value holds a formula or constant
// expression; a non-empty Sheet scopes the name to that sheet.
type NameDoc struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
	Sheet string `yaml:"sheet"`
}

// TableDoc declares a structured-reference table over an A1 range.
type TableDoc struct {
	Name       string `yaml:"name"`
	Sheet      string `yaml:"sheet"`
	Range      string `yaml:"range"`
	HeaderRow  bool   `yaml:"header_row"`
	TotalsRows int    `yaml:"totals_rows"`
}

// IterativeDoc mirrors the engine's iterative calculation settings.
type IterativeDoc struct {
	Enabled       bool    `yaml:"enabled"`
	MaxIterations int     `yaml:"max_iterations"`
	Epsilon       float64 `yaml:"epsilon"`
}

// Load reads and parses a workbook file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	var perr *ParseError
	if errors.As(err, &perr) {
		perr.File = path
	}
	return doc, err
}

// Parse decodes a workbook document. Unknown fields are rejected so a
// misspelled setting cannot silently drop.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &Document{}, nil
		}
		return nil, &ParseError{Message: err.Error()}
	}
	if err := doc.check(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// check validates document syntax: addresses, ranges and keys. Engine
// level problems, such as an unknown locale, surface in Build.
func (doc *Document) check() error {
	if doc.Workers < 0 {
		return &ParseError{Context: "workers", Message: "must not be negative"}
	}
	if it := doc.Iterative; it != nil {
		if it.MaxIterations < 0 {
			return &ParseError{Context: "iterative.max_iterations", Message: "must not be negative"}
		}
		if it.Epsilon < 0 {
			return &ParseError{Context: "iterative.epsilon", Message: "must not be negative"}
		}
	}
	for sheet, cells := range doc.Sheets {
		if sheet == "" {
			return &ParseError{Context: "sheets", Message: "empty sheet name"}
		}
		for addr := range cells {
			if _, ok := ref.ParseA1(addr); !ok {
				return &ParseError{
					Context: "sheets." + sheet + "." + addr,
					Message: "not a cell address",
				}
			}
		}
	}
	for i, n := range doc.Names {
		if n.Name == "" {
			return &ParseError{Context: fmt.Sprintf("names[%d]", i), Message: "missing name"}
		}
		if n.Value == "" {
			return &ParseError{Context: "names." + n.Name, Message: "missing value"}
		}
	}
	for i, t := range doc.Tables {
		ctx := fmt.Sprintf("tables[%d]", i)
		if t.Name != "" {
			ctx = "tables." + t.Name
		}
		if t.Name == "" || t.Sheet == "" {
			return &ParseError{Context: ctx, Message: "needs a name and a sheet"}
		}
		if r, ok := ref.ParseA1Range(t.Range); !ok || !r.Bounded() {
			return &ParseError{Context: ctx, Message: fmt.Sprintf("range %q is not a bounded A1 range", t.Range)}
		}
		if t.TotalsRows < 0 {
			return &ParseError{Context: ctx, Message: "totals_rows must not be negative"}
		}
	}
	for key := range doc.External {
		if err := checkExternalKey(key); err != nil {
			return &ParseError{Context: "external." + key, Message: err.Error()}
		}
	}
	return nil
}

func checkExternalKey(key string) error {
	i := strings.LastIndexByte(key, '!')
	if i < 0 {
		return errors.New("missing '!' before the cell")
	}
	if _, err := ref.ParseExternalKey(key[:i]); err != nil {
		return err
	}
	if _, ok := ref.ParseA1(key[i+1:]); !ok {
		return fmt.Errorf("%q is not a cell address", key[i+1:])
	}
	return nil
}

// ParseError reports an invalid workbook document.
type ParseError struct {
	File    string
	Context string // dotted path inside the document
	Message string
}

func (e *ParseError) Error() string {
	msg := e.Message
	if e.Context != "" {
		msg = e.Context + ": " + msg
	}
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	return msg
}
