// Package fn hosts the builtin function table of the calculation
// engine. A Table is an explicit instance: the engine receives one at
// construction and there is no package-level mutable registry, so two
// engines can run different function sets side by side.
//
// Function implementations receive already-evaluated arguments. The
// evaluator short-circuits on the first error argument unless the
// descriptor opts into inspecting errors, and a handful of
// control-flow forms (IF, CHOOSE, LET, ...) are marked Lazy: for
// those the evaluator keeps control of argument evaluation and the
// table entry only contributes name, arity and volatility.
package fn

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// Category groups functions for documentation and the CLI listing.
type Category string

const (
	CategoryMath        Category = "math"
	CategoryStats       Category = "statistical"
	CategoryLogical     Category = "logical"
	CategoryText        Category = "text"
	CategoryLookup      Category = "lookup"
	CategoryInfo        Category = "information"
	CategoryDateTime    Category = "datetime"
	CategoryEngineering Category = "engineering"
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{
		CategoryMath,
		CategoryStats,
		CategoryLogical,
		CategoryText,
		CategoryLookup,
		CategoryInfo,
		CategoryDateTime,
		CategoryEngineering,
	}
}

// Impl is a function body. It never returns a Go error; failures are
// expressed as error values, exactly as a cell would show them.
type Impl func(c *Call) value.Value

// Descriptor describes one function: canonical name, arity bounds,
// evaluation flags and the implementation.
type Descriptor struct {
	Name     string
	Category Category

	// MinArgs and MaxArgs bound the accepted argument count.
	// MaxArgs of -1 means variadic.
	MinArgs int
	MaxArgs int

	// Volatile functions re-evaluate on every recalculation pass
	// regardless of dependencies (NOW, RAND, OFFSET, ...).
	Volatile bool

	// ErrorArgs suppresses the first-error short-circuit so the
	// implementation sees error values (ISERROR, COUNT, ...).
	ErrorArgs bool

	// Lazy hands argument evaluation to the evaluator; Impl is nil.
	Lazy bool

	Impl Impl
}

// Table is an immutable-after-construction function registry keyed by
// canonical uppercase name.
type Table struct {
	byName map[string]*Descriptor
}

// NewTable builds a table holding the full builtin set.
func NewTable() *Table {
	t := &Table{byName: make(map[string]*Descriptor, 192)}
	for _, group := range [][]Descriptor{
		mathBuiltins(),
		statBuiltins(),
		logicalBuiltins(),
		textBuiltins(),
		lookupBuiltins(),
		infoBuiltins(),
		dateTimeBuiltins(),
		engineeringBuiltins(),
	} {
		for i := range group {
			if err := t.Register(group[i]); err != nil {
				panic(err)
			}
		}
	}
	return t
}

// Register adds a function. The name is normalized to canonical
// uppercase form; duplicate names and malformed descriptors are
// rejected.
func (t *Table) Register(d Descriptor) error {
	d.Name = locale.NormalizeName(d.Name)
	if d.Name == "" {
		return fmt.Errorf("register function: empty name")
	}
	if _, exists := t.byName[d.Name]; exists {
		return fmt.Errorf("register function %s: already registered", d.Name)
	}
	if d.MaxArgs != -1 && d.MaxArgs < d.MinArgs {
		return fmt.Errorf("register function %s: max arity %d below min %d", d.Name, d.MaxArgs, d.MinArgs)
	}
	if d.Impl == nil && !d.Lazy {
		return fmt.Errorf("register function %s: missing implementation", d.Name)
	}
	t.byName[d.Name] = &d
	return nil
}

// Lookup finds a function by canonical name. Callers localize first;
// lookup itself only normalizes case.
func (t *Table) Lookup(name string) (*Descriptor, bool) {
	d, ok := t.byName[locale.NormalizeName(name)]
	return d, ok
}

// Names lists all registered canonical names, sorted.
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.byName))
	for name := range t.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ByCategory lists the descriptors of one category, sorted by name.
func (t *Table) ByCategory(c Category) []*Descriptor {
	var out []*Descriptor
	for _, name := range t.Names() {
		if d := t.byName[name]; d.Category == c {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of registered functions.
func (t *Table) Len() int {
	return len(t.byName)
}

// CheckArity validates an argument count against the descriptor.
func (d *Descriptor) CheckArity(n int) bool {
	if n < d.MinArgs {
		return false
	}
	return d.MaxArgs == -1 || n <= d.MaxArgs
}
