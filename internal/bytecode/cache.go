package bytecode

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/leapstack-labs/leapcalc/internal/fn"
	"github.com/leapstack-labs/leapcalc/pkg/formula"
)

// Cache maps expression shapes to compiled programs. A filled-down
// column of formulas shares one shape, so one compilation serves the
// whole column. Failed compilations are cached too, keeping the
// tree-evaluation fallback from re-attempting them.
type Cache struct {
	compiler *Compiler
	entries  sync.Map // shape -> *entry
	flight   singleflight.Group
	hits     atomic.Int64
	misses   atomic.Int64
}

// entry is stored complete and never mutated afterwards.
type entry struct {
	prog *Program
	err  error
}

// NewCache builds a cache compiling against the given function table.
func NewCache(fns *fn.Table) *Cache {
	return &Cache{compiler: NewCompiler(fns)}
}

// GetOrCompile returns the program for an expression, compiling it on
// first sight. Concurrent first requests for one shape are collapsed
// into a single compilation. The error is ErrNotCompilable-based for
// expressions the compiler refuses.
func (c *Cache) GetOrCompile(e formula.Expr) (*Program, error) {
	shape := Shape(e)
	if got, ok := c.entries.Load(shape); ok {
		c.hits.Add(1)
		ent := got.(*entry)
		return ent.prog, ent.err
	}
	c.misses.Add(1)
	got, _, _ := c.flight.Do(shape, func() (any, error) {
		if got, ok := c.entries.Load(shape); ok {
			return got, nil
		}
		prog, err := c.compiler.Compile(e)
		ent := &entry{prog: prog, err: err}
		c.entries.Store(shape, ent)
		return ent, nil
	})
	ent := got.(*entry)
	return ent.prog, ent.err
}

// Stats summarizes cache activity since construction or the last
// Reset. Hit and miss counters are cumulative across Resets.
type Stats struct {
	Programs int
	Failed   int
	Hits     int64
	Misses   int64
}

func (c *Cache) Stats() Stats {
	s := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	c.entries.Range(func(_, v any) bool {
		if v.(*entry).err != nil {
			s.Failed++
		} else {
			s.Programs++
		}
		return true
	})
	return s
}

// ShapeReport describes one cached shape for diagnostics output.
type ShapeReport struct {
	Shape        string
	Instructions int
	CompiledAt   time.Time
	Err          string
}

// Report lists all cached shapes in deterministic order.
func (c *Cache) Report() []ShapeReport {
	var out []ShapeReport
	c.entries.Range(func(k, v any) bool {
		ent := v.(*entry)
		rep := ShapeReport{Shape: k.(string)}
		if ent.err != nil {
			rep.Err = ent.err.Error()
		} else {
			rep.Instructions = len(ent.prog.Code)
			rep.CompiledAt = ent.prog.CompiledAt
		}
		out = append(out, rep)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Shape < out[j].Shape })
	return out
}

// Reset drops every cached program. Call after the function table
// changes, since programs hold resolved descriptors.
func (c *Cache) Reset() {
	c.entries.Clear()
}
