package commands

import (
	"context"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"slices"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/leapcalc/internal/engine"
	"github.com/leapstack-labs/leapcalc/internal/loader"
	"github.com/leapstack-labs/leapcalc/pkg/value"
	"github.com/spf13/cobra"
)

// watchDebounce coalesces the burst of events an editor fires per save.
const watchDebounce = 100 * time.Millisecond

// watchBook recalculates the workbook whenever its file changes, until
// interrupted. The doc and eng arguments may be nil when the initial
// load failed; the first good reload builds from scratch.
func watchBook(cmd *cobra.Command, cctx *CommandContext, path string, opts *CalcOptions, doc *loader.Document, eng *engine.Engine) error {
	r := cctx.Renderer

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory, not the file: editors replace files on
	// save, which would drop a watch held on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.Errorf("Watching %s for changes (Ctrl+C to stop)\n", path)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Base(event.Name) != filepath.Base(path) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.Errorf("watch error: %v\n", err)

		case <-reload:
			doc, eng = reloadBook(ctx, cctx, path, opts, doc, eng)
		}
	}
}

// reloadBook refreshes the engine after a file change. When only cell
// contents changed, the edits apply to the live engine and just the
// affected formulas recalculate; any other change rebuilds the engine
// and runs a full pass. A broken reload keeps the previous state.
func reloadBook(ctx context.Context, cctx *CommandContext, path string, opts *CalcOptions, oldDoc *loader.Document, eng *engine.Engine) (*loader.Document, *engine.Engine) {
	r := cctx.Renderer

	newDoc, err := loader.Load(path)
	if err != nil {
		r.Errorf("Error: %v\n", err)
		return oldDoc, eng
	}

	incremental := eng != nil && oldDoc != nil &&
		sameEngineShape(oldDoc, newDoc) &&
		applyCellChanges(eng, oldDoc, newDoc)

	if !incremental {
		bopts, err := bookOptions(cctx, path)
		if err != nil {
			r.Errorf("Error: %v\n", err)
			return oldDoc, eng
		}
		fresh, err := loader.Build(newDoc, bopts)
		if err != nil {
			r.Errorf("Error: %v\n", err)
			return oldDoc, eng
		}
		eng = fresh
	}

	var res *engine.RecalcResult
	if incremental {
		res, err = eng.Recalculate(ctx)
	} else {
		res, err = eng.RecalculateAll(ctx)
	}
	if err != nil {
		r.Errorf("Error: %v\n", err)
		return newDoc, eng
	}

	if err := renderBook(cctx, eng, filepath.Base(path), res, opts.Sheet); err != nil {
		r.Errorf("Error: %v\n", err)
	}
	return newDoc, eng
}

// sameEngineShape reports whether two documents agree on everything
// outside cell contents. When they do, the change set can apply to the
// live engine instead of rebuilding it.
func sameEngineShape(a, b *loader.Document) bool {
	return a.Locale == b.Locale &&
		a.Workers == b.Workers &&
		reflect.DeepEqual(a.Iterative, b.Iterative) &&
		slices.Equal(a.Order, b.Order) &&
		slices.Equal(a.Names, b.Names) &&
		slices.Equal(a.Tables, b.Tables) &&
		reflect.DeepEqual(a.External, b.External) &&
		maps.Equal(a.Metadata, b.Metadata) &&
		reflect.DeepEqual(a.SheetMeta, b.SheetMeta)
}

// applyCellChanges applies cell-level edits between two documents to a
// live engine. It reports false when the change set cannot apply in
// place, such as an added or removed sheet or a scalar the loader
// cannot classify.
func applyCellChanges(eng *engine.Engine, before, after *loader.Document) bool {
	if len(before.Sheets) != len(after.Sheets) {
		return false
	}
	for name := range after.Sheets {
		if _, ok := before.Sheets[name]; !ok {
			return false
		}
	}

	for name, cells := range after.Sheets {
		oldCells := before.Sheets[name]
		for addr, raw := range cells {
			if prev, ok := oldCells[addr]; ok && reflect.DeepEqual(prev, raw) {
				continue
			}
			src, v, err := loader.Classify(raw)
			if err != nil {
				return false
			}
			if src != "" {
				// A parse failure stays with the cell and surfaces as
				// a pass issue, same as at load time.
				_ = eng.SetCellFormula(name, addr, src)
			} else {
				_ = eng.SetCellValue(name, addr, v)
			}
		}
		for addr := range oldCells {
			if _, ok := cells[addr]; !ok {
				_ = eng.SetCellValue(name, addr, value.Empty())
			}
		}
	}
	return true
}
