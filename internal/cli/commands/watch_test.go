package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapcalc/internal/loader"
	"github.com/leapstack-labs/leapcalc/pkg/locales/enus"
)

func parseDoc(t *testing.T, src string) *loader.Document {
	t.Helper()
	doc, err := loader.Parse([]byte(src))
	require.NoError(t, err)
	return doc
}

func TestSameEngineShape(t *testing.T) {
	base := `locale: en-US
workers: 2
sheets:
  Sheet1:
    A1: 1
names:
  - name: RATE
    value: "0.2"
`

	t.Run("cell edits keep the shape", func(t *testing.T) {
		a := parseDoc(t, base)
		b := parseDoc(t, `locale: en-US
workers: 2
sheets:
  Sheet1:
    A1: 99
    B5: hello
names:
  - name: RATE
    value: "0.2"
`)
		assert.True(t, sameEngineShape(a, b))
	})

	t.Run("locale change breaks the shape", func(t *testing.T) {
		a := parseDoc(t, base)
		b := parseDoc(t, base)
		b.Locale = "de-DE"
		assert.False(t, sameEngineShape(a, b))
	})

	t.Run("worker change breaks the shape", func(t *testing.T) {
		a := parseDoc(t, base)
		b := parseDoc(t, base)
		b.Workers = 8
		assert.False(t, sameEngineShape(a, b))
	})

	t.Run("name change breaks the shape", func(t *testing.T) {
		a := parseDoc(t, base)
		b := parseDoc(t, base)
		b.Names[0].Value = "0.3"
		assert.False(t, sameEngineShape(a, b))
	})

	t.Run("iterative change breaks the shape", func(t *testing.T) {
		a := parseDoc(t, base)
		b := parseDoc(t, base+`iterative:
  enabled: true
`)
		assert.False(t, sameEngineShape(a, b))
	})

	t.Run("sheet order change breaks the shape", func(t *testing.T) {
		a := parseDoc(t, base)
		b := parseDoc(t, base)
		b.Order = []string{"Sheet1"}
		assert.False(t, sameEngineShape(a, b))
	})
}

func TestApplyCellChanges(t *testing.T) {
	before := parseDoc(t, `locale: en-US
sheets:
  Sheet1:
    A1: 2
    A2: "=A1*10"
`)
	eng, err := loader.Build(before, loader.Options{Locale: enus.EnUS})
	require.NoError(t, err)
	_, err = eng.RecalculateAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 20.0, eng.GetCellValue("Sheet1", "A2").Num())

	after := parseDoc(t, `locale: en-US
sheets:
  Sheet1:
    A1: 5
    A2: "=A1*10"
    A3: note
`)
	require.True(t, applyCellChanges(eng, before, after))

	_, err = eng.Recalculate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5.0, eng.GetCellValue("Sheet1", "A1").Num())
	assert.Equal(t, 50.0, eng.GetCellValue("Sheet1", "A2").Num(),
		"the dependent formula should pick up the new input")
	assert.Equal(t, "note", eng.GetCellValue("Sheet1", "A3").Str())
}

func TestApplyCellChanges_RemovedCell(t *testing.T) {
	before := parseDoc(t, `locale: en-US
sheets:
  Sheet1:
    A1: 2
    B1: kept
`)
	eng, err := loader.Build(before, loader.Options{Locale: enus.EnUS})
	require.NoError(t, err)
	_, err = eng.RecalculateAll(context.Background())
	require.NoError(t, err)

	after := parseDoc(t, `locale: en-US
sheets:
  Sheet1:
    B1: kept
`)
	require.True(t, applyCellChanges(eng, before, after))

	assert.True(t, eng.GetCellValue("Sheet1", "A1").IsEmpty())
	assert.Equal(t, "kept", eng.GetCellValue("Sheet1", "B1").Str())
}

func TestApplyCellChanges_SheetSetChange(t *testing.T) {
	before := parseDoc(t, `locale: en-US
sheets:
  Sheet1:
    A1: 1
`)
	eng, err := loader.Build(before, loader.Options{Locale: enus.EnUS})
	require.NoError(t, err)

	added := parseDoc(t, `locale: en-US
sheets:
  Sheet1:
    A1: 1
  Extra:
    A1: 2
`)
	assert.False(t, applyCellChanges(eng, before, added),
		"an added sheet needs a rebuild")

	renamed := parseDoc(t, `locale: en-US
sheets:
  Other:
    A1: 1
`)
	assert.False(t, applyCellChanges(eng, before, renamed),
		"a renamed sheet needs a rebuild")
}
