package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapcalc/pkg/value"

	// Locale packs register themselves on import.
	_ "github.com/leapstack-labs/leapcalc/pkg/locales/dede"
	"github.com/leapstack-labs/leapcalc/pkg/locales/enus"
)

func TestBuild_EndToEnd(t *testing.T) {
	doc, err := Parse([]byte(`
order: [Main, Data]
sheets:
  Main:
    A1: 100
    A2: 2.5
    A3: "=SUM(A1:A2)"
    B1: plain text
    B2: "'=not a formula"
    B3: true
    B4: "=RATE*100"
    C1: "=SUM(Sales[Units])"
    D1: "=[Budget]Summary!B2*2"
    E1: "=INFO(\"release\")"
  Data:
    A1: Region
    B1: Units
    A2: North
    B2: 10
    A3: South
    B3: 32
names:
  - name: RATE
    value: "=0.21"
tables:
  - name: Sales
    sheet: Data
    range: A1:B3
    header_row: true
external:
  "[Budget]Summary!B2": 41
metadata:
  release: "1.0"
`))
	require.NoError(t, err)

	e, err := Build(doc, Options{})
	require.NoError(t, err)
	_, err = e.RecalculateAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Main", "Data"}, e.Sheets())
	assert.Equal(t, 102.5, e.GetCellValue("Main", "A3").Num())
	assert.Equal(t, "plain text", e.GetCellValue("Main", "B1").Str())
	assert.Equal(t, "=not a formula", e.GetCellValue("Main", "B2").Str())
	assert.True(t, e.GetCellValue("Main", "B3").Bool())
	assert.Equal(t, 21.0, e.GetCellValue("Main", "B4").Num())
	assert.Equal(t, 42.0, e.GetCellValue("Main", "C1").Num())
	assert.Equal(t, 82.0, e.GetCellValue("Main", "D1").Num())
	assert.Equal(t, "1.0", e.GetCellValue("Main", "E1").Str())

	// the apostrophe escape stores text, not a formula
	_, isFormula := e.CellFormula("Main", "B2")
	assert.False(t, isFormula)
}

func TestBuild_LocaleFromDocument(t *testing.T) {
	doc, err := Parse([]byte(`
locale: de-DE
sheets:
  Main:
    A1: "=SUMME(1,5;2,5)"
`))
	require.NoError(t, err)

	e, err := Build(doc, Options{})
	require.NoError(t, err)
	_, err = e.RecalculateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.0, e.GetCellValue("Main", "A1").Num())
}

func TestBuild_LocaleOptionWins(t *testing.T) {
	doc, err := Parse([]byte(`
locale: de-DE
sheets:
  Main:
    A1: "=SUM(1.5,2.5)"
`))
	require.NoError(t, err)

	e, err := Build(doc, Options{Locale: enus.EnUS})
	require.NoError(t, err)
	_, err = e.RecalculateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.0, e.GetCellValue("Main", "A1").Num())
}

func TestBuild_UnknownLocale(t *testing.T) {
	doc, err := Parse([]byte("locale: xx-XX\n"))
	require.NoError(t, err)

	_, err = Build(doc, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown locale")
}

func TestBuild_BrokenFormulaSurfacesAsIssue(t *testing.T) {
	doc, err := Parse([]byte(`
sheets:
  Main:
    A1: "=1+"
    A2: "=2*3"
`))
	require.NoError(t, err)

	e, err := Build(doc, Options{})
	require.NoError(t, err)
	res, err := e.RecalculateAll(context.Background())
	require.NoError(t, err)

	require.Error(t, res.Issues)
	assert.Contains(t, res.Issues.Error(), "Main!A1")
	assert.Equal(t, value.ErrName, e.GetCellValue("Main", "A1").Err())
	assert.Equal(t, 6.0, e.GetCellValue("Main", "A2").Num())
}

func TestBuild_IterativeSettings(t *testing.T) {
	doc, err := Parse([]byte(`
iterative:
  enabled: true
sheets:
  Main:
    A1: "=B1+1"
    B1: "=A1/2"
`))
	require.NoError(t, err)

	e, err := Build(doc, Options{})
	require.NoError(t, err)
	res, err := e.RecalculateAll(context.Background())
	require.NoError(t, err)

	assert.NoError(t, res.Issues)
	assert.InDelta(t, 2.0, e.GetCellValue("Main", "A1").Num(), 0.01)
	assert.InDelta(t, 1.0, e.GetCellValue("Main", "B1").Num(), 0.01)
}

func TestBuild_FilenameOption(t *testing.T) {
	doc, err := Parse([]byte(`
sheets:
  Main:
    A1: "=CELL(\"filename\")"
`))
	require.NoError(t, err)

	e, err := Build(doc, Options{Filename: "budget.yaml"})
	require.NoError(t, err)
	_, err = e.RecalculateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "budget.yaml", e.GetCellValue("Main", "A1").Str())
}

func TestBuild_Deterministic(t *testing.T) {
	const book = `
sheets:
  Main:
    A1: 1
    A2: "=A1+1"
    A3: "=A2+1"
    B1: "=SUM(A1:A3)"
  Aux:
    A1: "=Main!B1*2"
`
	run := func() (sheets []string, vals []value.Value) {
		doc, err := Parse([]byte(book))
		require.NoError(t, err)
		e, err := Build(doc, Options{})
		require.NoError(t, err)
		_, err = e.RecalculateAll(context.Background())
		require.NoError(t, err)
		return e.Sheets(), []value.Value{
			e.GetCellValue("Main", "B1"),
			e.GetCellValue("Aux", "A1"),
		}
	}

	s1, v1 := run()
	s2, v2 := run()
	assert.Equal(t, s1, s2)
	require.Len(t, v2, len(v1))
	for i := range v1 {
		assert.True(t, value.Equal(v1[i], v2[i]), "cell %d differs", i)
	}
	assert.Equal(t, 6.0, v1[0].Num())
	assert.Equal(t, 12.0, v1[1].Num())
}
