// Package dede provides the de-DE locale: comma decimal separator,
// period grouping, semicolon argument separator and the German
// function and error names.
package dede

import (
	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func init() {
	locale.Register(DeDE)
}

// DeDE is the German (Germany) locale.
var DeDE = locale.New("de-DE").
	Separators(',', '.').
	Booleans("WAHR", "FALSCH").
	Functions(map[string]string{
		"SUM":         "SUMME",
		"SUMIF":       "SUMMEWENN",
		"SUMIFS":      "SUMMEWENNS",
		"AVERAGE":     "MITTELWERT",
		"AVERAGEIF":   "MITTELWERTWENN",
		"COUNT":       "ANZAHL",
		"COUNTA":      "ANZAHL2",
		"COUNTIF":     "ZÄHLENWENN",
		"COUNTBLANK":  "ANZAHLLEEREZELLEN",
		"IF":          "WENN",
		"IFERROR":     "WENNFEHLER",
		"IFNA":        "WENNNV",
		"IFS":         "WENNS",
		"AND":         "UND",
		"OR":          "ODER",
		"NOT":         "NICHT",
		"XOR":         "XODER",
		"TRUE":        "WAHR",
		"FALSE":       "FALSCH",
		"VLOOKUP":     "SVERWEIS",
		"HLOOKUP":     "WVERWEIS",
		"XLOOKUP":     "XVERWEIS",
		"LOOKUP":      "VERWEIS",
		"MATCH":       "VERGLEICH",
		"CHOOSE":      "WAHL",
		"OFFSET":      "BEREICH.VERSCHIEBEN",
		"INDIRECT":    "INDIREKT",
		"ROW":         "ZEILE",
		"ROWS":        "ZEILEN",
		"COLUMN":      "SPALTE",
		"COLUMNS":     "SPALTEN",
		"ADDRESS":     "ADRESSE",
		"ROUND":       "RUNDEN",
		"ROUNDUP":     "AUFRUNDEN",
		"ROUNDDOWN":   "ABRUNDEN",
		"INT":         "GANZZAHL",
		"TRUNC":       "KÜRZEN",
		"MOD":         "REST",
		"POWER":       "POTENZ",
		"SQRT":        "WURZEL",
		"RAND":        "ZUFALLSZAHL",
		"RANDBETWEEN": "ZUFALLSBEREICH",
		"CONCATENATE": "VERKETTEN",
		"LEN":         "LÄNGE",
		"LEFT":        "LINKS",
		"RIGHT":       "RECHTS",
		"MID":         "TEIL",
		"UPPER":       "GROSS",
		"LOWER":       "KLEIN",
		"PROPER":      "GROSS2",
		"TRIM":        "GLÄTTEN",
		"REPT":        "WIEDERHOLEN",
		"REPLACE":     "ERSETZEN",
		"SUBSTITUTE":  "WECHSELN",
		"FIND":        "FINDEN",
		"SEARCH":      "SUCHEN",
		"VALUE":       "WERT",
		"TEXT":        "TEXT",
		"TODAY":       "HEUTE",
		"NOW":         "JETZT",
		"DATE":        "DATUM",
		"DAY":         "TAG",
		"MONTH":       "MONAT",
		"YEAR":        "JAHR",
		"ISERROR":     "ISTFEHLER",
		"ISERR":       "ISTFEHL",
		"ISNA":        "ISTNV",
		"ISBLANK":     "ISTLEER",
		"ISNUMBER":    "ISTZAHL",
		"ISTEXT":      "ISTTEXT",
		"ISLOGICAL":   "ISTLOG",
		"ERROR.TYPE":  "FEHLER.TYP",
	}).
	Errors(map[value.ErrorKind]string{
		value.ErrValue: "#WERT!",
		value.ErrRef:   "#BEZUG!",
		value.ErrNum:   "#ZAHL!",
		value.ErrNA:    "#NV",
	}).
	Build()
