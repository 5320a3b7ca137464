// Package frfr provides the fr-FR locale: comma decimal separator,
// narrow space grouping, semicolon argument separator and the French
// function and error names.
package frfr

import (
	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func init() {
	locale.Register(FrFR)
}

// FrFR is the French (France) locale.
var FrFR = locale.New("fr-FR").
	Separators(',', ' ').
	Booleans("VRAI", "FAUX").
	Functions(map[string]string{
		"SUM":         "SOMME",
		"SUMIF":       "SOMME.SI",
		"SUMIFS":      "SOMME.SI.ENS",
		"AVERAGE":     "MOYENNE",
		"COUNT":       "NB",
		"COUNTA":      "NBVAL",
		"COUNTIF":     "NB.SI",
		"COUNTBLANK":  "NB.VIDE",
		"IF":          "SI",
		"IFERROR":     "SIERREUR",
		"IFNA":        "SI.NON.DISP",
		"IFS":         "SI.CONDITIONS",
		"AND":         "ET",
		"OR":          "OU",
		"NOT":         "NON",
		"TRUE":        "VRAI",
		"FALSE":       "FAUX",
		"VLOOKUP":     "RECHERCHEV",
		"HLOOKUP":     "RECHERCHEH",
		"XLOOKUP":     "RECHERCHEX",
		"LOOKUP":      "RECHERCHE",
		"MATCH":       "EQUIV",
		"CHOOSE":      "CHOISIR",
		"OFFSET":      "DECALER",
		"INDIRECT":    "INDIRECT",
		"ROW":         "LIGNE",
		"ROWS":        "LIGNES",
		"COLUMN":      "COLONNE",
		"COLUMNS":     "COLONNES",
		"ADDRESS":     "ADRESSE",
		"ROUND":       "ARRONDI",
		"ROUNDUP":     "ARRONDI.SUP",
		"ROUNDDOWN":   "ARRONDI.INF",
		"INT":         "ENT",
		"TRUNC":       "TRONQUE",
		"MOD":         "MOD",
		"POWER":       "PUISSANCE",
		"SQRT":        "RACINE",
		"RAND":        "ALEA",
		"RANDBETWEEN": "ALEA.ENTRE.BORNES",
		"CONCATENATE": "CONCATENER",
		"LEN":         "NBCAR",
		"LEFT":        "GAUCHE",
		"RIGHT":       "DROITE",
		"MID":         "STXT",
		"UPPER":       "MAJUSCULE",
		"LOWER":       "MINUSCULE",
		"PROPER":      "NOMPROPRE",
		"TRIM":        "SUPPRESPACE",
		"REPT":        "REPT",
		"REPLACE":     "REMPLACER",
		"SUBSTITUTE":  "SUBSTITUE",
		"FIND":        "TROUVE",
		"SEARCH":      "CHERCHE",
		"VALUE":       "CNUM",
		"TEXT":        "TEXTE",
		"TODAY":       "AUJOURDHUI",
		"NOW":         "MAINTENANT",
		"DATE":        "DATE",
		"DAY":         "JOUR",
		"MONTH":       "MOIS",
		"YEAR":        "ANNEE",
		"ISERROR":     "ESTERREUR",
		"ISERR":       "ESTERR",
		"ISNA":        "ESTNA",
		"ISBLANK":     "ESTVIDE",
		"ISNUMBER":    "ESTNUM",
		"ISTEXT":      "ESTTEXTE",
		"ISLOGICAL":   "ESTLOGIQUE",
		"ERROR.TYPE":  "TYPE.ERREUR",
	}).
	Errors(map[value.ErrorKind]string{
		value.ErrValue: "#VALEUR!",
		value.ErrName:  "#NOM?",
		value.ErrNum:   "#NOMBRE!",
	}).
	Build()
