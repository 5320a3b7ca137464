// Package locale provides formula locale configuration: separators,
// localized function and error names, and boolean literals.
//
// This package contains the public contract consumed by the lexer,
// parser and renderer. Concrete locale implementations are registered
// from pkg/locales/*/ packages.
package locale

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// Locale describes how formulas read and print in one language region.
// The zero value is not usable; build instances with New(...).Build().
type Locale struct {
	Name string
	Tag  language.Tag

	decimalSep  rune
	groupSep    rune
	argSep      rune
	arrayColSep rune
	arrayRowSep rune

	trueLit  string
	falseLit string

	// canonical (uppercase) -> localized and back
	funcLocal     map[string]string
	funcCanonical map[string]string

	errLocal     map[value.ErrorKind]string
	errCanonical map[string]value.ErrorKind
}

// NormalizeName uppercases a function or defined name the way formula
// name lookup does.
func NormalizeName(name string) string {
	return strings.ToUpper(name)
}

// DecimalSep returns the decimal separator, '.' for en-US.
func (l *Locale) DecimalSep() rune { return l.decimalSep }

// GroupSep returns the thousands separator used in text coercion.
// Formula number literals never contain it.
func (l *Locale) GroupSep() rune { return l.groupSep }

// ArgSep returns the argument separator, ',' for en-US and ';' for
// comma-decimal locales.
func (l *Locale) ArgSep() rune { return l.argSep }

// ArrayColSep returns the column separator inside array literals.
func (l *Locale) ArrayColSep() rune { return l.arrayColSep }

// ArrayRowSep returns the row separator inside array literals.
func (l *Locale) ArrayRowSep() rune { return l.arrayRowSep }

// TrueLiteral returns the localized TRUE word.
func (l *Locale) TrueLiteral() string { return l.trueLit }

// FalseLiteral returns the localized FALSE word.
func (l *Locale) FalseLiteral() string { return l.falseLit }

// CanonicalFunction maps a possibly localized function name to its
// canonical uppercase form. Unknown names pass through uppercased, so
// canonical spellings always work in every locale.
func (l *Locale) CanonicalFunction(name string) string {
	up := NormalizeName(name)
	if canon, ok := l.funcCanonical[up]; ok {
		return canon
	}
	return up
}

// LocalizeFunction maps a canonical function name to the locale's
// spelling, falling back to the canonical name.
func (l *Locale) LocalizeFunction(canonical string) string {
	up := NormalizeName(canonical)
	if local, ok := l.funcLocal[up]; ok {
		return local
	}
	return up
}

// ParseBool recognizes the localized and canonical boolean literals.
func (l *Locale) ParseBool(word string) (val, ok bool) {
	up := NormalizeName(word)
	switch up {
	case "TRUE", NormalizeName(l.trueLit):
		return true, true
	case "FALSE", NormalizeName(l.falseLit):
		return false, true
	}
	return false, false
}

// ParseError recognizes a localized or canonical error literal,
// including the legacy alias spellings.
func (l *Locale) ParseError(s string) (value.ErrorKind, bool) {
	up := strings.ToUpper(s)
	if k, ok := l.errCanonical[up]; ok {
		return k, true
	}
	if k, ok := l.errCanonical[strings.TrimSuffix(up, "!")]; ok {
		return k, true
	}
	return value.ParseErrorLiteral(s)
}

// DisplayError renders an error kind in the locale's spelling.
func (l *Locale) DisplayError(k value.ErrorKind) string {
	if s, ok := l.errLocal[k]; ok {
		return s
	}
	return k.String()
}

// ParseNumber reads a numeric text literal with the locale's decimal
// and group separators. It backs text-to-number coercion; formula
// literals are scanned by the lexer instead.
func (l *Locale) ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if l.groupSep != 0 && strings.ContainsRune(s, l.groupSep) {
		if !groupsValid(s, l.groupSep, l.decimalSep) {
			return 0, false
		}
		s = strings.ReplaceAll(s, string(l.groupSep), "")
	}
	if l.decimalSep != '.' {
		// A '.' in a comma-decimal locale is not numeric syntax.
		if strings.ContainsRune(s, '.') {
			return 0, false
		}
		s = strings.Replace(s, string(l.decimalSep), ".", 1)
	}
	return value.ParseCanonicalNumber(s)
}

// FormatNumber prints a number in general format with the locale's
// decimal separator.
func (l *Locale) FormatNumber(f float64) string {
	s := value.FormatNumber(f)
	if l.decimalSep != '.' {
		s = strings.Replace(s, ".", string(l.decimalSep), 1)
	}
	return s
}

// groupsValid checks that group separators appear only in the integer
// part, in three-digit groups after the first.
func groupsValid(s string, group, dec rune) bool {
	intPart := s
	if i := strings.IndexRune(s, dec); i >= 0 {
		intPart = s[:i]
		if strings.ContainsRune(s[i+len(string(dec)):], group) {
			return false
		}
	}
	if i := strings.IndexAny(intPart, "eE"); i >= 0 {
		if strings.ContainsRune(intPart[i:], group) {
			return false
		}
		intPart = intPart[:i]
	}
	intPart = strings.TrimLeft(intPart, "+-")
	parts := strings.Split(intPart, string(group))
	if len(parts) < 2 {
		return true
	}
	if parts[0] == "" || len(parts[0]) > 3 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}

// Builder assembles a Locale. The zero configuration is canonical
// en-US behavior; comma-decimal locales get shifted argument and array
// separators automatically, matching how localized formula syntax
// avoids ambiguity with the decimal comma.
type Builder struct {
	loc *Locale
}

// New creates a locale builder for the given BCP 47 name, e.g. "de-DE".
func New(name string) *Builder {
	return &Builder{loc: &Locale{
		Name:          name,
		Tag:           language.Make(name),
		decimalSep:    '.',
		groupSep:      ',',
		argSep:        ',',
		arrayColSep:   ',',
		arrayRowSep:   ';',
		trueLit:       "TRUE",
		falseLit:      "FALSE",
		funcLocal:     make(map[string]string),
		funcCanonical: make(map[string]string),
		errLocal:      make(map[value.ErrorKind]string),
		errCanonical:  make(map[string]value.ErrorKind),
	}}
}

// Separators sets the decimal and group separators. A decimal comma
// shifts the argument separator to ';' and the array column separator
// to '.' unless overridden afterwards.
func (b *Builder) Separators(decimal, group rune) *Builder {
	b.loc.decimalSep = decimal
	b.loc.groupSep = group
	if decimal == ',' {
		b.loc.argSep = ';'
		b.loc.arrayColSep = '.'
		b.loc.arrayRowSep = ';'
	}
	return b
}

// ArgSeparator overrides the argument separator.
func (b *Builder) ArgSeparator(r rune) *Builder {
	b.loc.argSep = r
	return b
}

// ArraySeparators overrides the array literal separators.
func (b *Builder) ArraySeparators(col, row rune) *Builder {
	b.loc.arrayColSep = col
	b.loc.arrayRowSep = row
	return b
}

// Booleans sets the localized TRUE and FALSE literals.
func (b *Builder) Booleans(trueLit, falseLit string) *Builder {
	b.loc.trueLit = trueLit
	b.loc.falseLit = falseLit
	return b
}

// Functions registers localized spellings, keyed by canonical name.
func (b *Builder) Functions(names map[string]string) *Builder {
	for canonical, local := range names {
		cu, lu := NormalizeName(canonical), NormalizeName(local)
		b.loc.funcLocal[cu] = lu
		b.loc.funcCanonical[lu] = cu
	}
	return b
}

// Errors registers localized error literals.
func (b *Builder) Errors(names map[value.ErrorKind]string) *Builder {
	for kind, local := range names {
		lu := strings.ToUpper(local)
		b.loc.errLocal[kind] = local
		b.loc.errCanonical[lu] = kind
		b.loc.errCanonical[strings.TrimSuffix(lu, "!")] = kind
	}
	return b
}

// Build returns the constructed locale.
func (b *Builder) Build() *Locale {
	return b.loc
}
