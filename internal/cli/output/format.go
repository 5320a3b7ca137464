package output

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// FormatHeader renders a markdown heading.
func FormatHeader(level int, text string) string {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	return strings.Repeat("#", level) + " " + text
}

// FormatKeyValue renders a markdown definition line.
func FormatKeyValue(key, val string) string {
	return fmt.Sprintf("- **%s**: %s", key, val)
}

// FormatCodeBlock renders a fenced markdown code block.
func FormatCodeBlock(lang, code string) string {
	return "```" + lang + "\n" + strings.TrimRight(code, "\n") + "\n```"
}

// DisplayValue renders a value the way a cell shows it, using the
// locale's number format, boolean words and error literals. Arrays
// render as a braced literal with the locale's separators.
func DisplayValue(v value.Value, loc *locale.Locale) string {
	if loc == nil {
		return v.String()
	}
	switch {
	case v.IsNumber():
		return loc.FormatNumber(v.Num())
	case v.IsBool():
		if v.Bool() {
			return loc.TrueLiteral()
		}
		return loc.FalseLiteral()
	case v.IsError():
		return loc.DisplayError(v.Err())
	case v.IsArray():
		rows, cols := v.Dims()
		var sb strings.Builder
		sb.WriteByte('{')
		for r := 0; r < rows; r++ {
			if r > 0 {
				sb.WriteRune(loc.ArrayRowSep())
			}
			for c := 0; c < cols; c++ {
				if c > 0 {
					sb.WriteRune(loc.ArrayColSep())
				}
				sb.WriteString(DisplayValue(v.At(r, c), loc))
			}
		}
		sb.WriteByte('}')
		return sb.String()
	}
	return v.String()
}

// JSONValue converts a value to its JSON shape: numbers, strings,
// booleans, null for blank, the display literal for errors, and
// nested row slices for arrays.
func JSONValue(v value.Value) any {
	switch {
	case v.IsBlank():
		return nil
	case v.IsNumber():
		return v.Num()
	case v.IsText():
		return v.Str()
	case v.IsBool():
		return v.Bool()
	case v.IsError():
		return v.Err().String()
	case v.IsArray():
		rows, cols := v.Dims()
		out := make([][]any, rows)
		for r := 0; r < rows; r++ {
			row := make([]any, cols)
			for c := 0; c < cols; c++ {
				row[c] = JSONValue(v.At(r, c))
			}
			out[r] = row
		}
		return out
	}
	return v.String()
}
