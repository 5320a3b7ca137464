package value

import "strings"

// ErrorKind enumerates the spreadsheet error taxonomy. The numeric
// values follow the classification the ERROR.TYPE function exposes, so
// int(k) is directly usable there. ErrorKind implements error so
// coercion helpers can return it through ordinary error plumbing.
type ErrorKind uint8

const (
	ErrNull        ErrorKind = iota + 1 // #NULL!
	ErrDiv0                             // #DIV/0!
	ErrValue                            // #VALUE!
	ErrRef                              // #REF!
	ErrName                             // #NAME?
	ErrNum                              // #NUM!
	ErrNA                               // #N/A
	ErrGettingData                      // #GETTING_DATA
	ErrSpill                            // #SPILL!
	ErrConnect                          // #CONNECT!
	ErrBlocked                          // #BLOCKED!
	ErrUnknown                          // #UNKNOWN!
	ErrField                            // #FIELD!
	ErrCalc                             // #CALC!
)

var errorDisplay = [...]string{
	ErrNull:        "#NULL!",
	ErrDiv0:        "#DIV/0!",
	ErrValue:       "#VALUE!",
	ErrRef:         "#REF!",
	ErrName:        "#NAME?",
	ErrNum:         "#NUM!",
	ErrNA:          "#N/A",
	ErrGettingData: "#GETTING_DATA",
	ErrSpill:       "#SPILL!",
	ErrConnect:     "#CONNECT!",
	ErrBlocked:     "#BLOCKED!",
	ErrUnknown:     "#UNKNOWN!",
	ErrField:       "#FIELD!",
	ErrCalc:        "#CALC!",
}

// Valid reports whether k names a defined error.
func (k ErrorKind) Valid() bool {
	return k >= ErrNull && k <= ErrCalc
}

// String returns the canonical display literal, e.g. "#DIV/0!".
func (k ErrorKind) String() string {
	if k.Valid() {
		return errorDisplay[k]
	}
	return "#UNKNOWN!"
}

// Error implements the error interface with the display literal.
func (k ErrorKind) Error() string { return k.String() }

// errorLiterals maps uppercase base names, with any trailing bang
// stripped, to kinds. Covers the legacy aliases: old files write
// "#N/A!" for "#N/A", "#NAME" for "#NAME?", and "#ERROR!" for an
// unclassified error.
var errorLiterals = map[string]ErrorKind{
	"#NULL":         ErrNull,
	"#DIV/0":        ErrDiv0,
	"#VALUE":        ErrValue,
	"#REF":          ErrRef,
	"#NAME?":        ErrName,
	"#NAME":         ErrName,
	"#NUM":          ErrNum,
	"#N/A":          ErrNA,
	"#GETTING_DATA": ErrGettingData,
	"#SPILL":        ErrSpill,
	"#CONNECT":      ErrConnect,
	"#BLOCKED":      ErrBlocked,
	"#UNKNOWN":      ErrUnknown,
	"#ERROR":        ErrUnknown,
	"#FIELD":        ErrField,
	"#CALC":         ErrCalc,
}

// ParseErrorLiteral recognizes a canonical error literal, case
// insensitively and accepting the legacy alias spellings. The input
// must carry the leading '#'.
func ParseErrorLiteral(s string) (ErrorKind, bool) {
	if len(s) < 2 || s[0] != '#' {
		return 0, false
	}
	up := strings.ToUpper(s)
	up = strings.TrimSuffix(up, "!")
	k, ok := errorLiterals[up]
	return k, ok
}

// AsErrorKind extracts an ErrorKind from an error returned by the
// coercion helpers, mapping foreign errors to #UNKNOWN!.
func AsErrorKind(err error) ErrorKind {
	if k, ok := err.(ErrorKind); ok {
		return k
	}
	return ErrUnknown
}

// FromError converts a coercion error into an error value.
func FromError(err error) Value {
	return Error(AsErrorKind(err))
}
