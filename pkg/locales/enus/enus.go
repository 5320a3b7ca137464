// Package enus provides the en-US base locale: period decimal
// separator, comma argument separator, canonical function and error
// names.
//
// Every other locale accepts the canonical spellings too, so en-US is
// also the interchange form formulas are stored in.
package enus

import (
	"github.com/leapstack-labs/leapcalc/pkg/locale"
)

func init() {
	locale.Register(EnUS)
}

// EnUS is the canonical United States English locale.
var EnUS = locale.New("en-US").
	Separators('.', ',').
	Booleans("TRUE", "FALSE").
	Build()
