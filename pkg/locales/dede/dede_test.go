package dede

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func TestRegistered(t *testing.T) {
	l, ok := locale.Get("de-DE")
	require.True(t, ok)
	assert.Same(t, DeDE, l)
}

func TestSeparators(t *testing.T) {
	assert.Equal(t, ',', DeDE.DecimalSep())
	assert.Equal(t, ';', DeDE.ArgSep())
	got, ok := DeDE.ParseNumber("1.234,5")
	require.True(t, ok)
	assert.Equal(t, 1234.5, got)
}

func TestGermanNames(t *testing.T) {
	assert.Equal(t, "SUM", DeDE.CanonicalFunction("SUMME"))
	assert.Equal(t, "VLOOKUP", DeDE.CanonicalFunction("sverweis"))
	assert.Equal(t, "BEREICH.VERSCHIEBEN", DeDE.LocalizeFunction("OFFSET"))

	k, ok := DeDE.ParseError("#BEZUG!")
	require.True(t, ok)
	assert.Equal(t, value.ErrRef, k)

	v, ok := DeDE.ParseBool("WAHR")
	require.True(t, ok)
	assert.True(t, v)
}
