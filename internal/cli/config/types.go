// Package config provides configuration management for the leapcalc
// CLI. Settings merge from defaults, an optional leapcalc.yaml file,
// LEAPCALC_* environment variables and command-line flags, in rising
// priority.
package config

import "golang.org/x/text/language"

// Config holds all CLI configuration options. Locale strings decode
// into language tags while unmarshalling; the root tag and zero
// workers defer to the workbook's own settings.
type Config struct {
	Locale       language.Tag      `koanf:"locale"`
	Workers      int               `koanf:"workers"`
	Iterative    IterativeSettings `koanf:"iterative"`
	OutputFormat string            `koanf:"output"`
	Verbose      bool              `koanf:"verbose"`
}

// IterativeSettings controls iterative calculation of circular
// references. It applies to workbooks that do not carry their own
// iterative block.
type IterativeSettings struct {
	Enabled       bool    `koanf:"enabled"`
	MaxIterations int     `koanf:"max_iterations"`
	Epsilon       float64 `koanf:"epsilon"`
}

// DefaultOutput is the rendering mode used when none is configured.
const DefaultOutput = "auto" // Auto-detect: TTY=text, non-TTY=markdown
