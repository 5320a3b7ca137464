// Package main provides the CLI for the leapcalc formula engine.
package main

import (
	"os"

	"github.com/leapstack-labs/leapcalc/internal/cli"

	// Locale packs register themselves on import.
	_ "github.com/leapstack-labs/leapcalc/pkg/locales/dede"
	_ "github.com/leapstack-labs/leapcalc/pkg/locales/enus"
	_ "github.com/leapstack-labs/leapcalc/pkg/locales/frfr"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
