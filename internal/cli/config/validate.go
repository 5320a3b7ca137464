package config

import "fmt"

// Validate checks if the configuration is valid. An empty locale is
// fine; it defers to the workbook.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	switch c.OutputFormat {
	case "auto", "text", "markdown", "json":
	default:
		return fmt.Errorf("invalid output format %q (must be auto, text, markdown, or json)", c.OutputFormat)
	}
	if c.Iterative.MaxIterations < 0 {
		return fmt.Errorf("iterative.max_iterations must not be negative, got %d", c.Iterative.MaxIterations)
	}
	if c.Iterative.Epsilon < 0 {
		return fmt.Errorf("iterative.epsilon must not be negative, got %g", c.Iterative.Epsilon)
	}
	return nil
}
