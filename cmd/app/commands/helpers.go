// Package commands implements the fieldcrypt CLI commands. Each command takes
// its dependencies and an io.Writer so tests can capture the output.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Stdout is where commands write when run from the CLI.
func Stdout() io.Writer {
	return os.Stdout
}

// validateFormat accepts "text" and "json".
func validateFormat(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid options: text, json)", format)
	}
}

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(jsonBytes))
	return err
}
