package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

var titleCaser = cases.Title(language.Und)

// stateLabel turns identifiers like "timed_out" into "Timed Out".
func stateLabel(value string) string {
	return titleCaser.String(strings.ReplaceAll(value, "_", " "))
}

func colorFor(label string) string {
	switch label {
	case "Processed", "Released", "Running":
		return ansiGreen
	case "Stale", "Timed Out", "Skipped":
		return ansiYellow
	case "Failed", "Spawn Error", "Finalize Error":
		return ansiRed
	default:
		return ""
	}
}

func paint(label string, colorize bool) string {
	if !colorize {
		return label
	}
	if color := colorFor(label); color != "" {
		return color + label + ansiReset
	}
	return label
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
