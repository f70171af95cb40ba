package commands

import (
	"maps"
	"slices"
	"strings"

	"github.com/fatih/color"

	"github.com/Sumatoshi-tech/cellforge/pkg/scope"
)

// sortedNames flattens a name set into a sorted slice for stable output.
func sortedNames(names scope.Names) []string {
	return slices.Sorted(maps.Keys(names))
}

func joinNames(names []string) string {
	if len(names) == 0 {
		return "-"
	}

	return strings.Join(names, ", ")
}

func errorCell(msg string, useColor bool) string {
	if !useColor {
		return msg
	}

	return color.New(color.FgRed).Sprint(msg)
}
