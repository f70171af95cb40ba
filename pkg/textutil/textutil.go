// Package textutil provides text utilities for cell extraction: common
// indentation removal, line counting, and binary detection for input
// vetting.
package textutil

import (
	"bytes"
	"strings"
)

// BinarySniffLength is the maximum number of bytes scanned for null-byte
// detection. Matches the heuristic used by Git and most editors.
const BinarySniffLength = 8000

// IsBinary returns true if data contains a null byte within the first
// BinarySniffLength bytes. Empty data is not binary.
func IsBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	sniff := data
	if len(sniff) > BinarySniffLength {
		sniff = sniff[:BinarySniffLength]
	}

	return bytes.IndexByte(sniff, 0) >= 0
}

// CountLines returns the number of newline-delimited lines in data.
// A non-empty buffer without a trailing newline counts the last partial
// line. Returns 0 for empty data.
func CountLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	lines := bytes.Count(data, []byte{'\n'})

	if data[len(data)-1] != '\n' {
		lines++
	}

	return lines
}

// Dedent strips the longest whitespace prefix common to all non-blank
// lines. Whitespace-only lines are normalized to empty lines and never
// constrain the computed margin.
func Dedent(text string) string {
	lines := strings.Split(text, "\n")

	margin := ""
	found := false

	for _, line := range lines {
		if strings.TrimRight(line, " \t") == "" {
			continue
		}

		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if !found {
			margin = indent
			found = true

			continue
		}

		margin = commonPrefix(margin, indent)
	}

	for i, line := range lines {
		if strings.TrimRight(line, " \t") == "" {
			lines[i] = ""

			continue
		}

		if margin != "" {
			lines[i] = strings.TrimPrefix(line, margin)
		}
	}

	return strings.Join(lines, "\n")
}

func commonPrefix(a, b string) string {
	limit := min(len(a), len(b))

	for i := range limit {
		if a[i] != b[i] {
			return a[:i]
		}
	}

	return a[:limit]
}
