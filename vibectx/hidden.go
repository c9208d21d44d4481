package vibectx

import "strings"

// Sentinel comment lines delimiting source hidden from generators.
const (
	HideMarker   = "# @hide"
	UnhideMarker = "# @unhide"
)

// StripHidden removes every line between a hide marker and its matching
// unhide marker, the markers included. Markers nest; an unmatched unhide is
// dropped and an unclosed hide runs to the end of the text.
func StripHidden(source string) string {
	var b strings.Builder
	depth := 0
	for line := range strings.SplitAfterSeq(source, "\n") {
		switch strings.TrimSpace(line) {
		case HideMarker:
			depth++
			continue
		case UnhideMarker:
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth == 0 {
			b.WriteString(line)
		}
	}
	return b.String()
}
