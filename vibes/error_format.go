package vibes

import (
	"fmt"
	"strconv"
	"strings"
)

// formatCodeFrame renders the offending line with the previous line for
// context and a caret under the column.
func formatCodeFrame(source string, pos Position) string {
	if source == "" || pos.Line <= 0 {
		return ""
	}
	lines := strings.Split(source, "\n")
	if pos.Line > len(lines) {
		return ""
	}

	width := len(strconv.Itoa(pos.Line))
	column := max(pos.Column, 1)
	lineText := lines[pos.Line-1]
	column = min(column, len([]rune(lineText))+1)

	var b strings.Builder
	fmt.Fprintf(&b, "  --> line %d, column %d\n", pos.Line, column)
	if pos.Line > 1 && strings.TrimSpace(lines[pos.Line-2]) != "" {
		fmt.Fprintf(&b, " %*d | %s\n", width, pos.Line-1, lines[pos.Line-2])
	}
	fmt.Fprintf(&b, " %*d | %s\n", width, pos.Line, lineText)
	fmt.Fprintf(&b, " %s | %s^", strings.Repeat(" ", width), strings.Repeat(" ", column-1))
	return b.String()
}
