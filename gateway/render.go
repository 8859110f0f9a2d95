package gateway

import (
	"strings"
)

// ConsoleBlock renders logical lines in the house message style: every line
// prefixed with "| " inside a text-fenced code block, so connection strings
// and command output survive the chat platform's markdown untouched. Embedded
// newlines in a logical line are rendered as further prefixed lines.
func ConsoleBlock(lines []string) string {
	var b strings.Builder
	b.WriteString("```text\n")
	for _, line := range lines {
		for _, part := range strings.Split(line, "\n") {
			b.WriteString("| ")
			b.WriteString(part)
			b.WriteString("\n")
		}
	}
	b.WriteString("```")
	return b.String()
}
