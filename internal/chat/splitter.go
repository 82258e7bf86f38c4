package chat

import "strings"

// SplitReply turns model output into reply units: one per non-blank line, in
// order. Leading indentation is kept; trailing whitespace is not.
func SplitReply(output string) []string {
	lines := strings.Split(output, "\n")
	units := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		units = append(units, strings.TrimRight(line, " \t\r"))
	}
	return units
}
