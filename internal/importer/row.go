package importer

import "strings"

// delimiterCandidates are the separators ERP exports have been seen to use.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

// ParseLine splits one line into trimmed fields. A double quote toggles
// quoted mode, in which the delimiter does not split; the quote characters
// themselves are dropped. The field count is always the number of delimiters
// outside quotes plus one, so trailing empty fields survive.
func ParseLine(line string, delim rune) []string {
	fields := make([]string, 0, 16)
	var cur strings.Builder
	inQuotes := false

	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	fields = append(fields, strings.TrimSpace(cur.String()))

	return fields
}

// DetectDelimiter picks the candidate separator that occurs most often
// outside quotes in the header line. Comma wins ties and empty input.
func DetectDelimiter(header string) rune {
	best, bestCount := ',', 0
	for _, d := range delimiterCandidates {
		n := countOutsideQuotes(header, d)
		if n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func countOutsideQuotes(s string, delim rune) int {
	n := 0
	inQuotes := false
	for _, r := range s {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if r == delim && !inQuotes {
			n++
		}
	}
	return n
}

// SplitLines splits text into lines, accepting both \n and \r\n endings.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// isBlank reports whether a line carries no data. Lines made only of
// delimiters (",,,,") are what spreadsheet tools emit for empty rows.
func isBlank(line string, delim rune) bool {
	for _, r := range line {
		if r != delim && r != ' ' && r != '\t' && r != '"' {
			return false
		}
	}
	return true
}
