package csv

import (
	"bufio"
	"bytes"

	"unify/internal/source"
)

// sniffLines is how many non-empty lines are sampled for delimiter detection.
const sniffLines = 10

// sniffDelimiter picks the candidate delimiter whose per-line count is
// non-zero on the header and matches it on the most sampled lines. Ties go to
// the earlier candidate. ok is false when the header holds no candidate.
func sniffDelimiter(sample []byte) (delim rune, ok bool) {
	lines := sampleLines(sample, sniffLines)
	if len(lines) == 0 {
		return 0, false
	}
	best, bestScore := rune(0), 0
	for _, c := range source.Delimiters {
		want := countOutsideQuotes(lines[0], c)
		if want == 0 {
			continue
		}
		score := 0
		for _, ln := range lines {
			if countOutsideQuotes(ln, c) == want {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore > 0
}

func sampleLines(b []byte, n int) [][]byte {
	var out [][]byte
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 4096), len(b)+1)
	for sc.Scan() && len(out) < n {
		ln := bytes.TrimRight(sc.Bytes(), "\r\n")
		if len(ln) == 0 {
			continue
		}
		out = append(out, append([]byte(nil), ln...))
	}
	return out
}

// countOutsideQuotes counts c in line ignoring occurrences inside "...".
func countOutsideQuotes(line []byte, c rune) int {
	n, inQuote := 0, false
	for _, r := range string(line) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == c && !inQuote:
			n++
		}
	}
	return n
}
