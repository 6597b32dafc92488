package source

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strings"

	"golang.org/x/text/transform"
)

// SniffSize bounds how much of a file is read for format and encoding detection.
const SniffSize = 64 << 10

var extFormats = map[string]Format{
	".csv":     FormatCSV,
	".tsv":     FormatCSV,
	".json":    FormatJSON,
	".jsonl":   FormatJSON,
	".ndjson":  FormatJSON,
	".parquet": FormatParquet,
	".xml":     FormatXML,
	".xlsx":    FormatXLSX,
	".xls":     FormatXLSX,
	".sql":     FormatSQL,
	".dump":    FormatSQL,
}

var (
	sigParquet = []byte("PAR1")
	sigZip     = []byte("PK\x03\x04")
	sigOLE     = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

// DetectFormat classifies a file by extension, falling back to the content
// signature in head. text is head decoded to UTF-8 (nil for binary sniffing).
func DetectFormat(path string, head, text []byte) Format {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := extFormats[ext]; ok {
		return f
	}
	if ext == ".txt" {
		if looksDelimited(text) {
			return FormatCSV
		}
		return FormatUnknown
	}
	return sniff(head, text)
}

func sniff(head, text []byte) Format {
	switch {
	case bytes.HasPrefix(head, sigParquet):
		return FormatParquet
	case bytes.HasPrefix(head, sigZip), bytes.HasPrefix(head, sigOLE):
		return FormatXLSX
	}
	t := bytes.TrimLeft(bytes.TrimPrefix(text, []byte("\xEF\xBB\xBF")), " \t\r\n")
	if len(t) == 0 {
		return FormatUnknown
	}
	switch t[0] {
	case '{', '[':
		return FormatJSON
	case '<':
		return FormatXML
	}
	if bytes.Contains(bytes.ToUpper(t), []byte("INSERT INTO")) {
		return FormatSQL
	}
	if looksDelimited(t) {
		return FormatCSV
	}
	return FormatUnknown
}

// Delimiters lists the candidate field separators in preference order.
var Delimiters = []rune{',', ';', '\t'}

// looksDelimited reports whether the first line of text contains one of the
// candidate delimiters.
func looksDelimited(text []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(text))
	sc.Buffer(make([]byte, 0, 4096), SniffSize)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		return strings.ContainsAny(line, string(Delimiters))
	}
	return false
}

// decodeHead converts a sniff buffer to UTF-8 for content detection.
func decodeHead(head []byte, name string) []byte {
	dec, _ := decoderFor(name)
	out, _, err := transform.Bytes(dec, head)
	if err != nil {
		return head
	}
	return out
}
