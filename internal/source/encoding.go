package source

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/transform"
)

const utf8Name = "UTF-8"

// detector is shared; chardet.Detector holds no per-call state.
var detector = chardet.NewTextDetector()

// DetectEncoding guesses the charset of head. BOMs win, then valid UTF-8
// (which covers ASCII), then the statistical detector. The returned name is
// always one decoderFor understands or UTF-8.
func DetectEncoding(head []byte) string {
	switch {
	case bytes.HasPrefix(head, []byte{0xEF, 0xBB, 0xBF}):
		return utf8Name
	case bytes.HasPrefix(head, []byte{0xFF, 0xFE, 0x00, 0x00}):
		return "UTF-32LE"
	case bytes.HasPrefix(head, []byte{0x00, 0x00, 0xFE, 0xFF}):
		return "UTF-32BE"
	case bytes.HasPrefix(head, []byte{0xFF, 0xFE}):
		return "UTF-16LE"
	case bytes.HasPrefix(head, []byte{0xFE, 0xFF}):
		return "UTF-16BE"
	}
	if utf8.Valid(trimPartialRune(head)) {
		return utf8Name
	}
	res, err := detector.DetectBest(head)
	if err != nil || res == nil || res.Charset == "" {
		return utf8Name
	}
	return res.Charset
}

// trimPartialRune drops a rune cut off by the end of a sniff buffer.
func trimPartialRune(b []byte) []byte {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return b
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}

// decoderFor maps a charset name to a decoder. Unknown names yield the UTF-8
// replacement decoder and an error wrapping ErrEncodingFailure.
func decoderFor(name string) (*encoding.Decoder, error) {
	var enc encoding.Encoding
	switch strings.ToUpper(name) {
	case "", "UTF-8", "ASCII", "US-ASCII":
		enc = unicode.UTF8
	case "UTF-16LE":
		enc = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case "UTF-16BE":
		enc = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case "UTF-32LE":
		enc = utf32.UTF32(utf32.LittleEndian, utf32.UseBOM)
	case "UTF-32BE":
		enc = utf32.UTF32(utf32.BigEndian, utf32.UseBOM)
	case "GB-18030":
		enc, _ = htmlindex.Get("gb18030")
	default:
		e, err := htmlindex.Get(strings.ToLower(name))
		if err != nil {
			return unicode.UTF8.NewDecoder(), fmt.Errorf("%w: charset %q: %v", ErrEncodingFailure, name, err)
		}
		enc = e
	}
	if enc == nil {
		return unicode.UTF8.NewDecoder(), fmt.Errorf("%w: charset %q unsupported", ErrEncodingFailure, name)
	}
	return enc.NewDecoder(), nil
}

// decodeReader wraps r with dec. UTF-32 decoders handle their own BOM; every
// other decoder is overridden by a UTF-8 or UTF-16 BOM when one is present.
func decodeReader(r io.Reader, name string, dec *encoding.Decoder) io.Reader {
	if strings.HasPrefix(strings.ToUpper(name), "UTF-32") {
		return transform.NewReader(r, dec)
	}
	return transform.NewReader(r, unicode.BOMOverride(dec))
}
