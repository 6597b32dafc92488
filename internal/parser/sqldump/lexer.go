package sqldump

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

type kind int

const (
	tEOF    kind = iota
	tWord        // keywords, bare identifiers, numbers, NULL
	tString      // '...' or "..."
	tIdent       // `...`
	tPunct       // ( ) , ; . and anything else
)

type token struct {
	kind kind
	text string // unescaped content for strings and identifiers
	line int
}

var errUnterminated = errors.New("unterminated quoted value")

// lexer splits a dump into tokens, dropping whitespace and comments.
type lexer struct {
	r         *bufio.Reader
	line      int
	backslash bool
	peeked    *token
}

func newLexer(r io.Reader, backslash bool) *lexer {
	return &lexer{r: bufio.NewReaderSize(r, 64<<10), line: 1, backslash: backslash}
}

func (l *lexer) read() (rune, bool) {
	c, _, err := l.r.ReadRune()
	if err != nil {
		return 0, false
	}
	if c == '\n' {
		l.line++
	}
	return c, true
}

func (l *lexer) unread(c rune) {
	_ = l.r.UnreadRune()
	if c == '\n' {
		l.line--
	}
}

func (l *lexer) peek() (token, error) {
	if l.peeked == nil {
		t, err := l.scan()
		if err != nil {
			return t, err
		}
		l.peeked = &t
	}
	return *l.peeked, nil
}

func (l *lexer) next() (token, error) {
	if l.peeked != nil {
		t := *l.peeked
		l.peeked = nil
		return t, nil
	}
	return l.scan()
}

func (l *lexer) scan() (token, error) {
	for {
		c, ok := l.read()
		if !ok {
			return token{kind: tEOF, line: l.line}, nil
		}
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			continue
		case c == '#':
			l.skipLine()
			continue
		case c == '-':
			if n, ok := l.read(); ok {
				if n == '-' {
					l.skipLine()
					continue
				}
				l.unread(n)
			}
			return l.word(c), nil
		case c == '/':
			if n, ok := l.read(); ok {
				if n == '*' {
					if err := l.skipBlock(); err != nil {
						return token{}, err
					}
					continue
				}
				l.unread(n)
			}
			return token{kind: tPunct, text: "/", line: l.line}, nil
		case c == '\'' || c == '"':
			line := l.line
			s, err := l.quoted(c)
			return token{kind: tString, text: s, line: line}, err
		case c == '`':
			line := l.line
			s, err := l.quoted(c)
			return token{kind: tIdent, text: s, line: line}, err
		case isWordRune(c):
			return l.word(c), nil
		default:
			return token{kind: tPunct, text: string(c), line: l.line}, nil
		}
	}
}

func isWordRune(c rune) bool {
	return c == '_' || c == '$' || c == '.' || c == '+' || c == '-' || c == ':' ||
		(c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c > 127
}

// word reads a bare run. Dots are kept so that numbers like 1.5 stay whole;
// qualified names are split by the parser.
func (l *lexer) word(first rune) token {
	line := l.line
	var b strings.Builder
	b.WriteRune(first)
	for {
		c, ok := l.read()
		if !ok {
			break
		}
		if !isWordRune(c) {
			l.unread(c)
			break
		}
		b.WriteRune(c)
	}
	return token{kind: tWord, text: b.String(), line: line}
}

func (l *lexer) skipLine() {
	for {
		c, ok := l.read()
		if !ok || c == '\n' {
			return
		}
	}
}

func (l *lexer) skipBlock() error {
	prev := rune(0)
	for {
		c, ok := l.read()
		if !ok {
			return errUnterminated
		}
		if prev == '*' && c == '/' {
			return nil
		}
		prev = c
	}
}

// quoted reads up to the closing quote q. A doubled quote is a literal quote;
// with backslash escapes enabled \n \t \r \0 \Z and \<any> are decoded too.
func (l *lexer) quoted(q rune) (string, error) {
	var b strings.Builder
	for {
		c, ok := l.read()
		if !ok {
			return b.String(), errUnterminated
		}
		switch {
		case c == q:
			n, ok := l.read()
			if ok && n == q {
				b.WriteRune(q)
				continue
			}
			if ok {
				l.unread(n)
			}
			return b.String(), nil
		case c == '\\' && l.backslash && q != '`':
			n, ok := l.read()
			if !ok {
				return b.String(), errUnterminated
			}
			switch n {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			case 'Z':
				b.WriteByte(0x1a)
			default:
				b.WriteRune(n)
			}
		default:
			b.WriteRune(c)
		}
	}
}
