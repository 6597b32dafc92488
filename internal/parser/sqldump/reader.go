// Package sqldump reads SQL dump files and turns the tuples of every
// INSERT INTO ... VALUES statement into records. Other statements are
// skipped. Columns come from the statement's column list, or are named
// col_1..col_n when it has none.
package sqldump

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"unify/internal/config"
	"unify/internal/parser"
	"unify/internal/source"
	"unify/pkg/records"
)

func init() { parser.Register(source.FormatSQL, New) }

// Reader streams one record per VALUES tuple.
//
// Options:
//   - table (string): only read INSERTs into this table (unqualified name)
//   - backslash_escapes (bool; default true): decode \n, \t, \\ ... in strings
type Reader struct {
	table     string
	backslash bool
}

// New builds a Reader from options.
func New(opt config.Options) (parser.Reader, error) {
	return &Reader{
		table:     strings.ToLower(opt.String("table", "")),
		backslash: opt.Bool("backslash_escapes", true),
	}, nil
}

func (r *Reader) Format() source.Format { return source.FormatSQL }

// Stream implements parser.Reader. Tuples with more values than the column
// list, and tuples cut off by the end of the file, are corrupt records;
// shorter tuples fill the leading columns.
func (r *Reader) Stream(ctx context.Context, f source.RawFile, out chan<- records.Record, onErr func(line int, err error)) error {
	rc, err := f.OpenText(ctx)
	if err != nil {
		return parser.CorruptSource(f.Path, err)
	}
	defer rc.Close()

	p := &dumpParser{
		lx:    newLexer(rc, r.backslash),
		r:     r,
		ctx:   ctx,
		path:  f.Path,
		out:   out,
		onErr: onErr,
	}
	err = p.run()
	if errors.Is(err, errUnterminated) {
		if p.emitted == 0 && p.statements == 0 {
			return parser.CorruptSource(f.Path, err)
		}
		return nil
	}
	return err
}

type dumpParser struct {
	lx    *lexer
	r     *Reader
	ctx   context.Context
	path  string
	out   chan<- records.Record
	onErr func(int, error)

	emitted    int
	statements int
}

func (p *dumpParser) skip(line int, err error) {
	if p.onErr != nil {
		p.onErr(line, parser.Corrupt(p.path, line, err))
	}
}

func isWord(t token, w string) bool { return t.kind == tWord && strings.EqualFold(t.text, w) }

func (p *dumpParser) run() error {
	for {
		if err := p.ctx.Err(); err != nil {
			return err
		}
		t, err := p.lx.next()
		if err != nil {
			return err
		}
		switch {
		case t.kind == tEOF:
			return nil
		case isWord(t, "INSERT") || isWord(t, "REPLACE"):
			if err := p.insert(); err != nil {
				return err
			}
		case t.kind == tPunct && t.text == ";":
		default:
			if err := p.skipStatement(); err != nil {
				return err
			}
		}
	}
}

// skipStatement consumes tokens through the next top-level semicolon.
func (p *dumpParser) skipStatement() error {
	for {
		t, err := p.lx.next()
		if err != nil {
			return err
		}
		if t.kind == tEOF || (t.kind == tPunct && t.text == ";") {
			return nil
		}
	}
}

// insert parses the remainder of an INSERT statement.
func (p *dumpParser) insert() error {
	p.statements++
	// INSERT [LOW_PRIORITY|IGNORE|...] INTO
	for {
		t, err := p.lx.next()
		if err != nil {
			return err
		}
		if isWord(t, "INTO") {
			break
		}
		if t.kind != tWord {
			return p.skipStatement()
		}
	}

	table, err := p.tableName()
	if err != nil {
		return err
	}
	if p.r.table != "" && !strings.EqualFold(table, p.r.table) {
		return p.skipStatement()
	}

	var cols []string
	t, err := p.lx.peek()
	if err != nil {
		return err
	}
	if t.kind == tPunct && t.text == "(" {
		_, _ = p.lx.next()
		if cols, err = p.columnList(); err != nil {
			switch {
			case errors.Is(err, errStatementEnded):
				return nil
			case errors.Is(err, errBadColumnList):
				return p.skipStatement()
			}
			return err
		}
	}

	t, err = p.lx.next()
	if err != nil {
		return err
	}
	if !isWord(t, "VALUES") && !isWord(t, "VALUE") {
		// INSERT ... SELECT and friends carry no literal rows.
		return p.skipStatement()
	}
	return p.tuples(cols)
}

// tableName reads a possibly qualified name and returns its last part.
func (p *dumpParser) tableName() (string, error) {
	name := ""
	for {
		t, err := p.lx.peek()
		if err != nil {
			return "", err
		}
		switch {
		case t.kind == tIdent || t.kind == tString:
			name = t.text
		case t.kind == tWord && !isWord(t, "VALUES") && !isWord(t, "VALUE"):
			parts := strings.Split(t.text, ".")
			if last := parts[len(parts)-1]; last != "" {
				name = last
			}
		default:
			return name, nil
		}
		_, _ = p.lx.next()
	}
}

var (
	errBadColumnList  = errors.New("bad column list")
	errStatementEnded = errors.New("statement ended in column list")
)

// columnList reads names up to the closing parenthesis. A malformed list is
// reported as one corrupt record and the statement is dropped.
func (p *dumpParser) columnList() ([]string, error) {
	var cols []string
	for {
		t, err := p.lx.next()
		if err != nil {
			return nil, err
		}
		switch {
		case t.kind == tPunct && t.text == ")":
			return cols, nil
		case t.kind == tPunct && t.text == ",":
		case t.kind == tWord || t.kind == tIdent || t.kind == tString:
			cols = append(cols, t.text)
		case t.kind == tEOF:
			return nil, errUnterminated
		default:
			p.skip(t.line, fmt.Errorf("unexpected %q in column list", t.text))
			if t.kind == tPunct && t.text == ";" {
				return nil, errStatementEnded
			}
			return nil, errBadColumnList
		}
	}
}

// tuples reads "(...), (...) ;" emitting one record per tuple.
func (p *dumpParser) tuples(cols []string) error {
	for {
		if err := p.ctx.Err(); err != nil {
			return err
		}
		t, err := p.lx.next()
		if err != nil {
			return err
		}
		switch {
		case t.kind == tEOF:
			return nil
		case t.kind == tPunct && t.text == ";":
			return nil
		case t.kind == tPunct && t.text == ",":
			continue
		case t.kind == tPunct && t.text == "(":
		default:
			// ON DUPLICATE KEY UPDATE and similar trailers.
			return p.skipStatement()
		}

		line := t.line
		vals, err := p.tuple()
		if errors.Is(err, errUnterminated) {
			p.skip(line, errors.New("unterminated tuple"))
			return err
		}
		if err != nil {
			return err
		}
		if cols != nil && len(vals) > len(cols) {
			p.skip(line, fmt.Errorf("tuple has %d values, column list has %d", len(vals), len(cols)))
			continue
		}
		rec := make(records.Record, len(vals))
		for i, v := range vals {
			if cols != nil {
				rec[cols[i]] = v
			} else {
				rec[parser.ColumnName(i)] = v
			}
		}
		if err := parser.Emit(p.ctx, p.out, rec); err != nil {
			return err
		}
		p.emitted++
	}
}

// tuple reads values up to the closing parenthesis. Strings yield their
// content, NULL yields "", anything else (numbers, function calls) yields its
// source text.
func (p *dumpParser) tuple() ([]string, error) {
	var (
		vals  []string
		cur   []token
		depth int
	)
	flush := func() {
		vals = append(vals, value(cur))
		cur = cur[:0]
	}
	for {
		t, err := p.lx.next()
		if err != nil {
			return nil, err
		}
		switch {
		case t.kind == tEOF:
			return nil, errUnterminated
		case t.kind == tPunct && t.text == "(":
			depth++
		case t.kind == tPunct && t.text == ")":
			if depth == 0 {
				if len(cur) > 0 || len(vals) > 0 {
					flush()
				}
				return vals, nil
			}
			depth--
		case t.kind == tPunct && t.text == "," && depth == 0:
			flush()
			continue
		}
		cur = append(cur, t)
	}
}

func value(toks []token) string {
	if len(toks) == 1 {
		t := toks[0]
		if isWord(t, "NULL") {
			return ""
		}
		return t.text
	}
	var b strings.Builder
	for _, t := range toks {
		switch t.kind {
		case tString:
			b.WriteString("'" + strings.ReplaceAll(t.text, "'", "''") + "'")
		case tIdent:
			b.WriteString("`" + t.text + "`")
		default:
			b.WriteString(t.text)
		}
	}
	return b.String()
}
