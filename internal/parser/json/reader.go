// Package json reads JSON documents: a top-level array of objects,
// newline-delimited objects, or a pretty-printed document (possibly an
// envelope that wraps the records in one array field).
//
// Newline-delimited input is decoded line by line, so one malformed line costs
// one record. With repair_lines set, a line that fails to decode gets one
// repair attempt that closes any open string, array or object before it is
// counted as corrupt.
package json

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"unify/internal/config"
	"unify/internal/parser"
	"unify/internal/source"
	"unify/pkg/records"
)

func init() { parser.Register(source.FormatJSON, New) }

// Reader streams one record per JSON object.
//
// Options:
//   - envelope_keys ([]string): field names treated as record envelopes in
//     addition to the defaults (data, records, items, results, rows, entries)
//   - repair_lines (bool, default false): close a truncated NDJSON line and
//     keep it instead of skipping it as corrupt
type Reader struct {
	envelopes map[string]struct{}
	repair    bool
}

var defaultEnvelopes = []string{"data", "records", "items", "results", "rows", "entries"}

// New builds a Reader from options.
func New(opt config.Options) (parser.Reader, error) {
	r := &Reader{envelopes: map[string]struct{}{}, repair: opt.Bool("repair_lines", false)}
	for _, k := range append(defaultEnvelopes, opt.StringSlice("envelope_keys")...) {
		r.envelopes[k] = struct{}{}
	}
	return r, nil
}

func (r *Reader) Format() source.Format { return source.FormatJSON }

// Stream implements parser.Reader.
func (r *Reader) Stream(ctx context.Context, f source.RawFile, out chan<- records.Record, onErr func(line int, err error)) error {
	rc, err := f.OpenText(ctx)
	if err != nil {
		return parser.CorruptSource(f.Path, err)
	}
	defer rc.Close()

	br := bufio.NewReaderSize(rc, source.SniffSize)
	head, err := br.Peek(source.SniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return parser.CorruptSource(f.Path, err)
	}
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	if len(trimmed) == 0 {
		return nil
	}

	s := &stream{r: r, ctx: ctx, path: f.Path, out: out, onErr: onErr}
	switch {
	case trimmed[0] == '[':
		return s.array(br)
	case spansLines(head, len(head) == source.SniffSize):
		return s.values(br)
	default:
		return s.lines(br)
	}
}

// spansLines reports whether the first JSON value in head continues past its
// first line, i.e. the document is pretty-printed rather than one value per
// line. A value that does not fit in a full sniff buffer counts as spanning.
func spansLines(head []byte, full bool) bool {
	start := len(head) - len(bytes.TrimLeft(head, " \t\r\n"))
	dec := json.NewDecoder(bytes.NewReader(head[start:]))
	var v json.RawMessage
	if err := dec.Decode(&v); err != nil {
		return full && errors.Is(err, io.ErrUnexpectedEOF)
	}
	return bytes.IndexByte(bytes.TrimSpace(v), '\n') >= 0
}

type stream struct {
	r       *Reader
	ctx     context.Context
	path    string
	out     chan<- records.Record
	onErr    func(int, error)
	emitted  int
	repaired int
}

func (s *stream) skip(line int, err error) {
	if s.onErr != nil {
		s.onErr(line, parser.Corrupt(s.path, line, err))
	}
}

func (s *stream) emit(obj map[string]any) error {
	s.emitted++
	return parser.Emit(s.ctx, s.out, records.Record(obj))
}

// value emits the records held by one top-level value.
func (s *stream) value(line int, v any) error {
	switch t := v.(type) {
	case map[string]any:
		if objs := s.r.envelope(t); objs != nil {
			for _, o := range objs {
				if err := s.emit(o); err != nil {
					return err
				}
			}
			return nil
		}
		return s.emit(t)
	case []any:
		for _, elem := range t {
			obj, ok := elem.(map[string]any)
			if !ok {
				s.skip(line, fmt.Errorf("array element is %T, not an object", elem))
				continue
			}
			if err := s.emit(obj); err != nil {
				return err
			}
		}
		return nil
	default:
		s.skip(line, fmt.Errorf("top-level value is %T, not an object", v))
		return nil
	}
}

// array streams the elements of a top-level array one at a time. A syntax
// error ends the array: the file is corrupt if nothing was emitted yet,
// otherwise the failed element is one corrupt record.
func (s *stream) array(r io.Reader) error {
	dec := newDecoder(r)
	if _, err := dec.Token(); err != nil {
		return parser.CorruptSource(s.path, err)
	}
	for idx := 1; dec.More(); idx++ {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		var elem any
		if err := dec.Decode(&elem); err != nil {
			return s.truncated(idx, err)
		}
		obj, ok := elem.(map[string]any)
		if !ok {
			s.skip(idx, fmt.Errorf("array element is %T, not an object", elem))
			continue
		}
		if err := s.emit(obj); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return s.truncated(0, err)
	}
	return nil
}

// values decodes a stream of (possibly multi-line) top-level values.
func (s *stream) values(r io.Reader) error {
	dec := newDecoder(r)
	for idx := 1; ; idx++ {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return s.truncated(idx, err)
		}
		if err := s.value(idx, v); err != nil {
			return err
		}
	}
}

func (s *stream) truncated(idx int, err error) error {
	if s.emitted == 0 {
		return parser.CorruptSource(s.path, err)
	}
	s.skip(idx, err)
	return nil
}

// lines decodes newline-delimited JSON, one value per line.
func (s *stream) lines(br *bufio.Reader) error {
	line := 0
	for {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		b, rerr := br.ReadBytes('\n')
		if len(b) > 0 {
			line++
			if err := s.line(line, b); err != nil {
				return err
			}
		}
		if errors.Is(rerr, io.EOF) {
			if s.repaired > 0 {
				log.Printf("json: path=%s repaired=%d", s.path, s.repaired)
			}
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("json: read %s: %w", s.path, rerr)
		}
	}
}

func (s *stream) line(n int, b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	v, err := decodeOne(b)
	if err != nil {
		if !s.r.repair {
			s.skip(n, err)
			return nil
		}
		fixed, ok := Repair(b)
		if !ok {
			s.skip(n, err)
			return nil
		}
		if v, err = decodeOne(fixed); err != nil {
			s.skip(n, err)
			return nil
		}
		if m, isObj := v.(map[string]any); isObj && len(m) == 0 {
			s.skip(n, errors.New("nothing recoverable after repair"))
			return nil
		}
		s.repaired++
		log.Printf("json: repaired truncated line %d in %s", n, s.path)
	}
	return s.value(n, v)
}

func decodeOne(b []byte) (any, error) {
	dec := newDecoder(bytes.NewReader(b))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after value")
	}
	return v, nil
}

func newDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// envelope returns the records wrapped by an envelope object, or nil when obj
// is a record itself. An envelope is an object with a single field, or one
// whose array-of-objects field has a well-known envelope name.
func (r *Reader) envelope(obj map[string]any) []map[string]any {
	for k, v := range obj {
		if len(obj) > 1 {
			if _, ok := r.envelopes[k]; !ok {
				continue
			}
		}
		if objs := objectSlice(v); objs != nil {
			return objs
		}
	}
	return nil
}

// objectSlice returns v as a slice of objects when every non-null element is
// an object.
func objectSlice(v any) []map[string]any {
	raw, ok := v.([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	objs := make([]map[string]any, 0, len(raw))
	for _, elem := range raw {
		if elem == nil {
			continue
		}
		m, ok := elem.(map[string]any)
		if !ok {
			return nil
		}
		objs = append(objs, m)
	}
	if len(objs) == 0 {
		return nil
	}
	return objs
}
