// Package xmlparser reads markup files. By default every direct child of the
// root element is a record; with the record_tag option every element with
// that local name is a record, at any depth.
//
// Within a record, each leaf element's text becomes a field keyed by its
// local tag name, element attributes become <tag>_<attr> fields and the
// record element's own attributes keep their bare names. Repeated tags
// collect into a list. Leaf children of the root (a document that is itself
// one flat record) are gathered into a single record.
package xmlparser

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"unify/internal/config"
	"unify/internal/parser"
	"unify/internal/source"
	"unify/pkg/records"
)

func init() { parser.Register(source.FormatXML, New) }

// Reader streams one record per record element.
//
// Options:
//   - record_tag (string): local name of record elements; default is every
//     direct child of the root
type Reader struct {
	recordTag string
}

// New builds a Reader from options.
func New(opt config.Options) (parser.Reader, error) {
	return &Reader{recordTag: strings.TrimSpace(opt.String("record_tag", ""))}, nil
}

func (r *Reader) Format() source.Format { return source.FormatXML }

type frame struct {
	name     string
	attrs    []xml.Attr
	text     strings.Builder
	hasChild bool
}

// Stream implements parser.Reader.
func (r *Reader) Stream(ctx context.Context, f source.RawFile, out chan<- records.Record, onErr func(line int, err error)) error {
	rc, err := f.OpenText(ctx)
	if err != nil {
		return parser.CorruptSource(f.Path, err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	// Input is already UTF-8; ignore the declared charset.
	dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }

	var (
		stack    []*frame
		rec      records.Record
		recDepth int
		rootRec  = records.Record{}
		emitted  int
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			if len(stack) > 0 {
				err = io.ErrUnexpectedEOF
			} else {
				break
			}
		}
		if err != nil {
			if emitted == 0 {
				return parser.CorruptSource(f.Path, err)
			}
			line, _ := dec.InputPos()
			if onErr != nil {
				onErr(line, parser.Corrupt(f.Path, line, fmt.Errorf("truncated input: %w", err)))
			}
			return nil
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if n := len(stack); n > 0 {
				stack[n-1].hasChild = true
			}
			fr := &frame{name: t.Name.Local, attrs: t.Attr}
			stack = append(stack, fr)
			depth := len(stack)
			switch {
			case recDepth > 0:
				for _, a := range t.Attr {
					add(rec, fr.name+"_"+a.Name.Local, a.Value)
				}
			case r.isRecord(depth, fr.name):
				recDepth = depth
				rec = records.Record{}
			}

		case xml.CharData:
			if n := len(stack); n > 0 {
				stack[n-1].text.Write(t)
			}

		case xml.EndElement:
			depth := len(stack)
			fr := stack[depth-1]
			stack = stack[:depth-1]
			text := strings.TrimSpace(fr.text.String())

			switch {
			case recDepth > 0 && depth > recDepth:
				if !fr.hasChild && text != "" {
					add(rec, fr.name, text)
				}
			case recDepth > 0 && depth == recDepth:
				recDepth = 0
				if !fr.hasChild && r.recordTag == "" {
					// A leaf child of the root belongs to the root record.
					if text != "" {
						add(rootRec, fr.name, text)
					}
					for _, a := range fr.attrs {
						add(rootRec, fr.name+"_"+a.Name.Local, a.Value)
					}
					continue
				}
				for _, a := range fr.attrs {
					add(rec, a.Name.Local, a.Value)
				}
				if !fr.hasChild && text != "" {
					add(rec, fr.name, text)
				}
				if len(rec) == 0 {
					continue
				}
				if err := parser.Emit(ctx, out, rec); err != nil {
					return err
				}
				emitted++
			}
		}
	}

	if len(rootRec) > 0 {
		if err := parser.Emit(ctx, out, rootRec); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) isRecord(depth int, name string) bool {
	if r.recordTag != "" {
		return name == r.recordTag
	}
	return depth == 2
}

// add sets key, turning repeated keys into a list in document order.
func add(rec records.Record, key, value string) {
	prev, ok := rec[key]
	if !ok {
		rec[key] = value
		return
	}
	if list, ok := prev.([]any); ok {
		rec[key] = append(list, value)
		return
	}
	rec[key] = []any{prev, value}
}
