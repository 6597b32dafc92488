package parser

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unify/internal/config"
	"unify/internal/source"
	"unify/pkg/records"
)

type stubReader struct{ format source.Format }

func (s stubReader) Format() source.Format { return s.format }
func (s stubReader) Stream(context.Context, source.RawFile, chan<- records.Record, func(int, error)) error {
	return nil
}

func TestRegistry(t *testing.T) {
	Register("stub", func(config.Options) (Reader, error) { return stubReader{format: "stub"}, nil })

	r, err := For("stub", nil)
	require.NoError(t, err)
	assert.Equal(t, source.Format("stub"), r.Format())
	assert.Contains(t, Formats(), source.Format("stub"))

	_, err = For("nope", nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	assert.Panics(t, func() {
		Register("stub", func(config.Options) (Reader, error) { return nil, nil })
	})
}

func TestErrors(t *testing.T) {
	t.Parallel()

	rerr := Corrupt("a.json", 3, io.ErrUnexpectedEOF)
	assert.ErrorIs(t, rerr, ErrCorruptRecord)
	assert.ErrorIs(t, rerr, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, rerr, ErrCorruptSource)
	var re *RecordError
	require.True(t, errors.As(rerr, &re))
	assert.Equal(t, 3, re.Line)
	assert.Equal(t, "corrupt record a.json:3: unexpected EOF", rerr.Error())

	serr := CorruptSource("a.xml", io.EOF)
	assert.ErrorIs(t, serr, ErrCorruptSource)
	assert.ErrorIs(t, serr, io.EOF)
}

func TestEmit_Canceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Emit(ctx, make(chan records.Record), records.Record{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHeaderNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a", "col_2", "a_2", "b", "a_3"},
		HeaderNames([]string{"\uFEFFa", " ", "a", " b ", "a"}))
	assert.Equal(t, "col_1", ColumnName(0))
}
