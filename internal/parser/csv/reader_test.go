package csv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unify/internal/config"
	"unify/internal/parser"
	"unify/internal/parser/parsertest"
	"unify/internal/source"
	"unify/pkg/records"
)

func stream(t *testing.T, body string, opt config.Options) parsertest.Result {
	t.Helper()
	r, err := New(opt)
	require.NoError(t, err)
	return parsertest.Run(t, r, parsertest.WriteFile(t, "in.csv", []byte(body), source.FormatCSV))
}

func TestSniffDelimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sample string
		want   rune
		ok     bool
	}{
		{"comma", "a,b,c\n1,2,3\n", ',', true},
		{"semicolon", "a;b;c\n1;2,5;3\n", ';', true},
		{"tab", "a\tb\n1\t2\n", '\t', true},
		{"tab with empty edge fields", "a,x\tb\tc\n1\t2\t\n\t\t3\r\n", '\t', true},
		{"comma inside quotes ignored", "\"x,y\";b\n\"1,2\";3\n", ';', true},
		{"consistency beats presence", "a,b;c;d\n1;2;3\n4;5;6\n", ';', true},
		{"tie goes to first candidate", "a,b;c\n1,2;3\n", ',', true},
		{"no candidate", "email\nx@y\n", 0, false},
		{"empty", "\n\n", 0, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := sniffDelimiter([]byte(tt.sample))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStream_Basic(t *testing.T) {
	t.Parallel()

	res := stream(t, "\uFEFFName;E-mail;Phone\nAda;ada@x.io;123\nBob;bob@x.io\n", nil)
	require.NoError(t, res.Err)
	assert.Empty(t, res.Skips)
	assert.Equal(t, []records.Record{
		{"Name": "Ada", "E-mail": "ada@x.io", "Phone": "123"},
		{"Name": "Bob", "E-mail": "bob@x.io"},
	}, res.Records)
}

func TestStream_LongRowIsCorruptRecord(t *testing.T) {
	t.Parallel()

	res := stream(t, "a,b\n1,2\n1,2,3\n4,5\n", nil)
	require.NoError(t, res.Err)
	assert.Len(t, res.Records, 2)
	require.Len(t, res.Skips, 1)
	assert.ErrorIs(t, res.Skips[0], parser.ErrCorruptRecord)
	assert.Equal(t, 3, res.Lines[0])
}

func TestStream_QuoteErrorIsCorruptRecord(t *testing.T) {
	t.Parallel()

	res := stream(t, "a,b\n1,x\"y\n3,4\n", nil)
	require.NoError(t, res.Err)
	assert.Equal(t, []records.Record{{"a": "3", "b": "4"}}, res.Records)
	require.Len(t, res.Skips, 1)
	assert.ErrorIs(t, res.Skips[0], parser.ErrCorruptRecord)
}

func TestStream_NoDelimiterIsCorruptSource(t *testing.T) {
	t.Parallel()

	res := stream(t, "just one column\nvalue\n", nil)
	assert.ErrorIs(t, res.Err, parser.ErrCorruptSource)
	assert.Empty(t, res.Records)
}

func TestStream_ConfiguredDelimiter(t *testing.T) {
	t.Parallel()

	res := stream(t, "email\nx@y.io\n", config.Options{"delimiter": "|"})
	require.NoError(t, res.Err)
	assert.Equal(t, []records.Record{{"email": "x@y.io"}}, res.Records)
}

func TestStream_Empty(t *testing.T) {
	t.Parallel()

	res := stream(t, "", nil)
	require.NoError(t, res.Err)
	assert.Empty(t, res.Records)
}

func TestNew_RejectsQuoteDelimiter(t *testing.T) {
	t.Parallel()
	_, err := New(config.Options{"delimiter": `"`})
	assert.Error(t, err)
}
