package json

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unify/internal/config"
	"unify/internal/parser"
	"unify/internal/parser/parsertest"
	"unify/internal/source"
	"unify/pkg/records"
)

func streamBody(t *testing.T, body string) parsertest.Result {
	t.Helper()
	return streamWith(t, config.Options{}, body)
}

func streamWith(t *testing.T, opt config.Options, body string) parsertest.Result {
	t.Helper()
	r, err := New(opt)
	require.NoError(t, err)
	return parsertest.Run(t, r, parsertest.WriteFile(t, "in.json", []byte(body), source.FormatJSON))
}

func TestStream_NDJSONWithMalformedLine(t *testing.T) {
	t.Parallel()

	res := streamBody(t, `{"name":"Ada","email":"ada@x.io"}
{"name": oops}
{"name":"Bob","email":"bob@x.io"}
`)
	require.NoError(t, res.Err)
	assert.Equal(t, []records.Record{
		{"name": "Ada", "email": "ada@x.io"},
		{"name": "Bob", "email": "bob@x.io"},
	}, res.Records)
	require.Len(t, res.Skips, 1)
	assert.ErrorIs(t, res.Skips[0], parser.ErrCorruptRecord)
	assert.Equal(t, 2, res.Lines[0])
}

func TestStream_NDJSONTruncatedLineIsCorrupt(t *testing.T) {
	t.Parallel()

	res := streamBody(t, `{"name":"a","email":"a@x"}
{"name":"b","email":"b@x"}
{"name":"c","email":"c@x
`)
	require.NoError(t, res.Err)
	assert.Equal(t, []records.Record{
		{"name": "a", "email": "a@x"},
		{"name": "b", "email": "b@x"},
	}, res.Records)
	require.Len(t, res.Skips, 1)
	assert.ErrorIs(t, res.Skips[0], parser.ErrCorruptRecord)
	assert.Equal(t, 3, res.Lines[0])
}

func TestStream_NDJSONRepairsTruncatedLineWhenEnabled(t *testing.T) {
	t.Parallel()

	res := streamWith(t, config.Options{"repair_lines": true}, "{\"name\":\"Ada\"}\n{\"name\":\"Bob\",\"tags\":[\"a\"\n\n")
	require.NoError(t, res.Err)
	assert.Empty(t, res.Skips)
	require.Len(t, res.Records, 2)
	assert.Equal(t, []any{"a"}, res.Records[1]["tags"])
}

func TestStream_Array(t *testing.T) {
	t.Parallel()

	res := streamBody(t, `[{"id": 1.50}, 7, {"id": 2}]`)
	require.NoError(t, res.Err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, json.Number("1.50"), res.Records[0]["id"])
	require.Len(t, res.Skips, 1)
	assert.ErrorIs(t, res.Skips[0], parser.ErrCorruptRecord)
}

func TestStream_ArrayTruncatedAfterRecords(t *testing.T) {
	t.Parallel()

	res := streamBody(t, `[{"id":1},{"id":2},{"id":`)
	require.NoError(t, res.Err)
	assert.Len(t, res.Records, 2)
	assert.Len(t, res.Skips, 1)
}

func TestStream_ArrayBrokenFromStartIsCorruptSource(t *testing.T) {
	t.Parallel()

	res := streamBody(t, `[{"id":}]`)
	assert.ErrorIs(t, res.Err, parser.ErrCorruptSource)
	assert.Empty(t, res.Records)
}

func TestStream_PrettyEnvelope(t *testing.T) {
	t.Parallel()

	res := streamBody(t, `{
  "meta": {"count": 2},
  "records": [
    {"name": "Ada", "address": {"city": "London"}},
    {"name": "Bob"}
  ]
}
`)
	require.NoError(t, res.Err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, map[string]any{"city": "London"}, res.Records[0]["address"])
	assert.Equal(t, "Bob", res.Records[1]["name"])
}

func TestStream_ObjectWithNestedListIsOneRecord(t *testing.T) {
	t.Parallel()

	res := streamBody(t, `{"name":"Ada","orders":[{"sku":"x"}]}`)
	require.NoError(t, res.Err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Ada", res.Records[0]["name"])
}

func TestStream_TruncatedPrettyDocument(t *testing.T) {
	t.Parallel()

	// A truncated document that fits the sniff window never decodes as one
	// value, so it is read line by line and no line yields a record.
	res := streamBody(t, "{\n  \"name\": \"Ada\",\n  \"email\": ")
	require.NoError(t, res.Err)
	assert.Empty(t, res.Records)
	assert.Len(t, res.Skips, 3)
}

func TestStream_Empty(t *testing.T) {
	t.Parallel()

	res := streamBody(t, "  \n")
	require.NoError(t, res.Err)
	assert.Empty(t, res.Records)
}

func TestRepair(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a":1`, `{"a":1}`, true},
		{`{"a":[1,2`, `{"a":[1,2]}`, true},
		{`{"a":"x`, `{"a":"x"}`, true},
		{`{"a":1,`, `{"a":1}`, true},
		{`{"a":"}{"`, `{"a":"}{"}`, true},
		{`{"a":1}`, "", false},
		{`{"a":1]]`, "", false},
		{`{"a":`, `{"a"}`, false},
		{``, "", false},
	}
	for _, tt := range tests {
		got, ok := Repair([]byte(tt.in))
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.want != "" {
			assert.Equal(t, tt.want, string(got), tt.in)
		}
	}
}

func TestSpansLines(t *testing.T) {
	t.Parallel()

	assert.False(t, spansLines([]byte(`{"a":1}`+"\n"+`{"b":2}`), false))
	assert.True(t, spansLines([]byte("{\n\"a\":1\n}"), false))
	assert.False(t, spansLines([]byte(`{"a":1`+"\n"+`{"b":2}`), false))
	assert.True(t, spansLines([]byte(`{"a":"`+strings.Repeat("x", 10)), true))
}
