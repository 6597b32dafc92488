package sqldump

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
	return parsertest.Run(t, r, parsertest.WriteFile(t, "in.sql", []byte(body), source.FormatSQL))
}

const mysqlDump = `-- MySQL dump 10.13
/*!40101 SET NAMES utf8 */;
DROP TABLE IF EXISTS ` + "`customers`" + `;
CREATE TABLE ` + "`customers`" + ` (
  ` + "`id`" + ` int NOT NULL, -- pk
  ` + "`note`" + ` varchar(20) DEFAULT 'a;b'
);
# hash comment
INSERT INTO ` + "`shop`.`customers`" + ` (` + "`id`, `name`, `email`, `note`" + `) VALUES
  (1,'O''Brien','ob@x.io','line\nbreak'),
  (2,"Bob",NULL,'semi;colon'),(3,'Cy','cy@x.io');
INSERT INTO orders VALUES (10, -2.5, NOW()),(11,'x',CONCAT('a','b'));
`

func TestStream_MySQLDump(t *testing.T) {
	t.Parallel()

	res := stream(t, mysqlDump, nil)
	require.NoError(t, res.Err)
	assert.Empty(t, res.Skips)
	assert.Equal(t, []records.Record{
		{"id": "1", "name": "O'Brien", "email": "ob@x.io", "note": "line\nbreak"},
		{"id": "2", "name": "Bob", "email": "", "note": "semi;colon"},
		{"id": "3", "name": "Cy", "email": "cy@x.io"},
		{"col_1": "10", "col_2": "-2.5", "col_3": "NOW()"},
		{"col_1": "11", "col_2": "x", "col_3": "CONCAT('a','b')"},
	}, res.Records)
}

func TestStream_TableFilter(t *testing.T) {
	t.Parallel()

	res := stream(t, mysqlDump, config.Options{"table": "orders"})
	require.NoError(t, res.Err)
	assert.Len(t, res.Records, 2)
}

func TestStream_LongTupleIsCorruptRecord(t *testing.T) {
	t.Parallel()

	res := stream(t, "INSERT INTO t (a,b) VALUES (1,2),(1,2,3),(4,5);\n", nil)
	require.NoError(t, res.Err)
	assert.Equal(t, []records.Record{{"a": "1", "b": "2"}, {"a": "4", "b": "5"}}, res.Records)
	require.Len(t, res.Skips, 1)
	assert.ErrorIs(t, res.Skips[0], parser.ErrCorruptRecord)
}

func TestStream_UnterminatedTuple(t *testing.T) {
	t.Parallel()

	res := stream(t, "INSERT INTO t (a) VALUES ('x'),\n('y", nil)
	require.NoError(t, res.Err)
	assert.Equal(t, []records.Record{{"a": "x"}}, res.Records)
	require.Len(t, res.Skips, 1)
	assert.Equal(t, 2, res.Lines[0])
}

func TestStream_NoBackslashEscapes(t *testing.T) {
	t.Parallel()

	res := stream(t, `INSERT INTO t (p) VALUES ('C:\temp');`, config.Options{"backslash_escapes": false})
	require.NoError(t, res.Err)
	assert.Equal(t, []records.Record{{"p": `C:\temp`}}, res.Records)
}

func TestStream_UnterminatedCommentIsCorruptSource(t *testing.T) {
	t.Parallel()

	res := stream(t, "/* never closed\nINSERT INTO t VALUES (1);", nil)
	assert.ErrorIs(t, res.Err, parser.ErrCorruptSource)
}

func TestStream_NoInserts(t *testing.T) {
	t.Parallel()

	res := stream(t, "CREATE TABLE t (a int);\n", nil)
	require.NoError(t, res.Err)
	assert.Empty(t, res.Records)
}

func TestStream_BadColumnListSkipsStatement(t *testing.T) {
	t.Parallel()

	res := stream(t, `INSERT INTO t (id) VALUES (1);
INSERT INTO t (a, (b) VALUES (2, 3);
INSERT INTO t (c; 
INSERT INTO t (id) VALUES (4);
`, nil)
	require.NoError(t, res.Err)
	assert.Equal(t, []records.Record{{"id": "1"}, {"id": "4"}}, res.Records)
	require.Len(t, res.Skips, 2)
	assert.ErrorIs(t, res.Skips[0], parser.ErrCorruptRecord)
	assert.Equal(t, 2, res.Lines[0])
	assert.Equal(t, 3, res.Lines[1])
}
