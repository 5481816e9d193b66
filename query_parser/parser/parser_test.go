package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	lex "github.com/shadowash0215/daemonsql/query_parser/lexer"
)

func parse(t *testing.T, sql string) Statement {
	t.Helper()
	p := New(lex.New(sql))
	stmt, err := p.ParseStatement()
	require.NoError(t, err)
	return stmt
}

func TestParseShowDatabases(t *testing.T) {
	stmt := parse(t, "SHOW DATABASES")
	_, ok := stmt.(*ShowDatabasesStmt)
	require.True(t, ok)
}

func TestParseCreateTableWithConstraints(t *testing.T) {
	stmt := parse(t, "CREATE TABLE students (id INT PRIMARY KEY, name CHAR(20) NOT NULL, gpa FLOAT)")
	ct, ok := stmt.(*CreateTableStmt)
	require.True(t, ok)
	require.Equal(t, "students", ct.TableName)
	require.Len(t, ct.Columns, 3)
	require.True(t, ct.Columns[0].IsPrimaryKey)
	require.Equal(t, "INT", ct.Columns[0].Type)
	require.True(t, ct.Columns[1].NotNull)
	require.EqualValues(t, 20, ct.Columns[1].Length)
	require.Equal(t, "FLOAT", ct.Columns[2].Type)
}

func TestParseCreateTableWithTrailingUniqueClause(t *testing.T) {
	stmt := parse(t, "CREATE TABLE t (id INT, name CHAR(32), UNIQUE (id))")
	ct, ok := stmt.(*CreateTableStmt)
	require.True(t, ok)
	require.Len(t, ct.Columns, 2)
	require.True(t, ct.Columns[0].Unique)
	require.False(t, ct.Columns[1].Unique)
}

func TestParseCreateTableWithTrailingPrimaryKeyClause(t *testing.T) {
	stmt := parse(t, "CREATE TABLE t (a INT, b INT, PRIMARY KEY (a, b))")
	ct, ok := stmt.(*CreateTableStmt)
	require.True(t, ok)
	require.True(t, ct.Columns[0].IsPrimaryKey)
	require.True(t, ct.Columns[1].IsPrimaryKey)
}

func TestParseCreateIndex(t *testing.T) {
	stmt := parse(t, "CREATE INDEX by_name ON students (name)")
	ci, ok := stmt.(*CreateIndexStmt)
	require.True(t, ok)
	require.Equal(t, "by_name", ci.IndexName)
	require.Equal(t, "students", ci.TableName)
	require.Equal(t, []string{"name"}, ci.Columns)
}

func TestParseSelectWithWhere(t *testing.T) {
	stmt := parse(t, `SELECT * FROM students WHERE id = "S001"`)
	sel, ok := stmt.(*SelectStmt)
	require.True(t, ok)
	require.Equal(t, []string{"*"}, sel.Columns)
	require.NotNil(t, sel.Where)
	require.Equal(t, "id", sel.Where.Column)
	require.Equal(t, "S001", sel.Where.Value)
}

func TestParseInsertWithNegativeNumber(t *testing.T) {
	stmt := parse(t, `INSERT INTO students VALUES ("S001", -3.5, 20)`)
	ins, ok := stmt.(*InsertStmt)
	require.True(t, ok)
	require.Equal(t, []string{"S001", "-3.5", "20"}, ins.Values)
}

func TestParseUpdateWithWhere(t *testing.T) {
	stmt := parse(t, `UPDATE students SET gpa = 4.0 WHERE id = "S001"`)
	upd, ok := stmt.(*UpdateStmt)
	require.True(t, ok)
	require.Equal(t, "4.0", upd.Assignments["gpa"])
	require.NotNil(t, upd.Where)
}

func TestParseDelete(t *testing.T) {
	stmt := parse(t, `DELETE FROM students WHERE id = "S001"`)
	del, ok := stmt.(*DeleteStmt)
	require.True(t, ok)
	require.Equal(t, "students", del.Table)
	require.Equal(t, "id", del.Where.Column)
}

func TestParseExecfileQuotedAndUnquoted(t *testing.T) {
	stmt := parse(t, `EXECFILE "seed.sql"`)
	ef, ok := stmt.(*ExecfileStmt)
	require.True(t, ok)
	require.Equal(t, "seed.sql", ef.Path)

	stmt2 := parse(t, "EXECFILE ./seed.sql")
	ef2, ok := stmt2.(*ExecfileStmt)
	require.True(t, ok)
	require.Equal(t, "./seed.sql", ef2.Path)
}

func TestParseQuit(t *testing.T) {
	stmt := parse(t, "QUIT")
	_, ok := stmt.(*QuitStmt)
	require.True(t, ok)
}

func TestParseInvalidSQLReturnsError(t *testing.T) {
	tests := []string{
		"SELECT * students",
		"INSERT INTO students (\"S001\")",
		"CREATE TABLE students id INT",
		"SELECT * FROM students WHERE id",
		"",
	}
	for _, sql := range tests {
		p := New(lex.New(sql))
		_, err := p.ParseStatement()
		require.Error(t, err, sql)
	}
}
