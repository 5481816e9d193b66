// Package executor walks a parsed Statement directly against a
// storage_engine/engine.Database rather than through an intermediate
// bytecode representation — the storage layers underneath already do the
// real work, so a thin switch over the AST is enough.
package executor

import (
	"context"
	"fmt"
	"strconv"

	lex "github.com/shadowash0215/daemonsql/query_parser/lexer"
	"github.com/shadowash0215/daemonsql/query_parser/parser"
	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
	"github.com/shadowash0215/daemonsql/storage_engine/engine"
	"github.com/shadowash0215/daemonsql/storage_engine/logging"
	"github.com/shadowash0215/daemonsql/storage_engine/page"
	"github.com/shadowash0215/daemonsql/storage_engine/record"
)

var log = logging.For("executor")

// Result is the outcome of one executed statement: a human-readable
// message and, for SELECT/SHOW statements, the rows produced.
type Result struct {
	Message string
	Columns []string
	Rows    [][]string
}

// Session is one REPL connection: a registry of databases and which one
// (if any) is currently selected via USE.
type Session struct {
	reg     *engine.Registry
	current *engine.Database
	dbName  string
}

func NewSession(reg *engine.Registry) *Session {
	return &Session{reg: reg}
}

// Run parses and executes a single statement string.
func (s *Session) Run(ctx context.Context, line string) (*Result, error) {
	stmt, err := parseOne(line)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, stmt)
}

func parseOne(line string) (parser.Statement, error) {
	p := parser.New(lex.New(line))
	return p.ParseStatement()
}

func (s *Session) Execute(ctx context.Context, stmt parser.Statement) (*Result, error) {
	log.WithField("statement", fmt.Sprintf("%T", stmt)).Debug("executing statement")
	switch st := stmt.(type) {
	case *parser.CreateDatabaseStmt:
		return s.execCreateDatabase(st)
	case *parser.DropDatabaseStmt:
		return s.execDropDatabase(st)
	case *parser.ShowDatabasesStmt:
		return s.execShowDatabases()
	case *parser.UseDatabaseStmt:
		return s.execUse(st)
	case *parser.ShowTablesStmt:
		return s.execShowTables()
	case *parser.ShowIndexesStmt:
		return s.execShowIndexes(st)
	case *parser.CreateTableStmt:
		return s.execCreateTable(st)
	case *parser.DropTableStmt:
		return s.execDropTable(st)
	case *parser.CreateIndexStmt:
		return s.execCreateIndex(st)
	case *parser.DropIndexStmt:
		return s.execDropIndex(st)
	case *parser.InsertStmt:
		return s.execInsert(ctx, st)
	case *parser.SelectStmt:
		return s.execSelect(ctx, st)
	case *parser.UpdateStmt:
		return s.execUpdate(ctx, st)
	case *parser.DeleteStmt:
		return s.execDelete(ctx, st)
	case *parser.ExecfileStmt:
		return s.execExecfile(ctx, st)
	case *parser.QuitStmt:
		return nil, dberrors.New(dberrors.Quit, "quit")
	default:
		return nil, dberrors.New(dberrors.Failed, "unhandled statement type %T", stmt)
	}
}

func (s *Session) requireDB() (*engine.Database, error) {
	if s.current == nil {
		return nil, dberrors.New(dberrors.Failed, "no database selected")
	}
	return s.current, nil
}

func (s *Session) execCreateDatabase(st *parser.CreateDatabaseStmt) (*Result, error) {
	if _, err := s.reg.Create(st.DbName); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("database %q created", st.DbName)}, nil
}

func (s *Session) execDropDatabase(st *parser.DropDatabaseStmt) (*Result, error) {
	if s.dbName == st.DbName {
		s.current = nil
		s.dbName = ""
	}
	if err := s.reg.Drop(st.DbName); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("database %q dropped", st.DbName)}, nil
}

func (s *Session) execShowDatabases() (*Result, error) {
	names, err := s.reg.List()
	if err != nil {
		return nil, err
	}
	rows := make([][]string, len(names))
	for i, n := range names {
		rows[i] = []string{n}
	}
	return &Result{Columns: []string{"database"}, Rows: rows}, nil
}

func (s *Session) execUse(st *parser.UseDatabaseStmt) (*Result, error) {
	db, err := s.reg.Open(st.DbName)
	if err != nil {
		return nil, err
	}
	s.current = db
	s.dbName = st.DbName
	return &Result{Message: fmt.Sprintf("using database %q", st.DbName)}, nil
}

func (s *Session) execShowTables() (*Result, error) {
	db, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	names := db.Tables()
	rows := make([][]string, len(names))
	for i, n := range names {
		rows[i] = []string{n}
	}
	return &Result{Columns: []string{"table"}, Rows: rows}, nil
}

func (s *Session) execShowIndexes(st *parser.ShowIndexesStmt) (*Result, error) {
	db, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	tables := []string{st.Table}
	if st.Table == "" {
		tables = db.Tables()
	}
	var rows [][]string
	for _, table := range tables {
		names, err := db.Indexes(table)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			rows = append(rows, []string{table, n})
		}
	}
	return &Result{Columns: []string{"table", "index"}, Rows: rows}, nil
}

func (s *Session) execCreateTable(st *parser.CreateTableStmt) (*Result, error) {
	db, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	schema, err := buildSchema(st.Columns)
	if err != nil {
		return nil, err
	}
	if err := db.CreateTable(st.TableName, schema); err != nil {
		return nil, err
	}

	// Any column marked UNIQUE or PRIMARY KEY gets a backing index.
	for _, col := range st.Columns {
		if col.IsPrimaryKey || col.Unique {
			idxName := st.TableName + "_" + col.Name + "_idx"
			if err := db.CreateIndex(st.TableName, idxName, []string{col.Name}); err != nil {
				return nil, err
			}
		}
	}

	return &Result{Message: fmt.Sprintf("table %q created", st.TableName)}, nil
}

func buildSchema(cols []parser.ColumnDef) (*record.Schema, error) {
	out := make([]*record.Column, len(cols))
	for i, c := range cols {
		var typ record.Type
		length := uint32(0)
		switch c.Type {
		case "INT":
			typ = record.TypeInt32
		case "FLOAT":
			typ = record.TypeFloat32
		case "CHAR":
			typ = record.TypeChar
			length = c.Length
		default:
			return nil, dberrors.New(dberrors.Failed, "unknown column type %q", c.Type)
		}
		col, err := record.NewColumn(c.Name, typ, length, uint32(i), !c.NotNull, c.Unique || c.IsPrimaryKey)
		if err != nil {
			return nil, err
		}
		out[i] = col
	}
	return record.NewSchema(out, true), nil
}

func (s *Session) execDropTable(st *parser.DropTableStmt) (*Result, error) {
	db, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	if err := db.DropTable(st.TableName); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("table %q dropped", st.TableName)}, nil
}

func (s *Session) execCreateIndex(st *parser.CreateIndexStmt) (*Result, error) {
	db, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	if err := db.CreateIndex(st.TableName, st.IndexName, st.Columns); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("index %q created on %q", st.IndexName, st.TableName)}, nil
}

func (s *Session) execDropIndex(st *parser.DropIndexStmt) (*Result, error) {
	db, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	if err := db.DropIndex(st.TableName, st.IndexName); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("index %q dropped", st.IndexName)}, nil
}

func (s *Session) execInsert(ctx context.Context, st *parser.InsertStmt) (*Result, error) {
	db, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	schema, err := db.TableSchema(st.Table)
	if err != nil {
		return nil, err
	}
	if len(st.Values) != len(schema.Columns) {
		return nil, dberrors.New(dberrors.Failed, "table %q has %d columns, got %d values", st.Table, len(schema.Columns), len(st.Values))
	}
	row, err := buildRow(schema, st.Values)
	if err != nil {
		return nil, err
	}
	if _, err := db.InsertRow(ctx, st.Table, row); err != nil {
		return nil, err
	}
	return &Result{Message: "1 row inserted"}, nil
}

func buildRow(schema *record.Schema, values []string) (*record.Row, error) {
	fields := make([]record.Field, len(values))
	for i, v := range values {
		f, err := parseLiteral(schema.Columns[i], v)
		if err != nil {
			return nil, err
		}
		fields[i] = f
	}
	return record.NewRow(fields), nil
}

func parseLiteral(col *record.Column, v string) (record.Field, error) {
	switch col.Type {
	case record.TypeInt32:
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return record.Field{}, dberrors.New(dberrors.Failed, "column %q expects an INT, got %q", col.Name, v)
		}
		return record.IntField(int32(n)), nil
	case record.TypeFloat32:
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return record.Field{}, dberrors.New(dberrors.Failed, "column %q expects a FLOAT, got %q", col.Name, v)
		}
		return record.FloatField(float32(f)), nil
	case record.TypeChar:
		return record.CharField(v), nil
	default:
		return record.Field{}, dberrors.New(dberrors.Failed, "unknown column type for %q", col.Name)
	}
}

func (s *Session) execSelect(ctx context.Context, st *parser.SelectStmt) (*Result, error) {
	db, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	schema, err := db.TableSchema(st.Table)
	if err != nil {
		return nil, err
	}

	cols := st.Columns
	if len(cols) == 1 && cols[0] == "*" {
		cols = make([]string, len(schema.Columns))
		for i, c := range schema.Columns {
			cols[i] = c.Name
		}
	}

	var matches []*record.Row
	if st.Where != nil {
		matches, err = s.lookupByCondition(ctx, db, st.Table, schema, st.Where)
	} else {
		matches, err = scanAll(db, st.Table)
	}
	if err != nil {
		return nil, err
	}

	rows := make([][]string, len(matches))
	for i, row := range matches {
		rows[i] = projectRow(schema, row, cols)
	}
	return &Result{Columns: cols, Rows: rows}, nil
}

// lookupByCondition prefers a matching index for an equality predicate,
// falling back to a full scan with a row-by-row filter when no index
// covers the column.
func (s *Session) lookupByCondition(ctx context.Context, db *engine.Database, table string, schema *record.Schema, cond *parser.Condition) ([]*record.Row, error) {
	idxName, ok, err := db.IndexOnColumn(table, cond.Column)
	if err != nil {
		return nil, err
	}
	if ok {
		colIdx, cerr := schema.ColumnIndex(cond.Column)
		if cerr != nil {
			return nil, cerr
		}
		field, ferr := parseLiteral(schema.Columns[colIdx], cond.Value)
		if ferr != nil {
			return nil, ferr
		}
		probe := record.NewRow(make([]record.Field, len(schema.Columns)))
		probe.Fields[colIdx] = field

		keyMgr, kerr := db.IndexKeyManager(table, idxName)
		if kerr == nil {
			key, kferr := keyMgr.KeyFromRow(probe)
			if kferr == nil {
				row, lerr := db.PointLookup(ctx, table, idxName, key)
				if lerr != nil {
					if dberrors.KindOf(lerr) == dberrors.KeyNotFound {
						return nil, nil
					}
					return nil, lerr
				}
				return []*record.Row{row}, nil
			}
		}
	}

	all, serr := scanAll(db, table)
	if serr != nil {
		return nil, serr
	}
	colIdx, cerr := schema.ColumnIndex(cond.Column)
	if cerr != nil {
		return nil, cerr
	}
	var out []*record.Row
	for _, row := range all {
		if fieldEqualsLiteral(schema.Columns[colIdx], row.Fields[colIdx], cond.Value) {
			out = append(out, row)
		}
	}
	return out, nil
}

func fieldEqualsLiteral(col *record.Column, f record.Field, literal string) bool {
	if f.IsNull {
		return false
	}
	want, err := parseLiteral(col, literal)
	if err != nil {
		return false
	}
	switch col.Type {
	case record.TypeInt32:
		return f.Int32 == want.Int32
	case record.TypeFloat32:
		return f.Float32 == want.Float32
	default:
		return f.Str == want.Str
	}
}

func scanAll(db *engine.Database, table string) ([]*record.Row, error) {
	it, err := db.Scan(table)
	if err != nil {
		return nil, err
	}
	var out []*record.Row
	for it.Next() {
		row, err := it.Row()
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func projectRow(schema *record.Schema, row *record.Row, cols []string) []string {
	out := make([]string, len(cols))
	for i, name := range cols {
		idx, err := schema.ColumnIndex(name)
		if err != nil {
			out[i] = ""
			continue
		}
		out[i] = formatField(schema.Columns[idx], row.Fields[idx])
	}
	return out
}

func formatField(col *record.Column, f record.Field) string {
	if f.IsNull {
		return "NULL"
	}
	switch col.Type {
	case record.TypeInt32:
		return strconv.FormatInt(int64(f.Int32), 10)
	case record.TypeFloat32:
		return strconv.FormatFloat(float64(f.Float32), 'g', -1, 32)
	default:
		return f.Str
	}
}

func (s *Session) execUpdate(ctx context.Context, st *parser.UpdateStmt) (*Result, error) {
	db, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	schema, err := db.TableSchema(st.Table)
	if err != nil {
		return nil, err
	}

	rids, rows, err := matchingRows(ctx, db, st.Table, schema, st.Where)
	if err != nil {
		return nil, err
	}

	count := 0
	for i, row := range rows {
		newRow := applyAssignments(schema, row, st.Assignments)
		if _, err := db.UpdateRow(ctx, st.Table, rids[i], newRow); err != nil {
			return nil, err
		}
		count++
	}
	return &Result{Message: fmt.Sprintf("%d row(s) updated", count)}, nil
}

func applyAssignments(schema *record.Schema, row *record.Row, assignments map[string]string) *record.Row {
	out := &record.Row{Fields: append([]record.Field{}, row.Fields...)}
	for col, lit := range assignments {
		idx, err := schema.ColumnIndex(col)
		if err != nil {
			continue
		}
		f, err := parseLiteral(schema.Columns[idx], lit)
		if err != nil {
			continue
		}
		out.Fields[idx] = f
	}
	return out
}

func (s *Session) execDelete(ctx context.Context, st *parser.DeleteStmt) (*Result, error) {
	db, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	schema, err := db.TableSchema(st.Table)
	if err != nil {
		return nil, err
	}

	rids, _, err := matchingRows(ctx, db, st.Table, schema, st.Where)
	if err != nil {
		return nil, err
	}
	for _, rid := range rids {
		if err := db.DeleteRow(ctx, st.Table, rid); err != nil {
			return nil, err
		}
	}
	return &Result{Message: fmt.Sprintf("%d row(s) deleted", len(rids))}, nil
}

// matchingRows scans the table (st.Where, if present, is applied as a
// row-level filter) and returns each surviving row's RowID alongside its
// decoded value, since UPDATE/DELETE need the RowID to mutate the heap.
func matchingRows(ctx context.Context, db *engine.Database, table string, schema *record.Schema, where *parser.Condition) ([]page.RowID, []*record.Row, error) {
	it, err := db.Scan(table)
	if err != nil {
		return nil, nil, err
	}

	var colIdx = -1
	if where != nil {
		colIdx, err = schema.ColumnIndex(where.Column)
		if err != nil {
			return nil, nil, err
		}
	}

	var rids []page.RowID
	var rows []*record.Row
	for it.Next() {
		row, err := it.Row()
		if err != nil {
			return nil, nil, err
		}
		if where != nil && !fieldEqualsLiteral(schema.Columns[colIdx], row.Fields[colIdx], where.Value) {
			continue
		}
		rids = append(rids, it.RowID())
		rows = append(rows, row)
	}
	return rids, rows, nil
}

func (s *Session) execExecfile(ctx context.Context, st *parser.ExecfileStmt) (*Result, error) {
	count, err := RunFile(ctx, s, st.Path)
	if err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("executed %d statement(s) from %q", count, st.Path)}, nil
}
