// Package parser turns a token stream from query_parser/lexer into a
// Statement by recursive descent over the grammar the executor
// understands: a next/peek token pair with expect-kind checks, returning
// errors rather than panicking on malformed input.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	lex "github.com/shadowash0215/daemonsql/query_parser/lexer"
	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
)

type Parser struct {
	l         *lex.Lexer
	curToken  lex.Token
	peekToken lex.Token
}

func New(l *lex.Lexer) *Parser {
	p := &Parser{l: l}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) expect(kind lex.TokenKind) error {
	if p.curToken.Kind != kind {
		return dberrors.New(dberrors.Failed, "expected %s, got %s (%q)", kind, p.curToken.Kind, p.curToken.Value)
	}
	return nil
}

// ParseStatement parses exactly one statement starting at the parser's
// current token.
func (p *Parser) ParseStatement() (Statement, error) {
	switch p.curToken.Kind {
	case lex.END:
		return nil, dberrors.New(dberrors.Failed, "empty statement")
	case lex.SHOW:
		return p.parseShow()
	case lex.USE:
		return p.parseUse()
	case lex.CREATE:
		return p.parseCreate()
	case lex.DROP:
		return p.parseDrop()
	case lex.SELECT:
		return p.parseSelect()
	case lex.INSERT:
		return p.parseInsert()
	case lex.UPDATE:
		return p.parseUpdate()
	case lex.DELETE:
		return p.parseDelete()
	case lex.EXECFILE:
		return p.parseExecfile()
	case lex.QUIT, lex.EXIT:
		return &QuitStmt{}, nil
	default:
		return nil, dberrors.New(dberrors.Failed, "unexpected token: %s (%q)", p.curToken.Kind, p.curToken.Value)
	}
}

func (p *Parser) parseShow() (Statement, error) {
	p.nextToken() // consume SHOW
	switch p.curToken.Kind {
	case lex.DATABASES:
		p.nextToken()
		return &ShowDatabasesStmt{}, nil
	case lex.TABLES:
		p.nextToken()
		return &ShowTablesStmt{}, nil
	case lex.INDEXES:
		p.nextToken()
		stmt := &ShowIndexesStmt{}
		if p.curToken.Kind == lex.ON {
			p.nextToken()
			if err := p.expect(lex.IDENT); err != nil {
				return nil, err
			}
			stmt.Table = p.curToken.Value
			p.nextToken()
		}
		return stmt, nil
	default:
		return nil, dberrors.New(dberrors.Failed, "expected DATABASES, TABLES or INDEXES after SHOW")
	}
}

func (p *Parser) parseUse() (Statement, error) {
	p.nextToken()
	if err := p.expect(lex.IDENT); err != nil {
		return nil, dberrors.New(dberrors.Failed, "expected database name after USE")
	}
	name := p.curToken.Value
	p.nextToken()
	return &UseDatabaseStmt{DbName: name}, nil
}

func (p *Parser) parseCreate() (Statement, error) {
	p.nextToken() // consume CREATE
	switch p.curToken.Kind {
	case lex.DATABASE:
		p.nextToken()
		if err := p.expect(lex.IDENT); err != nil {
			return nil, err
		}
		name := p.curToken.Value
		p.nextToken()
		return &CreateDatabaseStmt{DbName: name}, nil
	case lex.TABLE:
		return p.parseCreateTable()
	case lex.INDEX:
		return p.parseCreateIndex()
	default:
		return nil, dberrors.New(dberrors.Failed, "expected DATABASE, TABLE or INDEX after CREATE")
	}
}

func (p *Parser) parseCreateTable() (Statement, error) {
	p.nextToken() // consume TABLE
	if err := p.expect(lex.IDENT); err != nil {
		return nil, err
	}
	table := p.curToken.Value
	p.nextToken()

	if err := p.expect(lex.OPENROUNDED); err != nil {
		return nil, err
	}
	p.nextToken()

	var cols []ColumnDef
	for p.curToken.Kind != lex.CLOSEDROUNDED {
		if p.curToken.Kind == lex.PRIMARY || p.curToken.Kind == lex.UNIQUE {
			isPrimary, names, err := p.parseTrailingConstraint()
			if err != nil {
				return nil, err
			}
			if err := applyTrailingConstraint(cols, isPrimary, names); err != nil {
				return nil, err
			}
		} else {
			col, err := p.parseColumnDef()
			if err != nil {
				return nil, err
			}
			cols = append(cols, col)
		}

		if p.curToken.Kind == lex.COMMA {
			p.nextToken()
		} else {
			break
		}
	}

	if err := p.expect(lex.CLOSEDROUNDED); err != nil {
		return nil, err
	}
	p.nextToken()

	return &CreateTableStmt{TableName: table, Columns: cols}, nil
}

func (p *Parser) parseColumnDef() (ColumnDef, error) {
	if err := p.expect(lex.IDENT); err != nil {
		return ColumnDef{}, err
	}
	name := p.curToken.Value
	p.nextToken()

	var def ColumnDef
	def.Name = name

	switch p.curToken.Kind {
	case lex.INT:
		def.Type = "INT"
		p.nextToken()
	case lex.FLOATTYPE:
		def.Type = "FLOAT"
		p.nextToken()
	case lex.CHAR:
		def.Type = "CHAR"
		p.nextToken()
		if err := p.expect(lex.OPENROUNDED); err != nil {
			return ColumnDef{}, err
		}
		p.nextToken()
		if err := p.expect(lex.INTLIT); err != nil {
			return ColumnDef{}, dberrors.New(dberrors.Failed, "expected CHAR length")
		}
		n, err := strconv.ParseUint(p.curToken.Value, 10, 32)
		if err != nil {
			return ColumnDef{}, dberrors.New(dberrors.Failed, "invalid CHAR length %q", p.curToken.Value)
		}
		def.Length = uint32(n)
		p.nextToken()
		if err := p.expect(lex.CLOSEDROUNDED); err != nil {
			return ColumnDef{}, err
		}
		p.nextToken()
	default:
		return ColumnDef{}, dberrors.New(dberrors.Failed, "expected a column type, got %s (%q)", p.curToken.Kind, p.curToken.Value)
	}

	for {
		switch p.curToken.Kind {
		case lex.PRIMARY:
			p.nextToken()
			if err := p.expect(lex.KEY); err != nil {
				return ColumnDef{}, dberrors.New(dberrors.Failed, "expected KEY after PRIMARY")
			}
			def.IsPrimaryKey = true
			p.nextToken()
		case lex.NOT:
			p.nextToken()
			if err := p.expect(lex.NULLTOK); err != nil {
				return ColumnDef{}, dberrors.New(dberrors.Failed, "expected NULL after NOT")
			}
			def.NotNull = true
			p.nextToken()
		case lex.UNIQUE:
			def.Unique = true
			p.nextToken()
		default:
			return def, nil
		}
	}
}

// parseTrailingConstraint parses a table-level `primary key (col, ...)` or
// `unique (col, ...)` clause, standing alongside the column list rather
// than attached to one column.
func (p *Parser) parseTrailingConstraint() (isPrimary bool, names []string, err error) {
	switch p.curToken.Kind {
	case lex.PRIMARY:
		p.nextToken()
		if err := p.expect(lex.KEY); err != nil {
			return false, nil, dberrors.New(dberrors.Failed, "expected KEY after PRIMARY")
		}
		p.nextToken()
		isPrimary = true
	case lex.UNIQUE:
		p.nextToken()
	default:
		return false, nil, dberrors.New(dberrors.Failed, "expected PRIMARY KEY or UNIQUE")
	}

	if err := p.expect(lex.OPENROUNDED); err != nil {
		return false, nil, err
	}
	p.nextToken()

	for {
		if err := p.expect(lex.IDENT); err != nil {
			return false, nil, err
		}
		names = append(names, p.curToken.Value)
		p.nextToken()
		if p.curToken.Kind != lex.COMMA {
			break
		}
		p.nextToken()
	}

	if err := p.expect(lex.CLOSEDROUNDED); err != nil {
		return false, nil, err
	}
	p.nextToken()
	return isPrimary, names, nil
}

// applyTrailingConstraint marks the named columns (already parsed into
// cols) as primary-key/unique, in place.
func applyTrailingConstraint(cols []ColumnDef, isPrimary bool, names []string) error {
	for _, name := range names {
		found := false
		for i := range cols {
			if cols[i].Name == name {
				if isPrimary {
					cols[i].IsPrimaryKey = true
				} else {
					cols[i].Unique = true
				}
				found = true
				break
			}
		}
		if !found {
			return dberrors.New(dberrors.Failed, "constraint references unknown column %q", name)
		}
	}
	return nil
}

func (p *Parser) parseCreateIndex() (Statement, error) {
	p.nextToken() // consume INDEX
	if err := p.expect(lex.IDENT); err != nil {
		return nil, dberrors.New(dberrors.Failed, "expected index name after CREATE INDEX")
	}
	indexName := p.curToken.Value
	p.nextToken()

	if err := p.expect(lex.ON); err != nil {
		return nil, err
	}
	p.nextToken()

	if err := p.expect(lex.IDENT); err != nil {
		return nil, dberrors.New(dberrors.Failed, "expected table name after ON")
	}
	table := p.curToken.Value
	p.nextToken()

	if err := p.expect(lex.OPENROUNDED); err != nil {
		return nil, err
	}
	p.nextToken()

	var cols []string
	for p.curToken.Kind == lex.IDENT {
		cols = append(cols, p.curToken.Value)
		p.nextToken()
		if p.curToken.Kind == lex.COMMA {
			p.nextToken()
		} else {
			break
		}
	}

	if err := p.expect(lex.CLOSEDROUNDED); err != nil {
		return nil, err
	}
	p.nextToken()

	return &CreateIndexStmt{IndexName: indexName, TableName: table, Columns: cols}, nil
}

func (p *Parser) parseDrop() (Statement, error) {
	p.nextToken() // consume DROP
	switch p.curToken.Kind {
	case lex.DATABASE:
		p.nextToken()
		if err := p.expect(lex.IDENT); err != nil {
			return nil, err
		}
		name := p.curToken.Value
		p.nextToken()
		return &DropDatabaseStmt{DbName: name}, nil
	case lex.TABLE:
		p.nextToken()
		if err := p.expect(lex.IDENT); err != nil {
			return nil, err
		}
		name := p.curToken.Value
		p.nextToken()
		return &DropTableStmt{TableName: name}, nil
	case lex.INDEX:
		p.nextToken()
		if err := p.expect(lex.IDENT); err != nil {
			return nil, dberrors.New(dberrors.Failed, "expected index name after DROP INDEX")
		}
		indexName := p.curToken.Value
		p.nextToken()
		if err := p.expect(lex.ON); err != nil {
			return nil, err
		}
		p.nextToken()
		if err := p.expect(lex.IDENT); err != nil {
			return nil, dberrors.New(dberrors.Failed, "expected table name after ON")
		}
		table := p.curToken.Value
		p.nextToken()
		return &DropIndexStmt{TableName: table, IndexName: indexName}, nil
	default:
		return nil, dberrors.New(dberrors.Failed, "expected DATABASE, TABLE or INDEX after DROP")
	}
}

func (p *Parser) parseSelect() (Statement, error) {
	p.nextToken() // consume SELECT

	var cols []string
	if p.curToken.Kind == lex.ASTERISK {
		cols = append(cols, "*")
		p.nextToken()
	} else {
		for p.curToken.Kind == lex.IDENT {
			cols = append(cols, p.curToken.Value)
			p.nextToken()
			if p.curToken.Kind == lex.COMMA {
				p.nextToken()
			} else {
				break
			}
		}
	}

	if err := p.expect(lex.FROM); err != nil {
		return nil, err
	}
	p.nextToken()

	if err := p.expect(lex.IDENT); err != nil {
		return nil, dberrors.New(dberrors.Failed, "expected table name after FROM")
	}
	table := p.curToken.Value
	p.nextToken()

	where, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}

	return &SelectStmt{Columns: cols, Table: table, Where: where}, nil
}

func (p *Parser) parseOptionalWhere() (*Condition, error) {
	if p.curToken.Kind != lex.WHERE {
		return nil, nil
	}
	p.nextToken()
	if err := p.expect(lex.IDENT); err != nil {
		return nil, dberrors.New(dberrors.Failed, "expected column name after WHERE")
	}
	col := p.curToken.Value
	p.nextToken()
	if err := p.expect(lex.EQUAL); err != nil {
		return nil, dberrors.New(dberrors.Failed, "only equality predicates are supported in WHERE")
	}
	p.nextToken()
	val, err := p.parseLiteralValue()
	if err != nil {
		return nil, err
	}
	return &Condition{Column: col, Value: val}, nil
}

func (p *Parser) parseLiteralValue() (string, error) {
	switch p.curToken.Kind {
	case lex.STRING, lex.INTLIT, lex.FLOATLIT, lex.IDENT:
		v := p.curToken.Value
		p.nextToken()
		return v, nil
	case lex.MINUS:
		p.nextToken()
		if p.curToken.Kind != lex.INTLIT && p.curToken.Kind != lex.FLOATLIT {
			return "", dberrors.New(dberrors.Failed, "expected a number after '-'")
		}
		v := "-" + p.curToken.Value
		p.nextToken()
		return v, nil
	default:
		return "", dberrors.New(dberrors.Failed, "expected a value, got %s (%q)", p.curToken.Kind, p.curToken.Value)
	}
}

func (p *Parser) parseInsert() (Statement, error) {
	p.nextToken() // consume INSERT
	if err := p.expect(lex.INTO); err != nil {
		return nil, err
	}
	p.nextToken()

	if err := p.expect(lex.IDENT); err != nil {
		return nil, dberrors.New(dberrors.Failed, "expected table name after INTO")
	}
	table := p.curToken.Value
	p.nextToken()

	if err := p.expect(lex.VALUES); err != nil {
		return nil, err
	}
	p.nextToken()

	if err := p.expect(lex.OPENROUNDED); err != nil {
		return nil, err
	}
	p.nextToken()

	var values []string
	for p.curToken.Kind != lex.CLOSEDROUNDED {
		v, err := p.parseLiteralValue()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.curToken.Kind == lex.COMMA {
			p.nextToken()
		} else {
			break
		}
	}

	if err := p.expect(lex.CLOSEDROUNDED); err != nil {
		return nil, err
	}
	p.nextToken()

	return &InsertStmt{Table: table, Values: values}, nil
}

func (p *Parser) parseUpdate() (Statement, error) {
	p.nextToken() // consume UPDATE
	if err := p.expect(lex.IDENT); err != nil {
		return nil, err
	}
	table := p.curToken.Value
	p.nextToken()

	if err := p.expect(lex.SET); err != nil {
		return nil, err
	}
	p.nextToken()

	assignments := map[string]string{}
	for p.curToken.Kind == lex.IDENT {
		col := p.curToken.Value
		p.nextToken()
		if err := p.expect(lex.EQUAL); err != nil {
			return nil, err
		}
		p.nextToken()
		val, err := p.parseLiteralValue()
		if err != nil {
			return nil, err
		}
		assignments[col] = val
		if p.curToken.Kind == lex.COMMA {
			p.nextToken()
		} else {
			break
		}
	}

	where, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}

	return &UpdateStmt{Table: table, Assignments: assignments, Where: where}, nil
}

func (p *Parser) parseDelete() (Statement, error) {
	p.nextToken() // consume DELETE
	if err := p.expect(lex.FROM); err != nil {
		return nil, err
	}
	p.nextToken()

	if err := p.expect(lex.IDENT); err != nil {
		return nil, dberrors.New(dberrors.Failed, "expected table name after FROM")
	}
	table := p.curToken.Value
	p.nextToken()

	where, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}

	return &DeleteStmt{Table: table, Where: where}, nil
}

// parseExecfile consumes the rest of the line as a single path: a quoted
// STRING token, or a run of IDENT/DOT/MINUS tokens and '/' characters (the
// lexer reports '/' as INVALID), so unquoted relative paths like
// ./seed.sql parse without a dedicated filename token.
func (p *Parser) parseExecfile() (Statement, error) {
	p.nextToken() // consume EXECFILE
	if p.curToken.Kind == lex.STRING {
		path := p.curToken.Value
		p.nextToken()
		return &ExecfileStmt{Path: path}, nil
	}

	var sb strings.Builder
	for p.curToken.Kind == lex.IDENT || p.curToken.Kind == lex.DOT || p.curToken.Kind == lex.MINUS ||
		(p.curToken.Kind == lex.INVALID && p.curToken.Value == "/") {
		sb.WriteString(p.curToken.Value)
		p.nextToken()
	}
	if sb.Len() == 0 {
		return nil, dberrors.New(dberrors.Failed, "expected a file path after EXECFILE")
	}
	return &ExecfileStmt{Path: sb.String()}, nil
}

// String renders a Statement back to a human-readable label, used for log
// lines and REPL echoes.
func String(stmt Statement) string {
	return fmt.Sprintf("%T", stmt)
}
