package parser

// Statement is the parsed form of one input line.
type Statement interface{}

type CreateDatabaseStmt struct {
	DbName string
}

type DropDatabaseStmt struct {
	DbName string
}

type ShowDatabasesStmt struct{}

type UseDatabaseStmt struct {
	DbName string
}

type ShowTablesStmt struct{}

// ShowIndexesStmt lists every index on Table, or every index in the
// database when Table is empty.
type ShowIndexesStmt struct {
	Table string
}

type ColumnDef struct {
	Name         string
	Type         string // "INT", "FLOAT", or "CHAR"
	Length       uint32 // CHAR(n) only
	IsPrimaryKey bool
	NotNull      bool
	Unique       bool
}

type CreateTableStmt struct {
	TableName string
	Columns   []ColumnDef
}

type DropTableStmt struct {
	TableName string
}

type CreateIndexStmt struct {
	IndexName string
	TableName string
	Columns   []string
}

type DropIndexStmt struct {
	TableName string
	IndexName string
}

// Condition is an optional single-column equality filter: WHERE col = val.
// Non-goals exclude a general expression evaluator; one equality predicate
// is enough to drive index point lookups and heap filtering.
type Condition struct {
	Column string
	Value  string
}

type SelectStmt struct {
	Columns []string // ["*"] for SELECT *
	Table   string
	Where   *Condition
}

type InsertStmt struct {
	Table  string
	Values []string
}

type UpdateStmt struct {
	Table       string
	Assignments map[string]string
	Where       *Condition
}

type DeleteStmt struct {
	Table string
	Where *Condition
}

type ExecfileStmt struct {
	Path string
}

type QuitStmt struct{}
