package executor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	lex "github.com/shadowash0215/daemonsql/query_parser/lexer"
	"github.com/shadowash0215/daemonsql/query_parser/parser"
	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
)

// RunFile executes every ';'-terminated statement in the file at path
// against s, in order, stopping early on a QUIT statement or the first
// error. It always returns a definite count and status: reaching EOF with
// no pending partial statement and a QUIT statement both count as a clean
// stop, never a fall-through with no return at all.
func RunFile(ctx context.Context, s *Session, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, dberrors.Wrap(dberrors.Failed, err, "open execfile %q", path)
	}
	defer f.Close()

	count := 0
	var buf strings.Builder
	r := bufio.NewReader(f)
	for {
		chunk, readErr := r.ReadString(';')
		buf.WriteString(chunk)

		if strings.Contains(chunk, ";") {
			stmtText := strings.TrimSpace(buf.String())
			buf.Reset()
			if stmtText != "" && stmtText != ";" {
				stmt, perr := parser.New(lex.New(strings.TrimSuffix(stmtText, ";"))).ParseStatement()
				if perr != nil {
					return count, perr
				}
				if _, ok := stmt.(*parser.QuitStmt); ok {
					log.WithField("file", path).WithField("statements", count).Info("execfile stopped on QUIT")
					return count, nil
				}
				if _, err := s.Execute(ctx, stmt); err != nil {
					return count, err
				}
				count++
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if trailing := strings.TrimSpace(buf.String()); trailing != "" {
					return count, dberrors.New(dberrors.Failed, "execfile %q: unterminated statement at end of file", path)
				}
				log.WithField("file", path).WithField("statements", count).Info("execfile reached end of file")
				return count, nil
			}
			return count, dberrors.Wrap(dberrors.Failed, readErr, "read execfile %q", path)
		}
	}
}
