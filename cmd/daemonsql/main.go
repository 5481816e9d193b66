// Command daemonsql is the interactive REPL front end: it reads
// ';'-terminated statements from stdin, hands each to executor.Session,
// and prints the result.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"

	"github.com/shadowash0215/daemonsql/executor"
	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
	"github.com/shadowash0215/daemonsql/storage_engine/engine"
	"github.com/shadowash0215/daemonsql/storage_engine/logging"
)

func main() {
	root := flag.String("root", "databases", "directory database files are stored under")
	verbose := flag.Bool("v", false, "enable debug logging")
	execfile := flag.String("execfile", "", "run statements from this file instead of an interactive prompt")
	flag.Parse()

	if *verbose {
		logging.SetLevel(logrus.DebugLevel)
	}

	reg, err := engine.NewRegistry(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, "daemonsql:", err)
		os.Exit(1)
	}
	defer reg.CloseAll()

	session := executor.NewSession(reg)
	ctx := context.Background()

	if *execfile != "" {
		count, err := executor.RunFile(ctx, session, *execfile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "daemonsql:", err)
			os.Exit(1)
		}
		fmt.Printf("executed %d statement(s)\n", count)
		return
	}

	// os.Exit skips deferred calls, so close the databases explicitly first.
	code := repl(ctx, session)
	if err := reg.CloseAll(); err != nil {
		fmt.Fprintln(os.Stderr, "daemonsql:", err)
		code = 1
	}
	os.Exit(code)
}

// repl reads ';'-terminated statements from stdin until EOF or a QUIT
// statement, printing each result or error, and returns the process exit
// code. Both a clean EOF and an explicit QUIT are always reported through
// an actual return here, never a fall-through with no status at all.
func repl(ctx context.Context, session *executor.Session) int {
	fmt.Println("daemonsql> type SQL statements terminated by ';', or QUIT to exit")
	reader := bufio.NewReader(os.Stdin)
	var buf strings.Builder

	for {
		fmt.Print(promptFor(buf.String()))
		line, err := reader.ReadString('\n')
		buf.WriteString(line)

		if strings.Contains(line, ";") {
			stmtText := strings.TrimSpace(buf.String())
			buf.Reset()
			if stmtText != "" {
				result, execErr := session.Run(ctx, strings.TrimSuffix(stmtText, ";"))
				if execErr != nil {
					if dberrors.KindOf(execErr) == dberrors.Quit {
						fmt.Println("bye")
						return 0
					}
					fmt.Fprintln(os.Stderr, "error:", execErr)
					continue
				}
				printResult(result)
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return 0
			}
			fmt.Fprintln(os.Stderr, "daemonsql:", err)
			return 1
		}
	}
}

func promptFor(pending string) string {
	if pending == "" {
		return "daemonsql> "
	}
	return "       -> "
}

func printResult(r *executor.Result) {
	if r == nil {
		return
	}
	if len(r.Columns) == 0 {
		if r.Message != "" {
			fmt.Println(r.Message)
		}
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(r.Columns, "\t"))
	for _, row := range r.Rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
	fmt.Printf("(%d row(s))\n", len(r.Rows))
}
