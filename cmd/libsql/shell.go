package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/tomyedwab/libsqlgo/libsql"
	"github.com/tomyedwab/libsqlgo/statement"
	"github.com/tomyedwab/libsqlgo/types"
)

type cmdShell struct {
	connectOptions
	Command string `long:"command" short:"c" description:"Run this script, commit and exit"`
}

func (cmd *cmdShell) Execute([]string) error {
	logger := setupLogger()
	ctx := context.Background()

	conn, err := cmd.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Error("Failed to close connection", "error", err)
		}
	}()

	sh := &shell{conn: conn, out: os.Stdout}
	if cmd.Command != "" {
		if err := sh.run(ctx, cmd.Command); err != nil {
			return err
		}
		return conn.Commit(ctx)
	}
	return sh.repl(ctx, os.Stdin, os.Stderr)
}

// shell runs statements on one connection and prints their results.
type shell struct {
	conn *libsql.Connection
	out  io.Writer
}

// run executes each statement of script in order, stopping at the first
// failure.
func (sh *shell) run(ctx context.Context, script string) error {
	for _, stmt := range statement.Split(script) {
		cur, err := sh.conn.Execute(ctx, stmt)
		if err != nil {
			return err
		}
		if err := sh.print(cur); err != nil {
			return err
		}
	}
	return nil
}

func (sh *shell) print(cur *libsql.Cursor) error {
	defer cur.Close()
	if cur.Description() == nil {
		if n := cur.RowCount(); n >= 0 {
			fmt.Fprintf(sh.out, "%d rows affected\n", n)
		}
		return nil
	}

	rows, err := cur.FetchAll()
	if err != nil {
		return err
	}
	header := make([]any, len(cur.Description()))
	for i, col := range cur.Description() {
		header[i] = col.Name
	}

	table := tablewriter.NewWriter(sh.out)
	table.Header(header...)
	for _, row := range rows {
		table.Append(formatRow(row))
	}
	table.Render()
	fmt.Fprintf(sh.out, "(%d rows)\n", len(rows))
	return nil
}

func formatRow(row types.Row) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = v.String()
	}
	return out
}

// repl reads statements from in until EOF or .quit. Statement errors are
// reported and the loop continues; what is left uncommitted at the end is
// committed.
func (sh *shell) repl(ctx context.Context, in io.Reader, prompt io.Writer) error {
	scanner := bufio.NewScanner(in)
	var buf strings.Builder

	fmt.Fprint(prompt, "libsql> ")
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if buf.Len() == 0 && strings.HasPrefix(trimmed, ".") {
			quit, err := sh.dot(ctx, trimmed)
			if err != nil {
				fmt.Fprintf(sh.out, "Error: %v\n", err)
			}
			if quit {
				break
			}
			fmt.Fprint(prompt, "libsql> ")
			continue
		}

		buf.WriteString(line)
		buf.WriteByte('\n')
		if !strings.HasSuffix(trimmed, ";") {
			fmt.Fprint(prompt, "   ...> ")
			continue
		}
		if err := sh.run(ctx, buf.String()); err != nil {
			fmt.Fprintf(sh.out, "Error: %v\n", err)
		}
		buf.Reset()
		fmt.Fprint(prompt, "libsql> ")
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if strings.TrimSpace(buf.String()) != "" {
		if err := sh.run(ctx, buf.String()); err != nil {
			return err
		}
	}
	return sh.conn.Commit(ctx)
}

func (sh *shell) dot(ctx context.Context, command string) (bool, error) {
	switch command {
	case ".quit", ".exit":
		return true, nil
	case ".commit":
		return false, sh.conn.Commit(ctx)
	case ".rollback":
		return false, sh.conn.Rollback(ctx)
	case ".sync":
		return false, sh.conn.Sync(ctx)
	case ".mode":
		fmt.Fprintf(sh.out, "%s, isolation level %s, in transaction: %t\n",
			sh.conn.Mode(), sh.conn.IsolationLevel(), sh.conn.InTransaction())
		return false, nil
	case ".target":
		fmt.Fprintln(sh.out, describeTarget(sh.conn.Target()))
		return false, nil
	}
	return false, fmt.Errorf("unknown command %q", command)
}

// describeTarget names where a connection's data lives. The auth token is
// never printed.
func describeTarget(t libsql.Target) string {
	var desc string
	switch t.Mode {
	case libsql.Remote:
		desc = fmt.Sprintf("%s %s", t.Mode, t.URL)
	case libsql.Replica:
		desc = fmt.Sprintf("%s %s, primary %s", t.Mode, t.Path, t.SyncURL)
	default:
		desc = fmt.Sprintf("%s %s", t.Mode, t.Path)
	}
	if t.Namespace != "" {
		desc += fmt.Sprintf(", namespace %s", t.Namespace)
	}
	return desc
}
