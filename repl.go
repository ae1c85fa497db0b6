package transbase

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/olekukonko/tablewriter"
)

func doSelect(out io.Writer, rs *ResultSet) error {
	rows, err := rs.ToArray()
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Fprintln(out, "(no results)")
		return nil
	}

	table := tablewriter.NewWriter(out)
	header := []string{}
	for _, col := range rs.Columns() {
		header = append(header, col.Name)
	}
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)

	cells := [][]string{}
	for _, row := range rows {
		r := []string{}
		for _, col := range rs.Columns() {
			r = append(r, formatValue(row[col.Name]))
		}
		cells = append(cells, r)
	}

	table.SetBorder(false)
	table.AppendBulk(cells)
	table.Render()

	if len(cells) == 1 {
		fmt.Fprintln(out, "(1 result)")
	} else {
		fmt.Fprintf(out, "(%d results)\n", len(cells))
	}

	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "t"
		}
		return "f"
	case []byte:
		return "0x" + hex.EncodeToString(x)
	default:
		return fmt.Sprint(x)
	}
}

func debugColumns(out io.Writer, rs *ResultSet) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Column", "Type"})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)

	rows := [][]string{}
	for _, c := range rs.Columns() {
		rows = append(rows, []string{c.Name, c.TypeName()})
	}

	table.AppendBulk(rows)
	table.Render()
	fmt.Fprintln(out, "")
}

// execLine runs one line of input and reports whether the session should
// end.
func execLine(tb *Transbase, out io.Writer, line string) (quit bool) {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return false
	case trimmed == "quit" || trimmed == "exit" || trimmed == "\\q":
		return true
	case trimmed == "\\typecast on" || trimmed == "\\typecast off":
		tb.SetTypeCast(strings.HasSuffix(trimmed, "on"))
		fmt.Fprintln(out, "ok")
		return false
	case trimmed == "\\version":
		v, err := tb.VersionInfo()
		if err != nil {
			fmt.Fprintln(out, "Error reading version:", err)
			return false
		}
		fmt.Fprintf(out, "client %s, server %s\n", v.Client, v.Server)
		return false
	case trimmed == "\\begin" || trimmed == "\\commit" || trimmed == "\\rollback":
		fn := map[string]func() error{
			"\\begin":    tb.BeginTransaction,
			"\\commit":   tb.Commit,
			"\\rollback": tb.Rollback,
		}[trimmed]
		if err := fn(); err != nil {
			fmt.Fprintln(out, "Error:", err)
			return false
		}
		fmt.Fprintln(out, "ok")
		return false
	}

	describe := false
	if strings.HasPrefix(trimmed, "\\d ") {
		trimmed = strings.TrimSpace(trimmed[len("\\d"):])
		describe = true
	}

	res, err := tb.Query(trimmed)
	if err != nil {
		fmt.Fprintln(out, "Error:", err)
		return false
	}

	switch {
	case res.ResultSet != nil && describe:
		debugColumns(out, res.ResultSet)
	case res.ResultSet != nil:
		if err := doSelect(out, res.ResultSet); err != nil {
			fmt.Fprintln(out, "Error selecting values:", err)
		}
	default:
		fmt.Fprintf(out, "(%d records touched)\n", res.RecordsTouched)
	}
	return false
}

// RunRepl reads statements from the terminal until \q or end of input.
func RunRepl(tb *Transbase) {
	l, err := readline.NewEx(&readline.Config{
		Prompt:          "# ",
		HistoryFile:     filepath.Join(os.TempDir(), "tbsql_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()

	if v, err := tb.VersionInfo(); err == nil {
		fmt.Printf("Welcome to tbsql, server %s.\n", v.Server)
	}
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Println("Error while reading line:", err)
			continue
		}

		if execLine(tb, os.Stdout, line) {
			break
		}
	}
}
