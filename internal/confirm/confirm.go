// Package confirm shows pending rows and asks the operator to approve them.
package confirm

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Prompt renders rows as a table and reads a y/n answer.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

// New returns a Prompt reading answers from in and writing to out.
func New(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

// Confirm prints the rows and returns true only for an answer of "y".
func (p *Prompt) Confirm(caption string, header table.Row, rows []table.Row) (bool, error) {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(table.StyleRounded)
	// Headers are column names; keep their case.
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	if caption != "" {
		t.SetTitle("%s", caption)
	}
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.AppendFooter(table.Row{fmt.Sprintf("%d rows", len(rows))})
	t.Render()

	if _, err := fmt.Fprint(p.out, "Confirm insertion of these rows (y/n): "); err != nil {
		return false, fmt.Errorf("write prompt: %w", err)
	}
	answer, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read answer: %w", err)
	}
	if strings.TrimSpace(answer) == "y" {
		return true, nil
	}
	if _, err := fmt.Fprintln(p.out, "Insertion in database aborted."); err != nil {
		return false, fmt.Errorf("write prompt: %w", err)
	}
	return false, nil
}
