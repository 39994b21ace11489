package main

import (
	"io"
	"strings"
	"text/tabwriter"

	"github.com/imglens/imglens/explorer"
)

// renderTable writes a tabulated result as aligned columns.
func renderTable(w io.Writer, res explorer.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := io.WriteString(tw, strings.Join(res.Columns, "\t")+"\n"); err != nil {
		return err
	}
	for _, row := range res.Rows {
		if _, err := io.WriteString(tw, strings.Join(row, "\t")+"\n"); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func renderRows(w io.Writer, columns []string, rows [][]string) error {
	return renderTable(w, explorer.Result{Columns: columns, Rows: rows})
}
