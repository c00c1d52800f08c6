// Package report renders monthly expense reports into downloadable artifacts.
package report

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"dividi/internal/core"
)

const csvHeader = "Date,Amount,Description,Paid By"

// WriteCSV writes the report in the fixed export layout: one header line and
// one line per row, each terminated by "\n". The description is always
// quoted with embedded quotes doubled; the other fields are written bare.
func WriteCSV(w io.Writer, r core.Report) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(csvHeader)
	bw.WriteByte('\n')
	for _, row := range r.Rows {
		bw.WriteString(row.Date)
		bw.WriteByte(',')
		bw.WriteString(row.Amount.String())
		bw.WriteByte(',')
		bw.WriteString(quote(row.Description))
		bw.WriteByte(',')
		bw.WriteString(row.PaidBy)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// CSV renders the report into memory.
func CSV(r core.Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
