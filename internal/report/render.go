package report

import (
	"fmt"

	"dividi/internal/core"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Render produces the artifact body and its content type for format.
func Render(r core.Report, format string) ([]byte, string, error) {
	switch format {
	case FormatCSV:
		b, err := CSV(r)
		return b, ContentTypeCSV, err
	case FormatXLSX:
		b, err := XLSX(r)
		return b, ContentTypeXLSX, err
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}
