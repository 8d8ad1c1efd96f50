// Package export writes a session's companies as CSV, XLSX or JSON and reads
// seed spreadsheets back in.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/model"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

const sheetName = "Companies"

var header = []string{
	"company_name", "website", "email", "stage", "validation_score", "confidence",
	"services", "tags", "reason", "description", "query_id", "created_at",
}

// ParseFormat normalizes a format name. An empty name means CSV.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatXLSX, FormatJSON:
		return f, nil
	default:
		return "", apperr.Validation("unsupported export format %q (want csv, xlsx or json)", s)
	}
}

// ContentType returns the MIME type for a format.
func ContentType(format string) string {
	switch format {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		return "application/json"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Write encodes companies to w in the given format.
func Write(w io.Writer, format string, companies []model.Company) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, companies)
	case FormatXLSX:
		return WriteXLSX(w, companies)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if companies == nil {
			companies = []model.Company{}
		}
		return eris.Wrap(enc.Encode(companies), "export: encode json")
	default:
		_, err := ParseFormat(format)
		return err
	}
}

// WriteCSV writes a header row followed by one row per company.
func WriteCSV(w io.Writer, companies []model.Company) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for i := range companies {
		if err := cw.Write(record(&companies[i])); err != nil {
			return eris.Wrapf(err, "export: write csv row %d", i+1)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes a single-sheet workbook with the same columns as WriteCSV.
func WriteXLSX(w io.Writer, companies []model.Company) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, header)
	for i := range companies {
		row := sheet.AddRow()
		for j, v := range record(&companies[i]) {
			cell := row.AddCell()
			// Score and confidence stay numeric so spreadsheets can sort them.
			if (j == 4 || j == 5) && v != "" {
				if n, err := strconv.ParseFloat(v, 64); err == nil {
					cell.SetFloat(n)
					continue
				}
			}
			cell.SetString(v)
		}
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func record(c *model.Company) []string {
	var score, confidence, services, tags, reason string
	if v := c.Validation; v != nil {
		score = strconv.Itoa(v.Score)
		confidence = strconv.FormatFloat(v.Confidence, 'f', -1, 64)
		services = strings.Join(v.Services, "; ")
		tags = strings.Join(v.Tags, "; ")
		reason = v.Reason
	}
	created := ""
	if !c.CreatedAt.IsZero() {
		created = c.CreatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		c.Name, c.Website, c.Email, string(c.Stage), score, confidence,
		services, tags, reason, c.Description, c.QueryID, created,
	}
}
