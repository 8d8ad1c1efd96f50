package export

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/config"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/scrape"
	"github.com/sells-group/topic-enricher/internal/stage"
	"github.com/sells-group/topic-enricher/internal/store"
)

// SeedRow is one company read from a seed spreadsheet.
type SeedRow struct {
	Name    string
	Website string
	Email   string
}

// SeedOptions selects the sheet to read.
type SeedOptions struct {
	SheetIndex int
	SheetName  string // overrides SheetIndex
}

// SeedResult summarizes an import.
type SeedResult struct {
	Rows                int `json:"rows"`
	Inserted            int `json:"inserted"`
	DuplicatesSkipped   int `json:"duplicatesSkipped"`
	MarketplaceFiltered int `json:"marketplaceFiltered"`
	InvalidEmails       int `json:"invalidEmails"`
	EmptySkipped        int `json:"emptySkipped"`
}

var columnAliases = map[string][]string{
	"name":    {"company_name", "company", "name", "公司名称", "公司", "название", "компания"},
	"website": {"website", "site", "url", "网站", "官网", "сайт"},
	"email":   {"email", "e-mail", "mail", "邮箱", "电子邮件", "почта"},
}

// ReadSeedXLSX reads company rows from a workbook. A recognized header row
// maps columns by name; without one the first three columns are taken as
// name, website and email.
func ReadSeedXLSX(path string, opts SeedOptions) ([]SeedRow, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open seed workbook")
	}
	sheet, err := seedSheet(f, opts)
	if err != nil {
		return nil, err
	}

	cols := map[string]int{"name": 0, "website": 1, "email": 2}
	var out []SeedRow
	for i, row := range sheet.Rows {
		cells := rowToStrings(row)
		if i == 0 {
			if h, ok := headerColumns(cells); ok {
				cols = h
				continue
			}
		}
		r := SeedRow{
			Name:    cell(cells, cols["name"]),
			Website: cell(cells, cols["website"]),
			Email:   cell(cells, cols["email"]),
		}
		if r == (SeedRow{}) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func seedSheet(f *xlsx.File, opts SeedOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, apperr.Validation("sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, apperr.Validation("sheet index %d out of range (workbook has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, c := range row.Cells {
		cells[j] = strings.TrimSpace(c.String())
	}
	return cells
}

func headerColumns(cells []string) (map[string]int, bool) {
	cols := map[string]int{"name": -1, "website": -1, "email": -1}
	for i, raw := range cells {
		v := strings.ToLower(strings.TrimSpace(raw))
		for field, aliases := range columnAliases {
			for _, a := range aliases {
				if v == a && cols[field] < 0 {
					cols[field] = i
				}
			}
		}
	}
	return cols, cols["name"] >= 0
}

func cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}

// Seed inserts rows into a session as Stage 1 output. Names already in the
// session are skipped by the store's dedupe key; marketplace websites and
// malformed emails are dropped from the row but the company is kept.
func Seed(ctx context.Context, st store.Store, sessionID string, rows []SeedRow, filter *stage.MarketplaceFilter) (*SeedResult, error) {
	if _, err := st.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = stage.NewMarketplaceFilter(config.DefaultMarketplaces)
	}

	res := &SeedResult{Rows: len(rows)}
	seen := make(map[string]bool, len(rows))
	companies := make([]model.Company, 0, len(rows))
	for _, r := range rows {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			res.EmptySkipped++
			continue
		}
		key := model.NameKey(name)
		if seen[key] {
			res.DuplicatesSkipped++
			continue
		}
		seen[key] = true

		website, dropped := filter.Clean(r.Website)
		if dropped {
			res.MarketplaceFiltered++
		}
		email := scrape.NormalizeEmail(r.Email)
		if email != "" && !scrape.ValidEmail(email) {
			res.InvalidEmails++
			email = ""
		}
		companies = append(companies, model.Company{
			SessionID: sessionID,
			Name:      name,
			Website:   website,
			Email:     email,
		})
	}

	inserted, err := st.InsertCompanies(ctx, companies)
	if err != nil {
		return nil, eris.Wrap(err, "export: insert seed companies")
	}
	res.Inserted = inserted
	res.DuplicatesSkipped += len(companies) - inserted

	zap.L().Info("export: seeded companies",
		zap.String("session_id", sessionID),
		zap.Int("rows", res.Rows),
		zap.Int("inserted", res.Inserted),
		zap.Int("duplicates", res.DuplicatesSkipped),
	)
	return res, nil
}
