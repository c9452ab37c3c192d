package leadio

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-engine/internal/model"
)

// XLSXOptions selects the sheet holding leads. The first row of the sheet
// is the header.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// leadSetters maps a normalized header name to the payload field it fills.
var leadSetters = map[string]func(p *model.LeadPayload, v string) error{
	"title":              func(p *model.LeadPayload, v string) error { p.Title = v; return nil },
	"opportunitytype":    func(p *model.LeadPayload, v string) error { p.OpportunityType = v; return nil },
	"category":           func(p *model.LeadPayload, v string) error { p.Category = v; return nil },
	"subcategory":        func(p *model.LeadPayload, v string) error { p.Subcategory = v; return nil },
	"status":             func(p *model.LeadPayload, v string) error { p.Status = v; return nil },
	"summary":            func(p *model.LeadPayload, v string) error { p.Summary = v; return nil },
	"contractid":         func(p *model.LeadPayload, v string) error { p.ContractID = v; return nil },
	"issuingbody":        func(p *model.LeadPayload, v string) error { p.IssuingBody.Name = v; return nil },
	"issuingbodyname":    func(p *model.LeadPayload, v string) error { p.IssuingBody.Name = v; return nil },
	"issuinglevel":       func(p *model.LeadPayload, v string) error { p.IssuingBody.Level = v; return nil },
	"issuingbodylevel":   func(p *model.LeadPayload, v string) error { p.IssuingBody.Level = v; return nil },
	"city":               func(p *model.LeadPayload, v string) error { p.Location.City = v; return nil },
	"county":             func(p *model.LeadPayload, v string) error { p.Location.County = v; return nil },
	"region":             func(p *model.LeadPayload, v string) error { p.Location.Region = v; return nil },
	"state":              func(p *model.LeadPayload, v string) error { p.Location.Region = v; return nil },
	"publisheddate":      func(p *model.LeadPayload, v string) error { p.KeyDates.PublishedDate = v; return nil },
	"biddeadline":        func(p *model.LeadPayload, v string) error { p.KeyDates.BidDeadline = v; return nil },
	"projectedstartdate": func(p *model.LeadPayload, v string) error { p.KeyDates.ProjectedStartDate = v; return nil },
	"documentname":       func(p *model.LeadPayload, v string) error { p.Source.DocumentName = v; return nil },
	"sourcedocument":     func(p *model.LeadPayload, v string) error { p.Source.DocumentName = v; return nil },
	"url":                func(p *model.LeadPayload, v string) error { p.Source.URL = v; return nil },
	"sourceurl":          func(p *model.LeadPayload, v string) error { p.Source.URL = v; return nil },
	"estimatedvalueusd": func(p *model.LeadPayload, v string) error {
		f, err := parseAmount(v)
		if err != nil {
			return err
		}
		p.EstimatedValueUSD = &f
		return nil
	},
	"contactname":  func(p *model.LeadPayload, v string) error { contact(p).Name = v; return nil },
	"contacttitle": func(p *model.LeadPayload, v string) error { contact(p).Title = v; return nil },
	"contactemail": func(p *model.LeadPayload, v string) error { contact(p).Email = v; return nil },
	"contactphone": func(p *model.LeadPayload, v string) error { contact(p).Phone = v; return nil },
}

// ReadLeadsXLSX reads one lead per row below the header. Unknown columns
// are ignored and blank rows are dropped. A row whose estimated value is not
// a number fails the whole read with its row number.
func ReadLeadsXLSX(path string, opts XLSXOptions) ([]model.LeadPayload, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "leadio: open xlsx")
	}
	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return []model.LeadPayload{}, nil
	}

	header := rowToStrings(sheet.Rows[0])
	setters := make([]func(*model.LeadPayload, string) error, len(header))
	mapped := 0
	for i, h := range header {
		if s, ok := leadSetters[headerKey(h)]; ok {
			setters[i] = s
			mapped++
		}
	}
	if mapped == 0 {
		return nil, eris.New("leadio: xlsx header has no lead columns")
	}

	leads := []model.LeadPayload{}
	for rowNum, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		var p model.LeadPayload
		blank := true
		for i, v := range cells {
			v = strings.TrimSpace(v)
			if i >= len(setters) || setters[i] == nil || v == "" {
				continue
			}
			blank = false
			if err := setters[i](&p, v); err != nil {
				return nil, eris.Wrapf(err, "leadio: xlsx row %d column %q", rowNum+2, header[i])
			}
		}
		if !blank {
			leads = append(leads, p)
		}
	}
	return leads, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("leadio: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("leadio: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

// headerKey lower-cases a header and drops spaces, dots, dashes and underscores.
func headerKey(h string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '.':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(h)))
}

func parseAmount(v string) (float64, error) {
	v = strings.NewReplacer("$", "", ",", "").Replace(v)
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, eris.Errorf("not a number: %q", v)
	}
	return f, nil
}

func contact(p *model.LeadPayload) *model.Contact {
	if len(p.Contacts) == 0 {
		p.Contacts = []model.Contact{{}}
	}
	return &p.Contacts[0]
}
