package export

import (
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"macrodb/internal/model"
)

// Column is one indicator shown in the annual contribution report.
type Column struct {
	Code  string
	Label string
}

const (
	enterprisesCode = "GFCF_ENTERPRISES_CY"
	dwellingsCode   = "GFCF_DWELLINGS_CY"
)

var ContributionColumns = []Column{
	{Code: "GDP_ANNUAL_CY", Label: "GDP"},
	{Code: "PRIV_CONSUMPTION_CY", Label: "Private final consumption"},
	{Code: "GOV_CONSUMPTION_CY", Label: "Final consumption expenditure of general government"},
	{Code: dwellingsCode, Label: "Fixed capital formation in dwellings"},
	{Code: "CHG_STOCKS_CY", Label: "Change in stocks"},
	{Code: "NET_EXPORTS_CY", Label: "Net exports"},
	{Code: enterprisesCode, Label: "Fixed capital formation by enterprises"},
	{Code: "GFCF_PUBLIC_CY", Label: "Gross fixed capital formation by public administration"},
}

// ContributionRow holds one year. Cells follow ContributionColumns; nil means
// no observation.
type ContributionRow struct {
	Year       string
	Cells      []*float64
	Investment *float64
}

type ContributionTable struct {
	Columns []Column
	Rows    []ContributionRow
}

// BuildContributionTable pivots the annual observations of the contribution
// indicators into one row per year, ascending. Investment is the sum of the
// enterprise and dwelling columns when both are present.
func BuildContributionTable(records []model.ObservationRecord) ContributionTable {
	position := make(map[string]int, len(ContributionColumns))
	for i, column := range ContributionColumns {
		position[column.Code] = i
	}

	byYear := make(map[string][]*float64)
	for _, record := range records {
		i, ok := position[record.IndicatorCode]
		if !ok || !model.IsAnnual(record.Period) {
			continue
		}
		cells, ok := byYear[record.Period]
		if !ok {
			cells = make([]*float64, len(ContributionColumns))
			byYear[record.Period] = cells
		}
		value := record.Value
		cells[i] = &value
	}

	years := make([]string, 0, len(byYear))
	for year := range byYear {
		years = append(years, year)
	}
	sort.Strings(years)

	table := ContributionTable{Columns: ContributionColumns, Rows: make([]ContributionRow, 0, len(years))}
	for _, year := range years {
		cells := byYear[year]
		row := ContributionRow{Year: year, Cells: cells}
		enterprises, dwellings := cells[position[enterprisesCode]], cells[position[dwellingsCode]]
		if enterprises != nil && dwellings != nil {
			sum := decimal.NewFromFloat(*enterprises).Add(decimal.NewFromFloat(*dwellings)).InexactFloat64()
			row.Investment = &sum
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"cell": formatCell,
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Belgian Macro Data</title>
<style>
table { border-collapse: collapse; width: 100%; font-family: Arial, sans-serif; font-size: 12px; }
th, td { border: 1px solid #ddd; padding: 8px; text-align: right; }
th { background-color: #4da6ff; color: white; text-align: center; vertical-align: bottom; }
</style>
</head>
<body>
<h2>Belgian Macro Data</h2>
<p>Contributions to GDP volume growth, percentage points. Generated {{.GeneratedAt}}.</p>
<table>
<thead>
<tr><th>Year</th>{{range .Table.Columns}}<th>{{.Label}}</th>{{end}}<th>Investment (business + residential)</th></tr>
</thead>
<tbody>
{{- range .Table.Rows}}
<tr><td>{{.Year}}</td>{{range .Cells}}<td>{{cell .}}</td>{{end}}<td>{{cell .Investment}}</td></tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))

func WriteHTML(w io.Writer, table ContributionTable, generatedAt time.Time) error {
	return reportTemplate.Execute(w, struct {
		Table       ContributionTable
		GeneratedAt string
	}{
		Table:       table,
		GeneratedAt: generatedAt.UTC().Format("2006-01-02 15:04 MST"),
	})
}

func formatCell(value *float64) string {
	if value == nil {
		return ""
	}
	return humanize.FormatFloat("#,###.##", *value)
}
