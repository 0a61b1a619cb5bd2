// Package fpb reads the Federal Planning Bureau table that collects the
// macroeconomic forecasts published by Belgian and international institutions.
//
// The workbook layout is fixed by convention: each forecast indicator spans two
// adjacent year columns whose header row holds the two forecast years, and one
// row per institution follows until the institution cell is blank.
package fpb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/xuri/excelize/v2"
	"go.uber.org/multierr"

	"macrodb/internal/catalog"
	"macrodb/internal/model"
	"macrodb/internal/providers"
)

const (
	defaultAccept       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultTempPattern  = "macrodb-forecasts-*.xlsx"
	asOfLength          = 10
	minExcelSerialDate  = 10000
	forecastYearColumns = 2
)

// IndicatorColumn places a forecast indicator in the sheet. Column is the
// 1-based index of its first year column; the second year follows it.
type IndicatorColumn struct {
	Code   string
	Column int
}

// Layout uses 1-based row and column numbers, as shown in spreadsheet software.
type Layout struct {
	HeaderRow         int
	FirstDataRow      int
	InstitutionColumn int
	AsOfColumn        int
	Indicators        []IndicatorColumn
}

func DefaultLayout() Layout {
	return Layout{
		HeaderRow:         4,
		FirstDataRow:      5,
		InstitutionColumn: 1,
		AsOfColumn:        8,
		Indicators: []IndicatorColumn{
			{Code: "GDP_VOL", Column: 2},
			{Code: "CPI", Column: 4},
			{Code: "FISCAL_BAL", Column: 6},
		},
	}
}

type Config struct {
	Accept  string `envconfig:"ACCEPT"`
	TempDir string `envconfig:"TEMP_DIR"`
	Layout  Layout `ignored:"true"`
}

type Provider struct {
	config Config
	client *providers.Client
}

func New(client *providers.Client) (*Provider, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg, client), nil
}

func NewWithConfig(cfg Config, client *providers.Client) *Provider {
	if strings.TrimSpace(cfg.Accept) == "" {
		cfg.Accept = defaultAccept
	}
	if len(cfg.Layout.Indicators) == 0 {
		cfg.Layout = DefaultLayout()
	}
	if client == nil {
		client = providers.NewClient(providers.HTTPConfig{})
	}
	return &Provider{config: cfg, client: client}
}

func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("fpb", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (p *Provider) Kind() catalog.AdapterKind {
	return catalog.AdapterSpreadsheet
}

func (p *Provider) Fetch(ctx context.Context, meta catalog.SourceMeta) (providers.Batch, error) {
	body, err := p.client.Get(ctx, meta.Endpoint, p.config.Accept)
	if err != nil {
		return providers.Batch{}, err
	}
	forecasts, err := p.parseDownloaded(body)
	if err != nil {
		return providers.Batch{}, err
	}
	return providers.Batch{Forecasts: forecasts}, nil
}

// parseDownloaded materializes the workbook on disk, since excelize needs a
// seekable file, and removes it on every return path.
func (p *Provider) parseDownloaded(body []byte) (forecasts []model.Forecast, err error) {
	tmp, err := os.CreateTemp(p.config.TempDir, defaultTempPattern)
	if err != nil {
		return nil, fmt.Errorf("fpb: create temp file: %w", err)
	}
	path := tmp.Name()
	defer func() {
		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			err = multierr.Append(err, fmt.Errorf("fpb: remove temp file: %w", removeErr))
		}
	}()

	if _, err := tmp.Write(body); err != nil {
		return nil, multierr.Append(fmt.Errorf("fpb: write temp file: %w", err), tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("fpb: close temp file: %w", err)
	}
	return p.ParseFile(path)
}

// ParseFile reads the first sheet of the workbook at path.
func (p *Provider) ParseFile(path string) ([]model.Forecast, error) {
	workbook, err := excelize.OpenFile(path)
	if err != nil {
		return nil, providers.Malformed("fpb", "open workbook: %v", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, providers.Malformed("fpb", "workbook has no sheets")
	}
	rows, err := workbook.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, providers.Malformed("fpb", "read sheet %s: %v", sheets[0], err)
	}
	return parseRows(rows, p.config.Layout)
}

type yearColumn struct {
	column int
	year   string
}

func parseRows(rows [][]string, layout Layout) ([]model.Forecast, error) {
	yearColumns := make(map[string][]yearColumn, len(layout.Indicators))
	for _, indicator := range layout.Indicators {
		columns := make([]yearColumn, 0, forecastYearColumns)
		for offset := 0; offset < forecastYearColumns; offset++ {
			column := indicator.Column + offset
			raw := cell(rows, layout.HeaderRow, column)
			year, ok := parseYear(raw)
			if !ok {
				return nil, providers.Malformed("fpb", "%s: header cell row %d column %d is not a year: %q",
					indicator.Code, layout.HeaderRow, column, raw)
			}
			columns = append(columns, yearColumn{column: column, year: year})
		}
		yearColumns[indicator.Code] = columns
	}

	forecasts := make([]model.Forecast, 0)
	for row := layout.FirstDataRow; row <= len(rows); row++ {
		institution := cell(rows, row, layout.InstitutionColumn)
		if institution == "" {
			break
		}
		asOf := AsOfLabel(cell(rows, row, layout.AsOfColumn))
		for _, indicator := range layout.Indicators {
			for _, yc := range yearColumns[indicator.Code] {
				forecasts = append(forecasts, model.Forecast{
					Institution: institution,
					Indicator:   indicator.Code,
					Year:        yc.year,
					Value:       ParseValue(cell(rows, row, yc.column)),
					UpdatedAt:   asOf,
				})
			}
		}
	}
	return forecasts, nil
}

// cell returns the trimmed value at a 1-based row and column, or "" when the
// sheet does not reach that far.
func cell(rows [][]string, row, column int) string {
	if row < 1 || row > len(rows) {
		return ""
	}
	values := rows[row-1]
	if column < 1 || column > len(values) {
		return ""
	}
	return strings.TrimSpace(values[column-1])
}

func parseYear(raw string) (string, bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || value < 1000 || value > 9999 {
		return "", false
	}
	return strconv.Itoa(int(value)), true
}

var noData = map[string]struct{}{
	"":    {},
	"-":   {},
	"-.-": {},
	"—":   {},
	"–":   {},
	"...": {},
	"…":   {},
}

// ParseValue coerces a forecast cell to a number rounded to two decimals.
// Comma decimal separators are accepted; sentinels and any other text yield nil.
func ParseValue(raw string) *float64 {
	text := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	if _, ok := noData[text]; ok {
		return nil
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	rounded := model.Round2(value)
	return &rounded
}

// AsOfLabel keeps the date part of the as-of cell. Date cells arrive as Excel
// serial numbers and are converted; text keeps its first ten characters.
func AsOfLabel(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial >= minExcelSerialDate {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t.Format("2006-01-02")
		}
	}
	runes := []rune(raw)
	if len(runes) > asOfLength {
		runes = runes[:asOfLength]
	}
	return string(runes)
}

var _ providers.Adapter = (*Provider)(nil)
