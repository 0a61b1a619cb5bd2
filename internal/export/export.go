// Package export writes the stored series and forecasts to flat files for
// downstream consumers.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"macrodb/internal/model"
	"macrodb/internal/store"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

const (
	ObservationsCSVFile  = "belgian_macro_export.csv"
	ObservationsJSONFile = "belgian_macro_export.json"
	ForecastsCSVFile     = "belgian_forecasts.csv"
	ReportHTMLFile       = "belgian_macro.html"
)

var observationHeader = []string{
	"indicator_code", "name", "period", "value", "obs_status", "unit", "source_agency", "fetched_at",
}

var forecastHeader = []string{
	"institution", "indicator", "year", "value", "updated_at", "fetched_at",
}

// ParseFormats reads a comma-separated list such as "csv,json".
func ParseFormats(value string) ([]Format, error) {
	seen := make(map[Format]struct{})
	formats := make([]Format, 0)
	for _, part := range strings.Split(value, ",") {
		format := Format(strings.ToLower(strings.TrimSpace(part)))
		if format == "" {
			continue
		}
		switch format {
		case FormatCSV, FormatJSON, FormatHTML:
		default:
			return nil, fmt.Errorf("export: unknown format %q", part)
		}
		if _, ok := seen[format]; ok {
			continue
		}
		seen[format] = struct{}{}
		formats = append(formats, format)
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("export: no formats given")
	}
	return formats, nil
}

type Exporter struct {
	reader store.Reader
	dir    string
	log    *zap.Logger
	now    func() time.Time
}

func New(reader store.Reader, dir string, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	return &Exporter{reader: reader, dir: dir, log: log, now: time.Now}
}

// Export writes one set of files per format and returns their paths. An empty
// observations table produces no observation files. The forecasts CSV is
// written with the csv format whenever forecasts exist.
func (e *Exporter) Export(ctx context.Context, formats []Format) ([]string, error) {
	records, err := e.reader.AllObservations(ctx)
	if err != nil {
		return nil, err
	}
	forecasts, err := e.reader.AllForecasts(ctx)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create %s: %w", e.dir, err)
	}

	written := make([]string, 0)
	write := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(e.dir, name)
		if err := writeFile(path, fn); err != nil {
			return err
		}
		written = append(written, path)
		e.log.Info("export written", zap.String("path", path))
		return nil
	}

	for _, format := range formats {
		switch format {
		case FormatCSV:
			if len(records) > 0 {
				if err := write(ObservationsCSVFile, func(w io.Writer) error { return WriteObservationsCSV(w, records) }); err != nil {
					return written, err
				}
			}
			if len(forecasts) > 0 {
				if err := write(ForecastsCSVFile, func(w io.Writer) error { return WriteForecastsCSV(w, forecasts) }); err != nil {
					return written, err
				}
			}
		case FormatJSON:
			if len(records) > 0 {
				if err := write(ObservationsJSONFile, func(w io.Writer) error { return WriteObservationsJSON(w, records) }); err != nil {
					return written, err
				}
			}
		case FormatHTML:
			table := BuildContributionTable(records)
			if err := write(ReportHTMLFile, func(w io.Writer) error { return WriteHTML(w, table, e.now()) }); err != nil {
				return written, err
			}
		default:
			return written, fmt.Errorf("export: unknown format %q", format)
		}
	}
	if len(records) == 0 {
		e.log.Warn("no observations stored; observation exports skipped")
	}
	return written, nil
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, file.Close())
	}()
	if err := fn(file); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	return nil
}

func WriteObservationsCSV(w io.Writer, records []model.ObservationRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(observationHeader); err != nil {
		return err
	}
	for _, record := range records {
		row := []string{
			record.IndicatorCode,
			record.Name,
			record.Period,
			formatValue(record.Value),
			string(record.Status),
			record.Unit,
			record.Agency,
			formatTime(record.FetchedAt),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func WriteForecastsCSV(w io.Writer, forecasts []model.Forecast) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(forecastHeader); err != nil {
		return err
	}
	for _, forecast := range forecasts {
		value := ""
		if forecast.Value != nil {
			value = formatValue(*forecast.Value)
		}
		row := []string{
			forecast.Institution,
			forecast.Indicator,
			forecast.Year,
			value,
			forecast.UpdatedAt,
			formatTime(forecast.FetchedAt),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

type observationJSON struct {
	IndicatorCode string  `json:"indicator_code"`
	Name          string  `json:"name"`
	Period        string  `json:"period"`
	Value         float64 `json:"value"`
	Status        *string `json:"obs_status"`
	Unit          string  `json:"unit"`
	Agency        string  `json:"source_agency"`
	FetchedAt     string  `json:"fetched_at"`
}

// WriteObservationsJSON writes the records as one indented array. A missing
// observation status is encoded as null.
func WriteObservationsJSON(w io.Writer, records []model.ObservationRecord) error {
	rows := make([]observationJSON, 0, len(records))
	for _, record := range records {
		row := observationJSON{
			IndicatorCode: record.IndicatorCode,
			Name:          record.Name,
			Period:        record.Period,
			Value:         record.Value,
			Unit:          record.Unit,
			Agency:        record.Agency,
			FetchedAt:     formatTime(record.FetchedAt),
		}
		if record.Status != model.StatusUnknown {
			status := string(record.Status)
			row.Status = &status
		}
		rows = append(rows, row)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rows)
}

func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
