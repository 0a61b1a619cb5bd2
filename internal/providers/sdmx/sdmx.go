// Package sdmx reads SDMX-CSV data messages such as those served by the
// National Bank of Belgium dissemination API.
package sdmx

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"macrodb/internal/catalog"
	"macrodb/internal/model"
	"macrodb/internal/providers"
)

const (
	defaultAccept       = "application/vnd.sdmx.data+csv;version=2.0.0"
	defaultPeriodColumn = "TIME_PERIOD"
	defaultValueColumn  = "OBS_VALUE"
	defaultStatusColumn = "OBS_STATUS"
)

type Config struct {
	Accept       string `envconfig:"ACCEPT"`
	PeriodColumn string `envconfig:"PERIOD_COLUMN"`
	ValueColumn  string `envconfig:"VALUE_COLUMN"`
	StatusColumn string `envconfig:"STATUS_COLUMN"`
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
	if strings.TrimSpace(cfg.PeriodColumn) == "" {
		cfg.PeriodColumn = defaultPeriodColumn
	}
	if strings.TrimSpace(cfg.ValueColumn) == "" {
		cfg.ValueColumn = defaultValueColumn
	}
	if strings.TrimSpace(cfg.StatusColumn) == "" {
		cfg.StatusColumn = defaultStatusColumn
	}
	if client == nil {
		client = providers.NewClient(providers.HTTPConfig{})
	}
	return &Provider{config: cfg, client: client}
}

// ConfigFromEnv reads SDMX_* overrides; unset fields fall back to the defaults in NewWithConfig.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("sdmx", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (p *Provider) Kind() catalog.AdapterKind {
	return catalog.AdapterTabular
}

func (p *Provider) Fetch(ctx context.Context, meta catalog.SourceMeta) (providers.Batch, error) {
	body, err := p.client.Get(ctx, meta.Endpoint, p.config.Accept)
	if err != nil {
		return providers.Batch{}, err
	}
	observations, err := p.Parse(body)
	if err != nil {
		return providers.Batch{}, err
	}
	for i := range observations {
		observations[i].IndicatorCode = meta.Code
	}
	return providers.Batch{Observations: observations}, nil
}

// Parse turns an SDMX-CSV body into observations sorted by period. Rows with
// a blank period or a missing or non-numeric value are dropped, and when a
// period repeats the last row wins.
func (p *Provider) Parse(body []byte) ([]model.Observation, error) {
	decoded := transform.NewReader(bytes.NewReader(body), unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headerRow, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, providers.Malformed("sdmx", "empty body")
	}
	if err != nil {
		return nil, providers.Malformed("sdmx", "header: %v", err)
	}
	header := normalizeHeader(headerRow)
	periodKey := strings.ToLower(p.config.PeriodColumn)
	valueKey := strings.ToLower(p.config.ValueColumn)
	statusKey := strings.ToLower(p.config.StatusColumn)
	if _, ok := header[periodKey]; !ok {
		return nil, providers.Malformed("sdmx", "missing %s column", p.config.PeriodColumn)
	}
	if _, ok := header[valueKey]; !ok {
		return nil, providers.Malformed("sdmx", "missing %s column", p.config.ValueColumn)
	}

	seen := make(map[string]model.Observation)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return nil, providers.Malformed("sdmx", "read: %v", err)
		}

		period := getCell(record, header, periodKey)
		raw := getCell(record, header, valueKey)
		if period == "" || raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		seen[period] = model.Observation{
			Period: period,
			Value:  value,
			Status: model.ObsStatus(getCell(record, header, statusKey)),
		}
	}

	observations := make([]model.Observation, 0, len(seen))
	for _, observation := range seen {
		observations = append(observations, observation)
	}
	sort.Slice(observations, func(i, j int) bool {
		return observations[i].Period < observations[j].Period
	})
	return observations, nil
}

func normalizeHeader(header []string) map[string]int {
	result := make(map[string]int, len(header))
	for i, value := range header {
		key := strings.ToLower(strings.TrimSpace(value))
		if key == "" {
			continue
		}
		if _, exists := result[key]; exists {
			continue
		}
		result[key] = i
	}
	return result
}

func getCell(record []string, header map[string]int, key string) string {
	index, ok := header[key]
	if !ok || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

var _ providers.Adapter = (*Provider)(nil)
