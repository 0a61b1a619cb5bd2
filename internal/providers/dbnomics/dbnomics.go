// Package dbnomics reads single-series documents from the DBnomics v22 API.
package dbnomics

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/tidwall/gjson"

	"macrodb/internal/catalog"
	"macrodb/internal/model"
	"macrodb/internal/providers"
)

const (
	defaultAccept    = "application/json"
	defaultSeriesKey = "series.docs.0"
	notAvailable     = "NA"
)

type Config struct {
	Accept    string `envconfig:"ACCEPT"`
	SeriesKey string `envconfig:"SERIES_KEY"`
	// MinPeriod applies to sources whose catalog entry does not set one.
	MinPeriod string `envconfig:"MIN_PERIOD"`
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
	if strings.TrimSpace(cfg.SeriesKey) == "" {
		cfg.SeriesKey = defaultSeriesKey
	}
	if client == nil {
		client = providers.NewClient(providers.HTTPConfig{})
	}
	return &Provider{config: cfg, client: client}
}

func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("dbnomics", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (p *Provider) Kind() catalog.AdapterKind {
	return catalog.AdapterJSONSeries
}

func (p *Provider) Fetch(ctx context.Context, meta catalog.SourceMeta) (providers.Batch, error) {
	body, err := p.client.Get(ctx, meta.Endpoint, p.config.Accept)
	if err != nil {
		return providers.Batch{}, err
	}

	minPeriod := meta.MinPeriod
	if minPeriod == "" {
		minPeriod = p.config.MinPeriod
	}
	observations, err := p.Parse(body, minPeriod)
	if err != nil {
		return providers.Batch{}, err
	}
	for i := range observations {
		observations[i].IndicatorCode = meta.Code
	}
	return providers.Batch{Observations: observations}, nil
}

// Parse extracts the parallel period/value arrays of the first series document.
// The result keeps the order of the source; it is not sorted.
func (p *Provider) Parse(body []byte, minPeriod string) ([]model.Observation, error) {
	if !gjson.ValidBytes(body) {
		return nil, providers.Malformed("dbnomics", "body is not valid JSON")
	}
	doc := gjson.GetBytes(body, p.config.SeriesKey)
	if !doc.Exists() || !doc.IsObject() {
		return nil, providers.Malformed("dbnomics", "missing %s", p.config.SeriesKey)
	}
	periods := doc.Get("period")
	values := doc.Get("value")
	if !periods.IsArray() {
		return nil, providers.Malformed("dbnomics", "missing period array")
	}
	if !values.IsArray() {
		return nil, providers.Malformed("dbnomics", "missing value array")
	}

	periodList := periods.Array()
	valueList := values.Array()
	count := len(periodList)
	if len(valueList) < count {
		count = len(valueList)
	}

	observations := make([]model.Observation, 0, count)
	for i := 0; i < count; i++ {
		period := strings.TrimSpace(periodList[i].String())
		if period == "" {
			continue
		}
		if minPeriod != "" && period < minPeriod {
			continue
		}
		value, ok := parseValue(valueList[i])
		if !ok {
			continue
		}
		observations = append(observations, model.Observation{
			Period: period,
			Value:  value,
			Status: model.StatusActual,
		})
	}
	return observations, nil
}

func parseValue(raw gjson.Result) (float64, bool) {
	var value float64
	switch raw.Type {
	case gjson.Number:
		value = raw.Float()
	case gjson.String:
		text := strings.TrimSpace(raw.Str)
		if text == "" || text == notAvailable {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, false
		}
		value = parsed
	default:
		return 0, false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

var _ providers.Adapter = (*Provider)(nil)
