// Package catalog holds the read-only registry of series the collector ingests.
//
// A Catalog is built once (from the embedded default or an override file) and
// passed to the components that need it; nothing mutates it afterwards.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"macrodb/internal/model"
)

type AdapterKind string

const (
	AdapterTabular     AdapterKind = "tabular"
	AdapterJSONSeries  AdapterKind = "json-series"
	AdapterSpreadsheet AdapterKind = "spreadsheet"
)

const schemaURL = "https://macrodb.invalid/catalog.schema.json"

var ErrNotFound = errors.New("catalog: series not found")

//go:embed catalog.yaml
var defaultCatalog []byte

//go:embed catalog.schema.json
var catalogSchema []byte

type SourceMeta struct {
	Code        string          `yaml:"code"`
	Name        string          `yaml:"name"`
	Endpoint    string          `yaml:"endpoint"`
	Frequency   model.Frequency `yaml:"frequency"`
	Unit        string          `yaml:"unit"`
	Agency      string          `yaml:"agency"`
	Description string          `yaml:"description"`
	Adapter     AdapterKind     `yaml:"adapter"`
	// MinPeriod drops observations whose period sorts before it. Empty keeps everything.
	MinPeriod string `yaml:"min_period"`
}

// Indicator is the catalog entry as persisted in the indicators table.
func (m SourceMeta) Indicator() model.Indicator {
	return model.Indicator{
		Code:        m.Code,
		Name:        m.Name,
		Frequency:   m.Frequency,
		Unit:        m.Unit,
		Agency:      m.Agency,
		Description: m.Description,
		Endpoint:    m.Endpoint,
	}
}

type document struct {
	Series    []SourceMeta `yaml:"series"`
	Forecasts *SourceMeta  `yaml:"forecasts"`
}

type Catalog struct {
	series    []SourceMeta
	index     map[string]int
	forecasts *SourceMeta
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates a YAML catalog document against the schema and builds a Catalog.
func Parse(data []byte) (*Catalog, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return New(doc.Series, doc.Forecasts)
}

// New builds a catalog from explicit entries, preserving their order.
func New(series []SourceMeta, forecasts *SourceMeta) (*Catalog, error) {
	c := &Catalog{
		series: make([]SourceMeta, 0, len(series)),
		index:  make(map[string]int, len(series)),
	}
	for _, meta := range series {
		meta.Code = strings.TrimSpace(meta.Code)
		if meta.Code == "" {
			return nil, errors.New("catalog: series code is required")
		}
		if _, exists := c.index[meta.Code]; exists {
			return nil, fmt.Errorf("catalog: duplicate series code %s", meta.Code)
		}
		switch meta.Adapter {
		case AdapterTabular, AdapterJSONSeries:
		case AdapterSpreadsheet:
			return nil, fmt.Errorf("catalog: %s: spreadsheet sources belong in the forecasts entry", meta.Code)
		default:
			return nil, fmt.Errorf("catalog: %s: unknown adapter %q", meta.Code, meta.Adapter)
		}
		c.index[meta.Code] = len(c.series)
		c.series = append(c.series, meta)
	}
	if forecasts != nil {
		if forecasts.Adapter != AdapterSpreadsheet {
			return nil, fmt.Errorf("catalog: forecasts entry must use the %s adapter", AdapterSpreadsheet)
		}
		if _, exists := c.index[forecasts.Code]; exists {
			return nil, fmt.Errorf("catalog: forecasts code %s collides with a series", forecasts.Code)
		}
		entry := *forecasts
		c.forecasts = &entry
	}
	return c, nil
}

func (c *Catalog) Lookup(code string) (SourceMeta, error) {
	i, ok := c.index[code]
	if !ok {
		return SourceMeta{}, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return c.series[i], nil
}

// Series returns the entries in declaration order.
func (c *Catalog) Series() []SourceMeta {
	out := make([]SourceMeta, len(c.series))
	copy(out, c.series)
	return out
}

// Codes returns the series codes in ascending order.
func (c *Catalog) Codes() []string {
	codes := make([]string, 0, len(c.series))
	for _, meta := range c.series {
		codes = append(codes, meta.Code)
	}
	sort.Strings(codes)
	return codes
}

func (c *Catalog) Forecasts() (SourceMeta, bool) {
	if c.forecasts == nil {
		return SourceMeta{}, false
	}
	return *c.forecasts, true
}

func (c *Catalog) Len() int {
	return len(c.series)
}

func validateSchema(data []byte) error {
	compiler := jsonschema.NewCompiler()
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(catalogSchema))
	if err != nil {
		return fmt.Errorf("catalog: load schema: %w", err)
	}
	if err := compiler.AddResource(schemaURL, schemaDoc); err != nil {
		return fmt.Errorf("catalog: load schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("catalog: compile schema: %w", err)
	}

	// The validator works on JSON values, so the YAML tree is round-tripped through JSON.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("catalog: decode: %w", err)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("catalog: decode: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("catalog: decode: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("catalog: invalid document: %w", err)
	}
	return nil
}
