package providers

import (
	"context"
	"fmt"

	"macrodb/internal/catalog"
	"macrodb/internal/model"
)

// Batch is what an adapter produced for one source. Observation adapters fill
// Observations; the forecast spreadsheet adapter fills Forecasts.
type Batch struct {
	Observations []model.Observation
	Forecasts    []model.Forecast
}

func (b Batch) Len() int {
	return len(b.Observations) + len(b.Forecasts)
}

// Adapter fetches one catalog source and parses it into rows. Row-level
// problems are dropped silently; only source-level failures are returned.
type Adapter interface {
	Kind() catalog.AdapterKind
	Fetch(ctx context.Context, meta catalog.SourceMeta) (Batch, error)
}

type Registry struct {
	adapters map[catalog.AdapterKind]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[catalog.AdapterKind]Adapter, len(adapters))}
	for _, adapter := range adapters {
		r.Register(adapter)
	}
	return r
}

func (r *Registry) Register(adapter Adapter) {
	r.adapters[adapter.Kind()] = adapter
}

func (r *Registry) Get(kind catalog.AdapterKind) (Adapter, error) {
	adapter, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("providers: no adapter registered for %q", kind)
	}
	return adapter, nil
}
