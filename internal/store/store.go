package store

import (
	"context"
	"errors"
	"fmt"

	"macrodb/internal/model"
)

var ErrStorage = errors.New("storage fault")

// Error wraps a failure of the backing database. errors.Is(err, ErrStorage)
// matches any of them.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrStorage
}

func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Writer is the ingestion side. Upserts are last-write-wins on the natural key
// and each call is applied atomically.
type Writer interface {
	UpsertIndicator(ctx context.Context, indicator model.Indicator) error
	UpsertObservations(ctx context.Context, observations []model.Observation) (int, error)
	UpsertForecasts(ctx context.Context, forecasts []model.Forecast) (int, error)
	LogFetch(ctx context.Context, entry model.FetchLogEntry) error
}

type Reader interface {
	// Indicator returns nil when the code is unknown.
	Indicator(ctx context.Context, code string) (*model.Indicator, error)
	// Latest returns nil when the indicator has no observations.
	Latest(ctx context.Context, code string) (*model.LatestObservation, error)
	AllLatest(ctx context.Context) ([]model.LatestObservation, error)
	// Observations returns one indicator's rows between from and to inclusive,
	// ordered by period. Empty bounds are open.
	Observations(ctx context.Context, code, from, to string) ([]model.Observation, error)
	AllObservations(ctx context.Context) ([]model.ObservationRecord, error)
	AllForecasts(ctx context.Context) ([]model.Forecast, error)
	FetchHistory(ctx context.Context, limit int) ([]model.FetchLogEntry, error)
}

type Store interface {
	Writer
	Reader
	Close() error
}

// NopStore accepts every write and returns nothing. The collector uses it for
// dry runs.
type NopStore struct{}

func (s *NopStore) UpsertIndicator(ctx context.Context, indicator model.Indicator) error {
	return nil
}

func (s *NopStore) UpsertObservations(ctx context.Context, observations []model.Observation) (int, error) {
	return len(observations), nil
}

func (s *NopStore) UpsertForecasts(ctx context.Context, forecasts []model.Forecast) (int, error) {
	return len(forecasts), nil
}

func (s *NopStore) LogFetch(ctx context.Context, entry model.FetchLogEntry) error {
	return nil
}

func (s *NopStore) Indicator(ctx context.Context, code string) (*model.Indicator, error) {
	return nil, nil
}

func (s *NopStore) Latest(ctx context.Context, code string) (*model.LatestObservation, error) {
	return nil, nil
}

func (s *NopStore) AllLatest(ctx context.Context) ([]model.LatestObservation, error) {
	return nil, nil
}

func (s *NopStore) Observations(ctx context.Context, code, from, to string) ([]model.Observation, error) {
	return nil, nil
}

func (s *NopStore) AllObservations(ctx context.Context) ([]model.ObservationRecord, error) {
	return nil, nil
}

func (s *NopStore) AllForecasts(ctx context.Context) ([]model.Forecast, error) {
	return nil, nil
}

func (s *NopStore) FetchHistory(ctx context.Context, limit int) ([]model.FetchLogEntry, error) {
	return nil, nil
}

func (s *NopStore) Close() error {
	return nil
}

var _ Store = (*NopStore)(nil)
