package model

import "time"

type Frequency string

const (
	FrequencyMonthly   Frequency = "M"
	FrequencyQuarterly Frequency = "Q"
	FrequencyAnnual    Frequency = "A"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyAnnual:
		return true
	default:
		return false
	}
}

// ObsStatus is the SDMX observation status code as published by the source.
// An empty status means the source did not report one.
type ObsStatus string

const (
	StatusActual      ObsStatus = "A"
	StatusProvisional ObsStatus = "P"
	StatusBreak       ObsStatus = "B"
	StatusUnknown     ObsStatus = ""
)

func (s ObsStatus) Label() string {
	switch s {
	case StatusActual:
		return "Actual"
	case StatusProvisional:
		return "Provisional"
	case StatusBreak:
		return "Break"
	case StatusUnknown:
		return "unknown"
	default:
		return string(s)
	}
}

type FetchStatus string

const (
	FetchOK    FetchStatus = "OK"
	FetchError FetchStatus = "ERROR"
)

type Indicator struct {
	Code        string
	Name        string
	Frequency   Frequency
	Unit        string
	Agency      string
	Description string
	Endpoint    string
}

type Observation struct {
	IndicatorCode string
	Period        string
	Value         float64
	Status        ObsStatus
	FetchedAt     time.Time
}

// Forecast is one institution's projection of a forecast indicator for a year.
// Value is nil when the source cell held no usable number.
type Forecast struct {
	Institution string
	Indicator   string
	Year        string
	Value       *float64
	UpdatedAt   string
	FetchedAt   time.Time
}

type FetchLogEntry struct {
	ID         int64
	SourceCode string
	RunID      string
	FetchedAt  time.Time
	Rows       int
	Status     FetchStatus
	Message    string
}

// LatestObservation is an observation joined with the display fields of its indicator.
type LatestObservation struct {
	Observation
	Name string
	Unit string
}

// ObservationRecord is the flat export row: an observation joined with indicator metadata.
type ObservationRecord struct {
	IndicatorCode string
	Name          string
	Period        string
	Value         float64
	Status        ObsStatus
	Unit          string
	Agency        string
	FetchedAt     time.Time
}
