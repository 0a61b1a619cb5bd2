package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrodb/internal/model"
	"macrodb/internal/store"
)

var fixedNow = time.Date(2025, time.March, 4, 10, 30, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "macro.db"))
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	t.Cleanup(func() { s.Close() })
	return s
}

func gdp() model.Indicator {
	return model.Indicator{
		Code:      "GDP_QUARTERLY_YY",
		Name:      "Real GDP growth y/y",
		Frequency: model.FrequencyQuarterly,
		Unit:      "pct_yoy",
		Agency:    "NBB",
		Endpoint:  "https://nsidisseminate-stat.nbb.be/rest/data/BE2,DF_QNA_DISS,1.0/Q.1.B1GQ",
	}
}

func obs(code, period string, value float64) model.Observation {
	return model.Observation{IndicatorCode: code, Period: period, Value: value, Status: model.StatusActual}
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestUpsertIndicatorAndRead(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	require.NoError(t, s.UpsertIndicator(ctx, gdp()))
	updated := gdp()
	updated.Name = "GDP"
	updated.Description = "chain-linked volumes"
	require.NoError(t, s.UpsertIndicator(ctx, updated))

	got, err := s.Indicator(ctx, "GDP_QUARTERLY_YY")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, updated, *got)

	missing, err := s.Indicator(ctx, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertObservationsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	require.NoError(t, s.UpsertIndicator(ctx, gdp()))

	batch := []model.Observation{
		obs("GDP_QUARTERLY_YY", "2024-Q1", 1.1),
		obs("GDP_QUARTERLY_YY", "2024-Q2", 1.3),
	}
	n, err := s.UpsertObservations(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	first, err := s.AllObservations(ctx)
	require.NoError(t, err)

	n, err = s.UpsertObservations(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	second, err := s.AllObservations(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, second, 2)
	assert.Equal(t, "NBB", second[0].Agency)
	assert.Equal(t, fixedNow, second[0].FetchedAt)
}

func TestUpsertObservationsOverwrites(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	require.NoError(t, s.UpsertIndicator(ctx, gdp()))

	_, err := s.UpsertObservations(ctx, []model.Observation{obs("GDP_QUARTERLY_YY", "2024-Q1", 1.1)})
	require.NoError(t, err)

	revised := obs("GDP_QUARTERLY_YY", "2024-Q1", 1.4)
	revised.Status = model.StatusUnknown
	_, err = s.UpsertObservations(ctx, []model.Observation{revised})
	require.NoError(t, err)

	rows, err := s.Observations(ctx, "GDP_QUARTERLY_YY", "", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1.4, rows[0].Value)
	assert.Equal(t, model.StatusUnknown, rows[0].Status)
}

func TestUpsertObservationsRequiresIndicator(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	require.NoError(t, s.UpsertIndicator(ctx, gdp()))

	_, err := s.UpsertObservations(ctx, []model.Observation{
		obs("GDP_QUARTERLY_YY", "2024-Q1", 1.1),
		obs("UNKNOWN", "2024-Q1", 2.2),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrStorage)

	// The whole batch rolls back.
	rows, err := s.Observations(ctx, "GDP_QUARTERLY_YY", "", "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	require.NoError(t, s.UpsertIndicator(ctx, gdp()))

	none, err := s.Latest(ctx, "GDP_QUARTERLY_YY")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = s.UpsertObservations(ctx, []model.Observation{
		obs("GDP_QUARTERLY_YY", "2024-Q3", 1.0),
		obs("GDP_QUARTERLY_YY", "2023-Q4", 0.4),
	})
	require.NoError(t, err)
	_, err = s.UpsertObservations(ctx, []model.Observation{obs("GDP_QUARTERLY_YY", "2024-Q1", 1.2)})
	require.NoError(t, err)

	latest, err := s.Latest(ctx, "GDP_QUARTERLY_YY")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "2024-Q3", latest.Period)
	assert.Equal(t, 1.0, latest.Value)
	assert.Equal(t, "Real GDP growth y/y", latest.Name)
	assert.Equal(t, "pct_yoy", latest.Unit)
}

func TestAllLatestSkipsEmptyIndicators(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	cpi := model.Indicator{Code: "CPI_HICP_YY", Name: "HICP", Frequency: model.FrequencyMonthly, Unit: "pct_yoy", Agency: "NBB"}
	empty := model.Indicator{Code: "BUSINESS_CONFIDENCE", Name: "Business confidence", Frequency: model.FrequencyMonthly, Unit: "balance", Agency: "NBB"}
	for _, indicator := range []model.Indicator{gdp(), cpi, empty} {
		require.NoError(t, s.UpsertIndicator(ctx, indicator))
	}
	_, err := s.UpsertObservations(ctx, []model.Observation{
		obs("GDP_QUARTERLY_YY", "2024-Q1", 1.1),
		obs("GDP_QUARTERLY_YY", "2024-Q2", 1.3),
		obs("CPI_HICP_YY", "2024-12", 4.4),
		obs("CPI_HICP_YY", "2025-01", 4.1),
	})
	require.NoError(t, err)

	all, err := s.AllLatest(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "CPI_HICP_YY", all[0].IndicatorCode)
	assert.Equal(t, "2025-01", all[0].Period)
	assert.Equal(t, "GDP_QUARTERLY_YY", all[1].IndicatorCode)
	assert.Equal(t, "2024-Q2", all[1].Period)
}

func TestObservationsRange(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	require.NoError(t, s.UpsertIndicator(ctx, gdp()))
	_, err := s.UpsertObservations(ctx, []model.Observation{
		obs("GDP_QUARTERLY_YY", "2023-Q4", 0.4),
		obs("GDP_QUARTERLY_YY", "2024-Q1", 1.1),
		obs("GDP_QUARTERLY_YY", "2024-Q2", 1.3),
		obs("GDP_QUARTERLY_YY", "2024-Q3", 1.0),
	})
	require.NoError(t, err)

	rows, err := s.Observations(ctx, "GDP_QUARTERLY_YY", "2024-Q1", "2024-Q2")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-Q1", rows[0].Period)
	assert.Equal(t, "2024-Q2", rows[1].Period)

	rows, err = s.Observations(ctx, "GDP_QUARTERLY_YY", "2024-Q2", "")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestUpsertForecasts(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	value := 1.2
	n, err := s.UpsertForecasts(ctx, []model.Forecast{
		{Institution: "NBB", Indicator: "GDP_VOL", Year: "2025", Value: &value, UpdatedAt: "2025-06-12"},
		{Institution: "FPB", Indicator: "GDP_VOL", Year: "2025", Value: nil, UpdatedAt: "2025-06-10"},
		{Institution: "FPB", Indicator: "CPI", Year: "2026", Value: &value},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	revised := 0.9
	_, err = s.UpsertForecasts(ctx, []model.Forecast{
		{Institution: "NBB", Indicator: "GDP_VOL", Year: "2025", Value: &revised, UpdatedAt: "2025-09-01"},
	})
	require.NoError(t, err)

	all, err := s.AllForecasts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, "CPI", all[0].Indicator)
	assert.Equal(t, "", all[0].UpdatedAt)
	assert.Equal(t, "FPB", all[1].Institution)
	assert.Nil(t, all[1].Value)
	assert.Equal(t, "NBB", all[2].Institution)
	require.NotNil(t, all[2].Value)
	assert.Equal(t, 0.9, *all[2].Value)
	assert.Equal(t, "2025-09-01", all[2].UpdatedAt)
	assert.Equal(t, fixedNow, all[2].FetchedAt)
}

func TestFetchHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	entries := []model.FetchLogEntry{
		{SourceCode: "A", RunID: "run-1", Rows: 4, Status: model.FetchOK},
		{SourceCode: "B", RunID: "run-1", Rows: 0, Status: model.FetchError, Message: "GET http://b: HTTP 500"},
		{SourceCode: "C", RunID: "run-1", Rows: 2, Status: model.FetchOK},
	}
	for _, entry := range entries {
		require.NoError(t, s.LogFetch(ctx, entry))
	}

	history, err := s.FetchHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "C", history[0].SourceCode)
	assert.Equal(t, "B", history[1].SourceCode)
	assert.Equal(t, model.FetchError, history[1].Status)
	assert.Equal(t, "GET http://b: HTTP 500", history[1].Message)
	assert.Equal(t, "run-1", history[1].RunID)
	assert.Equal(t, fixedNow, history[1].FetchedAt)
	assert.Greater(t, history[0].ID, history[1].ID)

	history, err = s.FetchHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "macro.db")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertIndicator(ctx, gdp()))
	_, err = s.UpsertObservations(ctx, []model.Observation{obs("GDP_QUARTERLY_YY", "2024-Q1", 1.1)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	latest, err := reopened.Latest(ctx, "GDP_QUARTERLY_YY")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 1.1, latest.Value)
}

func TestClosedStoreReturnsStorageError(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "macro.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.LogFetch(context.Background(), model.FetchLogEntry{SourceCode: "A", Status: model.FetchOK})
	assert.ErrorIs(t, err, store.ErrStorage)
}

func TestOpenUsesWriteAheadLog(t *testing.T) {
	s := setupTestDB(t)

	var mode string
	require.NoError(t, s.db.Get(&mode, `PRAGMA journal_mode;`))
	assert.Equal(t, "wal", mode)

	var foreignKeys int
	require.NoError(t, s.db.Get(&foreignKeys, `PRAGMA foreign_keys;`))
	assert.Equal(t, 1, foreignKeys)
}
