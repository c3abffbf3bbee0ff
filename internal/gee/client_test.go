package gee

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regionHeader(bands ...string) []interface{} {
	header := []interface{}{"id", "longitude", "latitude", "time"}
	for _, band := range bands {
		header = append(header, band)
	}
	return header
}

func TestParseRegionTable(t *testing.T) {
	bands := []string{"maximum_2m_air_temperature", "minimum_2m_air_temperature"}
	day := time.Date(2020, 3, 30, 0, 0, 0, 0, time.UTC)
	millis := float64(day.UnixMilli())

	t.Run("Should flatten rows into per-band observations", func(t *testing.T) {
		table := [][]interface{}{
			regionHeader(bands...),
			{"20200330", -11.4197, 8.1039, millis, 303.2, 296.1},
		}

		observations, err := parseRegionTable(table, bands)
		require.NoError(t, err)
		require.Len(t, observations, 2)

		assert.Equal(t, "maximum_2m_air_temperature", observations[0].Band)
		assert.Equal(t, 303.2, observations[0].Value)
		assert.Equal(t, "20200330", observations[0].PeriodID)
		assert.True(t, day.Equal(observations[0].Date))

		assert.Equal(t, "minimum_2m_air_temperature", observations[1].Band)
		assert.Equal(t, 296.1, observations[1].Value)
	})

	t.Run("Should skip null band values", func(t *testing.T) {
		table := [][]interface{}{
			regionHeader(bands...),
			{"20200330", -11.4197, 8.1039, millis, nil, 296.1},
		}

		observations, err := parseRegionTable(table, bands)
		require.NoError(t, err)
		require.Len(t, observations, 1)
		assert.Equal(t, "minimum_2m_air_temperature", observations[0].Band)
	})

	t.Run("Should reject a header with missing columns", func(t *testing.T) {
		table := [][]interface{}{
			{"id", "longitude", "latitude", "time"},
		}

		_, err := parseRegionTable(table, bands)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected response header")
	})

	t.Run("Should reject a header with reordered columns", func(t *testing.T) {
		table := [][]interface{}{
			{"id", "latitude", "longitude", "time", bands[0], bands[1]},
		}

		_, err := parseRegionTable(table, bands)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected response header")
	})

	t.Run("Should reject a header naming different bands", func(t *testing.T) {
		table := [][]interface{}{
			regionHeader("precipitation", "surface_pressure"),
		}

		_, err := parseRegionTable(table, bands)
		require.Error(t, err)
	})

	t.Run("Should reject an empty response", func(t *testing.T) {
		_, err := parseRegionTable(nil, bands)
		require.Error(t, err)
	})

	t.Run("Should reject malformed rows", func(t *testing.T) {
		table := [][]interface{}{
			regionHeader(bands...),
			{"20200330", -11.4197, 8.1039, "not-a-time", 303.2, 296.1},
		}

		_, err := parseRegionTable(table, bands)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "malformed response row")
	})
}
