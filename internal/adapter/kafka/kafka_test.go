package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croftlab/site-weather-etl/internal/domain"
)

func TestSerializeSiteYear(t *testing.T) {
	sy := domain.SiteYear{Site: "Altus, OK", Year: 1980, Lat: 34.64, Lon: -99.33}
	date, err := domain.DateForYday(1980, 1)
	require.NoError(t, err)
	obs := []domain.DailyObservation{
		{
			SiteYear: sy,
			Yday:     1,
			Date:     date,
			Values: map[domain.Variable]float64{
				domain.VarTempMax:       12.5,
				domain.VarPrecipitation: 0,
			},
		},
	}

	msg, err := serializeSiteYear(sy, obs)
	require.NoError(t, err)

	assert.Equal(t, []byte("Altus, OK|1980"), msg.Key)

	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "site", msg.Headers[0].Key)
	assert.Equal(t, []byte("Altus, OK"), msg.Headers[0].Value)
	assert.Equal(t, "year", msg.Headers[1].Key)
	assert.Equal(t, []byte("1980"), msg.Headers[1].Value)
	assert.Equal(t, "days", msg.Headers[2].Key)
	assert.Equal(t, []byte("1"), msg.Headers[2].Value)

	var decoded seriesMessage
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "Altus, OK", decoded.Site)
	assert.Equal(t, 1980, decoded.Year)
	assert.InDelta(t, 34.64, decoded.Lat, 1e-9)
	assert.Equal(t, 1, decoded.Days)
	require.Len(t, decoded.Observations, 1)
	assert.Equal(t, 1, decoded.Observations[0].Yday)
	assert.Equal(t, "1980-01-01", decoded.Observations[0].Date)
	assert.InDelta(t, 12.5, decoded.Observations[0].Values[domain.VarTempMax], 1e-9)

	zero, present := decoded.Observations[0].Values[domain.VarPrecipitation]
	assert.True(t, present, "a zero value must survive serialization")
	assert.Zero(t, zero)
}

func TestSerializeSiteYear_EmptySeries(t *testing.T) {
	sy := domain.SiteYear{Site: "Altus, OK", Year: 1980}

	msg, err := serializeSiteYear(sy, nil)
	require.NoError(t, err)

	var decoded seriesMessage
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Zero(t, decoded.Days)
	assert.Empty(t, decoded.Observations)
}
