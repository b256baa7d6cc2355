package localstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMillis_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Millis
	}{
		{name: "number", in: `1755790000000`, want: 1755790000000},
		{name: "numeric string", in: `"1755790000000"`, want: 1755790000000},
		{name: "iso timestamp", in: `"2025-08-21T15:26:40Z"`, want: 1755790000000},
		{name: "iso with offset", in: `"2025-08-21T17:26:40+02:00"`, want: 1755790000000},
		{name: "garbage string", in: `"not a time"`, want: 0},
		{name: "null", in: `null`, want: 0},
		{name: "object", in: `{"seconds": 12}`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Millis
			err := json.Unmarshal([]byte(tt.in), &m)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m)
		})
	}
}

func TestMillis_RoundTrip(t *testing.T) {
	// Whatever form came in, the canonical number goes back out.
	var rec BonusRecord
	require.NoError(t, json.Unmarshal([]byte(`{"lastClaim":"2025-08-21T15:26:40Z","bonusDay":3}`), &rec))
	assert.Equal(t, Millis(1755790000000), rec.LastClaim)
	assert.Equal(t, 3, rec.BonusDay)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"lastClaim":1755790000000,"bonusDay":3}`, string(out))
}

func TestMillis_Time(t *testing.T) {
	m := Millis(1755790000000)
	assert.Equal(t, "2025-08-21T15:26:40Z", m.Time().Format("2006-01-02T15:04:05Z07:00"))
}
