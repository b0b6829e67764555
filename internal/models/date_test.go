package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-09-02")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2024, Month: time.September, Day: 2}, d)
	assert.Equal(t, "2024-09-02", d.String())

	_, err = ParseDate("02/09/2024")
	assert.Error(t, err)
}

func TestDateOrdering(t *testing.T) {
	a := MustDate("2024-01-31")
	b := MustDate("2024-02-01")
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 0, a.Compare(MustDate("2024-01-31")))
	assert.Equal(t, b, a.AddDays(1))
	assert.Equal(t, MustDate("2024-03-01"), NewDate(2024, time.February, 30))
}

func TestDateJSON(t *testing.T) {
	raw, err := json.Marshal(MustDate("2025-07-14"))
	require.NoError(t, err)
	assert.Equal(t, `"2025-07-14"`, string(raw))

	var d Date
	require.NoError(t, json.Unmarshal(raw, &d))
	assert.Equal(t, MustDate("2025-07-14"), d)
	assert.Error(t, json.Unmarshal([]byte(`"14-07-2025"`), &d))
}
