package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homesapp/rentals/internal/domain"
)

func TestParseExtra(t *testing.T) {
	c, err := parseExtra("internet:650:20")
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceInternet, c.ServiceType)
	assert.Equal(t, "650", c.Amount)
	assert.Equal(t, 20, c.DayOfMonth)
	assert.Equal(t, domain.ChargeFixed, c.ChargeKind)

	c, err = parseExtra("water::10:bimonthly")
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeVariable, c.ChargeKind)
	assert.Equal(t, domain.FrequencyBimonthly, c.Frequency)

	for _, bad := range []string{"water", "water:1:x", "a:b:c:d:e"} {
		if _, err := parseExtra(bad); err == nil {
			t.Errorf("parseExtra(%q) = nil error, want error", bad)
		}
	}
}
