package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"12000", 1200000},
		{"1,250.50", 125050},
		{"$99.9", 9990},
		{"0.005", 1},
		{" 7.25 ", 725},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := ParseMoney(tt.in, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.AmountCents)
			assert.Equal(t, DefaultCurrency, m.Currency)
		})
	}
}

func TestParseMoney_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "12..5"} {
		_, err := ParseMoney(in, "USD")
		assert.Error(t, err, "input %q", in)
	}
}

func TestMoney_Major(t *testing.T) {
	m := NewMoney(1200050, "usd")
	assert.Equal(t, 12000.5, m.Major())
	assert.Equal(t, "USD", m.Currency)
	assert.Equal(t, "12000.50 USD", m.String())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2025-03-15T18:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-15", FormatDate(d))

	_, err = ParseDate("15/03/2025")
	assert.Error(t, err)
	assert.Equal(t, "", FormatDate(time.Time{}))
}

func TestDaysIn(t *testing.T) {
	assert.Equal(t, 29, DaysIn(2024, time.February))
	assert.Equal(t, 28, DaysIn(2025, time.February))
	assert.Equal(t, 31, DaysIn(2025, time.December))
}
