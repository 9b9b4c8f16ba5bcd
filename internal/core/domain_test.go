package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok {
			assert.NoError(t, err, "case %d", i)
		} else {
			assert.Error(t, err, "case %d", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want Date
		ok   bool
	}{
		{"2024-01-02", NewDate(2024, 1, 2), true},
		{"2024-1-2", NewDate(2024, 1, 2), true},
		{" 2024-12-31 ", NewDate(2024, 12, 31), true},
		{"2024-02-30", Date{}, false},
		{"02/01/2024", Date{}, false},
		{"", Date{}, false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, ErrInvalidDate, "%q", tc.in)
			continue
		}
		require.NoError(t, err, "%q", tc.in)
		assert.Equal(t, tc.want, got, "%q", tc.in)
	}
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2024, 2, 28)
	assert.Equal(t, NewDate(2024, 2, 29), d.AddDays(1))
	assert.Equal(t, NewDate(2024, 3, 1), d.AddDays(2))
	assert.Equal(t, 30, NewDate(2024, 3, 31).DaysSince(NewDate(2024, 3, 1)))
	assert.Equal(t, NewDate(2024, 2, 29), NewDate(2024, 2, 10).MonthEnd())
	assert.Equal(t, NewDate(2023, 12, 31), NewDate(2023, 12, 10).MonthEnd())
	assert.Equal(t, NewDate(2024, 5, 1), NewDate(2024, 5, 17).MonthStart())
}

func TestDateOfIgnoresClock(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	assert.Equal(t, NewDate(2024, 6, 1), DateOf(time.Date(2024, 6, 1, 0, 30, 0, 0, loc)))
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		On Date `json:"on"`
	}{NewDate(2024, 1, 5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"on":"2024-01-05"}`, string(b))

	var back struct {
		On  Date `json:"on"`
		Off Date `json:"off"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"on":"2024-1-5","off":""}`), &back))
	assert.True(t, back.On.Equal(NewDate(2024, 1, 5)), "on = %v", back.On)
	assert.True(t, back.Off.IsZero(), "off = %v", back.Off)

	err = json.Unmarshal([]byte(`{"on":"2024-13-01"}`), &back)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestParseCurrency(t *testing.T) {
	cases := []struct {
		in   string
		want Currency
		ok   bool
	}{
		{"EUR", EUR, true},
		{"chf", CHF, true},
		{" SEK ", SEK, true},
		{"USD", "", false}, // valid ISO code, not supported
		{"XYZ", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseCurrency(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, ErrUnknownCurrency, "%q", tc.in)
			continue
		}
		require.NoError(t, err, "%q", tc.in)
		assert.Equal(t, tc.want, got, "%q", tc.in)
	}
}

func TestSupportedCurrencies(t *testing.T) {
	got := SupportedCurrencies()
	require.Len(t, got, 3)
	assert.Equal(t, BaseCurrency, got[0])

	got[0] = "XXX"
	assert.Equal(t, BaseCurrency, SupportedCurrencies()[0], "SupportedCurrencies returns a copy")
	assert.Equal(t, "€", EUR.Symbol())
}
