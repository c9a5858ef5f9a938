package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	want := time.Date(1990, time.March, 4, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"1990-03-04", "03/04/1990", "3/4/1990", "1990/03/04", "March 4, 1990", "Mar 4, 1990", "4 March 1990", " 1990-03-04 "} {
		got, ok := ParseDate(in)
		assert.True(t, ok, in)
		assert.True(t, want.Equal(got), "%s parsed as %s", in, got)
	}

	for _, in := range []string{"", "yesterday", "13/45/1990", "1990-03"} {
		_, ok := ParseDate(in)
		assert.False(t, ok, in)
	}
}

func TestParseNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"52000", 52000, true},
		{"$52,000.50", 52000.5, true},
		{" £1,200 ", 1200, true},
		{"-3.5", -3.5, true},
		{"", 0, false},
		{"$", 0, false},
		{"twelve", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}

func TestParseBool(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"yes", "Y", "X", "checked", "TRUE", "1", "on"} {
		v, ok := ParseBool(in)
		assert.True(t, ok, in)
		assert.True(t, v, in)
	}
	for _, in := range []string{"no", "N", "", "unchecked", "0", "off"} {
		v, ok := ParseBool(in)
		assert.True(t, ok, in)
		assert.False(t, v, in)
	}
	_, ok := ParseBool("maybe")
	assert.False(t, ok)
}

func TestCountDigits(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10, CountDigits("(555) 123-4567"))
	assert.Equal(t, 0, CountDigits("n/a"))
	assert.Equal(t, 1, CountDigits("٣ and 7"))
}
