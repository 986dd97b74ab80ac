package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  float64
		valid bool
	}{
		{"integer", "50000", 50000, true},
		{"fraction", "0.0000123", 0.0000123, true},
		{"negative", "-2.5", -2.5, true},
		{"padded", "  42.10 ", 42.1, true},
		{"blank", "", 0, false},
		{"garbage", "n/a", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAmount(tt.raw)
			assert.Equal(t, tt.valid, ok)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestParseOptional(t *testing.T) {
	assert.Nil(t, ParseOptional(nil))

	bad := "nope"
	assert.Nil(t, ParseOptional(&bad))

	good := "1.5"
	got := ParseOptional(&good)
	if assert.NotNil(t, got) {
		assert.Equal(t, 1.5, *got)
	}
}

func TestPercentChange(t *testing.T) {
	assert.Equal(t, 10.0, PercentChange(110, 100))
	assert.Equal(t, -2.5, PercentChange(97.5, 100))
	assert.Equal(t, 0.0, PercentChange(10, 0))
}
