package clients

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "90", 90 * time.Second},
		{"zero seconds", "0", 0},
		{"negative seconds", "-5", 0},
		{"http date", now.Add(45 * time.Second).Format(http.TimeFormat), 45 * time.Second},
		{"http date in past", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.value, now))
		})
	}
}

func TestDecodeErrorEnvelope(t *testing.T) {
	env, ok := decodeErrorEnvelope([]byte(`{"error":"Too Many Requests"}`))
	assert.True(t, ok)
	assert.True(t, env.throttled())

	env, ok = decodeErrorEnvelope([]byte(`{"status":{"error_code":10002,"error_message":"API key missing"}}`))
	assert.True(t, ok)
	assert.False(t, env.throttled())
	assert.Equal(t, "API key missing", env.message())

	_, ok = decodeErrorEnvelope([]byte(`[1,2]`))
	assert.False(t, ok)

	_, ok = decodeErrorEnvelope([]byte(`{"data":[]}`))
	assert.False(t, ok)
}

func TestIsJSONArray(t *testing.T) {
	assert.True(t, isJSONArray([]byte("  [ ]")))
	assert.False(t, isJSONArray([]byte(`{"a":1}`)))
	assert.False(t, isJSONArray(nil))
}
