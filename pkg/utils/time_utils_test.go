package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimestampRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	assert.Equal(t, now.Unix(), TimeToTimestamp(TimestampToTime(now.Unix())))
}

func TestIsExpired(t *testing.T) {
	assert.False(t, IsExpired(0), "zero validity means no expiry")
	assert.True(t, IsExpired(GetCurrentTimestamp()-10))
	assert.False(t, IsExpired(GetCurrentTimestamp()+3600))
}

func TestFormatParseRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	parsed, err := ParseTime(FormatTime(now))
	assert.NoError(t, err)
	assert.True(t, parsed.Equal(now))
}
