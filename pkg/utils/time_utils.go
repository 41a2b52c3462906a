package utils

import (
	"time"
)

// GetCurrentTimestamp returns the current time in seconds since epoch
func GetCurrentTimestamp() int64 {
	return time.Now().Unix()
}

// TimestampToTime converts seconds since epoch to time.Time
func TimestampToTime(seconds int64) time.Time {
	return time.Unix(seconds, 0)
}

// TimeToTimestamp converts time.Time to seconds since epoch
func TimeToTimestamp(t time.Time) int64 {
	return t.Unix()
}

// FormatTime formats time in ISO 8601 format
func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// ParseTime parses an ISO 8601 formatted time string
func ParseTime(timeStr string) (time.Time, error) {
	return time.Parse(time.RFC3339, timeStr)
}

// IsExpired checks if a given validity timestamp (seconds since epoch) has passed
func IsExpired(validityTime int64) bool {
	if validityTime == 0 {
		return false // No expiry set
	}
	return GetCurrentTimestamp() > validityTime
}

// GetExpiryTimestamp calculates the expiry timestamp from now plus a duration in seconds
func GetExpiryTimestamp(durationSeconds int64) int64 {
	return GetCurrentTimestamp() + durationSeconds
}
