package utils

import (
	"github.com/google/uuid"
)

// GenerateID generates a new opaque unique identifier
func GenerateID() string {
	return uuid.New().String()
}

// GenerateConsentID generates a unique consent ID
func GenerateConsentID() string {
	return uuid.New().String()
}

// GenerateAuthID generates a unique authorization ID
func GenerateAuthID() string {
	return uuid.New().String()
}

// GenerateMappingID generates a unique account mapping ID
func GenerateMappingID() string {
	return uuid.New().String()
}

// GenerateAuditID generates a unique status audit ID
func GenerateAuditID() string {
	return uuid.New().String()
}

// GenerateHistoryID generates a unique amendment history ID
func GenerateHistoryID() string {
	return uuid.New().String()
}

// IsValidUUID checks if a string is a valid UUID
func IsValidUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
