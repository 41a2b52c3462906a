package utils

import (
	"fmt"
	"strings"
)

const maxIDLength = 255

// ValidateConsentID validates consent ID format
func ValidateConsentID(consentID string) error {
	if strings.TrimSpace(consentID) == "" {
		return fmt.Errorf("consent ID cannot be empty")
	}
	if len(consentID) > maxIDLength {
		return fmt.Errorf("consent ID too long (max %d characters)", maxIDLength)
	}
	return nil
}

// ValidateClientID validates client ID format
func ValidateClientID(clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return fmt.Errorf("client ID cannot be empty")
	}
	if len(clientID) > maxIDLength {
		return fmt.Errorf("client ID too long (max %d characters)", maxIDLength)
	}
	return nil
}

// ValidateAuthID validates authorization ID format
func ValidateAuthID(authID string) error {
	if strings.TrimSpace(authID) == "" {
		return fmt.Errorf("authorization ID cannot be empty")
	}
	if len(authID) > maxIDLength {
		return fmt.Errorf("authorization ID too long (max %d characters)", maxIDLength)
	}
	return nil
}

// ValidateRequired validates that a required string field is non-blank.
// Status values are domain-configurable strings, so only structural
// validation is done here.
func ValidateRequired(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}
