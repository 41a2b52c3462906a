package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateConsentID(t *testing.T) {
	assert.NoError(t, ValidateConsentID("consent-1"))
	assert.Error(t, ValidateConsentID(""))
	assert.Error(t, ValidateConsentID("   "))
	assert.Error(t, ValidateConsentID(strings.Repeat("a", 256)))
}

func TestValidateClientID(t *testing.T) {
	assert.NoError(t, ValidateClientID("client-1"))
	assert.Error(t, ValidateClientID(""))
	assert.Error(t, ValidateClientID(strings.Repeat("b", 256)))
}

func TestValidateAuthID(t *testing.T) {
	assert.NoError(t, ValidateAuthID("auth-1"))
	assert.Error(t, ValidateAuthID(" "))
}

func TestValidateRequired(t *testing.T) {
	assert.NoError(t, ValidateRequired("receipt", "{}"))

	err := ValidateRequired("receipt", "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "receipt")
}
