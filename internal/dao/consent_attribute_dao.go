package dao

import (
	"context"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/wso2/consent-core-service/internal/database"
	"github.com/wso2/consent-core-service/internal/models"
)

// ConsentAttributeDAO handles persistence of the FS_CONSENT_ATTRIBUTE table
type ConsentAttributeDAO struct{}

// NewConsentAttributeDAO creates a new ConsentAttributeDAO
func NewConsentAttributeDAO() *ConsentAttributeDAO {
	return &ConsentAttributeDAO{}
}

// Store inserts the given attribute map for a consent as one multi-row
// statement. Keys are bound in sorted order so the statement is
// deterministic. A no-op when the map is empty.
func (d *ConsentAttributeDAO) Store(ctx context.Context, tx *database.Transaction, consentID string, attributes map[string]string) error {
	if len(attributes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys)*3)
	for _, k := range keys {
		values = append(values, "(?, ?, ?)")
		args = append(args, consentID, k, attributes[k])
	}

	query := `INSERT INTO FS_CONSENT_ATTRIBUTE (CONSENT_ID, ATT_KEY, ATT_VALUE) VALUES ` +
		strings.Join(values, ", ")

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return &InsertionError{Resource: "consent attributes", Err: err}
	}
	if rows, err := result.RowsAffected(); err != nil || rows != int64(len(keys)) {
		return &InsertionError{Resource: "consent attributes", Err: errNoRowsAffected}
	}
	return nil
}

// GetByConsentID retrieves all attributes of a consent as a map
func (d *ConsentAttributeDAO) GetByConsentID(ctx context.Context, tx *database.Transaction, consentID string) (map[string]string, error) {
	query := `SELECT CONSENT_ID, ATT_KEY, ATT_VALUE FROM FS_CONSENT_ATTRIBUTE WHERE CONSENT_ID = ?`

	var rows []models.ConsentAttribute
	if err := tx.SelectContext(ctx, &rows, query, consentID); err != nil {
		return nil, &RetrievalError{Resource: "consent attributes", Err: err}
	}

	attributes := make(map[string]string, len(rows))
	for _, row := range rows {
		attributes[row.AttKey] = row.AttValue
	}
	return attributes, nil
}

// GetByName retrieves the subset of a consent's attributes matching the
// given keys
func (d *ConsentAttributeDAO) GetByName(ctx context.Context, tx *database.Transaction, consentID string, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	query, args, err := sqlx.In(
		`SELECT CONSENT_ID, ATT_KEY, ATT_VALUE FROM FS_CONSENT_ATTRIBUTE
		WHERE CONSENT_ID = ? AND ATT_KEY IN (?)`, consentID, keys)
	if err != nil {
		return nil, &RetrievalError{Resource: "consent attributes", Err: err}
	}

	var rows []models.ConsentAttribute
	if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, &RetrievalError{Resource: "consent attributes", Err: err}
	}

	attributes := make(map[string]string, len(rows))
	for _, row := range rows {
		attributes[row.AttKey] = row.AttValue
	}
	return attributes, nil
}

// FindConsentIDsByNameAndValue returns the IDs of every consent carrying the
// given attribute key/value pair
func (d *ConsentAttributeDAO) FindConsentIDsByNameAndValue(ctx context.Context, tx *database.Transaction, key, value string) ([]string, error) {
	query := `SELECT CONSENT_ID FROM FS_CONSENT_ATTRIBUTE WHERE ATT_KEY = ? AND ATT_VALUE = ?`

	var ids []string
	if err := tx.SelectContext(ctx, &ids, query, key, value); err != nil {
		return nil, &RetrievalError{Resource: "consent ids by attribute", Err: err}
	}
	return ids, nil
}

// DeleteByKeys removes the listed attribute keys from a consent in one
// statement. A no-op when the key list is empty.
func (d *ConsentAttributeDAO) DeleteByKeys(ctx context.Context, tx *database.Transaction, consentID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		`DELETE FROM FS_CONSENT_ATTRIBUTE WHERE CONSENT_ID = ? AND ATT_KEY IN (?)`, consentID, keys)
	if err != nil {
		return &DeletionError{Resource: "consent attributes", Err: err}
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return &DeletionError{Resource: "consent attributes", Err: err}
	}
	return nil
}

// DeleteAll removes every attribute of a consent
func (d *ConsentAttributeDAO) DeleteAll(ctx context.Context, tx *database.Transaction, consentID string) error {
	query := `DELETE FROM FS_CONSENT_ATTRIBUTE WHERE CONSENT_ID = ?`

	if _, err := tx.ExecContext(ctx, query, consentID); err != nil {
		return &DeletionError{Resource: "consent attributes", Err: err}
	}
	return nil
}
