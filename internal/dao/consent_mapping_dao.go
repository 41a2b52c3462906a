package dao

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/wso2/consent-core-service/internal/database"
	"github.com/wso2/consent-core-service/internal/models"
	"github.com/wso2/consent-core-service/pkg/utils"
)

// ConsentMappingDAO handles persistence of the FS_CONSENT_MAPPING table
type ConsentMappingDAO struct{}

// NewConsentMappingDAO creates a new ConsentMappingDAO
func NewConsentMappingDAO() *ConsentMappingDAO {
	return &ConsentMappingDAO{}
}

const mappingColumns = `MAPPING_ID, AUTH_ID, ACCOUNT_ID, PERMISSION, MAPPING_STATUS`

// Store inserts the given mappings as one multi-row statement, assigning
// missing mapping IDs. A no-op when the list is empty.
func (d *ConsentMappingDAO) Store(ctx context.Context, tx *database.Transaction, mappings []models.ConsentMappingResource) error {
	if len(mappings) == 0 {
		return nil
	}

	values := make([]string, 0, len(mappings))
	args := make([]interface{}, 0, len(mappings)*5)
	for i := range mappings {
		if mappings[i].MappingID == "" {
			mappings[i].MappingID = utils.GenerateMappingID()
		}
		values = append(values, "(?, ?, ?, ?, ?)")
		args = append(args, mappings[i].MappingID, mappings[i].AuthID, mappings[i].AccountID,
			mappings[i].Permission, mappings[i].MappingStatus)
	}

	query := `INSERT INTO FS_CONSENT_MAPPING (` + mappingColumns + `) VALUES ` + strings.Join(values, ", ")

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return &InsertionError{Resource: "consent mappings", Err: err}
	}
	if rows, err := result.RowsAffected(); err != nil || rows != int64(len(mappings)) {
		return &InsertionError{Resource: "consent mappings", Err: errNoRowsAffected}
	}
	return nil
}

// GetByAuthID retrieves every mapping belonging to an authorization
func (d *ConsentMappingDAO) GetByAuthID(ctx context.Context, tx *database.Transaction, authID string) ([]models.ConsentMappingResource, error) {
	query := `SELECT ` + mappingColumns + ` FROM FS_CONSENT_MAPPING
		WHERE AUTH_ID = ? ORDER BY MAPPING_ID ASC`

	var mappings []models.ConsentMappingResource
	if err := tx.SelectContext(ctx, &mappings, query, authID); err != nil {
		return nil, &RetrievalError{Resource: "consent mappings", Err: err}
	}
	return mappings, nil
}

// UpdateStatusByIDs moves every listed mapping to the new status in one
// statement. A no-op when the ID list is empty.
func (d *ConsentMappingDAO) UpdateStatusByIDs(ctx context.Context, tx *database.Transaction, mappingIDs []string, newStatus string) error {
	if len(mappingIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		`UPDATE FS_CONSENT_MAPPING SET MAPPING_STATUS = ? WHERE MAPPING_ID IN (?)`,
		newStatus, mappingIDs)
	if err != nil {
		return &UpdateError{Resource: "mapping statuses", Err: err}
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return &UpdateError{Resource: "mapping statuses", Err: err}
	}
	return nil
}
