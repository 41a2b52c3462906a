package dao

import (
	"context"

	"github.com/wso2/consent-core-service/internal/database"
	"github.com/wso2/consent-core-service/internal/models"
	"github.com/wso2/consent-core-service/pkg/utils"
)

// AuthResourceDAO handles persistence of the FS_CONSENT_AUTH_RESOURCE table
type AuthResourceDAO struct{}

// NewAuthResourceDAO creates a new AuthResourceDAO
func NewAuthResourceDAO() *AuthResourceDAO {
	return &AuthResourceDAO{}
}

const authResourceColumns = `AUTH_ID, CONSENT_ID, AUTH_TYPE, USER_ID, AUTH_STATUS, UPDATED_TIME`

// Store inserts an authorization row, assigning ID and updated time when absent
func (d *AuthResourceDAO) Store(ctx context.Context, tx *database.Transaction, auth *models.AuthorizationResource) error {
	if auth.AuthID == "" {
		auth.AuthID = utils.GenerateAuthID()
	}
	if auth.UpdatedTime == 0 {
		auth.UpdatedTime = utils.GetCurrentTimestamp()
	}

	query := `INSERT INTO FS_CONSENT_AUTH_RESOURCE (` + authResourceColumns + `)
		VALUES (:AUTH_ID, :CONSENT_ID, :AUTH_TYPE, :USER_ID, :AUTH_STATUS, :UPDATED_TIME)`

	result, err := tx.NamedExecContext(ctx, query, auth)
	if err != nil {
		return &InsertionError{Resource: "authorization resource", Err: err}
	}
	if rows, err := result.RowsAffected(); err != nil || rows == 0 {
		return &InsertionError{Resource: "authorization resource", Err: errNoRowsAffected}
	}
	return nil
}

// Get retrieves an authorization row by ID
func (d *AuthResourceDAO) Get(ctx context.Context, tx *database.Transaction, authID string) (*models.AuthorizationResource, error) {
	query := `SELECT ` + authResourceColumns + ` FROM FS_CONSENT_AUTH_RESOURCE WHERE AUTH_ID = ?`

	var auth models.AuthorizationResource
	if err := tx.GetContext(ctx, &auth, query, authID); err != nil {
		return nil, &RetrievalError{Resource: "authorization resource", Err: err}
	}
	return &auth, nil
}

// GetByConsentID retrieves every authorization belonging to a consent
func (d *AuthResourceDAO) GetByConsentID(ctx context.Context, tx *database.Transaction, consentID string) ([]models.AuthorizationResource, error) {
	query := `SELECT ` + authResourceColumns + ` FROM FS_CONSENT_AUTH_RESOURCE
		WHERE CONSENT_ID = ? ORDER BY UPDATED_TIME ASC, AUTH_ID ASC`

	var auths []models.AuthorizationResource
	if err := tx.SelectContext(ctx, &auths, query, consentID); err != nil {
		return nil, &RetrievalError{Resource: "authorization resources", Err: err}
	}
	return auths, nil
}

// UpdateStatus moves an authorization to a new status, touching its updated time
func (d *AuthResourceDAO) UpdateStatus(ctx context.Context, tx *database.Transaction, authID, newStatus string, updatedTime int64) error {
	query := `UPDATE FS_CONSENT_AUTH_RESOURCE SET AUTH_STATUS = ?, UPDATED_TIME = ? WHERE AUTH_ID = ?`

	result, err := tx.ExecContext(ctx, query, newStatus, updatedTime, authID)
	if err != nil {
		return &UpdateError{Resource: "authorization status", Err: err}
	}
	if rows, err := result.RowsAffected(); err != nil || rows == 0 {
		return &UpdateError{Resource: "authorization status", Err: errNoRowsAffected}
	}
	return nil
}

// UpdateUser binds a user to an authorization, touching its updated time
func (d *AuthResourceDAO) UpdateUser(ctx context.Context, tx *database.Transaction, authID, userID string, updatedTime int64) error {
	query := `UPDATE FS_CONSENT_AUTH_RESOURCE SET USER_ID = ?, UPDATED_TIME = ? WHERE AUTH_ID = ?`

	result, err := tx.ExecContext(ctx, query, userID, updatedTime, authID)
	if err != nil {
		return &UpdateError{Resource: "authorization user", Err: err}
	}
	if rows, err := result.RowsAffected(); err != nil || rows == 0 {
		return &UpdateError{Resource: "authorization user", Err: errNoRowsAffected}
	}
	return nil
}
