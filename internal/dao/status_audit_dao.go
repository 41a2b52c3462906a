package dao

import (
	"context"

	"github.com/wso2/consent-core-service/internal/database"
	"github.com/wso2/consent-core-service/internal/models"
	"github.com/wso2/consent-core-service/pkg/utils"
)

// StatusAuditDAO handles persistence of the FS_CONSENT_STATUS_AUDIT table.
// The table is append-only; there are no update or delete methods.
type StatusAuditDAO struct{}

// NewStatusAuditDAO creates a new StatusAuditDAO
func NewStatusAuditDAO() *StatusAuditDAO {
	return &StatusAuditDAO{}
}

const statusAuditColumns = `STATUS_AUDIT_ID, CONSENT_ID, CURRENT_STATUS, ACTION_TIME, REASON, ACTION_BY, PREVIOUS_STATUS`

// Store inserts a status audit record, assigning ID and action time when absent
func (d *StatusAuditDAO) Store(ctx context.Context, tx *database.Transaction, record *models.ConsentStatusAuditRecord) error {
	if record.StatusAuditID == "" {
		record.StatusAuditID = utils.GenerateAuditID()
	}
	if record.ActionTime == 0 {
		record.ActionTime = utils.GetCurrentTimestamp()
	}

	query := `INSERT INTO FS_CONSENT_STATUS_AUDIT (` + statusAuditColumns + `)
		VALUES (:STATUS_AUDIT_ID, :CONSENT_ID, :CURRENT_STATUS, :ACTION_TIME, :REASON, :ACTION_BY, :PREVIOUS_STATUS)`

	result, err := tx.NamedExecContext(ctx, query, record)
	if err != nil {
		return &InsertionError{Resource: "status audit record", Err: err}
	}
	if rows, err := result.RowsAffected(); err != nil || rows == 0 {
		return &InsertionError{Resource: "status audit record", Err: errNoRowsAffected}
	}
	return nil
}

// GetByConsentID retrieves the full audit trail of a consent, oldest first
func (d *StatusAuditDAO) GetByConsentID(ctx context.Context, tx *database.Transaction, consentID string) ([]models.ConsentStatusAuditRecord, error) {
	query := `SELECT ` + statusAuditColumns + ` FROM FS_CONSENT_STATUS_AUDIT
		WHERE CONSENT_ID = ? ORDER BY ACTION_TIME ASC, STATUS_AUDIT_ID ASC`

	var records []models.ConsentStatusAuditRecord
	if err := tx.SelectContext(ctx, &records, query, consentID); err != nil {
		return nil, &RetrievalError{Resource: "status audit records", Err: err}
	}
	return records, nil
}

// Search retrieves audit records matching the supplied filters, newest first
func (d *StatusAuditDAO) Search(ctx context.Context, tx *database.Transaction, params models.StatusAuditSearchParams) ([]models.ConsentStatusAuditRecord, error) {
	builder := &clauseBuilder{}
	if params.ConsentID != "" {
		builder.add("CONSENT_ID = ?", params.ConsentID)
	}
	if params.Status != "" {
		builder.add("CURRENT_STATUS = ?", params.Status)
	}
	if params.ActionBy != "" {
		builder.add("ACTION_BY = ?", params.ActionBy)
	}
	if params.FromTime != nil {
		builder.add("ACTION_TIME >= ?", *params.FromTime)
	}
	if params.ToTime != nil {
		builder.add("ACTION_TIME <= ?", *params.ToTime)
	}
	if params.StatusAuditID != "" {
		builder.add("STATUS_AUDIT_ID = ?", params.StatusAuditID)
	}
	where, args := builder.where()

	query := `SELECT ` + statusAuditColumns + ` FROM FS_CONSENT_STATUS_AUDIT` + where +
		` ORDER BY ACTION_TIME DESC, STATUS_AUDIT_ID ASC`

	var records []models.ConsentStatusAuditRecord
	if err := tx.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, &RetrievalError{Resource: "status audit records", Err: err}
	}
	return records, nil
}
