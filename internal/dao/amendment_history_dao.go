package dao

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"github.com/wso2/consent-core-service/internal/database"
	"github.com/wso2/consent-core-service/internal/models"
)

// Table category IDs stored in FS_CONSENT_HISTORY.TABLE_ID, identifying
// which live table a history row's record ID points into.
const (
	tableIDConsent      = "01"
	tableIDAuthResource = "02"
	tableIDMapping      = "03"
	tableIDAttribute    = "04"
)

var categoryToTableID = map[string]string{
	models.CategoryBasicConsentData: tableIDConsent,
	models.CategoryAuthResourceData: tableIDAuthResource,
	models.CategoryMappingData:      tableIDMapping,
	models.CategoryAttributesData:   tableIDAttribute,
}

// AmendmentHistoryDAO handles persistence of the FS_CONSENT_HISTORY table.
// One amendment writes several rows sharing a history ID: one per changed
// record, each holding the backward diff for that record as JSON.
type AmendmentHistoryDAO struct{}

// NewAmendmentHistoryDAO creates a new AmendmentHistoryDAO
func NewAmendmentHistoryDAO() *AmendmentHistoryDAO {
	return &AmendmentHistoryDAO{}
}

// HistoryRow is one raw FS_CONSENT_HISTORY row. Retention sync copies rows
// verbatim, so the raw shape is part of the DAO surface.
type HistoryRow struct {
	TableID       string `db:"TABLE_ID"`
	RecordID      string `db:"RECORD_ID"`
	HistoryID     string `db:"HISTORY_ID"`
	ChangedValues string `db:"CHANGED_VALUES"`
	Reason        string `db:"REASON"`
	Timestamp     int64  `db:"EFFECTIVE_TIMESTAMP"`
}

const historyColumns = `TABLE_ID, RECORD_ID, HISTORY_ID, CHANGED_VALUES, REASON, EFFECTIVE_TIMESTAMP`

// StoreEntry inserts one history row for the given record under the given
// amendment. The category must be one of the models.Category* constants.
func (d *AmendmentHistoryDAO) StoreEntry(ctx context.Context, tx *database.Transaction, historyID string, timestamp int64, recordID, category, changedValues, reason string) error {
	tableID, ok := categoryToTableID[category]
	if !ok {
		return &InsertionError{Resource: "amendment history entry", Err: errUnknownHistoryCategory}
	}

	row := HistoryRow{
		TableID:       tableID,
		RecordID:      recordID,
		HistoryID:     historyID,
		ChangedValues: changedValues,
		Reason:        reason,
		Timestamp:     timestamp,
	}

	query := `INSERT INTO FS_CONSENT_HISTORY (` + historyColumns + `)
		VALUES (:TABLE_ID, :RECORD_ID, :HISTORY_ID, :CHANGED_VALUES, :REASON, :EFFECTIVE_TIMESTAMP)`

	result, err := tx.NamedExecContext(ctx, query, row)
	if err != nil {
		return &InsertionError{Resource: "amendment history entry", Err: err}
	}
	if rows, err := result.RowsAffected(); err != nil || rows == 0 {
		return &InsertionError{Resource: "amendment history entry", Err: errNoRowsAffected}
	}
	return nil
}

// StoreRow re-inserts a raw history row. Used by retention sync to copy
// rows into the archival store unchanged.
func (d *AmendmentHistoryDAO) StoreRow(ctx context.Context, tx *database.Transaction, row HistoryRow) error {
	query := `INSERT INTO FS_CONSENT_HISTORY (` + historyColumns + `)
		VALUES (:TABLE_ID, :RECORD_ID, :HISTORY_ID, :CHANGED_VALUES, :REASON, :EFFECTIVE_TIMESTAMP)`

	result, err := tx.NamedExecContext(ctx, query, row)
	if err != nil {
		return &InsertionError{Resource: "amendment history row", Err: err}
	}
	if rows, err := result.RowsAffected(); err != nil || rows == 0 {
		return &InsertionError{Resource: "amendment history row", Err: errNoRowsAffected}
	}
	return nil
}

// GetRowsByRecordIDs retrieves the raw history rows of every listed record,
// newest amendment first
func (d *AmendmentHistoryDAO) GetRowsByRecordIDs(ctx context.Context, tx *database.Transaction, recordIDs []string) ([]HistoryRow, error) {
	if len(recordIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+historyColumns+` FROM FS_CONSENT_HISTORY
		WHERE RECORD_ID IN (?) ORDER BY EFFECTIVE_TIMESTAMP DESC, HISTORY_ID ASC`, recordIDs)
	if err != nil {
		return nil, &RetrievalError{Resource: "amendment history rows", Err: err}
	}

	var rows []HistoryRow
	if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, &RetrievalError{Resource: "amendment history rows", Err: err}
	}
	return rows, nil
}

// RetrieveByRecordIDs groups the history rows of a consent and all its
// dependent records into one resource per amendment, newest first. Auth and
// mapping diffs are keyed by the record ID they apply to.
func (d *AmendmentHistoryDAO) RetrieveByRecordIDs(ctx context.Context, tx *database.Transaction, consentID string, recordIDs []string) ([]*models.ConsentHistoryResource, error) {
	rows, err := d.GetRowsByRecordIDs(ctx, tx, recordIDs)
	if err != nil {
		return nil, err
	}

	var order []string
	byHistoryID := make(map[string]*models.ConsentHistoryResource)

	for _, row := range rows {
		resource, ok := byHistoryID[row.HistoryID]
		if !ok {
			resource = &models.ConsentHistoryResource{
				HistoryID: row.HistoryID,
				ConsentID: consentID,
				Timestamp: row.Timestamp,
				Reason:    row.Reason,
			}
			byHistoryID[row.HistoryID] = resource
			order = append(order, row.HistoryID)
		}

		changed := json.RawMessage(row.ChangedValues)
		switch row.TableID {
		case tableIDConsent:
			resource.ChangedBasicData = changed
		case tableIDAttribute:
			resource.ChangedAttributesData = changed
		case tableIDAuthResource:
			if resource.ChangedAuthResources == nil {
				resource.ChangedAuthResources = make(map[string]json.RawMessage)
			}
			resource.ChangedAuthResources[row.RecordID] = changed
		case tableIDMapping:
			if resource.ChangedMappings == nil {
				resource.ChangedMappings = make(map[string]json.RawMessage)
			}
			resource.ChangedMappings[row.RecordID] = changed
		}
	}

	out := make([]*models.ConsentHistoryResource, 0, len(order))
	for _, historyID := range order {
		out = append(out, byHistoryID[historyID])
	}
	return out, nil
}
