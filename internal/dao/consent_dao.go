package dao

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/wso2/consent-core-service/internal/database"
	"github.com/wso2/consent-core-service/internal/models"
	"github.com/wso2/consent-core-service/pkg/utils"
)

// ConsentDAO handles persistence of the FS_CONSENT table and the detailed
// consent read model. Every method runs on the caller-supplied transaction;
// the DAO never opens or closes transactions itself.
type ConsentDAO struct{}

// NewConsentDAO creates a new ConsentDAO
func NewConsentDAO() *ConsentDAO {
	return &ConsentDAO{}
}

const consentColumns = `CONSENT_ID, RECEIPT, CREATED_TIME, UPDATED_TIME, CLIENT_ID,
		CONSENT_TYPE, CURRENT_STATUS, CONSENT_FREQUENCY, VALIDITY_PERIOD, RECURRING_INDICATOR`

// Store inserts a consent row. A missing ID and missing timestamps are
// assigned here so every caller gets the same generation behavior.
func (d *ConsentDAO) Store(ctx context.Context, tx *database.Transaction, consent *models.Consent) error {
	if consent.ConsentID == "" {
		consent.ConsentID = utils.GenerateConsentID()
	}
	now := utils.GetCurrentTimestamp()
	if consent.CreatedTime == 0 {
		consent.CreatedTime = now
	}
	if consent.UpdatedTime == 0 {
		consent.UpdatedTime = now
	}

	query := `INSERT INTO FS_CONSENT (` + consentColumns + `)
		VALUES (:CONSENT_ID, :RECEIPT, :CREATED_TIME, :UPDATED_TIME, :CLIENT_ID,
			:CONSENT_TYPE, :CURRENT_STATUS, :CONSENT_FREQUENCY, :VALIDITY_PERIOD, :RECURRING_INDICATOR)`

	result, err := tx.NamedExecContext(ctx, query, consent)
	if err != nil {
		return &InsertionError{Resource: "consent", Err: err}
	}
	if rows, err := result.RowsAffected(); err != nil || rows == 0 {
		return &InsertionError{Resource: "consent", Err: errNoRowsAffected}
	}
	return nil
}

// Get retrieves a consent row by ID
func (d *ConsentDAO) Get(ctx context.Context, tx *database.Transaction, consentID string) (*models.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM FS_CONSENT WHERE CONSENT_ID = ?`

	var consent models.Consent
	if err := tx.GetContext(ctx, &consent, query, consentID); err != nil {
		return nil, &RetrievalError{Resource: "consent", Err: err}
	}
	return &consent, nil
}

// GetForUpdate retrieves a consent row by ID under a row lock, serializing
// concurrent mutations of the same consent. Mutating flows call this before
// touching any dependent table.
func (d *ConsentDAO) GetForUpdate(ctx context.Context, tx *database.Transaction, consentID string) (*models.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM FS_CONSENT WHERE CONSENT_ID = ? FOR UPDATE`

	var consent models.Consent
	if err := tx.GetContext(ctx, &consent, query, consentID); err != nil {
		return nil, &RetrievalError{Resource: "consent", Err: err}
	}
	return &consent, nil
}

// detailedRow is the scan target for the wide join behind the detailed
// consent read model. Joined columns are nullable because a consent may have
// no authorizations, mappings or attributes yet.
type detailedRow struct {
	models.Consent
	AuthID          sql.NullString `db:"AUTH_ID"`
	AuthType        sql.NullString `db:"AUTH_TYPE"`
	AuthUserID      sql.NullString `db:"AUTH_USER_ID"`
	AuthStatus      sql.NullString `db:"AUTH_STATUS"`
	AuthUpdatedTime sql.NullInt64  `db:"AUTH_UPDATED_TIME"`
	MappingID       sql.NullString `db:"MAPPING_ID"`
	MappingAuthID   sql.NullString `db:"MAPPING_AUTH_ID"`
	AccountID       sql.NullString `db:"ACCOUNT_ID"`
	Permission      sql.NullString `db:"PERMISSION"`
	MappingStatus   sql.NullString `db:"MAPPING_STATUS"`
	AttKey          sql.NullString `db:"ATT_KEY"`
	AttValue        sql.NullString `db:"ATT_VALUE"`
}

const detailedJoinColumns = `c.CONSENT_ID, c.RECEIPT, c.CREATED_TIME, c.UPDATED_TIME, c.CLIENT_ID,
		c.CONSENT_TYPE, c.CURRENT_STATUS, c.CONSENT_FREQUENCY, c.VALIDITY_PERIOD, c.RECURRING_INDICATOR,
		a.AUTH_ID, a.AUTH_TYPE, a.USER_ID AS AUTH_USER_ID, a.AUTH_STATUS, a.UPDATED_TIME AS AUTH_UPDATED_TIME,
		m.MAPPING_ID, m.AUTH_ID AS MAPPING_AUTH_ID, m.ACCOUNT_ID, m.PERMISSION, m.MAPPING_STATUS,
		t.ATT_KEY, t.ATT_VALUE`

const detailedJoinTables = ` FROM FS_CONSENT c
		LEFT JOIN FS_CONSENT_AUTH_RESOURCE a ON c.CONSENT_ID = a.CONSENT_ID
		LEFT JOIN FS_CONSENT_MAPPING m ON a.AUTH_ID = m.AUTH_ID
		LEFT JOIN FS_CONSENT_ATTRIBUTE t ON c.CONSENT_ID = t.CONSENT_ID`

// GetDetailed retrieves the full consent aggregate in one round trip.
// The join fans out across authorizations, mappings and attributes, so the
// fold below de-duplicates by record ID while preserving first-seen order.
func (d *ConsentDAO) GetDetailed(ctx context.Context, tx *database.Transaction, consentID string) (*models.DetailedConsentResource, error) {
	query := `SELECT ` + detailedJoinColumns + detailedJoinTables + ` WHERE c.CONSENT_ID = ?`

	var rows []detailedRow
	if err := tx.SelectContext(ctx, &rows, query, consentID); err != nil {
		return nil, &RetrievalError{Resource: "detailed consent", Err: err}
	}
	if len(rows) == 0 {
		return nil, &RetrievalError{Resource: "detailed consent", Err: sql.ErrNoRows}
	}

	detailed := foldDetailedRows(rows)
	return detailed[0], nil
}

// foldDetailedRows collapses fan-out rows into one aggregate per consent,
// keeping consents, authorizations and mappings in first-seen order.
func foldDetailedRows(rows []detailedRow) []*models.DetailedConsentResource {
	var order []string
	byConsent := make(map[string]*models.DetailedConsentResource)
	seenAuth := make(map[string]bool)
	seenMapping := make(map[string]bool)

	for _, row := range rows {
		detailed, ok := byConsent[row.ConsentID]
		if !ok {
			detailed = &models.DetailedConsentResource{
				Consent:    row.Consent,
				Attributes: make(map[string]string),
			}
			byConsent[row.ConsentID] = detailed
			order = append(order, row.ConsentID)
		}

		if row.AuthID.Valid && !seenAuth[row.AuthID.String] {
			seenAuth[row.AuthID.String] = true
			auth := models.AuthorizationResource{
				AuthID:      row.AuthID.String,
				ConsentID:   row.ConsentID,
				AuthType:    row.AuthType.String,
				AuthStatus:  row.AuthStatus.String,
				UpdatedTime: row.AuthUpdatedTime.Int64,
			}
			if row.AuthUserID.Valid {
				userID := row.AuthUserID.String
				auth.UserID = &userID
			}
			detailed.Authorizations = append(detailed.Authorizations, auth)
		}

		if row.MappingID.Valid && !seenMapping[row.MappingID.String] {
			seenMapping[row.MappingID.String] = true
			detailed.Mappings = append(detailed.Mappings, models.ConsentMappingResource{
				MappingID:     row.MappingID.String,
				AuthID:        row.MappingAuthID.String,
				AccountID:     row.AccountID.String,
				Permission:    row.Permission.String,
				MappingStatus: row.MappingStatus.String,
			})
		}

		if row.AttKey.Valid {
			detailed.Attributes[row.AttKey.String] = row.AttValue.String
		}
	}

	out := make([]*models.DetailedConsentResource, 0, len(order))
	for _, id := range order {
		out = append(out, byConsent[id])
	}
	return out
}

// buildSearchClause translates the optional filters into a WHERE clause over
// the aliased FS_CONSENT table. User filters match through the authorization
// table, since the consent row itself carries no user column.
func buildSearchClause(params models.ConsentSearchParams) (string, []interface{}) {
	builder := &clauseBuilder{}
	builder.addIn("c.CONSENT_ID", params.ConsentIDs)
	builder.addIn("c.CLIENT_ID", params.ClientIDs)
	builder.addIn("c.CONSENT_TYPE", params.ConsentTypes)
	builder.addIn("c.CURRENT_STATUS", params.ConsentStatuses)
	if len(params.UserIDs) > 0 {
		placeholders := ""
		args := make([]interface{}, 0, len(params.UserIDs))
		for i, userID := range params.UserIDs {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, userID)
		}
		builder.add(`EXISTS (SELECT 1 FROM FS_CONSENT_AUTH_RESOURCE ua
			WHERE ua.CONSENT_ID = c.CONSENT_ID AND ua.USER_ID IN (`+placeholders+`))`, args...)
	}
	if params.FromTime != nil {
		builder.add("c.UPDATED_TIME >= ?", *params.FromTime)
	}
	if params.ToTime != nil {
		builder.add("c.UPDATED_TIME <= ?", *params.ToTime)
	}
	return builder.where()
}

// Search retrieves consent rows matching the supplied filters along with the
// total match count. Results are newest-first by updated time; LIMIT/OFFSET
// apply only when both are supplied.
func (d *ConsentDAO) Search(ctx context.Context, tx *database.Transaction, params models.ConsentSearchParams) ([]models.Consent, int, error) {
	where, args := buildSearchClause(params)

	countQuery := `SELECT COUNT(*) FROM FS_CONSENT c` + where
	var total int
	if err := tx.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, &RetrievalError{Resource: "consent search count", Err: err}
	}

	query := `SELECT c.CONSENT_ID, c.RECEIPT, c.CREATED_TIME, c.UPDATED_TIME, c.CLIENT_ID,
		c.CONSENT_TYPE, c.CURRENT_STATUS, c.CONSENT_FREQUENCY, c.VALIDITY_PERIOD, c.RECURRING_INDICATOR
		FROM FS_CONSENT c` + where + ` ORDER BY c.UPDATED_TIME DESC, c.CONSENT_ID ASC`
	if params.Limit != nil && params.Offset != nil {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, *params.Limit, *params.Offset)
	}

	var consents []models.Consent
	if err := tx.SelectContext(ctx, &consents, query, args...); err != nil {
		return nil, 0, &RetrievalError{Resource: "consent search", Err: err}
	}
	return consents, total, nil
}

// SearchDetailed retrieves matching consents as full aggregates. The filter
// and pagination pass runs first against FS_CONSENT alone, then one wide join
// hydrates the selected page.
func (d *ConsentDAO) SearchDetailed(ctx context.Context, tx *database.Transaction, params models.ConsentSearchParams) ([]*models.DetailedConsentResource, int, error) {
	consents, total, err := d.Search(ctx, tx, params)
	if err != nil {
		return nil, 0, err
	}
	if len(consents) == 0 {
		return []*models.DetailedConsentResource{}, total, nil
	}

	ids := make([]string, len(consents))
	for i, c := range consents {
		ids[i] = c.ConsentID
	}

	query, args, err := sqlx.In(`SELECT `+detailedJoinColumns+detailedJoinTables+` WHERE c.CONSENT_ID IN (?)`, ids)
	if err != nil {
		return nil, 0, &RetrievalError{Resource: "detailed consent search", Err: err}
	}

	var rows []detailedRow
	if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, &RetrievalError{Resource: "detailed consent search", Err: err}
	}

	// The join loses the page ordering, so re-sort by the paged ID order.
	byID := make(map[string]*models.DetailedConsentResource)
	for _, detailed := range foldDetailedRows(rows) {
		byID[detailed.ConsentID] = detailed
	}
	out := make([]*models.DetailedConsentResource, 0, len(ids))
	for _, id := range ids {
		if detailed, ok := byID[id]; ok {
			out = append(out, detailed)
		}
	}
	return out, total, nil
}

// UpdateStatus moves a consent to a new status, touching the updated time
func (d *ConsentDAO) UpdateStatus(ctx context.Context, tx *database.Transaction, consentID, newStatus string, updatedTime int64) error {
	query := `UPDATE FS_CONSENT SET CURRENT_STATUS = ?, UPDATED_TIME = ? WHERE CONSENT_ID = ?`

	result, err := tx.ExecContext(ctx, query, newStatus, updatedTime, consentID)
	if err != nil {
		return &UpdateError{Resource: "consent status", Err: err}
	}
	if rows, err := result.RowsAffected(); err != nil || rows == 0 {
		return &UpdateError{Resource: "consent status", Err: errNoRowsAffected}
	}
	return nil
}

// BulkUpdateStatus moves every listed consent to the new status in one
// statement. Used when exclusive creation retires existing consents.
func (d *ConsentDAO) BulkUpdateStatus(ctx context.Context, tx *database.Transaction, consentIDs []string, newStatus string, updatedTime int64) error {
	if len(consentIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		`UPDATE FS_CONSENT SET CURRENT_STATUS = ?, UPDATED_TIME = ? WHERE CONSENT_ID IN (?)`,
		newStatus, updatedTime, consentIDs)
	if err != nil {
		return &UpdateError{Resource: "consent statuses", Err: err}
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return &UpdateError{Resource: "consent statuses", Err: err}
	}
	return nil
}

// UpdateAmendedData applies the consent-row part of an amendment: receipt
// and/or validity period, always touching the updated time. Nil fields are
// left untouched.
func (d *ConsentDAO) UpdateAmendedData(ctx context.Context, tx *database.Transaction, consentID string, receipt *string, validityPeriod *int64, updatedTime int64) error {
	query := `UPDATE FS_CONSENT SET UPDATED_TIME = ?`
	args := []interface{}{updatedTime}
	if receipt != nil {
		query += `, RECEIPT = ?`
		args = append(args, *receipt)
	}
	if validityPeriod != nil {
		query += `, VALIDITY_PERIOD = ?`
		args = append(args, *validityPeriod)
	}
	query += ` WHERE CONSENT_ID = ?`
	args = append(args, consentID)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return &UpdateError{Resource: "consent amendment data", Err: err}
	}
	if rows, err := result.RowsAffected(); err != nil || rows == 0 {
		return &UpdateError{Resource: "consent amendment data", Err: errNoRowsAffected}
	}
	return nil
}

// GetIDsByStatuses returns the IDs of consents currently in any of the given
// statuses. Used by retention sync to find terminal consents to archive.
func (d *ConsentDAO) GetIDsByStatuses(ctx context.Context, tx *database.Transaction, statuses []string) ([]string, error) {
	query, args, err := sqlx.In(`SELECT CONSENT_ID FROM FS_CONSENT WHERE CURRENT_STATUS IN (?)`, statuses)
	if err != nil {
		return nil, &RetrievalError{Resource: "consent ids by status", Err: err}
	}

	var ids []string
	if err := tx.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, &RetrievalError{Resource: "consent ids by status", Err: err}
	}
	return ids, nil
}
