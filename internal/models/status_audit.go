package models

// ConsentStatusAuditRecord represents the FS_CONSENT_STATUS_AUDIT table.
// Append-only; exactly one record per accepted status transition.
// PreviousStatus is nil for the record written at consent creation.
type ConsentStatusAuditRecord struct {
	StatusAuditID  string  `db:"STATUS_AUDIT_ID" json:"statusAuditId"`
	ConsentID      string  `db:"CONSENT_ID" json:"consentId"`
	CurrentStatus  string  `db:"CURRENT_STATUS" json:"currentStatus"`
	ActionTime     int64   `db:"ACTION_TIME" json:"actionTime"`
	Reason         string  `db:"REASON" json:"reason"`
	ActionBy       *string `db:"ACTION_BY" json:"actionBy"`
	PreviousStatus *string `db:"PREVIOUS_STATUS" json:"previousStatus"`
}

// StatusAuditSearchParams represents the optional filters for audit searches
type StatusAuditSearchParams struct {
	ConsentID     string `form:"consentId"`
	Status        string `form:"status"`
	ActionBy      string `form:"actionBy"`
	FromTime      *int64 `form:"fromTime"`
	ToTime        *int64 `form:"toTime"`
	StatusAuditID string `form:"statusAuditId"`
}
