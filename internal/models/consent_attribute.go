package models

// ConsentAttribute represents one row of the FS_CONSENT_ATTRIBUTE table
type ConsentAttribute struct {
	ConsentID string `db:"CONSENT_ID" json:"consentId"`
	AttKey    string `db:"ATT_KEY" json:"attKey"`
	AttValue  string `db:"ATT_VALUE" json:"attValue"`
}

// ConsentAttributes is the aggregate of all attribute rows of one consent
type ConsentAttributes struct {
	ConsentID  string            `json:"consentId"`
	Attributes map[string]string `json:"attributes"`
}
