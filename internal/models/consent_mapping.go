package models

// Mapping statuses. Inactive mappings are logically deleted, never
// physically removed; reinstating an account requires a fresh mapping row.
const (
	MappingStatusActive   = "active"
	MappingStatusInactive = "inactive"
)

// ConsentMappingResource represents the FS_CONSENT_MAPPING table: the
// binding of one account + permission to an authorization.
type ConsentMappingResource struct {
	MappingID     string `db:"MAPPING_ID" json:"mappingId"`
	AuthID        string `db:"AUTH_ID" json:"authId"`
	AccountID     string `db:"ACCOUNT_ID" json:"accountId"`
	Permission    string `db:"PERMISSION" json:"permission"`
	MappingStatus string `db:"MAPPING_STATUS" json:"mappingStatus"`
}
