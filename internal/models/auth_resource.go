package models

// AuthStatusInactive marks an authorization superseded by a fresh one
// during re-authorization. Other authorization statuses are
// domain-configurable strings supplied by callers.
const AuthStatusInactive = "inactive"

// AuthorizationResource represents the FS_CONSENT_AUTH_RESOURCE table.
// One row per grant event tied to a consent; UserID stays nil until the
// authorization is bound to a user.
type AuthorizationResource struct {
	AuthID      string  `db:"AUTH_ID" json:"authId"`
	ConsentID   string  `db:"CONSENT_ID" json:"consentId"`
	AuthType    string  `db:"AUTH_TYPE" json:"authType"`
	UserID      *string `db:"USER_ID" json:"userId"`
	AuthStatus  string  `db:"AUTH_STATUS" json:"authStatus"`
	UpdatedTime int64   `db:"UPDATED_TIME" json:"updatedTime"`
}
