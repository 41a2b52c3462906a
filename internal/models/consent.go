package models

// Consent represents the FS_CONSENT table
type Consent struct {
	ConsentID          string `db:"CONSENT_ID" json:"consentId"`
	Receipt            string `db:"RECEIPT" json:"receipt"`
	CreatedTime        int64  `db:"CREATED_TIME" json:"createdTime"`
	UpdatedTime        int64  `db:"UPDATED_TIME" json:"updatedTime"`
	ClientID           string `db:"CLIENT_ID" json:"clientId"`
	ConsentType        string `db:"CONSENT_TYPE" json:"consentType"`
	CurrentStatus      string `db:"CURRENT_STATUS" json:"currentStatus"`
	ConsentFrequency   int    `db:"CONSENT_FREQUENCY" json:"consentFrequency"`
	ValidityPeriod     int64  `db:"VALIDITY_PERIOD" json:"validityPeriod"`
	RecurringIndicator bool   `db:"RECURRING_INDICATOR" json:"recurringIndicator"`
}

// DetailedConsentResource is the read-model aggregate of a consent with all
// its authorizations, account mappings and attributes. It is assembled on
// read, never persisted as one row.
type DetailedConsentResource struct {
	Consent
	Attributes     map[string]string        `json:"attributes"`
	Authorizations []AuthorizationResource  `json:"authorizations"`
	Mappings       []ConsentMappingResource `json:"mappings"`
}

// Clone returns a deep copy of the aggregate. History reconstruction folds
// diffs onto copies and must never mutate the seed snapshot.
func (d *DetailedConsentResource) Clone() *DetailedConsentResource {
	cp := &DetailedConsentResource{Consent: d.Consent}

	if d.Attributes != nil {
		cp.Attributes = make(map[string]string, len(d.Attributes))
		for k, v := range d.Attributes {
			cp.Attributes[k] = v
		}
	}

	if d.Authorizations != nil {
		cp.Authorizations = make([]AuthorizationResource, len(d.Authorizations))
		copy(cp.Authorizations, d.Authorizations)
		for i := range cp.Authorizations {
			if d.Authorizations[i].UserID != nil {
				userID := *d.Authorizations[i].UserID
				cp.Authorizations[i].UserID = &userID
			}
		}
	}

	if d.Mappings != nil {
		cp.Mappings = make([]ConsentMappingResource, len(d.Mappings))
		copy(cp.Mappings, d.Mappings)
	}

	return cp
}

// MappingsInStatus returns the subset of mappings in the given status
func (d *DetailedConsentResource) MappingsInStatus(status string) []ConsentMappingResource {
	var out []ConsentMappingResource
	for _, m := range d.Mappings {
		if m.MappingStatus == status {
			out = append(out, m)
		}
	}
	return out
}

// ConsentSearchParams represents the optional filters for consent searches.
// Only supplied filters participate in the generated predicate; filter
// categories combine with AND, values within a category with OR.
type ConsentSearchParams struct {
	ConsentIDs      []string `form:"consentIds"`
	ClientIDs       []string `form:"clientIds"`
	ConsentTypes    []string `form:"consentTypes"`
	ConsentStatuses []string `form:"consentStatuses"`
	UserIDs         []string `form:"userIds"`
	FromTime        *int64   `form:"fromTime"`
	ToTime          *int64   `form:"toTime"`
	Limit           *int     `form:"limit"`
	Offset          *int     `form:"offset"`
}

// ConsentCreateRequest is the request payload for creating a consent
type ConsentCreateRequest struct {
	ClientID           string            `json:"clientId" binding:"required"`
	Receipt            string            `json:"receipt" binding:"required"`
	ConsentType        string            `json:"consentType" binding:"required"`
	CurrentStatus      string            `json:"currentStatus" binding:"required"`
	ConsentFrequency   int               `json:"consentFrequency,omitempty"`
	ValidityPeriod     int64             `json:"validityPeriod,omitempty"`
	RecurringIndicator bool              `json:"recurringIndicator,omitempty"`
	Attributes         map[string]string `json:"attributes,omitempty"`

	// ImplicitAuth requests creation of one initial authorization together
	// with the consent. AuthStatus and AuthType are mandatory when set.
	ImplicitAuth bool    `json:"implicitAuth,omitempty"`
	AuthStatus   string  `json:"authStatus,omitempty"`
	AuthType     string  `json:"authType,omitempty"`
	UserID       *string `json:"userId,omitempty"`
}

// ExclusiveConsentRequest is the request payload for exclusive consent
// creation: existing applicable consents of the same (client, user, type)
// are retired before the new one is created.
type ExclusiveConsentRequest struct {
	ConsentCreateRequest
	ApplicableExistingStatus string `json:"applicableExistingStatus" binding:"required"`
	NewExistingConsentStatus string `json:"newExistingConsentStatus" binding:"required"`
	ExistingRevocationReason string `json:"existingRevocationReason" binding:"required"`
}

// ConsentRevokeRequest is the request payload to revoke a consent
type ConsentRevokeRequest struct {
	RevokedStatus      string `json:"revokedStatus,omitempty"`
	Reason             string `json:"reason,omitempty"`
	ActionBy           string `json:"actionBy,omitempty"`
	UserID             string `json:"userId,omitempty"`
	ShouldRevokeTokens bool   `json:"shouldRevokeTokens,omitempty"`
}

// ReauthorizeRequest carries the desired account/permission map for
// re-authorization of an existing authorization resource.
type ReauthorizeRequest struct {
	UserID                    string              `json:"userId,omitempty"`
	AccountIDsWithPermissions map[string][]string `json:"accountIdsWithPermissions" binding:"required"`
	CurrentStatus             string              `json:"currentStatus,omitempty"`
	NewStatus                 string              `json:"newStatus,omitempty"`

	// Fields used by the new-auth-resource variant only. ExistingAuthStatus
	// is the status the superseded authorization is moved to; defaults to
	// AuthStatusInactive.
	NewAuthStatus      string `json:"newAuthStatus,omitempty"`
	NewAuthType        string `json:"newAuthType,omitempty"`
	ExistingAuthStatus string `json:"existingAuthStatus,omitempty"`
}

// ConsentAmendmentRequest is the request payload for amending a detailed consent
type ConsentAmendmentRequest struct {
	Receipt                   *string             `json:"receipt,omitempty"`
	ValidityPeriod            *int64              `json:"validityPeriod,omitempty"`
	AuthID                    string              `json:"authId" binding:"required"`
	UserID                    string              `json:"userId,omitempty"`
	AccountIDsWithPermissions map[string][]string `json:"accountIdsWithPermissions,omitempty"`
	NewStatus                 string              `json:"newStatus,omitempty"`
	Attributes                map[string]string   `json:"attributes,omitempty"`
	Reason                    string              `json:"reason,omitempty"`

	// NewAuthResources holds brand-new authorization grants inserted verbatim
	// by the bulk variant.
	NewAuthResources []BulkAuthResource `json:"newAuthResources,omitempty"`
}

// BulkAuthResource is a brand-new authorization plus its account mappings,
// introduced by an amendment rather than modifying an existing grant.
type BulkAuthResource struct {
	Authorization AuthorizationResource    `json:"authorization"`
	Mappings      []ConsentMappingResource `json:"mappings"`
}
