package models

import "encoding/json"

// Amendment history record categories. Each amendment persists one history
// row per non-empty category, all sharing the same history ID and timestamp.
const (
	CategoryBasicConsentData = "ConsentData"
	CategoryAttributesData   = "ConsentAttributesData"
	CategoryAuthResourceData = "ConsentAuthResourceData"
	CategoryMappingData      = "ConsentMappingData"
)

// Basic-consent-data diff field names
const (
	HistoryFieldReceipt        = "receipt"
	HistoryFieldValidityPeriod = "validityPeriod"
	HistoryFieldUpdatedTime    = "updatedTime"
	HistoryFieldCurrentStatus  = "currentStatus"
	HistoryFieldMappingStatus  = "mappingStatus"
	HistoryFieldAuthStatus     = "authStatus"
	HistoryFieldUserID         = "userId"
)

// ConsentHistoryResource groups every history row written by one amendment.
// Diffs are stored "backwards": each payload holds the value a field had
// before the amendment that produced this row.
type ConsentHistoryResource struct {
	HistoryID string `json:"historyId"`
	ConsentID string `json:"consentId"`
	Timestamp int64  `json:"timestamp"`
	Reason    string `json:"reason"`

	// ChangedBasicData and ChangedAttributesData hold the raw diff JSON for
	// the consent row and the attribute map. ChangedAuthResources and
	// ChangedMappings are keyed by the affected record id, since one
	// amendment can touch several authorizations/mappings at once; a JSON
	// null payload means the record did not exist before the amendment.
	ChangedBasicData      json.RawMessage            `json:"changedBasicData,omitempty"`
	ChangedAttributesData json.RawMessage            `json:"changedAttributesData,omitempty"`
	ChangedAuthResources  map[string]json.RawMessage `json:"changedAuthResources,omitempty"`
	ChangedMappings       map[string]json.RawMessage `json:"changedMappings,omitempty"`

	// DetailedConsent is the reconstructed snapshot as of this history
	// entry, populated by history reconstruction only.
	DetailedConsent *DetailedConsentResource `json:"detailedConsent,omitempty"`
}

// IsEmpty reports whether the amendment recorded no changes at all
func (h *ConsentHistoryResource) IsEmpty() bool {
	return len(h.ChangedBasicData) == 0 &&
		len(h.ChangedAttributesData) == 0 &&
		len(h.ChangedAuthResources) == 0 &&
		len(h.ChangedMappings) == 0
}
