package service

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/wso2/consent-core-service/internal/database"
	"github.com/wso2/consent-core-service/internal/models"
	"github.com/wso2/consent-core-service/pkg/utils"
)

// Amendment history stores backward diffs: each payload records what a field
// was before the amendment, so replaying entries newest-first onto the
// current aggregate walks the consent back through time. A record-level JSON
// null payload means the record did not exist before the amendment.

// computeBasicDataDiff diffs the consent-row fields, recording old values
func computeBasicDataDiff(oldDetailed, newDetailed *models.DetailedConsentResource) (json.RawMessage, error) {
	diff := map[string]interface{}{}
	if newDetailed.Receipt != oldDetailed.Receipt {
		diff[models.HistoryFieldReceipt] = oldDetailed.Receipt
	}
	if newDetailed.ValidityPeriod != oldDetailed.ValidityPeriod {
		diff[models.HistoryFieldValidityPeriod] = oldDetailed.ValidityPeriod
	}
	if newDetailed.UpdatedTime != oldDetailed.UpdatedTime {
		diff[models.HistoryFieldUpdatedTime] = oldDetailed.UpdatedTime
	}
	if newDetailed.CurrentStatus != oldDetailed.CurrentStatus {
		diff[models.HistoryFieldCurrentStatus] = oldDetailed.CurrentStatus
	}
	if len(diff) == 0 {
		return nil, nil
	}
	return json.Marshal(diff)
}

// computeAttributesDiff diffs the attribute map. A key that only exists
// after the amendment is recorded as null, meaning it had no prior value.
func computeAttributesDiff(oldDetailed, newDetailed *models.DetailedConsentResource) (json.RawMessage, error) {
	diff := map[string]interface{}{}
	for key, oldValue := range oldDetailed.Attributes {
		if newValue, ok := newDetailed.Attributes[key]; !ok || newValue != oldValue {
			diff[key] = oldValue
		}
	}
	for key := range newDetailed.Attributes {
		if _, ok := oldDetailed.Attributes[key]; !ok {
			diff[key] = nil
		}
	}
	if len(diff) == 0 {
		return nil, nil
	}
	return json.Marshal(diff)
}

// computeMappingsDiff diffs mappings by ID: status changes record the old
// status, brand-new mappings record null
func computeMappingsDiff(oldDetailed, newDetailed *models.DetailedConsentResource) (map[string]json.RawMessage, error) {
	oldByID := make(map[string]models.ConsentMappingResource, len(oldDetailed.Mappings))
	for _, m := range oldDetailed.Mappings {
		oldByID[m.MappingID] = m
	}

	diffs := make(map[string]json.RawMessage)
	for _, m := range newDetailed.Mappings {
		old, existed := oldByID[m.MappingID]
		if !existed {
			diffs[m.MappingID] = json.RawMessage("null")
			continue
		}
		if m.MappingStatus != old.MappingStatus {
			payload, err := json.Marshal(map[string]string{models.HistoryFieldMappingStatus: old.MappingStatus})
			if err != nil {
				return nil, err
			}
			diffs[m.MappingID] = payload
		}
	}
	return diffs, nil
}

// computeAuthResourcesDiff diffs authorizations by ID: brand-new ones record
// null, and status/user changes on surviving ones record the old values
func computeAuthResourcesDiff(oldDetailed, newDetailed *models.DetailedConsentResource) (map[string]json.RawMessage, error) {
	oldByID := make(map[string]models.AuthorizationResource, len(oldDetailed.Authorizations))
	for _, a := range oldDetailed.Authorizations {
		oldByID[a.AuthID] = a
	}

	diffs := make(map[string]json.RawMessage)
	for _, a := range newDetailed.Authorizations {
		old, existed := oldByID[a.AuthID]
		if !existed {
			diffs[a.AuthID] = json.RawMessage("null")
			continue
		}

		diff := map[string]interface{}{}
		if a.AuthStatus != old.AuthStatus {
			diff[models.HistoryFieldAuthStatus] = old.AuthStatus
		}
		if !equalUserIDs(a.UserID, old.UserID) {
			if old.UserID != nil {
				diff[models.HistoryFieldUserID] = *old.UserID
			} else {
				diff[models.HistoryFieldUserID] = nil
			}
		}
		if len(diff) > 0 {
			payload, err := json.Marshal(diff)
			if err != nil {
				return nil, err
			}
			diffs[a.AuthID] = payload
		}
	}
	return diffs, nil
}

func equalUserIDs(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// storeAmendmentHistory computes the diff between the pre- and
// post-amendment aggregates and persists one history row per non-empty
// category, all sharing the same history ID and timestamp
func (s *ConsentService) storeAmendmentHistory(ctx context.Context, tx *database.Transaction, historyID string, timestamp int64, oldDetailed, newDetailed *models.DetailedConsentResource, reason string) error {
	consentID := newDetailed.ConsentID

	basicDiff, err := computeBasicDataDiff(oldDetailed, newDetailed)
	if err != nil {
		return NewInternalError("failed to compute basic consent data diff", err)
	}
	if basicDiff != nil {
		if err := s.historyDAO.StoreEntry(ctx, tx, historyID, timestamp, consentID,
			models.CategoryBasicConsentData, string(basicDiff), reason); err != nil {
			return wrapDataError("failed to store basic consent data history", err)
		}
	}

	attributesDiff, err := computeAttributesDiff(oldDetailed, newDetailed)
	if err != nil {
		return NewInternalError("failed to compute attributes diff", err)
	}
	if attributesDiff != nil {
		if err := s.historyDAO.StoreEntry(ctx, tx, historyID, timestamp, consentID,
			models.CategoryAttributesData, string(attributesDiff), reason); err != nil {
			return wrapDataError("failed to store attributes history", err)
		}
	}

	authDiffs, err := computeAuthResourcesDiff(oldDetailed, newDetailed)
	if err != nil {
		return NewInternalError("failed to compute authorization diff", err)
	}
	for authID, payload := range authDiffs {
		if err := s.historyDAO.StoreEntry(ctx, tx, historyID, timestamp, authID,
			models.CategoryAuthResourceData, string(payload), reason); err != nil {
			return wrapDataError("failed to store authorization history", err)
		}
	}

	mappingDiffs, err := computeMappingsDiff(oldDetailed, newDetailed)
	if err != nil {
		return NewInternalError("failed to compute mapping diff", err)
	}
	for mappingID, payload := range mappingDiffs {
		if err := s.historyDAO.StoreEntry(ctx, tx, historyID, timestamp, mappingID,
			models.CategoryMappingData, string(payload), reason); err != nil {
			return wrapDataError("failed to store mapping history", err)
		}
	}
	return nil
}

// GetConsentAmendmentHistoryData reconstructs every historical version of a
// consent. Starting from the current aggregate, each stored entry (newest
// first) is folded onto a copy of the running snapshot, so entry N's
// reconstructed aggregate is the consent as it stood before amendment N.
func (s *ConsentService) GetConsentAmendmentHistoryData(ctx context.Context, consentID string) ([]*models.ConsentHistoryResource, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	current, err := s.consentDAO.GetDetailed(ctx, tx, consentID)
	if err != nil {
		return nil, wrapDataError("failed to retrieve detailed consent", err)
	}

	recordIDs := []string{consentID}
	for _, a := range current.Authorizations {
		recordIDs = append(recordIDs, a.AuthID)
	}
	for _, m := range current.Mappings {
		recordIDs = append(recordIDs, m.MappingID)
	}

	entries, err := s.historyDAO.RetrieveByRecordIDs(ctx, tx, consentID, recordIDs)
	if err != nil {
		return nil, wrapDataError("failed to retrieve amendment history", err)
	}

	running := current
	for _, entry := range entries {
		snapshot := running.Clone()
		if err := applyHistoryEntry(snapshot, entry); err != nil {
			return nil, NewInternalError("failed to replay amendment history", err)
		}
		entry.DetailedConsent = snapshot
		running = snapshot
	}
	return entries, nil
}

// applyHistoryEntry folds one backward diff onto a snapshot copy
func applyHistoryEntry(snapshot *models.DetailedConsentResource, entry *models.ConsentHistoryResource) error {
	if len(entry.ChangedBasicData) > 0 {
		var basic struct {
			Receipt        *string `json:"receipt"`
			ValidityPeriod *int64  `json:"validityPeriod"`
			UpdatedTime    *int64  `json:"updatedTime"`
			CurrentStatus  *string `json:"currentStatus"`
		}
		if err := json.Unmarshal(entry.ChangedBasicData, &basic); err != nil {
			return err
		}
		if basic.Receipt != nil {
			snapshot.Receipt = *basic.Receipt
		}
		if basic.ValidityPeriod != nil {
			snapshot.ValidityPeriod = *basic.ValidityPeriod
		}
		if basic.UpdatedTime != nil {
			snapshot.UpdatedTime = *basic.UpdatedTime
		}
		if basic.CurrentStatus != nil {
			snapshot.CurrentStatus = *basic.CurrentStatus
		}
	}

	if len(entry.ChangedAttributesData) > 0 {
		var attributes map[string]*string
		if err := json.Unmarshal(entry.ChangedAttributesData, &attributes); err != nil {
			return err
		}
		for key, oldValue := range attributes {
			if oldValue == nil {
				delete(snapshot.Attributes, key)
			} else {
				snapshot.Attributes[key] = *oldValue
			}
		}
	}

	for authID, payload := range entry.ChangedAuthResources {
		if isJSONNull(payload) {
			snapshot.Authorizations = dropAuthorization(snapshot.Authorizations, authID)
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(payload, &fields); err != nil {
			return err
		}
		auth := findAuthorization(snapshot, authID)
		if auth == nil {
			continue
		}
		if raw, ok := fields[models.HistoryFieldAuthStatus]; ok {
			var status string
			if err := json.Unmarshal(raw, &status); err != nil {
				return err
			}
			auth.AuthStatus = status
		}
		if raw, ok := fields[models.HistoryFieldUserID]; ok {
			if isJSONNull(raw) {
				auth.UserID = nil
			} else {
				var userID string
				if err := json.Unmarshal(raw, &userID); err != nil {
					return err
				}
				auth.UserID = &userID
			}
		}
	}

	for mappingID, payload := range entry.ChangedMappings {
		if isJSONNull(payload) {
			snapshot.Mappings = dropMapping(snapshot.Mappings, mappingID)
			continue
		}
		var fields struct {
			MappingStatus *string `json:"mappingStatus"`
		}
		if err := json.Unmarshal(payload, &fields); err != nil {
			return err
		}
		if fields.MappingStatus == nil {
			continue
		}
		for i := range snapshot.Mappings {
			if snapshot.Mappings[i].MappingID == mappingID {
				snapshot.Mappings[i].MappingStatus = *fields.MappingStatus
				break
			}
		}
	}
	return nil
}

func isJSONNull(payload json.RawMessage) bool {
	return len(bytes.TrimSpace(payload)) == 0 || bytes.Equal(bytes.TrimSpace(payload), []byte("null"))
}

func dropAuthorization(auths []models.AuthorizationResource, authID string) []models.AuthorizationResource {
	out := auths[:0]
	for _, a := range auths {
		if a.AuthID != authID {
			out = append(out, a)
		}
	}
	return out
}

func dropMapping(mappings []models.ConsentMappingResource, mappingID string) []models.ConsentMappingResource {
	out := mappings[:0]
	for _, m := range mappings {
		if m.MappingID != mappingID {
			out = append(out, m)
		}
	}
	return out
}
