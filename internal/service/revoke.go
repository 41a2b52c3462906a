package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-core-service/internal/database"
	"github.com/wso2/consent-core-service/internal/models"
	"github.com/wso2/consent-core-service/pkg/utils"
)

// RevokeConsent transitions a consent to its revoked status, deactivates
// every active mapping, writes the audit record and the amendment-history
// diff in one transaction, then (post-commit) notifies and optionally
// revokes tokens. A token-revocation failure is returned as an error but the
// consent stays revoked.
func (s *ConsentService) RevokeConsent(ctx context.Context, consentID string, req *models.ConsentRevokeRequest) (*models.DetailedConsentResource, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	revokedStatus := req.RevokedStatus
	if revokedStatus == "" {
		revokedStatus = s.config.Consent.StatusMappings.RevokedStatus
	}
	reason := req.Reason
	if reason == "" {
		reason = "Consent revoked"
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := s.consentDAO.GetForUpdate(ctx, tx, consentID); err != nil {
		return nil, wrapDataError("failed to retrieve consent", err)
	}
	oldDetailed, err := s.consentDAO.GetDetailed(ctx, tx, consentID)
	if err != nil {
		return nil, wrapDataError("failed to retrieve detailed consent", err)
	}
	if oldDetailed.CurrentStatus == revokedStatus || s.config.Consent.IsRevokedStatus(oldDetailed.CurrentStatus) {
		return nil, NewConflictError("consent is already revoked")
	}

	now := utils.GetCurrentTimestamp()
	change, newDetailed, err := s.revokeInTx(ctx, tx, oldDetailed, revokedStatus, reason, req.ActionBy, now)
	if err != nil {
		return nil, err
	}

	historyID := utils.GenerateHistoryID()
	if err := s.storeAmendmentHistory(ctx, tx, historyID, now, oldDetailed, newDetailed, reason); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, NewInternalError("failed to commit consent revocation", err)
	}

	s.logger.WithFields(logrus.Fields{
		"consentID":     consentID,
		"revokedStatus": revokedStatus,
	}).Info("Consent revoked")

	s.cache.Invalidate(ctx, consentID)
	s.notifyStateChanges(ctx, *change)

	if req.ShouldRevokeTokens {
		if err := s.revoker.RevokeTokens(ctx, consentID, newDetailed.ClientID, req.UserID); err != nil {
			s.logger.WithError(err).WithField("consentID", consentID).Error("Token revocation failed after consent revocation")
			return newDetailed, NewInternalError("consent revoked but token revocation failed", err)
		}
	}
	return newDetailed, nil
}

// revokeInTx performs the status transition, mapping deactivation and audit
// write for one consent on an already-open transaction. Returns the
// transition and the post-revocation aggregate.
func (s *ConsentService) revokeInTx(ctx context.Context, tx *database.Transaction, oldDetailed *models.DetailedConsentResource, revokedStatus, reason, actionBy string, now int64) (*stateChange, *models.DetailedConsentResource, error) {
	consentID := oldDetailed.ConsentID

	if err := s.consentDAO.UpdateStatus(ctx, tx, consentID, revokedStatus, now); err != nil {
		return nil, nil, wrapDataError("failed to update consent status", err)
	}

	var mappingIDs []string
	for _, m := range oldDetailed.MappingsInStatus(models.MappingStatusActive) {
		mappingIDs = append(mappingIDs, m.MappingID)
	}
	if err := s.mappingDAO.UpdateStatusByIDs(ctx, tx, mappingIDs, models.MappingStatusInactive); err != nil {
		return nil, nil, wrapDataError("failed to deactivate consent mappings", err)
	}

	newDetailed := oldDetailed.Clone()
	newDetailed.CurrentStatus = revokedStatus
	newDetailed.UpdatedTime = now
	for i := range newDetailed.Mappings {
		if newDetailed.Mappings[i].MappingStatus == models.MappingStatusActive {
			newDetailed.Mappings[i].MappingStatus = models.MappingStatusInactive
		}
	}

	change := stateChange{
		consent:        newDetailed.Consent,
		previousStatus: oldDetailed.CurrentStatus,
		reason:         reason,
		actionBy:       actionBy,
	}
	if err := s.storeAuditRecord(ctx, tx, change, now); err != nil {
		return nil, nil, wrapDataError("failed to store revocation audit record", err)
	}
	return &change, newDetailed, nil
}

// RevokeExistingApplicableConsents revokes every consent of the given
// (client, user, type) currently in the applicable status. All status
// transitions and audit rows run in one transaction with one final batched
// mapping deactivation.
func (s *ConsentService) RevokeExistingApplicableConsents(ctx context.Context, clientID, userID, consentType, applicableStatus, revokedStatus string, shouldRevokeTokens bool) error {
	if err := utils.ValidateClientID(clientID); err != nil {
		return NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("user id", userID); err != nil {
		return NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("consent type", consentType); err != nil {
		return NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("applicable status", applicableStatus); err != nil {
		return NewPreconditionError(err.Error())
	}
	if revokedStatus == "" {
		revokedStatus = s.config.Consent.StatusMappings.RevokedStatus
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	applicable, _, err := s.consentDAO.SearchDetailed(ctx, tx, models.ConsentSearchParams{
		ClientIDs:       []string{clientID},
		UserIDs:         []string{userID},
		ConsentTypes:    []string{consentType},
		ConsentStatuses: []string{applicableStatus},
	})
	if err != nil {
		return wrapDataError("failed to search applicable consents", err)
	}

	now := utils.GetCurrentTimestamp()
	changes := make([]stateChange, 0, len(applicable))
	var consentIDs []string
	var mappingIDs []string
	for _, old := range applicable {
		consentIDs = append(consentIDs, old.ConsentID)
		for _, m := range old.MappingsInStatus(models.MappingStatusActive) {
			mappingIDs = append(mappingIDs, m.MappingID)
		}

		updated := old.Consent
		updated.CurrentStatus = revokedStatus
		updated.UpdatedTime = now
		change := stateChange{
			consent:        updated,
			previousStatus: old.CurrentStatus,
			reason:         "Revoked existing applicable consent",
			actionBy:       userID,
		}
		if err := s.storeAuditRecord(ctx, tx, change, now); err != nil {
			return wrapDataError("failed to store revocation audit record", err)
		}
		changes = append(changes, change)
	}

	if err := s.consentDAO.BulkUpdateStatus(ctx, tx, consentIDs, revokedStatus, now); err != nil {
		return wrapDataError("failed to revoke applicable consents", err)
	}
	if err := s.mappingDAO.UpdateStatusByIDs(ctx, tx, mappingIDs, models.MappingStatusInactive); err != nil {
		return wrapDataError("failed to deactivate consent mappings", err)
	}

	if err := tx.Commit(); err != nil {
		return NewInternalError("failed to commit bulk revocation", err)
	}

	s.logger.WithFields(logrus.Fields{
		"clientID":     clientID,
		"consentType":  consentType,
		"revokedCount": len(consentIDs),
	}).Info("Applicable consents revoked")

	for _, id := range consentIDs {
		s.cache.Invalidate(ctx, id)
	}
	s.notifyStateChanges(ctx, changes...)

	if shouldRevokeTokens {
		for _, id := range consentIDs {
			if err := s.revoker.RevokeTokens(ctx, id, clientID, userID); err != nil {
				s.logger.WithError(err).WithField("consentID", id).Error("Token revocation failed after bulk consent revocation")
				return NewInternalError("consents revoked but token revocation failed", err)
			}
		}
	}
	return nil
}
