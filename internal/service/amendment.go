package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-core-service/internal/models"
	"github.com/wso2/consent-core-service/pkg/utils"
)

// AmendDetailedConsent amends a consent in one transaction: receipt/validity
// update, mapping reconciliation against the amended authorization,
// full-replace of the attribute set, transition to the amended status, and
// the amendment-history diff between the pre- and post-amendment aggregates.
func (s *ConsentService) AmendDetailedConsent(ctx context.Context, consentID string, req *models.ConsentAmendmentRequest) (*models.DetailedConsentResource, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if err := utils.ValidateAuthID(req.AuthID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if req.Receipt == nil && req.ValidityPeriod == nil && req.AccountIDsWithPermissions == nil &&
		req.Attributes == nil && len(req.NewAuthResources) == 0 {
		return nil, NewPreconditionError("amendment request carries no changes")
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
	auth := findAuthorization(oldDetailed, req.AuthID)
	if auth == nil {
		return nil, NewNotFoundError("authorization does not belong to the given consent", nil)
	}

	now := utils.GetCurrentTimestamp()
	if req.Receipt != nil || req.ValidityPeriod != nil {
		if err := s.consentDAO.UpdateAmendedData(ctx, tx, consentID, req.Receipt, req.ValidityPeriod, now); err != nil {
			return nil, wrapDataError("failed to update amended consent data", err)
		}
	}

	if req.AccountIDsWithPermissions != nil {
		if err := s.reconcileAccounts(ctx, tx, req.AuthID, oldDetailed.Mappings, req.AccountIDsWithPermissions); err != nil {
			return nil, err
		}
	}

	if req.UserID != "" && (auth.UserID == nil || *auth.UserID != req.UserID) {
		if err := s.authDAO.UpdateUser(ctx, tx, req.AuthID, req.UserID, now); err != nil {
			return nil, wrapDataError("failed to bind user to authorization", err)
		}
	}

	for i := range req.NewAuthResources {
		bulk := &req.NewAuthResources[i]
		bulk.Authorization.ConsentID = consentID
		if err := s.authDAO.Store(ctx, tx, &bulk.Authorization); err != nil {
			return nil, wrapDataError("failed to store new authorization", err)
		}
		for j := range bulk.Mappings {
			bulk.Mappings[j].AuthID = bulk.Authorization.AuthID
		}
		if err := s.mappingDAO.Store(ctx, tx, bulk.Mappings); err != nil {
			return nil, wrapDataError("failed to store new authorization mappings", err)
		}
	}

	// Attribute amendment is a full replace, not a merge.
	if req.Attributes != nil {
		if err := s.attributeDAO.DeleteAll(ctx, tx, consentID); err != nil {
			return nil, wrapDataError("failed to clear consent attributes", err)
		}
		if err := s.attributeDAO.Store(ctx, tx, consentID, req.Attributes); err != nil {
			return nil, wrapDataError("failed to store amended consent attributes", err)
		}
	}

	newStatus := req.NewStatus
	if newStatus == "" {
		newStatus = s.config.Consent.StatusMappings.AmendedStatus
	}
	reason := req.Reason
	if reason == "" {
		reason = "Consent amended"
	}
	change, err := s.applyConsentStatus(ctx, tx, &oldDetailed.Consent, newStatus, reason, req.UserID, now)
	if err != nil {
		return nil, err
	}

	newDetailed, err := s.consentDAO.GetDetailed(ctx, tx, consentID)
	if err != nil {
		return nil, wrapDataError("failed to retrieve amended detailed consent", err)
	}

	historyID := utils.GenerateHistoryID()
	if err := s.storeAmendmentHistory(ctx, tx, historyID, now, oldDetailed, newDetailed, reason); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, NewInternalError("failed to commit consent amendment", err)
	}

	s.logger.WithFields(logrus.Fields{
		"consentID": consentID,
		"historyID": historyID,
	}).Info("Consent amended")

	s.cache.Invalidate(ctx, consentID)
	if change != nil {
		s.notifyStateChanges(ctx, *change)
	}
	return newDetailed, nil
}

// AmendDetailedConsentWithBulkAuthResources amends a consent and inserts the
// supplied brand-new authorization grants verbatim in the same transaction
func (s *ConsentService) AmendDetailedConsentWithBulkAuthResources(ctx context.Context, consentID string, req *models.ConsentAmendmentRequest, newAuthResources []models.BulkAuthResource) (*models.DetailedConsentResource, error) {
	if len(newAuthResources) == 0 {
		return nil, NewPreconditionError("new auth resources must not be empty")
	}
	amended := *req
	amended.NewAuthResources = newAuthResources
	return s.AmendDetailedConsent(ctx, consentID, &amended)
}
