package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-core-service/internal/database"
	"github.com/wso2/consent-core-service/internal/models"
	"github.com/wso2/consent-core-service/pkg/utils"
)

// reconcileAccounts applies the caller-supplied desired account/permission
// map against the active mappings of one authorization: active mappings for
// accounts no longer desired are deactivated, desired accounts without an
// active mapping get new active rows. Mappings for accounts present in both
// sets are left untouched.
func (s *ConsentService) reconcileAccounts(ctx context.Context, tx *database.Transaction, authID string, existing []models.ConsentMappingResource, desired map[string][]string) error {
	existingActive := make(map[string]bool)
	var deactivateIDs []string
	for _, m := range existing {
		if m.AuthID != authID || m.MappingStatus != models.MappingStatusActive {
			continue
		}
		if _, wanted := desired[m.AccountID]; wanted {
			existingActive[m.AccountID] = true
		} else {
			deactivateIDs = append(deactivateIDs, m.MappingID)
		}
	}

	toAdd := make(map[string][]string)
	for accountID, permissions := range desired {
		if !existingActive[accountID] {
			toAdd[accountID] = permissions
		}
	}

	if err := s.mappingDAO.UpdateStatusByIDs(ctx, tx, deactivateIDs, models.MappingStatusInactive); err != nil {
		return wrapDataError("failed to deactivate removed account mappings", err)
	}
	if err := s.mappingDAO.Store(ctx, tx, buildMappings(authID, toAdd)); err != nil {
		return wrapDataError("failed to store added account mappings", err)
	}
	return nil
}

// ReauthorizeExistingAuthResource reconciles the desired account/permission
// map against an authorization's active mappings and optionally transitions
// the consent status, all in one transaction
func (s *ConsentService) ReauthorizeExistingAuthResource(ctx context.Context, consentID, authID string, req *models.ReauthorizeRequest) (*models.DetailedConsentResource, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if err := utils.ValidateAuthID(authID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if len(req.AccountIDsWithPermissions) == 0 {
		return nil, NewPreconditionError("account ids with permissions must not be empty")
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
	auth := findAuthorization(oldDetailed, authID)
	if auth == nil {
		return nil, NewNotFoundError("authorization does not belong to the given consent", nil)
	}

	now := utils.GetCurrentTimestamp()
	if err := s.reconcileAccounts(ctx, tx, authID, oldDetailed.Mappings, req.AccountIDsWithPermissions); err != nil {
		return nil, err
	}

	if req.UserID != "" && (auth.UserID == nil || *auth.UserID != req.UserID) {
		if err := s.authDAO.UpdateUser(ctx, tx, authID, req.UserID, now); err != nil {
			return nil, wrapDataError("failed to bind user to authorization", err)
		}
	}

	change, err := s.applyConsentStatus(ctx, tx, &oldDetailed.Consent, req.NewStatus, "Consent re-authorized", req.UserID, now)
	if err != nil {
		return nil, err
	}

	newDetailed, err := s.consentDAO.GetDetailed(ctx, tx, consentID)
	if err != nil {
		return nil, wrapDataError("failed to retrieve detailed consent", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, NewInternalError("failed to commit re-authorization", err)
	}

	s.logger.WithFields(logrus.Fields{
		"consentID": consentID,
		"authID":    authID,
	}).Info("Consent re-authorized")

	s.cache.Invalidate(ctx, consentID)
	if change != nil {
		s.notifyStateChanges(ctx, *change)
	}
	return newDetailed, nil
}

// ReauthorizeWithNewAuthResource retires the existing authorization, creates
// a fresh one, and re-parents the account delta onto it: previously active
// mappings are deactivated, and every desired account gets a new active
// mapping under the fresh authorization
func (s *ConsentService) ReauthorizeWithNewAuthResource(ctx context.Context, consentID, authID string, req *models.ReauthorizeRequest) (*models.DetailedConsentResource, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if err := utils.ValidateAuthID(authID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if len(req.AccountIDsWithPermissions) == 0 {
		return nil, NewPreconditionError("account ids with permissions must not be empty")
	}
	if err := utils.ValidateRequired("new auth status", req.NewAuthStatus); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("new auth type", req.NewAuthType); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	existingAuthStatus := req.ExistingAuthStatus
	if existingAuthStatus == "" {
		existingAuthStatus = models.AuthStatusInactive
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
	oldAuth := findAuthorization(oldDetailed, authID)
	if oldAuth == nil {
		return nil, NewNotFoundError("authorization does not belong to the given consent", nil)
	}

	now := utils.GetCurrentTimestamp()
	if err := s.authDAO.UpdateStatus(ctx, tx, authID, existingAuthStatus, now); err != nil {
		return nil, wrapDataError("failed to retire existing authorization", err)
	}

	var userID *string
	if req.UserID != "" {
		u := req.UserID
		userID = &u
	} else {
		userID = oldAuth.UserID
	}
	newAuth := &models.AuthorizationResource{
		ConsentID:  consentID,
		AuthType:   req.NewAuthType,
		AuthStatus: req.NewAuthStatus,
		UserID:     userID,
	}
	if err := s.authDAO.Store(ctx, tx, newAuth); err != nil {
		return nil, wrapDataError("failed to store new authorization", err)
	}

	// Re-parenting: the old rows are deactivated in place and the desired
	// set is re-created under the fresh authorization.
	var oldActiveIDs []string
	for _, m := range oldDetailed.Mappings {
		if m.AuthID == authID && m.MappingStatus == models.MappingStatusActive {
			oldActiveIDs = append(oldActiveIDs, m.MappingID)
		}
	}
	if err := s.mappingDAO.UpdateStatusByIDs(ctx, tx, oldActiveIDs, models.MappingStatusInactive); err != nil {
		return nil, wrapDataError("failed to deactivate re-parented mappings", err)
	}
	if err := s.mappingDAO.Store(ctx, tx, buildMappings(newAuth.AuthID, req.AccountIDsWithPermissions)); err != nil {
		return nil, wrapDataError("failed to store re-parented mappings", err)
	}

	change, err := s.applyConsentStatus(ctx, tx, &oldDetailed.Consent, req.NewStatus, "Consent re-authorized with new authorization", req.UserID, now)
	if err != nil {
		return nil, err
	}

	newDetailed, err := s.consentDAO.GetDetailed(ctx, tx, consentID)
	if err != nil {
		return nil, wrapDataError("failed to retrieve detailed consent", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, NewInternalError("failed to commit re-authorization", err)
	}

	s.logger.WithFields(logrus.Fields{
		"consentID": consentID,
		"oldAuthID": authID,
		"newAuthID": newAuth.AuthID,
	}).Info("Consent re-authorized with new authorization")

	s.cache.Invalidate(ctx, consentID)
	if change != nil {
		s.notifyStateChanges(ctx, *change)
	}
	return newDetailed, nil
}

// applyConsentStatus transitions the consent status with its audit record
// when a new status is requested; a no-op otherwise
func (s *ConsentService) applyConsentStatus(ctx context.Context, tx *database.Transaction, consent *models.Consent, newStatus, reason, actionBy string, now int64) (*stateChange, error) {
	if newStatus == "" || newStatus == consent.CurrentStatus {
		return nil, nil
	}
	if err := s.consentDAO.UpdateStatus(ctx, tx, consent.ConsentID, newStatus, now); err != nil {
		return nil, wrapDataError("failed to update consent status", err)
	}

	updated := *consent
	previousStatus := updated.CurrentStatus
	updated.CurrentStatus = newStatus
	updated.UpdatedTime = now
	change := stateChange{consent: updated, previousStatus: previousStatus, reason: reason, actionBy: actionBy}
	if err := s.storeAuditRecord(ctx, tx, change, now); err != nil {
		return nil, wrapDataError("failed to store status audit record", err)
	}
	return &change, nil
}

// findAuthorization returns the authorization with the given ID from the
// aggregate, or nil
func findAuthorization(detailed *models.DetailedConsentResource, authID string) *models.AuthorizationResource {
	for i := range detailed.Authorizations {
		if detailed.Authorizations[i].AuthID == authID {
			return &detailed.Authorizations[i]
		}
	}
	return nil
}
