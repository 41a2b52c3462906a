package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-core-service/internal/cache"
	"github.com/wso2/consent-core-service/internal/config"
	"github.com/wso2/consent-core-service/internal/dao"
	"github.com/wso2/consent-core-service/internal/database"
	"github.com/wso2/consent-core-service/internal/models"
	"github.com/wso2/consent-core-service/internal/notifier"
	"github.com/wso2/consent-core-service/internal/revocation"
	"github.com/wso2/consent-core-service/pkg/utils"
)

// ConsentService orchestrates the consent lifecycle. Every mutating
// operation runs as one transaction: preconditions are checked before the
// transaction is acquired, the consent row is locked first, dependent writes
// follow, the audit record is written inside the transaction, and the
// notifier and cache are touched only after commit.
type ConsentService struct {
	provider     *database.Provider
	consentDAO   *dao.ConsentDAO
	authDAO      *dao.AuthResourceDAO
	mappingDAO   *dao.ConsentMappingDAO
	attributeDAO *dao.ConsentAttributeDAO
	auditDAO     *dao.StatusAuditDAO
	historyDAO   *dao.AmendmentHistoryDAO
	notifier     notifier.StateChangeNotifier
	revoker      revocation.TokenRevoker
	cache        cache.DetailedConsentCache
	config       *config.Config
	logger       *logrus.Logger
}

// NewConsentService creates a consent service with explicit collaborators
func NewConsentService(
	provider *database.Provider,
	stateNotifier notifier.StateChangeNotifier,
	tokenRevoker revocation.TokenRevoker,
	consentCache cache.DetailedConsentCache,
	cfg *config.Config,
	logger *logrus.Logger,
) *ConsentService {
	return &ConsentService{
		provider:     provider,
		consentDAO:   dao.NewConsentDAO(),
		authDAO:      dao.NewAuthResourceDAO(),
		mappingDAO:   dao.NewConsentMappingDAO(),
		attributeDAO: dao.NewConsentAttributeDAO(),
		auditDAO:     dao.NewStatusAuditDAO(),
		historyDAO:   dao.NewAmendmentHistoryDAO(),
		notifier:     stateNotifier,
		revoker:      tokenRevoker,
		cache:        consentCache,
		config:       cfg,
		logger:       logger,
	}
}

// stateChange captures one accepted status transition for the post-commit
// notifier call
type stateChange struct {
	consent        models.Consent
	previousStatus string
	reason         string
	actionBy       string
}

// storeAuditRecord writes the audit row for one accepted transition inside
// the active transaction
func (s *ConsentService) storeAuditRecord(ctx context.Context, tx *database.Transaction, change stateChange, actionTime int64) error {
	record := &models.ConsentStatusAuditRecord{
		ConsentID:     change.consent.ConsentID,
		CurrentStatus: change.consent.CurrentStatus,
		ActionTime:    actionTime,
		Reason:        change.reason,
	}
	if change.actionBy != "" {
		actionBy := change.actionBy
		record.ActionBy = &actionBy
	}
	if change.previousStatus != "" {
		previous := change.previousStatus
		record.PreviousStatus = &previous
	}
	return s.auditDAO.Store(ctx, tx, record)
}

// notifyStateChanges publishes one event per committed transition. Publish
// failures are logged, never surfaced; the transaction is already durable.
func (s *ConsentService) notifyStateChanges(ctx context.Context, changes ...stateChange) {
	for _, change := range changes {
		event := notifier.StateChangeEvent{
			ConsentID:      change.consent.ConsentID,
			ClientID:       change.consent.ClientID,
			ConsentType:    change.consent.ConsentType,
			PreviousStatus: change.previousStatus,
			CurrentStatus:  change.consent.CurrentStatus,
			Reason:         change.reason,
			ActionBy:       change.actionBy,
			Timestamp:      utils.GetCurrentTimestamp(),
		}
		if err := s.notifier.NotifyStateChange(ctx, event); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"consentID":     change.consent.ConsentID,
				"currentStatus": change.consent.CurrentStatus,
			}).Error("Failed to publish consent state-change event")
		}
	}
}

func validateCreateRequest(req *models.ConsentCreateRequest) error {
	if err := utils.ValidateClientID(req.ClientID); err != nil {
		return NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("receipt", req.Receipt); err != nil {
		return NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("consent type", req.ConsentType); err != nil {
		return NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("current status", req.CurrentStatus); err != nil {
		return NewPreconditionError(err.Error())
	}
	if req.ImplicitAuth {
		if err := utils.ValidateRequired("auth status", req.AuthStatus); err != nil {
			return NewPreconditionError(err.Error())
		}
		if err := utils.ValidateRequired("auth type", req.AuthType); err != nil {
			return NewPreconditionError(err.Error())
		}
	}
	return nil
}

// CreateConsent creates a consent, its attributes, an optional implicit
// authorization and the creation audit record, all in one transaction
func (s *ConsentService) CreateConsent(ctx context.Context, req *models.ConsentCreateRequest) (*models.DetailedConsentResource, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	detailed, err := s.createConsentInTx(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, NewInternalError("failed to commit consent creation", err)
	}

	s.logger.WithFields(logrus.Fields{
		"consentID":   detailed.ConsentID,
		"clientID":    detailed.ClientID,
		"consentType": detailed.ConsentType,
	}).Info("Consent created")

	actionBy := ""
	if req.UserID != nil {
		actionBy = *req.UserID
	}
	s.notifyStateChanges(ctx, stateChange{
		consent:  detailed.Consent,
		reason:   "Consent created",
		actionBy: actionBy,
	})
	return detailed, nil
}

// createConsentInTx performs the creation writes on an already-open
// transaction, so exclusive creation can reuse it
func (s *ConsentService) createConsentInTx(ctx context.Context, tx *database.Transaction, req *models.ConsentCreateRequest) (*models.DetailedConsentResource, error) {
	consent := &models.Consent{
		Receipt:            req.Receipt,
		ClientID:           req.ClientID,
		ConsentType:        req.ConsentType,
		CurrentStatus:      req.CurrentStatus,
		ConsentFrequency:   req.ConsentFrequency,
		ValidityPeriod:     req.ValidityPeriod,
		RecurringIndicator: req.RecurringIndicator,
	}
	if err := s.consentDAO.Store(ctx, tx, consent); err != nil {
		return nil, wrapDataError("failed to store consent", err)
	}

	if err := s.attributeDAO.Store(ctx, tx, consent.ConsentID, req.Attributes); err != nil {
		return nil, wrapDataError("failed to store consent attributes", err)
	}

	detailed := &models.DetailedConsentResource{
		Consent:    *consent,
		Attributes: req.Attributes,
	}
	if detailed.Attributes == nil {
		detailed.Attributes = map[string]string{}
	}

	if req.ImplicitAuth {
		auth := &models.AuthorizationResource{
			ConsentID:  consent.ConsentID,
			AuthType:   req.AuthType,
			AuthStatus: req.AuthStatus,
			UserID:     req.UserID,
		}
		if err := s.authDAO.Store(ctx, tx, auth); err != nil {
			return nil, wrapDataError("failed to store implicit authorization", err)
		}
		detailed.Authorizations = append(detailed.Authorizations, *auth)
	}

	actionBy := ""
	if req.UserID != nil {
		actionBy = *req.UserID
	}
	change := stateChange{consent: *consent, reason: "Consent created", actionBy: actionBy}
	if err := s.storeAuditRecord(ctx, tx, change, consent.CreatedTime); err != nil {
		return nil, wrapDataError("failed to store creation audit record", err)
	}
	return detailed, nil
}

// CreateExclusiveConsent retires every existing consent of the same
// (client, user, type) in the applicable status, deactivating their
// mappings, then creates the new consent — all in one transaction
func (s *ConsentService) CreateExclusiveConsent(ctx context.Context, req *models.ExclusiveConsentRequest) (*models.DetailedConsentResource, error) {
	if err := validateCreateRequest(&req.ConsentCreateRequest); err != nil {
		return nil, err
	}
	if req.UserID == nil || *req.UserID == "" {
		return nil, NewPreconditionError("user id is required for exclusive consent creation")
	}
	if err := utils.ValidateRequired("applicable existing status", req.ApplicableExistingStatus); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("new existing consent status", req.NewExistingConsentStatus); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("existing revocation reason", req.ExistingRevocationReason); err != nil {
		return nil, NewPreconditionError(err.Error())
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	existing, _, err := s.consentDAO.SearchDetailed(ctx, tx, models.ConsentSearchParams{
		ClientIDs:       []string{req.ClientID},
		UserIDs:         []string{*req.UserID},
		ConsentTypes:    []string{req.ConsentType},
		ConsentStatuses: []string{req.ApplicableExistingStatus},
	})
	if err != nil {
		return nil, wrapDataError("failed to search applicable existing consents", err)
	}

	now := utils.GetCurrentTimestamp()
	retired := make([]stateChange, 0, len(existing))
	var retiredIDs []string
	var mappingIDs []string
	for _, old := range existing {
		retiredIDs = append(retiredIDs, old.ConsentID)
		for _, m := range old.MappingsInStatus(models.MappingStatusActive) {
			mappingIDs = append(mappingIDs, m.MappingID)
		}

		updated := old.Consent
		updated.CurrentStatus = req.NewExistingConsentStatus
		updated.UpdatedTime = now
		change := stateChange{
			consent:        updated,
			previousStatus: old.CurrentStatus,
			reason:         req.ExistingRevocationReason,
			actionBy:       *req.UserID,
		}
		if err := s.storeAuditRecord(ctx, tx, change, now); err != nil {
			return nil, wrapDataError("failed to store retirement audit record", err)
		}
		retired = append(retired, change)
	}

	if err := s.consentDAO.BulkUpdateStatus(ctx, tx, retiredIDs, req.NewExistingConsentStatus, now); err != nil {
		return nil, wrapDataError("failed to retire existing consents", err)
	}
	if err := s.mappingDAO.UpdateStatusByIDs(ctx, tx, mappingIDs, models.MappingStatusInactive); err != nil {
		return nil, wrapDataError("failed to deactivate mappings of retired consents", err)
	}

	detailed, err := s.createConsentInTx(ctx, tx, &req.ConsentCreateRequest)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, NewInternalError("failed to commit exclusive consent creation", err)
	}

	s.logger.WithFields(logrus.Fields{
		"consentID":    detailed.ConsentID,
		"retiredCount": len(retiredIDs),
	}).Info("Exclusive consent created")

	for _, id := range retiredIDs {
		s.cache.Invalidate(ctx, id)
	}
	changes := append(retired, stateChange{
		consent:  detailed.Consent,
		reason:   "Consent created",
		actionBy: *req.UserID,
	})
	s.notifyStateChanges(ctx, changes...)
	return detailed, nil
}

// GetConsent retrieves a consent row by ID
func (s *ConsentService) GetConsent(ctx context.Context, consentID string) (*models.Consent, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	consent, err := s.consentDAO.Get(ctx, tx, consentID)
	if err != nil {
		return nil, wrapDataError("failed to retrieve consent", err)
	}
	return consent, nil
}

// GetDetailedConsent retrieves the full consent aggregate, serving from the
// read cache when possible
func (s *ConsentService) GetDetailedConsent(ctx context.Context, consentID string) (*models.DetailedConsentResource, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}

	if detailed, ok := s.cache.Get(ctx, consentID); ok {
		return detailed, nil
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	detailed, err := s.consentDAO.GetDetailed(ctx, tx, consentID)
	if err != nil {
		return nil, wrapDataError("failed to retrieve detailed consent", err)
	}

	s.cache.Set(ctx, detailed)
	return detailed, nil
}

// UpdateConsentStatus transitions a consent to a new status, writing the
// audit record in the same transaction
func (s *ConsentService) UpdateConsentStatus(ctx context.Context, consentID, newStatus, reason, actionBy string) (*models.Consent, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("new status", newStatus); err != nil {
		return nil, NewPreconditionError(err.Error())
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	consent, err := s.consentDAO.GetForUpdate(ctx, tx, consentID)
	if err != nil {
		return nil, wrapDataError("failed to retrieve consent", err)
	}

	now := utils.GetCurrentTimestamp()
	if err := s.consentDAO.UpdateStatus(ctx, tx, consentID, newStatus, now); err != nil {
		return nil, wrapDataError("failed to update consent status", err)
	}

	previousStatus := consent.CurrentStatus
	consent.CurrentStatus = newStatus
	consent.UpdatedTime = now
	change := stateChange{consent: *consent, previousStatus: previousStatus, reason: reason, actionBy: actionBy}
	if err := s.storeAuditRecord(ctx, tx, change, now); err != nil {
		return nil, wrapDataError("failed to store status audit record", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, NewInternalError("failed to commit status update", err)
	}

	s.cache.Invalidate(ctx, consentID)
	s.notifyStateChanges(ctx, change)
	return consent, nil
}

// CreateConsentAuthorization attaches a new authorization to an existing
// consent
func (s *ConsentService) CreateConsentAuthorization(ctx context.Context, auth *models.AuthorizationResource) (*models.AuthorizationResource, error) {
	if err := utils.ValidateConsentID(auth.ConsentID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("auth type", auth.AuthType); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("auth status", auth.AuthStatus); err != nil {
		return nil, NewPreconditionError(err.Error())
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := s.consentDAO.GetForUpdate(ctx, tx, auth.ConsentID); err != nil {
		return nil, wrapDataError("failed to retrieve consent", err)
	}
	if err := s.authDAO.Store(ctx, tx, auth); err != nil {
		return nil, wrapDataError("failed to store authorization", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, NewInternalError("failed to commit authorization creation", err)
	}

	s.cache.Invalidate(ctx, auth.ConsentID)
	return auth, nil
}

// GetAuthorizationResource retrieves an authorization by ID
func (s *ConsentService) GetAuthorizationResource(ctx context.Context, authID string) (*models.AuthorizationResource, error) {
	if err := utils.ValidateAuthID(authID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	auth, err := s.authDAO.Get(ctx, tx, authID)
	if err != nil {
		return nil, wrapDataError("failed to retrieve authorization", err)
	}
	return auth, nil
}

// UpdateAuthorizationStatus moves an authorization to a new status
func (s *ConsentService) UpdateAuthorizationStatus(ctx context.Context, authID, newStatus string) (*models.AuthorizationResource, error) {
	if err := utils.ValidateAuthID(authID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("new status", newStatus); err != nil {
		return nil, NewPreconditionError(err.Error())
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	auth, err := s.authDAO.Get(ctx, tx, authID)
	if err != nil {
		return nil, wrapDataError("failed to retrieve authorization", err)
	}
	if _, err := s.consentDAO.GetForUpdate(ctx, tx, auth.ConsentID); err != nil {
		return nil, wrapDataError("failed to retrieve consent", err)
	}

	now := utils.GetCurrentTimestamp()
	if err := s.authDAO.UpdateStatus(ctx, tx, authID, newStatus, now); err != nil {
		return nil, wrapDataError("failed to update authorization status", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, NewInternalError("failed to commit authorization status update", err)
	}

	auth.AuthStatus = newStatus
	auth.UpdatedTime = now
	s.cache.Invalidate(ctx, auth.ConsentID)
	return auth, nil
}

// UpdateAuthorizationUser binds a user to an authorization
func (s *ConsentService) UpdateAuthorizationUser(ctx context.Context, authID, userID string) (*models.AuthorizationResource, error) {
	if err := utils.ValidateAuthID(authID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("user id", userID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	auth, err := s.authDAO.Get(ctx, tx, authID)
	if err != nil {
		return nil, wrapDataError("failed to retrieve authorization", err)
	}
	if _, err := s.consentDAO.GetForUpdate(ctx, tx, auth.ConsentID); err != nil {
		return nil, wrapDataError("failed to retrieve consent", err)
	}

	now := utils.GetCurrentTimestamp()
	if err := s.authDAO.UpdateUser(ctx, tx, authID, userID, now); err != nil {
		return nil, wrapDataError("failed to update authorization user", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, NewInternalError("failed to commit authorization user update", err)
	}

	auth.UserID = &userID
	auth.UpdatedTime = now
	s.cache.Invalidate(ctx, auth.ConsentID)
	return auth, nil
}

// BindUserAccountsToConsent binds a user to an authorization, creates active
// mappings for the supplied account/permission map, and moves the
// authorization and consent to their post-binding statuses
func (s *ConsentService) BindUserAccountsToConsent(ctx context.Context, consentID, authID, userID string, accountIDsWithPermissions map[string][]string, newAuthStatus, newConsentStatus string) (*models.DetailedConsentResource, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if err := utils.ValidateAuthID(authID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("user id", userID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if len(accountIDsWithPermissions) == 0 {
		return nil, NewPreconditionError("account ids with permissions must not be empty")
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	consent, err := s.consentDAO.GetForUpdate(ctx, tx, consentID)
	if err != nil {
		return nil, wrapDataError("failed to retrieve consent", err)
	}
	auth, err := s.authDAO.Get(ctx, tx, authID)
	if err != nil {
		return nil, wrapDataError("failed to retrieve authorization", err)
	}
	if auth.ConsentID != consentID {
		return nil, NewConflictError("authorization does not belong to the given consent")
	}

	now := utils.GetCurrentTimestamp()
	if err := s.authDAO.UpdateUser(ctx, tx, authID, userID, now); err != nil {
		return nil, wrapDataError("failed to bind user to authorization", err)
	}
	if newAuthStatus != "" {
		if err := s.authDAO.UpdateStatus(ctx, tx, authID, newAuthStatus, now); err != nil {
			return nil, wrapDataError("failed to update authorization status", err)
		}
	}

	mappings := buildMappings(authID, accountIDsWithPermissions)
	if err := s.mappingDAO.Store(ctx, tx, mappings); err != nil {
		return nil, wrapDataError("failed to store account mappings", err)
	}

	var change *stateChange
	if newConsentStatus != "" {
		if err := s.consentDAO.UpdateStatus(ctx, tx, consentID, newConsentStatus, now); err != nil {
			return nil, wrapDataError("failed to update consent status", err)
		}
		previousStatus := consent.CurrentStatus
		consent.CurrentStatus = newConsentStatus
		consent.UpdatedTime = now
		c := stateChange{consent: *consent, previousStatus: previousStatus, reason: "User accounts bound to consent", actionBy: userID}
		if err := s.storeAuditRecord(ctx, tx, c, now); err != nil {
			return nil, wrapDataError("failed to store binding audit record", err)
		}
		change = &c
	}

	detailed, err := s.consentDAO.GetDetailed(ctx, tx, consentID)
	if err != nil {
		return nil, wrapDataError("failed to retrieve detailed consent", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, NewInternalError("failed to commit user account binding", err)
	}

	s.cache.Invalidate(ctx, consentID)
	if change != nil {
		s.notifyStateChanges(ctx, *change)
	}
	return detailed, nil
}

// SearchConsents retrieves consent rows matching the optional filters plus
// the total match count
func (s *ConsentService) SearchConsents(ctx context.Context, params models.ConsentSearchParams) ([]models.Consent, int, error) {
	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, 0, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	consents, total, err := s.consentDAO.Search(ctx, tx, params)
	if err != nil {
		return nil, 0, wrapDataError("failed to search consents", err)
	}
	return consents, total, nil
}

// SearchDetailedConsents retrieves matching consents as full aggregates.
// With useRetention set the search runs against the archival store instead
// of the live store.
func (s *ConsentService) SearchDetailedConsents(ctx context.Context, params models.ConsentSearchParams, useRetention bool) ([]*models.DetailedConsentResource, int, error) {
	tx, err := s.provider.BeginTx(ctx, useRetention)
	if err != nil {
		return nil, 0, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	detailed, total, err := s.consentDAO.SearchDetailed(ctx, tx, params)
	if err != nil {
		return nil, 0, wrapDataError("failed to search detailed consents", err)
	}
	return detailed, total, nil
}

// StoreConsentAttributes adds the given attributes to a consent
func (s *ConsentService) StoreConsentAttributes(ctx context.Context, consentID string, attributes map[string]string) error {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return NewPreconditionError(err.Error())
	}
	if len(attributes) == 0 {
		return NewPreconditionError("attributes must not be empty")
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := s.consentDAO.GetForUpdate(ctx, tx, consentID); err != nil {
		return wrapDataError("failed to retrieve consent", err)
	}
	if err := s.attributeDAO.Store(ctx, tx, consentID, attributes); err != nil {
		return wrapDataError("failed to store consent attributes", err)
	}

	if err := tx.Commit(); err != nil {
		return NewInternalError("failed to commit attribute store", err)
	}

	s.cache.Invalidate(ctx, consentID)
	return nil
}

// GetConsentAttributes retrieves all attributes of a consent
func (s *ConsentService) GetConsentAttributes(ctx context.Context, consentID string) (*models.ConsentAttributes, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	attributes, err := s.attributeDAO.GetByConsentID(ctx, tx, consentID)
	if err != nil {
		return nil, wrapDataError("failed to retrieve consent attributes", err)
	}
	return &models.ConsentAttributes{ConsentID: consentID, Attributes: attributes}, nil
}

// GetConsentAttributesByName retrieves the subset of a consent's attributes
// matching the given keys
func (s *ConsentService) GetConsentAttributesByName(ctx context.Context, consentID string, keys []string) (*models.ConsentAttributes, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if len(keys) == 0 {
		return nil, NewPreconditionError("attribute keys must not be empty")
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	attributes, err := s.attributeDAO.GetByName(ctx, tx, consentID, keys)
	if err != nil {
		return nil, wrapDataError("failed to retrieve consent attributes", err)
	}
	return &models.ConsentAttributes{ConsentID: consentID, Attributes: attributes}, nil
}

// GetConsentIDsByAttributeNameAndValue returns the IDs of every consent
// carrying the given attribute key/value pair
func (s *ConsentService) GetConsentIDsByAttributeNameAndValue(ctx context.Context, key, value string) ([]string, error) {
	if err := utils.ValidateRequired("attribute key", key); err != nil {
		return nil, NewPreconditionError(err.Error())
	}
	if err := utils.ValidateRequired("attribute value", value); err != nil {
		return nil, NewPreconditionError(err.Error())
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	ids, err := s.attributeDAO.FindConsentIDsByNameAndValue(ctx, tx, key, value)
	if err != nil {
		return nil, wrapDataError("failed to look up consents by attribute", err)
	}
	return ids, nil
}

// DeleteConsentAttributes removes the listed attribute keys from a consent
func (s *ConsentService) DeleteConsentAttributes(ctx context.Context, consentID string, keys []string) error {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return NewPreconditionError(err.Error())
	}
	if len(keys) == 0 {
		return NewPreconditionError("attribute keys must not be empty")
	}

	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := s.consentDAO.GetForUpdate(ctx, tx, consentID); err != nil {
		return wrapDataError("failed to retrieve consent", err)
	}
	if err := s.attributeDAO.DeleteByKeys(ctx, tx, consentID, keys); err != nil {
		return wrapDataError("failed to delete consent attributes", err)
	}

	if err := tx.Commit(); err != nil {
		return NewInternalError("failed to commit attribute deletion", err)
	}

	s.cache.Invalidate(ctx, consentID)
	return nil
}

// SearchStatusAuditRecords retrieves audit records matching the filters
func (s *ConsentService) SearchStatusAuditRecords(ctx context.Context, params models.StatusAuditSearchParams) ([]models.ConsentStatusAuditRecord, error) {
	tx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return nil, NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	records, err := s.auditDAO.Search(ctx, tx, params)
	if err != nil {
		return nil, wrapDataError("failed to search status audit records", err)
	}
	return records, nil
}

// buildMappings expands an account/permission map into active mapping rows,
// one per (account, permission) pair
func buildMappings(authID string, accountIDsWithPermissions map[string][]string) []models.ConsentMappingResource {
	var mappings []models.ConsentMappingResource
	for accountID, permissions := range accountIDsWithPermissions {
		for _, permission := range permissions {
			mappings = append(mappings, models.ConsentMappingResource{
				AuthID:        authID,
				AccountID:     accountID,
				Permission:    permission,
				MappingStatus: models.MappingStatusActive,
			})
		}
	}
	return mappings
}
