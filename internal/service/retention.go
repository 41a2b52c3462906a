package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-core-service/internal/database"
	"github.com/wso2/consent-core-service/internal/models"
)

// SyncRetentionStore copies every consent in a terminal status, together
// with its audit trail and amendment history, into the retention store. The
// live store is only read. Each consent is isolated behind a savepoint on
// the retention transaction: a write failure rolls back that consent's
// savepoint and the loop continues; retrieval failures from the live store
// are logged and the record skipped. Returns the number of consents copied.
func (s *ConsentService) SyncRetentionStore(ctx context.Context) (int, error) {
	if !s.config.Database.IsRetentionConfigured() {
		return 0, NewPreconditionError("retention store is not configured")
	}

	statuses := []string{s.config.Consent.StatusMappings.RevokedStatus}
	if expired := s.config.Consent.StatusMappings.ExpiredStatus; expired != "" {
		statuses = append(statuses, expired)
	}

	liveTx, err := s.provider.BeginTx(ctx, false)
	if err != nil {
		return 0, NewInternalError("failed to begin live-store transaction", err)
	}
	defer liveTx.Rollback()

	consentIDs, err := s.consentDAO.GetIDsByStatuses(ctx, liveTx, statuses)
	if err != nil {
		return 0, wrapDataError("failed to list terminal consents", err)
	}
	if len(consentIDs) == 0 {
		return 0, nil
	}

	retentionTx, err := s.provider.BeginTx(ctx, true)
	if err != nil {
		return 0, NewInternalError("failed to begin retention-store transaction", err)
	}
	defer retentionTx.Rollback()

	copied := 0
	for i, consentID := range consentIDs {
		savepoint := fmt.Sprintf("retention_sync_%d", i)
		if err := retentionTx.Savepoint(ctx, savepoint); err != nil {
			return copied, NewInternalError("failed to create retention savepoint", err)
		}

		if err := s.copyConsentToRetention(ctx, liveTx, retentionTx, consentID); err != nil {
			s.logger.WithError(err).WithField("consentID", consentID).Warn("Retention sync failed for consent, rolling back its savepoint")
			if rbErr := retentionTx.RollbackToSavepoint(ctx, savepoint); rbErr != nil {
				return copied, NewInternalError("failed to rollback retention savepoint", rbErr)
			}
			continue
		}

		if err := retentionTx.ReleaseSavepoint(ctx, savepoint); err != nil {
			return copied, NewInternalError("failed to release retention savepoint", err)
		}
		copied++
	}

	if err := retentionTx.Commit(); err != nil {
		return 0, NewInternalError("failed to commit retention sync", err)
	}

	s.logger.WithFields(logrus.Fields{
		"candidates": len(consentIDs),
		"copied":     copied,
	}).Info("Retention store synchronized")
	return copied, nil
}

// copyConsentToRetention reads one consent's full data from the live store
// and writes it into the retention transaction. A history retrieval failure
// is downgraded to a log entry; the consent is still archived without it.
func (s *ConsentService) copyConsentToRetention(ctx context.Context, liveTx, retentionTx *database.Transaction, consentID string) error {
	detailed, err := s.consentDAO.GetDetailed(ctx, liveTx, consentID)
	if err != nil {
		return wrapDataError("failed to read consent from live store", err)
	}
	auditRecords, err := s.auditDAO.GetByConsentID(ctx, liveTx, consentID)
	if err != nil {
		return wrapDataError("failed to read audit trail from live store", err)
	}

	recordIDs := []string{consentID}
	for _, a := range detailed.Authorizations {
		recordIDs = append(recordIDs, a.AuthID)
	}
	for _, m := range detailed.Mappings {
		recordIDs = append(recordIDs, m.MappingID)
	}
	historyRows, err := s.historyDAO.GetRowsByRecordIDs(ctx, liveTx, recordIDs)
	if err != nil {
		s.logger.WithError(err).WithField("consentID", consentID).Warn("Skipping amendment history for archived consent")
		historyRows = nil
	}

	consent := detailed.Consent
	if err := s.consentDAO.Store(ctx, retentionTx, &consent); err != nil {
		return wrapDataError("failed to archive consent", err)
	}
	if err := s.attributeDAO.Store(ctx, retentionTx, consentID, detailed.Attributes); err != nil {
		return wrapDataError("failed to archive consent attributes", err)
	}
	for i := range detailed.Authorizations {
		auth := detailed.Authorizations[i]
		if err := s.authDAO.Store(ctx, retentionTx, &auth); err != nil {
			return wrapDataError("failed to archive authorization", err)
		}
	}
	mappings := make([]models.ConsentMappingResource, len(detailed.Mappings))
	copy(mappings, detailed.Mappings)
	if err := s.mappingDAO.Store(ctx, retentionTx, mappings); err != nil {
		return wrapDataError("failed to archive mappings", err)
	}
	for i := range auditRecords {
		record := auditRecords[i]
		if err := s.auditDAO.Store(ctx, retentionTx, &record); err != nil {
			return wrapDataError("failed to archive audit record", err)
		}
	}
	for _, row := range historyRows {
		if err := s.historyDAO.StoreRow(ctx, retentionTx, row); err != nil {
			return wrapDataError("failed to archive history row", err)
		}
	}
	return nil
}
