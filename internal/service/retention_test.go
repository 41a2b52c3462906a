package service

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/consent-core-service/internal/cache"
	"github.com/wso2/consent-core-service/internal/config"
	"github.com/wso2/consent-core-service/internal/database"
	"github.com/wso2/consent-core-service/internal/notifier"
	"github.com/wso2/consent-core-service/internal/revocation"
)

func newMockRetentionService(t *testing.T) (*ConsentService, sqlmock.Sqlmock, sqlmock.Sqlmock) {
	t.Helper()

	liveMockDB, liveMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { liveMockDB.Close() })

	retentionMockDB, retentionMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { retentionMockDB.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	liveDB := database.New(sqlx.NewDb(liveMockDB, "mysql"), logger)
	retentionDB := database.New(sqlx.NewDb(retentionMockDB, "mysql"), logger)
	provider := database.NewProvider(liveDB, retentionDB)

	cfg := testConfig()
	cfg.Database.Retention = config.DatabaseConfig{Hostname: "localhost", Database: "retentiondb"}

	svc := NewConsentService(provider, notifier.NewNoopNotifier(), revocation.NewNoopTokenRevoker(), cache.NewNoopCache(), cfg, logger)
	return svc, liveMock, retentionMock
}

func archivedConsentRows(consentID, authID, status string) *sqlmock.Rows {
	return sqlmock.NewRows(detailedColumns).
		AddRow(consentID, "{}", int64(1000), int64(1500), "client-1",
			"accounts", status, 0, int64(3600), false,
			authID, "authorisation", "user-1", "Authorised", int64(1200),
			nil, nil, nil, nil, nil, nil, nil)
}

func archivedAuditRows(consentID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"STATUS_AUDIT_ID", "CONSENT_ID", "CURRENT_STATUS", "ACTION_TIME", "REASON", "ACTION_BY", "PREVIOUS_STATUS"}).
		AddRow("audit-"+consentID, consentID, "Revoked", int64(1500), "Consent revoked", nil, "Authorised")
}

// With two terminal consents, an archive write failure for the first must
// roll back only that consent's savepoint; the second is still copied and the
// batch commits. A history retrieval failure must downgrade to a skip, not
// fail the consent being copied. The live store sees reads only.
func TestSyncRetentionStoreIsolatesFailuresPerConsent(t *testing.T) {
	svc, liveMock, retentionMock := newMockRetentionService(t)

	liveMock.ExpectBegin()
	liveMock.ExpectQuery("SELECT CONSENT_ID FROM FS_CONSENT WHERE CURRENT_STATUS IN").
		WithArgs("Revoked", "Expired").
		WillReturnRows(sqlmock.NewRows([]string{"CONSENT_ID"}).AddRow("c-1").AddRow("c-2"))
	liveMock.ExpectQuery("LEFT JOIN FS_CONSENT_AUTH_RESOURCE").WithArgs("c-1").
		WillReturnRows(archivedConsentRows("c-1", "a-1", "Revoked"))
	liveMock.ExpectQuery("FROM FS_CONSENT_STATUS_AUDIT").WithArgs("c-1").
		WillReturnRows(archivedAuditRows("c-1"))
	liveMock.ExpectQuery("FROM FS_CONSENT_HISTORY").WithArgs("c-1", "a-1").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_ID", "RECORD_ID", "HISTORY_ID", "CHANGED_VALUES", "REASON", "EFFECTIVE_TIMESTAMP"}))
	liveMock.ExpectQuery("LEFT JOIN FS_CONSENT_AUTH_RESOURCE").WithArgs("c-2").
		WillReturnRows(archivedConsentRows("c-2", "a-2", "Expired"))
	liveMock.ExpectQuery("FROM FS_CONSENT_STATUS_AUDIT").WithArgs("c-2").
		WillReturnRows(archivedAuditRows("c-2"))
	liveMock.ExpectQuery("FROM FS_CONSENT_HISTORY").WithArgs("c-2", "a-2").
		WillReturnError(errors.New("history table unavailable"))
	liveMock.ExpectRollback()

	retentionMock.ExpectBegin()
	retentionMock.ExpectExec(`^SAVEPOINT retention_sync_0$`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	retentionMock.ExpectExec("INSERT INTO FS_CONSENT ").
		WillReturnError(errors.New("archive write failed"))
	retentionMock.ExpectExec(`^ROLLBACK TO SAVEPOINT retention_sync_0$`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	retentionMock.ExpectExec(`^SAVEPOINT retention_sync_1$`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	retentionMock.ExpectExec("INSERT INTO FS_CONSENT ").
		WillReturnResult(sqlmock.NewResult(0, 1))
	retentionMock.ExpectExec("INSERT INTO FS_CONSENT_AUTH_RESOURCE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	retentionMock.ExpectExec("INSERT INTO FS_CONSENT_STATUS_AUDIT").
		WillReturnResult(sqlmock.NewResult(0, 1))
	retentionMock.ExpectExec(`^RELEASE SAVEPOINT retention_sync_1$`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	retentionMock.ExpectCommit()

	copied, err := svc.SyncRetentionStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, liveMock.ExpectationsWereMet())
	require.NoError(t, retentionMock.ExpectationsWereMet())

	assert.Equal(t, 1, copied)
}

func TestSyncRetentionStoreRequiresConfiguration(t *testing.T) {
	svc, mock, _ := newMockService(t)

	_, err := svc.SyncRetentionStore(context.Background())
	require.Error(t, err)

	var cmErr *ConsentManagementError
	require.ErrorAs(t, err, &cmErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRetentionStoreNoCandidates(t *testing.T) {
	svc, liveMock, retentionMock := newMockRetentionService(t)

	liveMock.ExpectBegin()
	liveMock.ExpectQuery("SELECT CONSENT_ID FROM FS_CONSENT WHERE CURRENT_STATUS IN").
		WithArgs("Revoked", "Expired").
		WillReturnRows(sqlmock.NewRows([]string{"CONSENT_ID"}))
	liveMock.ExpectRollback()

	copied, err := svc.SyncRetentionStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, liveMock.ExpectationsWereMet())
	require.NoError(t, retentionMock.ExpectationsWereMet())

	assert.Equal(t, 0, copied)
}
