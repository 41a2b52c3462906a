package service

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/consent-core-service/internal/cache"
	"github.com/wso2/consent-core-service/internal/config"
	"github.com/wso2/consent-core-service/internal/database"
	"github.com/wso2/consent-core-service/internal/models"
	"github.com/wso2/consent-core-service/internal/notifier"
	"github.com/wso2/consent-core-service/internal/revocation"
)

// fakeNotifier records published events for assertions
type fakeNotifier struct {
	events []notifier.StateChangeEvent
}

func (f *fakeNotifier) NotifyStateChange(ctx context.Context, event notifier.StateChangeEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeNotifier) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Consent: config.ConsentConfig{
			StatusMappings: config.ConsentStatusMappings{
				CreatedStatus: "Created",
				ActiveStatus:  "Authorised",
				AmendedStatus: "Amended",
				RevokedStatus: "Revoked",
				ExpiredStatus: "Expired",
			},
		},
	}
}

func newMockService(t *testing.T) (*ConsentService, sqlmock.Sqlmock, *fakeNotifier) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	db := database.New(sqlx.NewDb(mockDB, "mysql"), logger)
	provider := database.NewProvider(db, nil)

	recorder := &fakeNotifier{}
	svc := NewConsentService(provider, recorder, revocation.NewNoopTokenRevoker(), cache.NewNoopCache(), testConfig(), logger)
	return svc, mock, recorder
}

var consentColumns = []string{
	"CONSENT_ID", "RECEIPT", "CREATED_TIME", "UPDATED_TIME", "CLIENT_ID",
	"CONSENT_TYPE", "CURRENT_STATUS", "CONSENT_FREQUENCY", "VALIDITY_PERIOD", "RECURRING_INDICATOR",
}

var detailedColumns = []string{
	"CONSENT_ID", "RECEIPT", "CREATED_TIME", "UPDATED_TIME", "CLIENT_ID",
	"CONSENT_TYPE", "CURRENT_STATUS", "CONSENT_FREQUENCY", "VALIDITY_PERIOD", "RECURRING_INDICATOR",
	"AUTH_ID", "AUTH_TYPE", "AUTH_USER_ID", "AUTH_STATUS", "AUTH_UPDATED_TIME",
	"MAPPING_ID", "MAPPING_AUTH_ID", "ACCOUNT_ID", "PERMISSION", "MAPPING_STATUS",
	"ATT_KEY", "ATT_VALUE",
}

func consentRow() *sqlmock.Rows {
	return sqlmock.NewRows(consentColumns).
		AddRow("consent-1", "{}", int64(1000), int64(1000), "client-1",
			"accounts", "AwaitingAuthorisation", 0, int64(3600), false)
}

// detailedRowSet returns the wide-join fan-out for consent-1 with one
// authorization and the given mappings
func detailedRowSet(status string, mappings [][3]string) *sqlmock.Rows {
	rows := sqlmock.NewRows(detailedColumns)
	if len(mappings) == 0 {
		rows.AddRow("consent-1", "{}", int64(1000), int64(1000), "client-1",
			"accounts", status, 0, int64(3600), false,
			"auth-1", "authorisation", nil, "Created", int64(1000),
			nil, nil, nil, nil, nil, nil, nil)
		return rows
	}
	for _, m := range mappings {
		rows.AddRow("consent-1", "{}", int64(1000), int64(1000), "client-1",
			"accounts", status, 0, int64(3600), false,
			"auth-1", "authorisation", nil, "Created", int64(1000),
			m[0], "auth-1", m[1], "read", m[2], nil, nil)
	}
	return rows
}

func TestCreateConsentWithImplicitAuth(t *testing.T) {
	svc, mock, recorder := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO FS_CONSENT ").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO FS_CONSENT_AUTH_RESOURCE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO FS_CONSENT_STATUS_AUDIT").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	detailed, err := svc.CreateConsent(context.Background(), &models.ConsentCreateRequest{
		ClientID:      "client-1",
		Receipt:       "{}",
		ConsentType:   "accounts",
		CurrentStatus: "AwaitingAuthorisation",
		ImplicitAuth:  true,
		AuthStatus:    "Created",
		AuthType:      "authorisation",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.NotEmpty(t, detailed.ConsentID)
	assert.Equal(t, "AwaitingAuthorisation", detailed.CurrentStatus)
	require.Len(t, detailed.Authorizations, 1)
	assert.Equal(t, "Created", detailed.Authorizations[0].AuthStatus)
	assert.Equal(t, detailed.ConsentID, detailed.Authorizations[0].ConsentID)

	require.Len(t, recorder.events, 1)
	assert.Empty(t, recorder.events[0].PreviousStatus)
	assert.Equal(t, "AwaitingAuthorisation", recorder.events[0].CurrentStatus)
}

func TestCreateConsentMissingClientIDFailsBeforeTransaction(t *testing.T) {
	svc, mock, _ := newMockService(t)

	_, err := svc.CreateConsent(context.Background(), &models.ConsentCreateRequest{
		Receipt:       "{}",
		ConsentType:   "accounts",
		CurrentStatus: "AwaitingAuthorisation",
	})
	require.Error(t, err)

	var cmErr *ConsentManagementError
	require.ErrorAs(t, err, &cmErr)
	assert.Equal(t, models.ErrCodeBadRequest, cmErr.Code)

	// No transaction was ever begun.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateConsentImplicitAuthRequiresAuthFields(t *testing.T) {
	svc, mock, _ := newMockService(t)

	_, err := svc.CreateConsent(context.Background(), &models.ConsentCreateRequest{
		ClientID:      "client-1",
		Receipt:       "{}",
		ConsentType:   "accounts",
		CurrentStatus: "AwaitingAuthorisation",
		ImplicitAuth:  true,
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeConsentDeactivatesMappingsAndAudits(t *testing.T) {
	svc, mock, recorder := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("consent-1").WillReturnRows(consentRow())
	mock.ExpectQuery("LEFT JOIN FS_CONSENT_AUTH_RESOURCE").WithArgs("consent-1").
		WillReturnRows(detailedRowSet("AwaitingAuthorisation", [][3]string{{"map-b", "B", "active"}}))
	mock.ExpectExec("UPDATE FS_CONSENT SET CURRENT_STATUS").
		WithArgs("Revoked", sqlmock.AnyArg(), "consent-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE FS_CONSENT_MAPPING SET MAPPING_STATUS").
		WithArgs("inactive", "map-b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO FS_CONSENT_STATUS_AUDIT").
		WithArgs(sqlmock.AnyArg(), "consent-1", "Revoked", sqlmock.AnyArg(), "User revoked", sqlmock.AnyArg(), "AwaitingAuthorisation").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// History rows: one basic-data diff, one mapping diff.
	mock.ExpectExec("INSERT INTO FS_CONSENT_HISTORY").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO FS_CONSENT_HISTORY").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	detailed, err := svc.RevokeConsent(context.Background(), "consent-1", &models.ConsentRevokeRequest{
		Reason: "User revoked",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "Revoked", detailed.CurrentStatus)
	for _, m := range detailed.Mappings {
		assert.Equal(t, models.MappingStatusInactive, m.MappingStatus)
	}

	require.Len(t, recorder.events, 1)
	assert.Equal(t, "AwaitingAuthorisation", recorder.events[0].PreviousStatus)
	assert.Equal(t, "Revoked", recorder.events[0].CurrentStatus)
}

func TestRevokeConsentAlreadyRevoked(t *testing.T) {
	svc, mock, _ := newMockService(t)

	revokedRow := sqlmock.NewRows(consentColumns).
		AddRow("consent-1", "{}", int64(1000), int64(1000), "client-1",
			"accounts", "Revoked", 0, int64(3600), false)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("consent-1").WillReturnRows(revokedRow)
	mock.ExpectQuery("LEFT JOIN FS_CONSENT_AUTH_RESOURCE").WithArgs("consent-1").
		WillReturnRows(detailedRowSet("Revoked", nil))
	mock.ExpectRollback()

	_, err := svc.RevokeConsent(context.Background(), "consent-1", &models.ConsentRevokeRequest{})
	require.Error(t, err)

	var cmErr *ConsentManagementError
	require.ErrorAs(t, err, &cmErr)
	assert.Equal(t, models.ErrCodeConflict, cmErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Re-authorizing with accounts {A,B} when {B,C} are active must deactivate
// C's mapping, insert a new active mapping for A, and leave B untouched.
func TestReauthorizeReconcilesAccountDelta(t *testing.T) {
	svc, mock, _ := newMockService(t)

	existing := [][3]string{{"map-b", "B", "active"}, {"map-c", "C", "active"}}
	afterReconcile := [][3]string{{"map-b", "B", "active"}, {"map-c", "C", "inactive"}, {"map-a", "A", "active"}}

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("consent-1").WillReturnRows(consentRow())
	mock.ExpectQuery("LEFT JOIN FS_CONSENT_AUTH_RESOURCE").WithArgs("consent-1").
		WillReturnRows(detailedRowSet("Authorised", existing))
	mock.ExpectExec("UPDATE FS_CONSENT_MAPPING SET MAPPING_STATUS").
		WithArgs("inactive", "map-c").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO FS_CONSENT_MAPPING").
		WithArgs(sqlmock.AnyArg(), "auth-1", "A", "read", "active").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("LEFT JOIN FS_CONSENT_AUTH_RESOURCE").WithArgs("consent-1").
		WillReturnRows(detailedRowSet("Authorised", afterReconcile))
	mock.ExpectCommit()

	detailed, err := svc.ReauthorizeExistingAuthResource(context.Background(), "consent-1", "auth-1", &models.ReauthorizeRequest{
		AccountIDsWithPermissions: map[string][]string{"A": {"read"}, "B": {"read"}},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	statusByAccount := map[string]string{}
	for _, m := range detailed.Mappings {
		statusByAccount[m.AccountID] = m.MappingStatus
	}
	assert.Equal(t, "active", statusByAccount["A"])
	assert.Equal(t, "active", statusByAccount["B"])
	assert.Equal(t, "inactive", statusByAccount["C"])
}

func TestAmendReceiptStoresHistoryAndTransitionsStatus(t *testing.T) {
	svc, mock, recorder := newMockService(t)

	amendedRows := sqlmock.NewRows(detailedColumns).
		AddRow("consent-1", `{"v":2}`, int64(1000), int64(2000), "client-1",
			"accounts", "Amended", 0, int64(3600), false,
			"auth-1", "authorisation", nil, "Created", int64(1000),
			nil, nil, nil, nil, nil, nil, nil)

	receipt := `{"v":2}`

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("consent-1").WillReturnRows(consentRow())
	mock.ExpectQuery("LEFT JOIN FS_CONSENT_AUTH_RESOURCE").WithArgs("consent-1").
		WillReturnRows(detailedRowSet("AwaitingAuthorisation", nil))
	mock.ExpectExec("UPDATE FS_CONSENT SET UPDATED_TIME").
		WithArgs(sqlmock.AnyArg(), receipt, "consent-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE FS_CONSENT SET CURRENT_STATUS").
		WithArgs("Amended", sqlmock.AnyArg(), "consent-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO FS_CONSENT_STATUS_AUDIT").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("LEFT JOIN FS_CONSENT_AUTH_RESOURCE").WithArgs("consent-1").
		WillReturnRows(amendedRows)
	mock.ExpectExec("INSERT INTO FS_CONSENT_HISTORY").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	detailed, err := svc.AmendDetailedConsent(context.Background(), "consent-1", &models.ConsentAmendmentRequest{
		AuthID:  "auth-1",
		Receipt: &receipt,
		Reason:  "Receipt updated",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, receipt, detailed.Receipt)
	assert.Equal(t, "Amended", detailed.CurrentStatus)

	require.Len(t, recorder.events, 1)
	assert.Equal(t, "Receipt updated", recorder.events[0].Reason)
}

func TestAmendWithoutChangesRejected(t *testing.T) {
	svc, mock, _ := newMockService(t)

	_, err := svc.AmendDetailedConsent(context.Background(), "consent-1", &models.ConsentAmendmentRequest{
		AuthID: "auth-1",
	})
	require.Error(t, err)

	var cmErr *ConsentManagementError
	require.ErrorAs(t, err, &cmErr)
	assert.Equal(t, models.ErrCodeBadRequest, cmErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Amending attributes {a,b} to {b,c} must clear the whole attribute set and
// re-insert exactly the supplied keys, and the stored attributes diff must
// carry a's old value and null for the brand-new c.
func TestAmendAttributesFullReplace(t *testing.T) {
	svc, mock, _ := newMockService(t)

	oldRows := sqlmock.NewRows(detailedColumns).
		AddRow("consent-1", "{}", int64(1000), int64(1000), "client-1",
			"accounts", "AwaitingAuthorisation", 0, int64(3600), false,
			"auth-1", "authorisation", nil, "Created", int64(1000),
			nil, nil, nil, nil, nil, "a", "va").
		AddRow("consent-1", "{}", int64(1000), int64(1000), "client-1",
			"accounts", "AwaitingAuthorisation", 0, int64(3600), false,
			"auth-1", "authorisation", nil, "Created", int64(1000),
			nil, nil, nil, nil, nil, "b", "vb")

	newRows := sqlmock.NewRows(detailedColumns).
		AddRow("consent-1", "{}", int64(1000), int64(2000), "client-1",
			"accounts", "Amended", 0, int64(3600), false,
			"auth-1", "authorisation", nil, "Created", int64(1000),
			nil, nil, nil, nil, nil, "b", "vb").
		AddRow("consent-1", "{}", int64(1000), int64(2000), "client-1",
			"accounts", "Amended", 0, int64(3600), false,
			"auth-1", "authorisation", nil, "Created", int64(1000),
			nil, nil, nil, nil, nil, "c", "vc")

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("consent-1").WillReturnRows(consentRow())
	mock.ExpectQuery("LEFT JOIN FS_CONSENT_AUTH_RESOURCE").WithArgs("consent-1").
		WillReturnRows(oldRows)
	mock.ExpectExec("DELETE FROM FS_CONSENT_ATTRIBUTE").
		WithArgs("consent-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO FS_CONSENT_ATTRIBUTE").
		WithArgs("consent-1", "b", "vb", "consent-1", "c", "vc").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE FS_CONSENT SET CURRENT_STATUS").
		WithArgs("Amended", sqlmock.AnyArg(), "consent-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO FS_CONSENT_STATUS_AUDIT").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("LEFT JOIN FS_CONSENT_AUTH_RESOURCE").WithArgs("consent-1").
		WillReturnRows(newRows)
	// Basic-data diff row, then the attributes-category diff row.
	mock.ExpectExec("INSERT INTO FS_CONSENT_HISTORY").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO FS_CONSENT_HISTORY").
		WithArgs("04", "consent-1", sqlmock.AnyArg(), `{"a":"va","c":null}`, "Consent amended", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	detailed, err := svc.AmendDetailedConsent(context.Background(), "consent-1", &models.ConsentAmendmentRequest{
		AuthID:     "auth-1",
		Attributes: map[string]string{"b": "vb", "c": "vc"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, map[string]string{"b": "vb", "c": "vc"}, detailed.Attributes)
}

func TestUpdateConsentStatusWritesAudit(t *testing.T) {
	svc, mock, recorder := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("consent-1").WillReturnRows(consentRow())
	mock.ExpectExec("UPDATE FS_CONSENT SET CURRENT_STATUS").
		WithArgs("Authorised", sqlmock.AnyArg(), "consent-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO FS_CONSENT_STATUS_AUDIT").
		WithArgs(sqlmock.AnyArg(), "consent-1", "Authorised", sqlmock.AnyArg(), "User authorised", "user-1", "AwaitingAuthorisation").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	consent, err := svc.UpdateConsentStatus(context.Background(), "consent-1", "Authorised", "User authorised", "user-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "Authorised", consent.CurrentStatus)
	require.Len(t, recorder.events, 1)
	assert.Equal(t, "AwaitingAuthorisation", recorder.events[0].PreviousStatus)
}

func TestGetDetailedConsentNotFound(t *testing.T) {
	svc, mock, _ := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("LEFT JOIN FS_CONSENT_AUTH_RESOURCE").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(detailedColumns))
	mock.ExpectRollback()

	_, err := svc.GetDetailedConsent(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
