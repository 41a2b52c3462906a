package dao

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/consent-core-service/internal/database"
	"github.com/wso2/consent-core-service/internal/models"
	"github.com/wso2/consent-core-service/pkg/utils"
)

func newMockTx(t *testing.T) (*database.Transaction, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	db := database.New(sqlx.NewDb(mockDB, "mysql"), logger)
	mock.ExpectBegin()
	tx, err := db.BeginTx(context.Background())
	require.NoError(t, err)
	return tx, mock
}

func intPtr(i int) *int { return &i }

var detailedTestColumns = []string{
	"CONSENT_ID", "RECEIPT", "CREATED_TIME", "UPDATED_TIME", "CLIENT_ID",
	"CONSENT_TYPE", "CURRENT_STATUS", "CONSENT_FREQUENCY", "VALIDITY_PERIOD", "RECURRING_INDICATOR",
	"AUTH_ID", "AUTH_TYPE", "AUTH_USER_ID", "AUTH_STATUS", "AUTH_UPDATED_TIME",
	"MAPPING_ID", "MAPPING_AUTH_ID", "ACCOUNT_ID", "PERMISSION", "MAPPING_STATUS",
	"ATT_KEY", "ATT_VALUE",
}

func TestConsentStoreAssignsIDAndTimestamps(t *testing.T) {
	tx, mock := newMockTx(t)
	d := NewConsentDAO()

	mock.ExpectExec("INSERT INTO FS_CONSENT ").WillReturnResult(sqlmock.NewResult(0, 1))

	consent := &models.Consent{
		Receipt:       "{}",
		ClientID:      "client-1",
		ConsentType:   "accounts",
		CurrentStatus: "AwaitingAuthorisation",
	}
	require.NoError(t, d.Store(context.Background(), tx, consent))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.True(t, utils.IsValidUUID(consent.ConsentID))
	assert.NotZero(t, consent.CreatedTime)
	assert.Equal(t, consent.CreatedTime, consent.UpdatedTime)
}

func TestConsentStoreNoRowsAffected(t *testing.T) {
	tx, mock := newMockTx(t)
	d := NewConsentDAO()

	mock.ExpectExec("INSERT INTO FS_CONSENT ").WillReturnResult(sqlmock.NewResult(0, 0))

	err := d.Store(context.Background(), tx, &models.Consent{
		Receipt: "{}", ClientID: "client-1", ConsentType: "accounts", CurrentStatus: "Created",
	})
	require.Error(t, err)

	var insErr *InsertionError
	assert.True(t, errors.As(err, &insErr))
}

// A search with no filters must carry no predicates and no pagination.
func TestSearchWithoutFilters(t *testing.T) {
	tx, mock := newMockTx(t)
	d := NewConsentDAO()

	mock.ExpectQuery(`FROM FS_CONSENT c$`).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT"}).AddRow(2))
	mock.ExpectQuery(`ORDER BY c.UPDATED_TIME DESC, c.CONSENT_ID ASC$`).
		WillReturnRows(sqlmock.NewRows([]string{"CONSENT_ID", "RECEIPT", "CREATED_TIME", "UPDATED_TIME", "CLIENT_ID",
			"CONSENT_TYPE", "CURRENT_STATUS", "CONSENT_FREQUENCY", "VALIDITY_PERIOD", "RECURRING_INDICATOR"}).
			AddRow("c-2", "{}", int64(1000), int64(2000), "client-1", "accounts", "Authorised", 0, int64(0), false).
			AddRow("c-1", "{}", int64(1000), int64(1000), "client-1", "accounts", "Created", 0, int64(0), false))

	consents, total, err := d.Search(context.Background(), tx, models.ConsentSearchParams{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 2, total)
	require.Len(t, consents, 2)
	assert.Equal(t, "c-2", consents[0].ConsentID)
}

func TestSearchWithFiltersAndPagination(t *testing.T) {
	tx, mock := newMockTx(t)
	d := NewConsentDAO()

	mock.ExpectQuery(`WHERE c.CLIENT_ID IN`).
		WithArgs("client-1").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT"}).AddRow(25))
	mock.ExpectQuery(`ORDER BY c.UPDATED_TIME DESC, c.CONSENT_ID ASC LIMIT`).
		WithArgs("client-1", 10, 20).
		WillReturnRows(sqlmock.NewRows([]string{"CONSENT_ID", "RECEIPT", "CREATED_TIME", "UPDATED_TIME", "CLIENT_ID",
			"CONSENT_TYPE", "CURRENT_STATUS", "CONSENT_FREQUENCY", "VALIDITY_PERIOD", "RECURRING_INDICATOR"}).
			AddRow("c-21", "{}", int64(1000), int64(1000), "client-1", "accounts", "Created", 0, int64(0), false))

	consents, total, err := d.Search(context.Background(), tx, models.ConsentSearchParams{
		ClientIDs: []string{"client-1"},
		Limit:     intPtr(10),
		Offset:    intPtr(20),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 25, total)
	assert.Len(t, consents, 1)
}

// The wide join fans one authorization out across its mappings and the
// consent's attributes; the fold must collapse the duplicates.
func TestGetDetailedFoldsJoinFanOut(t *testing.T) {
	tx, mock := newMockTx(t)
	d := NewConsentDAO()

	rows := sqlmock.NewRows(detailedTestColumns).
		AddRow("consent-1", "{}", int64(1000), int64(1000), "client-1",
			"accounts", "Authorised", 0, int64(3600), false,
			"auth-1", "authorisation", "user-1", "Authorised", int64(1000),
			"map-1", "auth-1", "A", "read", "active", "channel", "web").
		AddRow("consent-1", "{}", int64(1000), int64(1000), "client-1",
			"accounts", "Authorised", 0, int64(3600), false,
			"auth-1", "authorisation", "user-1", "Authorised", int64(1000),
			"map-2", "auth-1", "B", "read", "active", "channel", "web")

	mock.ExpectQuery("LEFT JOIN FS_CONSENT_AUTH_RESOURCE").WithArgs("consent-1").WillReturnRows(rows)

	detailed, err := d.GetDetailed(context.Background(), tx, "consent-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, detailed.Authorizations, 1)
	require.NotNil(t, detailed.Authorizations[0].UserID)
	assert.Equal(t, "user-1", *detailed.Authorizations[0].UserID)

	require.Len(t, detailed.Mappings, 2)
	assert.Equal(t, "map-1", detailed.Mappings[0].MappingID)
	assert.Equal(t, "map-2", detailed.Mappings[1].MappingID)

	assert.Equal(t, map[string]string{"channel": "web"}, detailed.Attributes)
}

func TestGetDetailedNotFound(t *testing.T) {
	tx, mock := newMockTx(t)
	d := NewConsentDAO()

	mock.ExpectQuery("LEFT JOIN FS_CONSENT_AUTH_RESOURCE").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(detailedTestColumns))

	_, err := d.GetDetailed(context.Background(), tx, "missing")
	require.Error(t, err)

	var retErr *RetrievalError
	require.True(t, errors.As(err, &retErr))
	assert.True(t, retErr.IsNotFound())
}

func TestBulkUpdateStatusExpandsIDs(t *testing.T) {
	tx, mock := newMockTx(t)
	d := NewConsentDAO()

	mock.ExpectExec("UPDATE FS_CONSENT SET CURRENT_STATUS").
		WithArgs("Revoked", int64(2000), "c-1", "c-2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := d.BulkUpdateStatus(context.Background(), tx, []string{"c-1", "c-2"}, "Revoked", 2000)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpdateStatusEmptyIsNoop(t *testing.T) {
	tx, mock := newMockTx(t)
	d := NewConsentDAO()

	require.NoError(t, d.BulkUpdateStatus(context.Background(), tx, nil, "Revoked", 2000))
	require.NoError(t, mock.ExpectationsWereMet())
}
