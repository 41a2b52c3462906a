package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/consent-core-service/internal/models"
)

func strPtr(s string) *string { return &s }

func baseDetailed() *models.DetailedConsentResource {
	return &models.DetailedConsentResource{
		Consent: models.Consent{
			ConsentID:      "consent-1",
			Receipt:        "{}",
			CreatedTime:    1000,
			UpdatedTime:    1000,
			ClientID:       "client-1",
			ConsentType:    "accounts",
			CurrentStatus:  "AwaitingAuthorisation",
			ValidityPeriod: 3600,
		},
		Attributes: map[string]string{"channel": "web"},
		Authorizations: []models.AuthorizationResource{
			{AuthID: "auth-1", ConsentID: "consent-1", AuthType: "authorisation", AuthStatus: "Created", UpdatedTime: 1000},
		},
		Mappings: []models.ConsentMappingResource{
			{MappingID: "map-b", AuthID: "auth-1", AccountID: "B", Permission: "read", MappingStatus: models.MappingStatusActive},
			{MappingID: "map-c", AuthID: "auth-1", AccountID: "C", Permission: "read", MappingStatus: models.MappingStatusActive},
		},
	}
}

func TestComputeBasicDataDiffRecordsOldValues(t *testing.T) {
	oldDetailed := baseDetailed()
	newDetailed := oldDetailed.Clone()
	newDetailed.Receipt = `{"v":2}`
	newDetailed.UpdatedTime = 2000
	newDetailed.CurrentStatus = "Amended"

	diff, err := computeBasicDataDiff(oldDetailed, newDetailed)
	require.NoError(t, err)
	require.NotNil(t, diff)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(diff, &fields))
	assert.Equal(t, "{}", fields["receipt"])
	assert.Equal(t, "AwaitingAuthorisation", fields["currentStatus"])
	assert.Equal(t, float64(1000), fields["updatedTime"])
	assert.NotContains(t, fields, "validityPeriod")
}

func TestComputeBasicDataDiffEmptyWhenUnchanged(t *testing.T) {
	oldDetailed := baseDetailed()
	newDetailed := oldDetailed.Clone()

	diff, err := computeBasicDataDiff(oldDetailed, newDetailed)
	require.NoError(t, err)
	assert.Nil(t, diff)
}

func TestComputeAttributesDiff(t *testing.T) {
	oldDetailed := baseDetailed()
	newDetailed := oldDetailed.Clone()
	newDetailed.Attributes = map[string]string{
		"channel": "mobile", // changed
		"tier":    "gold",   // brand new
	}

	diff, err := computeAttributesDiff(oldDetailed, newDetailed)
	require.NoError(t, err)
	require.NotNil(t, diff)

	var fields map[string]*string
	require.NoError(t, json.Unmarshal(diff, &fields))
	require.Contains(t, fields, "channel")
	assert.Equal(t, "web", *fields["channel"])
	require.Contains(t, fields, "tier")
	assert.Nil(t, fields["tier"], "brand-new key must be recorded as null")
}

func TestComputeMappingsDiff(t *testing.T) {
	oldDetailed := baseDetailed()
	newDetailed := oldDetailed.Clone()
	newDetailed.Mappings[1].MappingStatus = models.MappingStatusInactive
	newDetailed.Mappings = append(newDetailed.Mappings, models.ConsentMappingResource{
		MappingID: "map-a", AuthID: "auth-1", AccountID: "A", Permission: "read", MappingStatus: models.MappingStatusActive,
	})

	diffs, err := computeMappingsDiff(oldDetailed, newDetailed)
	require.NoError(t, err)

	require.Contains(t, diffs, "map-c")
	assert.JSONEq(t, `{"mappingStatus":"active"}`, string(diffs["map-c"]))
	require.Contains(t, diffs, "map-a")
	assert.Equal(t, "null", string(diffs["map-a"]))
	assert.NotContains(t, diffs, "map-b")
}

func TestComputeAuthResourcesDiff(t *testing.T) {
	oldDetailed := baseDetailed()
	newDetailed := oldDetailed.Clone()
	newDetailed.Authorizations[0].AuthStatus = "Authorised"
	newDetailed.Authorizations[0].UserID = strPtr("user-1")
	newDetailed.Authorizations = append(newDetailed.Authorizations, models.AuthorizationResource{
		AuthID: "auth-2", ConsentID: "consent-1", AuthType: "authorisation", AuthStatus: "Created",
	})

	diffs, err := computeAuthResourcesDiff(oldDetailed, newDetailed)
	require.NoError(t, err)

	require.Contains(t, diffs, "auth-1")
	assert.JSONEq(t, `{"authStatus":"Created","userId":null}`, string(diffs["auth-1"]))
	require.Contains(t, diffs, "auth-2")
	assert.Equal(t, "null", string(diffs["auth-2"]))
}

// Replaying the stored diff for one amendment onto the post-amendment
// aggregate must yield the exact pre-amendment value for every recorded
// field.
func TestHistoryRoundTrip(t *testing.T) {
	oldDetailed := baseDetailed()
	newDetailed := oldDetailed.Clone()
	newDetailed.Receipt = `{"v":2}`
	newDetailed.ValidityPeriod = 7200
	newDetailed.UpdatedTime = 2000
	newDetailed.CurrentStatus = "Amended"
	newDetailed.Attributes = map[string]string{"channel": "mobile", "tier": "gold"}
	newDetailed.Mappings[1].MappingStatus = models.MappingStatusInactive
	newDetailed.Mappings = append(newDetailed.Mappings, models.ConsentMappingResource{
		MappingID: "map-a", AuthID: "auth-1", AccountID: "A", Permission: "read", MappingStatus: models.MappingStatusActive,
	})
	newDetailed.Authorizations[0].AuthStatus = "Authorised"

	basicDiff, err := computeBasicDataDiff(oldDetailed, newDetailed)
	require.NoError(t, err)
	attributesDiff, err := computeAttributesDiff(oldDetailed, newDetailed)
	require.NoError(t, err)
	authDiffs, err := computeAuthResourcesDiff(oldDetailed, newDetailed)
	require.NoError(t, err)
	mappingDiffs, err := computeMappingsDiff(oldDetailed, newDetailed)
	require.NoError(t, err)

	entry := &models.ConsentHistoryResource{
		HistoryID:             "history-1",
		ConsentID:             "consent-1",
		ChangedBasicData:      basicDiff,
		ChangedAttributesData: attributesDiff,
		ChangedAuthResources:  authDiffs,
		ChangedMappings:       mappingDiffs,
	}

	snapshot := newDetailed.Clone()
	require.NoError(t, applyHistoryEntry(snapshot, entry))

	assert.Equal(t, oldDetailed.Receipt, snapshot.Receipt)
	assert.Equal(t, oldDetailed.ValidityPeriod, snapshot.ValidityPeriod)
	assert.Equal(t, oldDetailed.UpdatedTime, snapshot.UpdatedTime)
	assert.Equal(t, oldDetailed.CurrentStatus, snapshot.CurrentStatus)
	assert.Equal(t, oldDetailed.Attributes, snapshot.Attributes)

	require.Len(t, snapshot.Authorizations, 1)
	assert.Equal(t, "auth-1", snapshot.Authorizations[0].AuthID)
	assert.Equal(t, "Created", snapshot.Authorizations[0].AuthStatus)

	require.Len(t, snapshot.Mappings, 2)
	for _, m := range snapshot.Mappings {
		assert.NotEqual(t, "map-a", m.MappingID, "mapping created by the amendment must not exist before it")
		assert.Equal(t, models.MappingStatusActive, m.MappingStatus)
	}
}

// The amended receipt scenario: receipt "{}" amended to {"v":2}; the stored
// diff must carry the old receipt and replaying it must restore it.
func TestReceiptAmendmentReplay(t *testing.T) {
	oldDetailed := baseDetailed()
	newDetailed := oldDetailed.Clone()
	newDetailed.Receipt = `{"v":2}`
	newDetailed.UpdatedTime = 2000

	basicDiff, err := computeBasicDataDiff(oldDetailed, newDetailed)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(basicDiff, &fields))
	assert.Equal(t, "{}", fields["receipt"])

	snapshot := newDetailed.Clone()
	entry := &models.ConsentHistoryResource{HistoryID: "history-1", ChangedBasicData: basicDiff}
	require.NoError(t, applyHistoryEntry(snapshot, entry))
	assert.Equal(t, "{}", snapshot.Receipt)
}

// Replay must fold diffs onto copies, never mutating the seed snapshot.
func TestApplyHistoryEntryDoesNotMutateSeed(t *testing.T) {
	seed := baseDetailed()
	snapshot := seed.Clone()

	entry := &models.ConsentHistoryResource{
		HistoryID:             "history-1",
		ChangedBasicData:      json.RawMessage(`{"receipt":"old-receipt"}`),
		ChangedAttributesData: json.RawMessage(`{"channel":null}`),
		ChangedMappings: map[string]json.RawMessage{
			"map-b": json.RawMessage("null"),
		},
	}
	require.NoError(t, applyHistoryEntry(snapshot, entry))

	assert.Equal(t, "{}", seed.Receipt)
	assert.Equal(t, map[string]string{"channel": "web"}, seed.Attributes)
	assert.Len(t, seed.Mappings, 2)

	assert.Equal(t, "old-receipt", snapshot.Receipt)
	assert.Empty(t, snapshot.Attributes)
	assert.Len(t, snapshot.Mappings, 1)
}

func TestIsJSONNull(t *testing.T) {
	assert.True(t, isJSONNull(json.RawMessage("null")))
	assert.True(t, isJSONNull(json.RawMessage(" null ")))
	assert.True(t, isJSONNull(nil))
	assert.False(t, isJSONNull(json.RawMessage(`{"a":1}`)))
}
