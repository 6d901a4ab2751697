package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	s, err := OpenInMemory()
	require.Nil(t, err)

	type journeyState struct {
		JourneyID string   `json:"journey_id"`
		Contacts  []string `json:"contacts"`
	}

	err = s.Set(KeyJourneySession, journeyState{JourneyID: "jrn_42", Contacts: []string{"9876543210"}})
	assert.Nil(t, err)

	got := journeyState{}
	found, err := s.Get(KeyJourneySession, &got)
	assert.Nil(t, err)
	assert.True(t, found)
	assert.Equal(t, "jrn_42", got.JourneyID)
	assert.Equal(t, []string{"9876543210"}, got.Contacts)
}

func TestGetMissingKey(t *testing.T) {
	s, err := OpenInMemory()
	require.Nil(t, err)

	var value string
	found, err := s.Get("never-written", &value)
	assert.Nil(t, err, "missing keys must not error")
	assert.False(t, found)

	value, found = s.GetString("never-written")
	assert.False(t, found)
	assert.Empty(t, value)
}

func TestCorruptedRecordSelfHeals(t *testing.T) {
	s, err := OpenInMemory()
	require.Nil(t, err)

	// Write a record that is not valid JSON behind the store's back.
	err = s.db.Save(&Record{Key: KeyPhoneList, Value: "{definitely-not-json"}).Error
	require.Nil(t, err)

	var value []string
	found, err := s.Get(KeyPhoneList, &value)
	assert.Nil(t, err, "corruption must not surface as an error")
	assert.False(t, found)

	// The corrupted key is cleared, a later write starts clean.
	count := int64(0)
	s.db.Model(&Record{}).Where("key = ?", KeyPhoneList).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestOverwriteIsLastWriterWins(t *testing.T) {
	s, err := OpenInMemory()
	require.Nil(t, err)

	require.Nil(t, s.Set(KeyJourneyID, "jrn_1"))
	require.Nil(t, s.Set(KeyJourneyID, "jrn_2"))

	value, found := s.GetString(KeyJourneyID)
	assert.True(t, found)
	assert.Equal(t, "jrn_2", value)
}

func TestRemoveMany(t *testing.T) {
	s, err := OpenInMemory()
	require.Nil(t, err)

	require.Nil(t, s.Set(KeyJourneyID, "jrn_1"))
	require.Nil(t, s.Set(KeyTracking, true))
	require.Nil(t, s.Set(KeyDeviceID, "device-1"))

	err = s.RemoveMany(KeyJourneyID, KeyTracking)
	assert.Nil(t, err)

	_, found := s.GetString(KeyJourneyID)
	assert.False(t, found)

	tracking := false
	found, _ = s.Get(KeyTracking, &tracking)
	assert.False(t, found)

	// Unrelated keys are untouched.
	deviceID, found := s.GetString(KeyDeviceID)
	assert.True(t, found)
	assert.Equal(t, "device-1", deviceID)

	// Removing keys that are already gone is fine.
	assert.Nil(t, s.RemoveMany(KeyJourneyID, KeyTracking))
	assert.Nil(t, s.Remove("never-written"))
}
