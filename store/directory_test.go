package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendwave/campaignsched/internal/types"
)

func TestDirectoryStore_EnabledSenderIDs(t *testing.T) {
	d := NewDirectoryStore()
	d.PutSender(types.Sender{ID: "s1", Enabled: true})
	d.PutSender(types.Sender{ID: "s2", Enabled: false})
	d.PutSender(types.Sender{ID: "s3", Enabled: true})

	assert.Equal(t, []string{"s1", "s3"}, d.EnabledSenderIDs())
}

func TestDirectoryStore_SegmentExcludesBlacklisted(t *testing.T) {
	d := NewDirectoryStore()
	d.PutRecipient(types.Recipient{ID: "r1", Email: "a@example.com"})
	d.PutRecipient(types.Recipient{ID: "r2", Email: "b@example.com", Blacklisted: true})

	assert.Equal(t, []string{"r1"}, d.Segment(nil))
}

func TestParseSegmentFilter_Equality(t *testing.T) {
	filter, err := ParseSegmentFilter(`plan == "Pro"`)
	require.NoError(t, err)

	assert.True(t, filter.Matches(types.Recipient{Fields: map[string]string{"plan": "pro"}}))
	assert.False(t, filter.Matches(types.Recipient{Fields: map[string]string{"plan": "free"}}))
}

func TestParseSegmentFilter_ContainsCallStyle(t *testing.T) {
	filter, err := ParseSegmentFilter(`contains(email, "example.com")`)
	require.NoError(t, err)

	assert.True(t, filter.Matches(types.Recipient{Email: "user@EXAMPLE.com"}))
	assert.False(t, filter.Matches(types.Recipient{Email: "user@other.org"}))
}

func TestParseSegmentFilter_LogicalCombination(t *testing.T) {
	filter, err := ParseSegmentFilter(`plan == "pro" && not tag == "test"`)
	require.NoError(t, err)

	assert.True(t, filter.Matches(types.Recipient{Fields: map[string]string{"plan": "pro", "tag": "prod"}}))
	assert.False(t, filter.Matches(types.Recipient{Fields: map[string]string{"plan": "pro", "tag": "test"}}))
}

func TestParseSegmentFilter_UndefinedFieldIsFalse(t *testing.T) {
	filter, err := ParseSegmentFilter(`region == "eu"`)
	require.NoError(t, err)

	assert.False(t, filter.Matches(types.Recipient{Email: "a@example.com"}))
}

func TestDirectoryStore_SegmentAppliesFilter(t *testing.T) {
	d := NewDirectoryStore()
	d.PutRecipient(types.Recipient{ID: "r1", Email: "a@example.com", Fields: map[string]string{"plan": "pro"}})
	d.PutRecipient(types.Recipient{ID: "r2", Email: "b@example.com", Fields: map[string]string{"plan": "free"}})

	filter, err := ParseSegmentFilter(`plan == "pro"`)
	require.NoError(t, err)

	assert.Equal(t, []string{"r1"}, d.Segment(filter))
}

func TestParseSegmentFilter_RejectsEmpty(t *testing.T) {
	_, err := ParseSegmentFilter("   ")
	assert.Error(t, err)
}
