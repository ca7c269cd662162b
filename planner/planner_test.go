package planner

import (
	"testing"

	"github.com/sendwave/campaignsched/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func senderIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = string(rune('A' + i))
	}
	return ids
}

// S1 — 6 senders x 30 recipients, P=1, R=2, H=24.
func TestPlan_S1(t *testing.T) {
	p, err := Plan(types.Params{
		SenderIDs:                senderIDs(6),
		RecipientCount:           30,
		EmailsPerHour:            1,
		EmailsPerRecipientPerDay: 2,
		WorkingHours:             24,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, p.CalculatedDays)
	assert.Equal(t, 3, p.GroupInfo.TotalGroups)
	assert.Equal(t, 2, p.GroupInfo.DaysPerGroup)
	assert.Equal(t, 24, p.GroupInfo.SenderDailyCapacity)
	assert.Len(t, p.StatusMatrixSeed, 180)
}

// S2 — 4 senders x 30 recipients, P=2, R=2, H=24.
func TestPlan_S2(t *testing.T) {
	p, err := Plan(types.Params{
		SenderIDs:                senderIDs(4),
		RecipientCount:           30,
		EmailsPerHour:            2,
		EmailsPerRecipientPerDay: 2,
		WorkingHours:             24,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, p.CalculatedDays)
	assert.Equal(t, 2, p.GroupInfo.TotalGroups)
	assert.Equal(t, 1, p.GroupInfo.DaysPerGroup)
	assert.Equal(t, 48, p.GroupInfo.SenderDailyCapacity)
	assert.Len(t, p.StatusMatrixSeed, 120)
}

// S3 — 6 senders x 30 recipients, P=0.5, R=3, H=24.
func TestPlan_S3(t *testing.T) {
	p, err := Plan(types.Params{
		SenderIDs:                senderIDs(6),
		RecipientCount:           30,
		EmailsPerHour:            0.5,
		EmailsPerRecipientPerDay: 3,
		WorkingHours:             24,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, p.CalculatedDays)
	assert.Equal(t, 2, p.GroupInfo.TotalGroups)
	assert.Equal(t, 3, p.GroupInfo.DaysPerGroup)
}

// S4 — 1 sender x 1 recipient, P=1, R=1, H=1.
func TestPlan_S4(t *testing.T) {
	p, err := Plan(types.Params{
		SenderIDs:                senderIDs(1),
		RecipientCount:           1,
		EmailsPerHour:            1,
		EmailsPerRecipientPerDay: 1,
		WorkingHours:             1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, p.CalculatedDays)
	assert.Equal(t, 1, p.TotalEmails)
}

func TestPlan_RejectsInvalidInput(t *testing.T) {
	_, err := Plan(types.Params{RecipientCount: 10, EmailsPerHour: 1, EmailsPerRecipientPerDay: 1})
	assert.Error(t, err, "no senders")

	_, err = Plan(types.Params{SenderIDs: []string{"a"}, EmailsPerHour: 1, EmailsPerRecipientPerDay: 1})
	assert.Error(t, err, "zero recipients")

	_, err = Plan(types.Params{SenderIDs: []string{"a"}, RecipientCount: 1, EmailsPerRecipientPerDay: 1})
	assert.Error(t, err, "non-positive emailsPerHour")

	_, err = Plan(types.Params{SenderIDs: []string{"a"}, RecipientCount: 1, EmailsPerHour: 1})
	assert.Error(t, err, "non-positive emailsPerRecipientPerDay")
}

// Property: matrix completeness — seeded Pending cells == |senders| * N
// whenever a single group covers every sender (R >= |senders|).
func TestPlan_MatrixCompletenessSingleGroup(t *testing.T) {
	p, err := Plan(types.Params{
		SenderIDs:                senderIDs(5),
		RecipientCount:           17,
		EmailsPerHour:            3,
		EmailsPerRecipientPerDay: 5,
		WorkingHours:             24,
	})
	require.NoError(t, err)
	assert.Len(t, p.StatusMatrixSeed, 5*17)
}

// Property: diversity cap — no recipient sees more than R distinct
// senders on any single day.
func TestPlan_DiversityCap(t *testing.T) {
	const r = 2
	p, err := Plan(types.Params{
		SenderIDs:                senderIDs(7),
		RecipientCount:           50,
		EmailsPerHour:            5,
		EmailsPerRecipientPerDay: r,
		WorkingHours:             24,
	})
	require.NoError(t, err)

	for _, day := range p.DailySchedule {
		byRecipient := map[int]map[string]bool{}
		for _, sd := range day.PerSender {
			for _, idx := range sd.RecipientIdx {
				if byRecipient[idx] == nil {
					byRecipient[idx] = map[string]bool{}
				}
				byRecipient[idx][sd.SenderID] = true
			}
		}
		for recipient, senders := range byRecipient {
			assert.LessOrEqualf(t, len(senders), r, "day %d recipient %d saw %d senders", day.Day, recipient, len(senders))
		}
	}
}

// Property: per-sender daily cap and length alignment.
func TestPlan_DailyCapAndLengthAlignment(t *testing.T) {
	p, err := Plan(types.Params{
		SenderIDs:                senderIDs(3),
		RecipientCount:           41,
		EmailsPerHour:            4,
		EmailsPerRecipientPerDay: 3,
		WorkingHours:             10,
	})
	require.NoError(t, err)

	dailyCap := p.GroupInfo.SenderDailyCapacity
	for _, day := range p.DailySchedule {
		for _, sd := range day.PerSender {
			assert.LessOrEqual(t, len(sd.RecipientIdx), dailyCap)
			assert.Equal(t, len(sd.RecipientIdx), len(sd.PlannedTimes))
		}
	}
}

// Property: completion bound.
func TestPlan_CompletionBound(t *testing.T) {
	senders := 7
	r := 2
	n := 123
	perHour := 6.0
	hours := 24

	p, err := Plan(types.Params{
		SenderIDs:                senderIDs(senders),
		RecipientCount:           n,
		EmailsPerHour:            perHour,
		EmailsPerRecipientPerDay: r,
		WorkingHours:             hours,
	})
	require.NoError(t, err)

	wantGroups := (senders + r - 1) / r
	wantCapacity := 144 // ceil(6*24)
	wantDaysPerGroup := (n + wantCapacity - 1) / wantCapacity
	assert.Equal(t, wantGroups*wantDaysPerGroup, p.CalculatedDays)
}

func TestPlan_StrictGroupsTruncatesInsteadOfWrapping(t *testing.T) {
	p, err := Plan(types.Params{
		SenderIDs:                senderIDs(5),
		RecipientCount:           10,
		EmailsPerHour:            10,
		EmailsPerRecipientPerDay: 2,
		WorkingHours:             24,
		StrictGroups:             true,
	})
	require.NoError(t, err)
	// groups of 2: [A B] [C D] [E] -- three groups, last one short
	assert.Equal(t, 3, p.GroupInfo.TotalGroups)
}
