// Package planner implements the pure, deterministic algorithm that
// turns a set of senders, a recipient population size, and throughput
// constraints into a multi-day delivery Plan. It performs no I/O and
// depends on no clock: the same Params always produce the same Plan.
package planner

import (
	"fmt"
	"math"

	"github.com/sendwave/campaignsched/internal/types"
)

// Plan runs the grouped-serial-execution algorithm described by the
// scheduler's planning contract. senderIDs must be non-empty and all
// enabled by the caller; recipientCount must be positive; emailsPerHour
// and emailsPerRecipientPerDay must be positive. Planning is total for
// any input satisfying those preconditions; for input that violates
// them, Plan returns an error.
func Plan(p types.Params) (types.Plan, error) {
	if len(p.SenderIDs) == 0 {
		return types.Plan{}, fmt.Errorf("planner: no senders")
	}
	if p.RecipientCount <= 0 {
		return types.Plan{}, fmt.Errorf("planner: recipient count must be positive")
	}
	if p.EmailsPerHour <= 0 {
		return types.Plan{}, fmt.Errorf("planner: emailsPerHour must be positive")
	}
	if p.EmailsPerRecipientPerDay <= 0 {
		return types.Plan{}, fmt.Errorf("planner: emailsPerRecipientPerDay must be positive")
	}

	workingHours := p.WorkingHours
	if workingHours <= 0 {
		workingHours = 24
	}

	r := p.EmailsPerRecipientPerDay
	n := p.RecipientCount
	senderDailyCapacity := int(math.Ceil(p.EmailsPerHour * float64(workingHours)))
	if senderDailyCapacity <= 0 {
		senderDailyCapacity = 1
	}

	groups := groupSenders(p.SenderIDs, r, p.StrictGroups)
	daysPerGroup := ceilDiv(n, senderDailyCapacity)
	calculatedDays := len(groups) * daysPerGroup

	var schedule []types.DaySchedule
	var seed []types.MatrixCell
	day := 0

	for _, group := range groups {
		for gd := 1; gd <= daysPerGroup; gd++ {
			day++
			lo := (gd - 1) * senderDailyCapacity
			hi := gd * senderDailyCapacity
			if hi > n {
				hi = n
			}

			recipientIdx := indexRange(lo, hi)
			total := 0
			perSender := make([]types.SenderDay, 0, len(group))
			for _, senderID := range group {
				times := slotTimes(len(recipientIdx), p.EmailsPerHour, workingHours)
				if len(times) != len(recipientIdx) {
					times = repairTimes(times, len(recipientIdx))
				}
				perSender = append(perSender, types.SenderDay{
					SenderID:     senderID,
					RecipientIdx: recipientIdx,
					PlannedTimes: times,
				})
				total += len(recipientIdx)
				for _, idx := range recipientIdx {
					seed = append(seed, types.MatrixCell{RecipientIdx: idx, SenderID: senderID})
				}
			}

			schedule = append(schedule, types.DaySchedule{
				Day:         day,
				PerSender:   perSender,
				TotalForDay: total,
			})
		}
	}

	return types.Plan{
		TotalEmails:    len(seed),
		CalculatedDays: calculatedDays,
		GroupInfo: types.GroupInfo{
			TotalGroups:         len(groups),
			DaysPerGroup:        daysPerGroup,
			SendersPerGroup:     r,
			SenderDailyCapacity: senderDailyCapacity,
		},
		DailySchedule:    schedule,
		StatusMatrixSeed: seed,
	}, nil
}

// groupSenders partitions senders into groups of size r, in input
// order. When len(senders) is not a multiple of r and strict is false
// (the observed source behaviour, see SPEC_FULL.md §9.1), the final
// group wraps around and reuses earlier senders so every group has
// exactly r members. When strict is true the final group is truncated
// instead, so no sender appears in two groups.
func groupSenders(senders []string, r int, strict bool) [][]string {
	if r <= 0 {
		r = 1
	}
	var groups [][]string
	for i := 0; i < len(senders); i += r {
		end := i + r
		if end > len(senders) {
			if strict {
				groups = append(groups, append([]string(nil), senders[i:]...))
				continue
			}
			group := make([]string, 0, r)
			for j := 0; j < r; j++ {
				group = append(group, senders[(i+j)%len(senders)])
			}
			groups = append(groups, group)
			continue
		}
		groups = append(groups, append([]string(nil), senders[i:end]...))
	}
	if len(groups) == 0 {
		groups = append(groups, senders)
	}
	return groups
}

// slotTimes distributes k messages evenly across each working hour,
// emitting "HH:MM" timestamps filling hour-by-hour until k slots exist.
func slotTimes(k int, emailsPerHour float64, workingHours int) []string {
	if k <= 0 {
		return nil
	}
	perHour := int(math.Ceil(emailsPerHour))
	if perHour <= 0 {
		perHour = 1
	}

	times := make([]string, 0, k)
	for hour := 0; hour < workingHours && len(times) < k; hour++ {
		for i := 0; i < perHour && len(times) < k; i++ {
			minute := (i * 60) / perHour
			times = append(times, fmt.Sprintf("%02d:%02d", hour, minute))
		}
	}
	return times
}

// repairTimes pads or truncates a mis-sized slot list to exactly n
// entries, falling back to day-start for any missing slot. Callers
// MUST detect and repair any length mismatch before a plan reaches the
// scheduler; this is that repair.
func repairTimes(times []string, n int) []string {
	repaired := make([]string, n)
	for i := 0; i < n; i++ {
		if i < len(times) {
			repaired[i] = times[i]
		} else {
			repaired[i] = "00:00"
		}
	}
	return repaired
}

func indexRange(lo, hi int) []int {
	idx := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		idx = append(idx, i)
	}
	return idx
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
