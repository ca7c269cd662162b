package scheduler

import "github.com/sendwave/campaignsched/internal/types"

// StatusMatrix is a sparse two-level view: recipient -> sender -> status.
type StatusMatrix map[string]map[string]types.JobStatus

// buildMatrix derives the status matrix and aggregate statistics from a
// task's jobs in a single pass. Callers must hold the scheduler lock.
func buildMatrix(jobs []*types.Job) (StatusMatrix, types.TaskStatistics) {
	matrix := make(StatusMatrix)
	var stats types.TaskStatistics

	for _, j := range jobs {
		bySender, ok := matrix[j.RecipientID]
		if !ok {
			bySender = make(map[string]types.JobStatus)
			matrix[j.RecipientID] = bySender
		}
		bySender[j.SenderID] = j.Status

		stats.TotalEmails++
		switch j.Status {
		case types.JobPending:
			stats.TotalPending++
		case types.JobProcessing:
			stats.TotalProcessing++
		case types.JobSent:
			stats.TotalSent++
		case types.JobFailed:
			stats.TotalFailed++
		}
	}

	if stats.TotalSent+stats.TotalFailed > 0 {
		stats.SuccessRate = float64(stats.TotalSent) / float64(stats.TotalSent+stats.TotalFailed)
	}
	if stats.TotalEmails > 0 {
		stats.ProgressPercent = float64(stats.TotalSent+stats.TotalFailed) / float64(stats.TotalEmails) * 100
	}

	return matrix, stats
}
