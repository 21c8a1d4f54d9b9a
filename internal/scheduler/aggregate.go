package scheduler

import (
	"fmt"
	"time"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
)

// Aggregate folds a run into its terminal outcome. A run is completed only
// when every step succeeded; any failed step, or a run that never got to its
// steps, fails the record.
func Aggregate(results []domain.StepResult, runErr error, now time.Time) domain.Outcome {
	out := domain.Outcome{
		Status:     domain.StatusCompleted,
		Results:    results,
		FinishedAt: now.UTC(),
	}

	if runErr != nil {
		reason := runErr.Error()
		out.Status = domain.StatusFailed
		out.FailureReason = &reason
		return out
	}

	failed := 0
	for _, r := range results {
		if r.Status != domain.StepSuccess {
			failed++
		}
	}
	if failed > 0 {
		reason := fmt.Sprintf("%d of %d steps failed", failed, len(results))
		out.Status = domain.StatusFailed
		out.FailureReason = &reason
	}
	return out
}
