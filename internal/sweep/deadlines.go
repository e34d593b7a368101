package sweep

import (
	"context"
	"fmt"
	"log"
	"time"

	assignmentrepo "emeet/backend/internal/assignment/repository"
	"emeet/backend/internal/telemetry"
)

// DeadlineJob closes open assignments whose deadline has passed and marks their pending
// submissions overdue. Same shape as MeetingJob over different data.
type DeadlineJob struct {
	repo assignmentrepo.Repository
}

// NewDeadlineJob returns the assignment deadline sweep.
func NewDeadlineJob(repo assignmentrepo.Repository) *DeadlineJob {
	return &DeadlineJob{repo: repo}
}

func (j *DeadlineJob) Name() string { return "deadlines" }

func (j *DeadlineJob) Run(ctx context.Context, now time.Time) error {
	open, err := j.repo.ListOpen(ctx)
	if err != nil {
		telemetry.SweepFailure(j.Name())
		return fmt.Errorf("list open assignments: %w", err)
	}
	for _, a := range open {
		if !a.PastDeadline(now) {
			continue
		}
		closed, overdue, err := j.repo.Close(ctx, a.ID)
		if err != nil {
			telemetry.SweepFailure(j.Name())
			log.Printf("sweep: assignment %s: %v", a.ID, err)
			continue
		}
		if closed {
			telemetry.SweepTransition(j.Name(), "open", "closed")
			log.Printf("sweep: assignment %s closed, %d submissions overdue", a.ID, overdue)
		}
	}
	return nil
}
