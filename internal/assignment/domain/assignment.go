package domain

import "time"

// SubmissionStatus is the state of one student's submission.
type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionOverdue   SubmissionStatus = "overdue"
)

// Assignment is a piece of work with a deadline. Open assignments accept submissions.
type Assignment struct {
	ID        string
	Title     string
	Deadline  time.Time
	IsOpen    bool
	CreatedAt time.Time
}

// PastDeadline reports whether now is strictly after the deadline.
func (a *Assignment) PastDeadline(now time.Time) bool {
	return now.After(a.Deadline)
}

// Submission is one student's entry for an assignment.
type Submission struct {
	ID           string
	AssignmentID string
	StudentID    string
	Status       SubmissionStatus
	SubmittedAt  *time.Time
}
