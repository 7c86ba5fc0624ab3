package worker

import "context"

type JobType string

const (
	Refine JobType = "refine"
	Stop   JobType = "stop"
)

// RefineTask is one finished exchange queued for dossier refinement.
type RefineTask struct {
	UserID    int64
	UserText  string
	ReplyText string
}

type Job struct {
	Type   JobType
	Refine RefineTask
}

// Runner executes the actual refinement. Implemented by chat.Refiner.
type Runner interface {
	Refine(ctx context.Context, userID int64, userText, replyText string) error
}
