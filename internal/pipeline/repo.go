package pipeline

import "context"

// Repo defines persistence for analysis jobs. Update writes the whole
// record keyed by job id with last-writer-wins semantics.
type Repo interface {
	Create(ctx context.Context, job Job) error
	GetByID(ctx context.Context, jobID string) (Job, error)
	Update(ctx context.Context, job Job) error
	List(ctx context.Context, limit, offset int) ([]Job, error)
}
