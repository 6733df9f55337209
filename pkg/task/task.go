package task

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("task",
	fx.Provide(NewEnqueuer),
)

// Enqueuer abstracts asynq task submission so services can be exercised
// without a redis backend.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type asynqEnqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) Enqueuer {
	return &asynqEnqueuer{client: client}
}

func (e *asynqEnqueuer) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return e.client.EnqueueContext(ctx, task, opts...)
}
