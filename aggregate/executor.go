package aggregate

import (
	"context"

	"github.com/altsrc/sourced"
)

// Executor loads an aggregate, executes a command against it and saves the
// resulting events back through the repository.
type Executor[A Rooter] func(ctx context.Context, id string, command func(A) error) error

// NewExecutor creates an executor for one aggregate type from an event
// reader, a repository and the aggregate factory.
func NewExecutor[A Rooter](reader EventReader, saver sourced.Saver, factory func() A) Executor[A] {
	return func(ctx context.Context, id string, command func(A) error) error {
		return Exec(ctx, reader, saver, id, factory, command)
	}
}

// Exec is the load-execute-save helper backing Executor.
func Exec[A Rooter](
	ctx context.Context,
	reader EventReader,
	saver sourced.Saver,
	id string,
	factory func() A,
	command func(A) error,
) error {
	agg, err := Load(ctx, reader, id, factory)
	if err != nil {
		return err
	}

	if err := command(agg); err != nil {
		return err
	}

	return saver.Save(ctx, agg)
}
