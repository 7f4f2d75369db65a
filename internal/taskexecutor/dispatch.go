package taskexecutor

import (
	"context"
	"fmt"

	"github.com/apache/atr/internal/metadata"
)

// Handler processes one claimed task and returns its JSON-serializable
// result, or an error to be recorded as the task's failure text. Per Design
// Notes "Dynamic task dispatch", handlers are registered in a statically
// built map rather than resolved by reflection; the Registry.Register calls
// in cmd/atrworker's wiring make the TaskType -> Handler mapping visible at
// a single call site. Only the types registered there have a handler.
type Handler func(ctx context.Context, store *metadata.Store, task *metadata.Task) (result []byte, err error)

// Registry is the statically populated TaskType -> Handler map.
type Registry struct {
	handlers map[Type]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Type]Handler)}
}

// Register binds a handler to a task type. Calling Register twice for the
// same type is a programming error and panics immediately, so a duplicate
// registration is caught at wiring time rather than at dispatch time.
func (r *Registry) Register(t Type, h Handler) {
	if _, exists := r.handlers[t]; exists {
		panic(fmt.Sprintf("taskexecutor: handler already registered for %s", t))
	}
	r.handlers[t] = h
}

// Dispatch looks up and invokes the handler for task.Type. An unregistered
// type returns a plain error, so the task row is marked FAILED rather than
// crashing the worker, per §7 "Task handlers catch everything."
func (r *Registry) Dispatch(ctx context.Context, store *metadata.Store, task *metadata.Task) ([]byte, error) {
	h, ok := r.handlers[Type(task.Type)]
	if !ok {
		return nil, fmt.Errorf("taskexecutor: no handler registered for task type %q", task.Type)
	}
	return h(ctx, store, task)
}
