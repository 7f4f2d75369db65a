package taskexecutor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/apache/atr/internal/metadata"
)

// Config configures a Worker, grounded on the teacher's worker.Config
// (Queues map[string]int), trimmed to the single durable queue ATR needs
// plus the batch-size bound of §4.E step 5.
type Config struct {
	// TasksPerRun bounds how many tasks a single worker processes before
	// exiting, so a supervisor restarts it (§4.E step 5, "bounds memory
	// leaks"). Default 10.
	TasksPerRun int
	// PollInterval is the sleep between empty-claim retries (§4.E step 2,
	// "~100ms").
	PollInterval time.Duration
	// WakeChannel is the Redis pub/sub channel new tasks are published on,
	// so idle workers do not rely solely on polling (Domain Stack: kept
	// from the teacher's db/repository/redis.go Publish/Subscribe idiom as
	// an optimization layered over the durable database claim).
	WakeChannel string
}

func DefaultConfig() Config {
	return Config{
		TasksPerRun:  10,
		PollInterval: 100 * time.Millisecond,
		WakeChannel:  "atr:tasks:wake",
	}
}

// Worker runs the claim loop of §4.E against one Registry and Store.
type Worker struct {
	cfg      Config
	store    *metadata.Store
	registry *Registry
	redis    *redis.Client
	log      *logrus.Entry
	pid      string
}

func NewWorker(cfg Config, store *metadata.Store, registry *Registry, redisClient *redis.Client, log *logrus.Entry) *Worker {
	return &Worker{
		cfg:      cfg,
		store:    store,
		registry: registry,
		redis:    redisClient,
		log:      log,
		pid:      uuid.NewString(),
	}
}

// Run executes up to TasksPerRun iterations of the claim loop, then returns,
// matching §4.E step 5's "after processing N tasks, exit." The caller (a
// supervisor, e.g. a cobra command with a restart loop) decides whether to
// call Run again.
func (w *Worker) Run(ctx context.Context) error {
	processed := 0
	for processed < w.cfg.TasksPerRun {
		select {
		case <-ctx.Done():
			// Worker shutdown cancels the claim loop but lets any in-flight
			// handler finish (§5); since processNext already awaits its
			// handler synchronously, returning here is safe.
			return ctx.Err()
		default:
		}

		claimed, err := w.claim(ctx)
		if err != nil {
			w.log.WithError(err).Error("taskexecutor: claim failed")
			time.Sleep(w.cfg.PollInterval)
			continue
		}
		if claimed == nil {
			if !w.waitForWake(ctx) {
				time.Sleep(w.cfg.PollInterval)
			}
			continue
		}

		w.processNext(context.WithoutCancel(ctx), claimed)
		processed++
	}
	return nil
}

func (w *Worker) claim(ctx context.Context) (*metadata.Task, error) {
	var claimed *metadata.Task
	err := w.store.WithSession(ctx, func(sess *metadata.Session) error {
		t, err := sess.ClaimNextTask(w.pid)
		if err != nil {
			return err
		}
		claimed = t
		return nil
	})
	return claimed, err
}

// waitForWake blocks briefly on the Redis wake channel; returns true if a
// wake notification arrived, false on timeout (in which case the caller
// falls back to its poll interval).
func (w *Worker) waitForWake(ctx context.Context) bool {
	if w.redis == nil {
		return false
	}
	sub := w.redis.Subscribe(ctx, w.cfg.WakeChannel)
	defer sub.Close()
	waitCtx, cancel := context.WithTimeout(ctx, w.cfg.PollInterval)
	defer cancel()
	_, err := sub.ReceiveMessage(waitCtx)
	return err == nil
}

// Notify publishes a wake notification for idle workers. Nothing in this
// module calls it: the enqueue paths do not publish, so idle workers pick up
// new tasks on their poll interval.
func Notify(ctx context.Context, client *redis.Client, channel string) {
	if client == nil {
		return
	}
	client.Publish(ctx, channel, "wake")
}

// processNext dispatches the claimed task and records its outcome (§4.E
// steps 3-4). Handler panics are recovered and converted to a FAILED
// outcome, per §7 "Task handlers catch everything... never crash the
// worker."
func (w *Worker) processNext(ctx context.Context, task *metadata.Task) {
	result, err := w.safeDispatch(ctx, task)

	recordErr := w.store.WithSession(ctx, func(sess *metadata.Session) error {
		if err != nil {
			return sess.FailTask(task.ID, err.Error())
		}
		return sess.CompleteTask(task.ID, result)
	})
	if recordErr != nil {
		w.log.WithError(recordErr).WithField("task_id", task.ID).Error("taskexecutor: failed to record outcome")
	}
}

func (w *Worker) safeDispatch(ctx context.Context, task *metadata.Task) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("taskexecutor: handler panic: %v", r)
		}
	}()
	return w.registry.Dispatch(ctx, w.store, task)
}
