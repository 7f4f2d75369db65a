package metadata

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnqueueTask creates a new QUEUED task row.
func (sess *Session) EnqueueTask(t *Task) error {
	t.Status = TaskQueued
	t.Added = time.Now()
	return sess.tx.Create(t).Error
}

// ClaimNextTask implements §4.E step 1: in one transaction, select the oldest
// ready row (scheduled_at IS NULL OR scheduled_at <= now), ordered by added,
// and atomically transition it to ACTIVE, returning it. Returns (nil, nil)
// if nothing was ready to claim.
//
// SELECT ... FOR UPDATE SKIP LOCKED followed by an UPDATE is this module's
// Postgres-native equivalent of the teacher's Redis-queue "claim" step
// (worker/pool.go MarkProcessing), kept database-backed per §4.E "the
// executor holds no in-memory queue; durability and ordering come entirely
// from the database."
func (sess *Session) ClaimNextTask(workerPID string) (*Task, error) {
	var claimed *Task
	err := sess.tx.Transaction(func(tx *gorm.DB) error {
		var t Task
		now := time.Now()
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND (scheduled_at IS NULL OR scheduled_at <= ?)", TaskQueued, now).
			Order("added ASC").
			First(&t).Error
		if err != nil {
			if Demand(err, nil) == ErrNoRows {
				return nil
			}
			return err
		}
		res := tx.Model(&Task{}).Where("id = ? AND status = ?", t.ID, TaskQueued).
			Updates(map[string]any{"status": TaskActive, "started": &now, "worker_pid": workerPID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race to another worker; caller retries on next poll.
			return nil
		}
		t.Status = TaskActive
		t.Started = &now
		t.WorkerPID = workerPID
		claimed = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CompleteTask records a successful outcome (§4.E step 4).
func (sess *Session) CompleteTask(taskID uint, result []byte) error {
	now := time.Now()
	return sess.tx.Model(&Task{}).Where("id = ?", taskID).
		Updates(map[string]any{"status": TaskCompleted, "completed": &now, "result": result}).Error
}

// FailTask records a failed outcome (§4.E step 4).
func (sess *Session) FailTask(taskID uint, errText string) error {
	now := time.Now()
	return sess.tx.Model(&Task{}).Where("id = ?", taskID).
		Updates(map[string]any{"status": TaskFailed, "completed": &now, "error": errText}).Error
}

// Reschedule re-enqueues a completed task at a future time, for the
// recurring-task mechanism of §4.E ("a handler may re-enqueue itself with
// scheduled_at = now + interval").
func (sess *Session) Reschedule(t *Task, at time.Time) error {
	clone := *t
	clone.ID = 0
	clone.Status = TaskQueued
	clone.Added = time.Now()
	clone.Started = nil
	clone.Completed = nil
	clone.ScheduledAt = &at
	clone.Result = nil
	clone.Error = ""
	return sess.tx.Create(&clone).Error
}

type TaskFilter struct {
	Status *TaskStatus
	Type   *string
}

func (sess *Session) FindTasks(f TaskFilter) ([]Task, error) {
	q := sess.tx.Model(&Task{}).Order("added ASC")
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	var out []Task
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
