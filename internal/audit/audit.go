// Package audit implements the append-only audit log described in §4.G and
// §6: JSON Lines, fields datetime (ISO 8601 UTC, Z suffix) + action (dotted
// function name) + arbitrary domain keys, written to audit/storage-audit.log.
//
// Grounded on the teacher's auth.audit() method (auth/auth.go), generalized
// per Design Notes "Audit log as a channel": callers never touch disk
// directly. Record pushes onto a buffered channel; a single goroutine owns
// the file and serializes writes.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Entry is one audit record. Action is a dotted function name, e.g.
// "revision.create" or "release.announce". Fields carries whatever domain
// keys the caller supplies (project, version, revision number, user id...).
type Entry struct {
	Datetime time.Time
	Action   string
	Fields   map[string]any
}

func (e Entry) marshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["datetime"] = e.Datetime.UTC().Format("2006-01-02T15:04:05.000Z")
	m["action"] = e.Action
	return json.Marshal(m)
}

// Writer owns the audit log file and drains a buffered channel of entries.
// Construct with NewWriter, call Start to launch the drain goroutine, Record
// to enqueue (non-blocking up to the channel capacity), and Close to flush
// and stop.
type Writer struct {
	ch     chan Entry
	done   chan struct{}
	file   *os.File
	logger *logrus.Entry
}

const channelCapacity = 4096

// NewWriter opens (creating if absent) <stateDir>/audit/storage-audit.log.
func NewWriter(stateDir string, logger *logrus.Entry) (*Writer, error) {
	dir := filepath.Join(stateDir, "audit")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "storage-audit.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{
		ch:     make(chan Entry, channelCapacity),
		done:   make(chan struct{}),
		file:   f,
		logger: logger,
	}, nil
}

// Start launches the single writer goroutine. Call once.
func (w *Writer) Start() {
	go func() {
		defer close(w.done)
		for e := range w.ch {
			data, err := e.marshalJSON()
			if err != nil {
				w.logger.WithError(err).Error("audit: failed to marshal entry")
				continue
			}
			data = append(data, '\n')
			if _, err := w.file.Write(data); err != nil {
				w.logger.WithError(err).Error("audit: failed to write entry")
			}
		}
	}()
}

// Record enqueues an audit entry. Never blocks the caller on disk I/O; only
// blocks if the channel itself is full, which would indicate the writer
// goroutine has fallen far behind.
func (w *Writer) Record(action string, fields map[string]any) {
	w.ch <- Entry{Datetime: time.Now(), Action: action, Fields: fields}
}

// Close stops accepting new entries, drains the channel, and closes the file.
func (w *Writer) Close() error {
	close(w.ch)
	<-w.done
	return w.file.Close()
}
