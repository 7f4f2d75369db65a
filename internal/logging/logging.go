// Package logging wires up structured logging for the ATR worker process.
// Modeled on the teacher's OutputSplitter: error-level entries go to stderr,
// everything else to stdout. Unlike the teacher, there is no package-level
// singleton — New is called once in main and the *logrus.Entry is threaded
// through every constructor (Design Notes: "Global state").
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes log lines to stdout or stderr by level marker.
type OutputSplitter struct {
	stdout io.Writer
	stderr io.Writer
}

func NewOutputSplitter() *OutputSplitter {
	return &OutputSplitter{stdout: os.Stdout, stderr: os.Stderr}
}

func (s *OutputSplitter) Write(p []byte) (int, error) {
	if containsErrorLevel(p) {
		return s.stderr.Write(p)
	}
	return s.stdout.Write(p)
}

func containsErrorLevel(p []byte) bool {
	for _, marker := range [][]byte{[]byte(`level=error`), []byte(`level=fatal`), []byte(`level=panic`)} {
		if indexOf(p, marker) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(haystack, needle []byte) int {
	n, m := len(haystack), len(needle)
	if m == 0 || m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if string(haystack[i:i+m]) == string(needle) {
			return i
		}
	}
	return -1
}

// New builds a logrus.Logger configured for the worker process.
func New(level string) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(NewOutputSplitter())
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
