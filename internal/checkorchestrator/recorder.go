package checkorchestrator

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/apache/atr/internal/metadata"
)

// FunctionArguments is the bundle a checker handler receives: the task's
// targeting fields (§4.E step 3(b)). It carries no recorder factory; the
// Recorder reaches Checker.Run as a separate, already-built argument.
type FunctionArguments struct {
	ProjectName    string
	VersionName    string
	RevisionNumber string
	PrimaryRelPath string
	RevisionDir    string // absolute path to the sealed revision directory
	Raw            map[string]any
}

// AbsolutePrimaryPath joins RevisionDir and PrimaryRelPath.
func (a FunctionArguments) AbsolutePrimaryPath() string {
	return a.RevisionDir + "/" + a.PrimaryRelPath
}

// chunkSize is the BLAKE3 chunking size mandated by §4.F ("4 MiB-chunked
// BLAKE3 hash").
const chunkSize = 4 * 1024 * 1024

// HashFile computes a BLAKE3 hash of path, reading in 4 MiB chunks (the
// hasher itself streams internally; chunked reads here bound peak memory
// for very large artifacts, matching the spirit of §4.F without requiring
// the whole file in memory at once).
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, chunkSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, err := h.Write(buf[:n]); err != nil {
				return "", err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", readErr
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Recorder exposes success/warning/failure/exception to append a
// CheckResult row, and copies prior results forward on a cache hit. It is
// not constructed lazily: BuildHandler opens a session and builds the
// Recorder before the cache lookup, hit or miss, and passes the Recorder
// itself (not a factory) to the checker.
type Recorder struct {
	sess           *metadata.Session
	checker        string
	releaseID      uint
	revisionID     uint
	primaryRelPath string
}

// RecorderFactory is the signature of a deferred Recorder constructor.
// Nothing in this package produces or consumes one; BuildHandler calls
// newRecorder directly.
type RecorderFactory func() (*Recorder, error)

func newRecorder(sess *metadata.Session, checker string, releaseID, revisionID uint, primaryRelPath string) *Recorder {
	return &Recorder{sess: sess, checker: checker, releaseID: releaseID, revisionID: revisionID, primaryRelPath: primaryRelPath}
}

func (r *Recorder) record(status metadata.CheckStatus, message string, data map[string]any, memberRelPath *string) error {
	var blob []byte
	if data != nil {
		var err error
		blob, err = json.Marshal(data)
		if err != nil {
			return err
		}
	}
	return r.sess.RecordCheckResult(&metadata.CheckResult{
		Checker:        r.checker,
		ReleaseID:      r.releaseID,
		RevisionID:     r.revisionID,
		PrimaryRelPath: r.primaryRelPath,
		MemberRelPath:  memberRelPath,
		Status:         status,
		Message:        message,
		Data:           blob,
	})
}

func (r *Recorder) Success(message string, data map[string]any, memberRelPath *string) error {
	return r.record(metadata.CheckSuccess, message, data, memberRelPath)
}

func (r *Recorder) Warning(message string, data map[string]any, memberRelPath *string) error {
	return r.record(metadata.CheckWarning, message, data, memberRelPath)
}

func (r *Recorder) Failure(message string, data map[string]any, memberRelPath *string) error {
	return r.record(metadata.CheckFailure, message, data, memberRelPath)
}

func (r *Recorder) Exception(message string, data map[string]any, memberRelPath *string) error {
	return r.record(metadata.CheckException, message, data, memberRelPath)
}

// CopyForward duplicates prior CheckResult rows into the current revision
// verbatim, used on a cache hit (§4.F "it copies those prior per-member
// results forward into the current revision and returns cached=True").
func (r *Recorder) CopyForward(prior []metadata.CheckResult) error {
	for _, p := range prior {
		cr := &metadata.CheckResult{
			Checker:        r.checker,
			ReleaseID:      r.releaseID,
			RevisionID:     r.revisionID,
			PrimaryRelPath: r.primaryRelPath,
			MemberRelPath:  p.MemberRelPath,
			Status:         p.Status,
			Message:        p.Message,
			Data:           p.Data,
			InputHash:      p.InputHash,
		}
		if err := r.sess.RecordCheckResult(cr); err != nil {
			return err
		}
	}
	return nil
}
