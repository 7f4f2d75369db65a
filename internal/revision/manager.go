// Package revision implements the Revision Manager (component C): the
// create_and_manage scoped acquisition of §4.C, as an RAII/defer-style Go
// construct per Design Notes "Revision lifecycle as a scoped resource."
//
// No single teacher file implements this exact scope; the pattern is
// grounded in how the teacher's own GORM usage wraps everything in
// db.Transaction(func(tx *gorm.DB) error {...}) (acquire, run, commit-or-
// rollback), generalized here to additionally manage a staging directory on
// the filesystem alongside the database transaction.
package revision

import (
	"context"
	"fmt"

	"github.com/apache/atr/internal/atrerr"
	"github.com/apache/atr/internal/content"
	"github.com/apache/atr/internal/metadata"
)

// Creating is the handle yielded to the caller's mutation callback. OldPath
// is the prior revision's sealed directory (empty if this is the first
// revision). InterimPath is the staging directory the caller mutates
// arbitrarily. Failed is set by the caller to signal a clean abort (the
// "Failed" kind of §7) without raising a Go error.
type Creating struct {
	OldPath     string
	InterimPath string
	Failed      string // non-empty means the caller wants a clean abort with this message
}

// Fail records an abort reason and returns the formatted message; the
// mutate callback then returns nil: `c.Fail("no files present"); return nil`.
func (c *Creating) Fail(format string, args ...any) string {
	c.Failed = fmt.Sprintf(format, args...)
	return c.Failed
}

// Result is the sum-typed outcome of CreateAndManage: exactly one of
// Revision or FailedMessage is set, never both, never neither (unless an
// error was also returned).
type Result struct {
	Revision     *metadata.Revision
	FailedMessage string
}

// CheckTrigger is invoked after a successful commit when the release's
// phase at creation time was CANDIDATE_DRAFT, to enqueue checks for the new
// revision (§4.C step 6). Implemented by the Check Orchestrator.
type CheckTrigger func(ctx context.Context, sess *metadata.Session, rev *metadata.Revision) error

// Manager coordinates the Content Store and Metadata Store for revision
// creation.
type Manager struct {
	store   *metadata.Store
	content *content.Store
}

func NewManager(store *metadata.Store, contentStore *content.Store) *Manager {
	return &Manager{store: store, content: contentStore}
}

// CreateAndManage implements the eight steps of §4.C exactly:
//
//  1. look up latest revision (old)
//  2. create staging dir under tmp/
//  3. clone-by-hardlink old into staging, if old exists
//  4. yield Creating to mutate
//  5. on non-exceptional exit: normalize perms, write-lock, allocate
//     revision, rename staging into place, commit, release lock
//  6. if phase is CANDIDATE_DRAFT, invoke the check trigger
//  7. on caller-set Failed: discard staging, return Result{FailedMessage}
//  8. on any other error: discard staging, return the error
func (m *Manager) CreateAndManage(
	ctx context.Context,
	project, version string,
	author string,
	description string,
	mutate func(c *Creating) error,
	onCommit CheckTrigger,
) (Result, error) {
	var result Result

	err := m.store.WithSession(ctx, func(sess *metadata.Session) error {
		rel, err := sess.GetRelease(project, version)
		if err != nil {
			return err
		}
		// Revision creation is normally gated to the mutable DRAFT phase
		// (§4.C "no revision is created for a release not in a mutable
		// phase"). The one exception is the PREVIEW entry clone of §4.H,
		// which CloneForPreview drives immediately after the vote
		// coordinator has already moved the release to PREVIEW.
		if rel.Phase != metadata.PhaseCandidateDraft && rel.Phase != metadata.PhasePreview {
			return atrerr.Validationf("release %s-%s is not in a mutable phase", project, version)
		}

		latest, err := sess.LatestRevision(rel.ID)
		if err != nil {
			return err
		}

		staging, err := m.content.NewStagingDir(fmt.Sprintf("%s-%s", project, version))
		if err != nil {
			return err
		}
		// Step 7/8: any path out of this function below that doesn't reach
		// the final AtomicRename must discard the staging directory.
		committed := false
		defer func() {
			if !committed {
				_ = content.RecursiveDelete(staging)
			}
		}()

		creating := &Creating{InterimPath: staging}
		if latest != nil {
			creating.OldPath = m.content.UnfinishedPath(project, version, latest.Number)
			if err := content.Clone(creating.OldPath, staging, true, false); err != nil {
				return fmt.Errorf("revision: clone prior revision: %w", err)
			}
		}

		if err := mutate(creating); err != nil {
			return err
		}

		if creating.Failed != "" {
			result = Result{FailedMessage: creating.Failed}
			return nil
		}

		if err := content.ChmodDirectories(staging); err != nil {
			return fmt.Errorf("revision: normalize permissions: %w", err)
		}

		var parentID *uint
		if latest != nil {
			parentID = &latest.ID
		}
		rev, err := sess.AllocateNextRevision(rel.ID, author, rel.Phase, parentID, description)
		if err != nil {
			return fmt.Errorf("revision: allocate: %w", err)
		}

		finalPath := m.content.UnfinishedPath(project, version, rev.Number)
		if err := content.AtomicRename(staging, finalPath); err != nil {
			return fmt.Errorf("revision: rename into place: %w", err)
		}
		committed = true

		result = Result{Revision: rev}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if result.Revision != nil && result.Revision.PhaseAtCreation == metadata.PhaseCandidateDraft && onCommit != nil {
		if err := m.store.WithSession(ctx, func(sess *metadata.Session) error {
			return onCommit(ctx, sess, result.Revision)
		}); err != nil {
			return result, fmt.Errorf("revision: check trigger: %w", err)
		}
	}
	return result, nil
}

// CloneForPreview builds the revision that PREVIEW creation requires (§4.H
// "Resolve": "a new preview revision is created (hard-linked clone of the
// candidate)"). It is a thin wrapper around CreateAndManage whose mutate
// callback does nothing -- the hardlink clone of the latest revision already
// happens in step 3.
func (m *Manager) CloneForPreview(ctx context.Context, project, version, author string, onCommit CheckTrigger) (Result, error) {
	return m.CreateAndManage(ctx, project, version, author, "preview clone", func(c *Creating) error {
		return nil
	}, onCommit)
}
