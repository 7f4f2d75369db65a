// Package releasestate implements the Release State Machine (component D):
// the phase transition table of §4.D.
//
// Grounded on the teacher's coordinator/coordinator.go PhaseManager +
// MessageType-keyed handler map, adapted from a websocket-driven phase
// tracker into a plain transition-table dispatcher (the websocket transport
// itself has no role here -- see DESIGN.md "Dropped teacher dependencies").
package releasestate

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/atr/internal/atrerr"
	"github.com/apache/atr/internal/content"
	"github.com/apache/atr/internal/metadata"
)

// Machine drives phase transitions for releases, coordinating the Metadata
// Store and Content Store as required by the PREVIEW -> RELEASE move.
type Machine struct {
	store   *metadata.Store
	content *content.Store
}

func NewMachine(store *metadata.Store, contentStore *content.Store) *Machine {
	return &Machine{store: store, content: contentStore}
}

// Start implements the (-) -> CANDIDATE_DRAFT transition: caller is
// committee member or committer of the owning committee; (project, version)
// does not exist; version string valid.
func (m *Machine) Start(ctx context.Context, callerUID, committeeName, project, version string) (*metadata.Release, error) {
	var rel *metadata.Release
	err := m.store.WithSession(ctx, func(sess *metadata.Session) error {
		committee, err := sess.GetCommittee(committeeName)
		if err != nil {
			return err
		}
		if !committee.IsParticipant(callerUID) {
			return atrerr.AccessDeniedf("caller %q is not a committer or member of committee %q", callerUID, committeeName)
		}
		r, err := sess.StartRelease(project, version)
		if err != nil {
			return err
		}
		rel = r
		return nil
	})
	return rel, err
}

// PromoteToCandidate implements CANDIDATE_DRAFT -> CANDIDATE: no in-flight
// checks for the target revision; revisionNumber is the latest; at least
// one file present; still in draft phase. The optimistic-concurrency check
// itself lives in metadata.PromoteToCandidate.
func (m *Machine) PromoteToCandidate(ctx context.Context, project, version string, revisionNumber int, manualVote bool, hasInFlightChecks func(releaseID uint, revisionNumber int) (bool, error)) error {
	return m.store.WithSession(ctx, func(sess *metadata.Session) error {
		rel, err := sess.GetRelease(project, version)
		if err != nil {
			return err
		}
		if rel.Phase != metadata.PhaseCandidateDraft {
			return atrerr.Validationf("release %s-%s is not in CANDIDATE_DRAFT", project, version)
		}
		if hasInFlightChecks != nil {
			inFlight, err := hasInFlightChecks(rel.ID, revisionNumber)
			if err != nil {
				return err
			}
			if inFlight {
				return atrerr.Conflictf("checks are still in flight for revision %05d", revisionNumber)
			}
		}
		latest, err := sess.LatestRevision(rel.ID)
		if err != nil {
			return err
		}
		if latest == nil {
			return atrerr.Validationf("release %s-%s has no files present", project, version)
		}
		if latest.Seq != revisionNumber {
			return atrerr.Conflictf("a newer revision appeared, please refresh and try again")
		}
		entries, err := os.ReadDir(m.content.UnfinishedPath(project, version, latest.Number))
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return atrerr.Validationf("release %s-%s has no files present", project, version)
		}
		return sess.PromoteToCandidate(rel.ID, revisionNumber, manualVote)
	})
}

// VoteFailed implements CANDIDATE -> CANDIDATE_DRAFT.
func (m *Machine) VoteFailed(ctx context.Context, releaseID uint) error {
	return m.store.WithSession(ctx, func(sess *metadata.Session) error {
		return sess.ReturnToDraft(releaseID)
	})
}

// VotePassed implements CANDIDATE -> PREVIEW.
func (m *Machine) VotePassed(ctx context.Context, releaseID uint) error {
	return m.store.WithSession(ctx, func(sess *metadata.Session) error {
		return sess.EnterPreview(releaseID)
	})
}

// AnnounceInput bundles the Announce preconditions of §4.D.
type AnnounceInput struct {
	Project        string
	Version        string
	CommitteeName  string
	PreviewRevNum  int
	Recipient      string
	PermittedList  []string
	Subject        string
	Body           string
	PathSuffix     string
	PreserveDownloadFiles bool
}

// Announce implements PREVIEW -> RELEASE, the most intricate transition of
// §4.D: moves the staged tree from unfinished/ to finished/<committee>/...,
// hard-links it into downloads/<committee>/<path-suffix>/, sets
// released=now, deletes all prior revision rows, all within one database
// transaction, with a dry-run of the downloads hard-link performed first.
func (m *Machine) Announce(ctx context.Context, in AnnounceInput, enqueueAnnounce func(sess *metadata.Session, rel *metadata.Release) error) error {
	permitted := false
	for _, r := range in.PermittedList {
		if r == in.Recipient {
			permitted = true
			break
		}
	}
	if !permitted {
		return atrerr.AccessDeniedf("recipient %q is not in the permitted announce list", in.Recipient)
	}

	return m.store.WithSession(ctx, func(sess *metadata.Session) error {
		rel, err := sess.GetRelease(in.Project, in.Version)
		if err != nil {
			return err
		}
		if rel.Phase != metadata.PhasePreview {
			return atrerr.Validationf("release %s-%s is not in PREVIEW", in.Project, in.Version)
		}
		latest, err := sess.LatestRevision(rel.ID)
		if err != nil {
			return err
		}
		if latest == nil || latest.Seq != in.PreviewRevNum {
			return atrerr.Conflictf("preview revision does not match")
		}

		finishedPath := m.content.FinishedPath(in.CommitteeName, in.PathSuffix)
		downloadsPath := m.content.DownloadsPath(in.CommitteeName, in.PathSuffix)
		if _, err := os.Stat(finishedPath); err == nil {
			return atrerr.Conflictf("final directory %q already present", finishedPath)
		}

		stagedPath := m.content.UnfinishedPath(in.Project, in.Version, latest.Number)

		// Dry-run the downloads hard-link first, before any filesystem move
		// happens, so a walk or stat error stops the announce early. Files
		// already under downloads are not refused here: existOK is true, and
		// the real clone below replaces them.
		if !in.PreserveDownloadFiles {
			if err := content.Clone(stagedPath, downloadsPath, true, true); err != nil {
				return fmt.Errorf("releasestate: downloads dry-run collision: %w", err)
			}
		}

		if err := content.AtomicRename(stagedPath, finishedPath); err != nil {
			return fmt.Errorf("releasestate: move to finished: %w", err)
		}

		if in.PreserveDownloadFiles {
			if _, err := content.CloneSkipExisting(finishedPath, downloadsPath); err != nil {
				return fmt.Errorf("releasestate: hardlink to downloads: %w", err)
			}
		} else {
			if err := content.Clone(finishedPath, downloadsPath, true, false); err != nil {
				return fmt.Errorf("releasestate: hardlink to downloads: %w", err)
			}
		}

		if err := sess.EnterRelease(rel.ID); err != nil {
			return err
		}

		if enqueueAnnounce != nil {
			if err := enqueueAnnounce(sess, rel); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete implements the "any -> (deleted)" transition: caller is project
// committee member; RELEASE phase requires admin. isAdmin/isCommitteeMember
// are supplied by the caller (the authz facade already resolved them).
func (m *Machine) Delete(ctx context.Context, project, version string, isCommitteeMember, isAdmin bool) error {
	return m.store.WithSession(ctx, func(sess *metadata.Session) error {
		rel, err := sess.GetRelease(project, version)
		if err != nil {
			return err
		}
		if !isCommitteeMember {
			return atrerr.AccessDeniedf("caller is not a committee member for project %q", project)
		}
		if rel.Phase == metadata.PhaseRelease && !isAdmin {
			return atrerr.AccessDeniedf("deleting a RELEASE-phase release requires a foundation admin")
		}
		return sess.DeleteRelease(rel.ID)
	})
}
