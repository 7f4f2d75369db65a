package metadata

import (
	"errors"
	"fmt"
	"time"

	"github.com/apache/atr/internal/atrerr"
)

// FormatRevisionNumber zero-pads a revision sequence to the minimum 5 digits
// required by §6 "Revision number format".
func FormatRevisionNumber(seq int) string {
	return fmt.Sprintf("%05d", seq)
}

type RevisionFilter struct {
	ReleaseID *uint
}

func (sess *Session) FindRevisions(f RevisionFilter) ([]Revision, error) {
	q := sess.tx.Model(&Revision{}).Order("seq ASC")
	if f.ReleaseID != nil {
		q = q.Where("release_id = ?", *f.ReleaseID)
	}
	var out []Revision
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// LatestRevision returns the highest-seq revision for a release, or nil if
// the release has none yet.
func (sess *Session) LatestRevision(releaseID uint) (*Revision, error) {
	var r Revision
	err := sess.tx.Where("release_id = ?", releaseID).Order("seq DESC").First(&r).Error
	if err != nil {
		if errors.Is(Demand(err, nil), ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// AllocateNextRevision takes the release-scoped write lock, bumps the
// RevisionCounter, and inserts a new Revision row -- steps 5 of the
// create_and_manage sequence in §4.C. The caller (Revision Manager) performs
// the filesystem rename between the counter bump and the commit so that the
// directory and the row appear together or not at all.
func (sess *Session) AllocateNextRevision(releaseID uint, author string, phaseAtCreation Phase, parentRevisionID *uint, description string) (*Revision, error) {
	if err := sess.AcquireReleaseWriteLock(releaseID); err != nil {
		return nil, fmt.Errorf("metadata: acquire write lock: %w", err)
	}

	var counter RevisionCounter
	if err := sess.tx.First(&counter, "release_id = ?", releaseID).Error; err != nil {
		return nil, Demand(err, atrerr.NotFoundf("no revision counter for release %d", releaseID))
	}

	nextSeq := counter.LastAllocatedNumber + 1
	if err := sess.tx.Model(&counter).Update("last_allocated_number", nextSeq).Error; err != nil {
		return nil, err
	}

	rev := &Revision{
		ReleaseID:        releaseID,
		Seq:              nextSeq,
		Number:           FormatRevisionNumber(nextSeq),
		Author:           author,
		CreatedAt:        time.Now(),
		PhaseAtCreation:  phaseAtCreation,
		ParentRevisionID: parentRevisionID,
		Description:      description,
	}
	if err := sess.tx.Create(rev).Error; err != nil {
		return nil, err
	}
	if err := sess.tx.Model(&Release{}).Where("id = ?", releaseID).Update("latest_revision_number", nextSeq).Error; err != nil {
		return nil, err
	}
	return rev, nil
}
