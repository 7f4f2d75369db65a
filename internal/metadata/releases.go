package metadata

import (
	"fmt"
	"regexp"
	"time"

	"github.com/apache/atr/internal/atrerr"
	"gorm.io/gorm"
)

// versionPattern enforces §3's Release invariant: version restricted to
// [A-Za-z0-9.+-], must begin and end alphanumeric.
var versionPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9.+-]*[A-Za-z0-9])?$`)

// ValidateVersion checks a proposed version string against the grammar in
// §3/§6 and the boundary cases of §8 (single alphanumeric char allowed;
// empty, or leading/trailing non-alphanumerics, rejected).
func ValidateVersion(version string) error {
	if version == "" || !versionPattern.MatchString(version) {
		return atrerr.Validationf("invalid version %q: must match [A-Za-z0-9.+-]+, begin and end alphanumeric", version)
	}
	return nil
}

// CanonicalReleaseName builds the canonical (project, version) -> name.
func CanonicalReleaseName(project, version string) string {
	return fmt.Sprintf("%s-%s", project, version)
}

type ReleaseFilter struct {
	ProjectName *string
	Version     *string
	Phase       *Phase
}

func (sess *Session) FindReleases(f ReleaseFilter) ([]Release, error) {
	q := sess.tx.Model(&Release{})
	if f.ProjectName != nil {
		q = q.Where("project_name = ?", *f.ProjectName)
	}
	if f.Version != nil {
		q = q.Where("version = ?", *f.Version)
	}
	if f.Phase != nil {
		q = q.Where("phase = ?", *f.Phase)
	}
	var out []Release
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (sess *Session) GetRelease(project, version string) (*Release, error) {
	var r Release
	err := sess.tx.First(&r, "project_name = ? AND version = ?", project, version).Error
	if err != nil {
		return nil, Demand(err, atrerr.NotFoundf("release %s-%s not found", project, version))
	}
	return &r, nil
}

// StartRelease creates a new Release in CANDIDATE_DRAFT phase. Returns
// Conflict if (project, version) already exists, per the D transition
// table's start precondition.
func (sess *Session) StartRelease(project, version string) (*Release, error) {
	if err := ValidateVersion(version); err != nil {
		return nil, err
	}
	if _, err := sess.GetRelease(project, version); err == nil {
		return nil, atrerr.Conflictf("release %s-%s already exists", project, version)
	} else if !atrerr.Is(err, atrerr.NotFound) {
		return nil, err
	}
	r := &Release{
		ProjectName: project,
		Version:     version,
		Name:        CanonicalReleaseName(project, version),
		Phase:       PhaseCandidateDraft,
		CreatedAt:   time.Now(),
	}
	if err := sess.tx.Create(r).Error; err != nil {
		return nil, err
	}
	if err := sess.tx.Create(&RevisionCounter{ReleaseID: r.ID}).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// PromoteToCandidate applies the optimistic-concurrency UPDATE described in
// §4.D: conditioned on phase AND latest-revision-number. Returns a Conflict
// error if the UPDATE affected zero rows (a newer revision appeared, or the
// release is no longer in draft phase).
func (sess *Session) PromoteToCandidate(releaseID uint, expectedLatestRevisionNumber int, manualVote bool) error {
	res := sess.tx.Model(&Release{}).
		Where("id = ? AND phase = ? AND latest_revision_number = ?", releaseID, PhaseCandidateDraft, expectedLatestRevisionNumber).
		Updates(map[string]any{"phase": PhaseCandidate, "vote_manual": manualVote})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return atrerr.Conflictf("a newer revision appeared, please refresh and try again")
	}
	return nil
}

// StartVote records the vote window, thread id and manual-vote flag on a
// release. The podling round-one thread id that the two-round chaining of
// §4.H compares against on resolve is written by
// SetPodlingFirstRoundThreadID, not here.
func (sess *Session) StartVote(releaseID uint, durationHours int, threadID string, manualVote bool) error {
	now := time.Now()
	end := now.Add(time.Duration(durationHours) * time.Hour)
	return sess.tx.Model(&Release{}).Where("id = ?", releaseID).Updates(map[string]any{
		"vote_start_at":       &now,
		"vote_end_at":         &end,
		"vote_duration_hours": durationHours,
		"vote_thread_id":      threadID,
		"vote_manual":         manualVote,
	}).Error
}

// SetPodlingFirstRoundThreadID records the PPMC round's thread id before the
// foundation-level (second) round starts.
func (sess *Session) SetPodlingFirstRoundThreadID(releaseID uint, threadID string) error {
	return sess.tx.Model(&Release{}).Where("id = ?", releaseID).
		Update("podling_first_round_thread_id", threadID).Error
}

// ReturnToDraft applies CANDIDATE -> CANDIDATE_DRAFT on a failed vote. Per
// the recorded Open Question decision (DESIGN.md #1), this does not touch
// any revision row -- the failed-candidate revision is preserved as the
// release's latest.
func (sess *Session) ReturnToDraft(releaseID uint) error {
	return sess.tx.Model(&Release{}).Where("id = ? AND phase = ?", releaseID, PhaseCandidate).
		Update("phase", PhaseCandidateDraft).Error
}

// EnterPreview applies CANDIDATE -> PREVIEW on a passed vote.
func (sess *Session) EnterPreview(releaseID uint) error {
	return sess.tx.Model(&Release{}).Where("id = ? AND phase = ?", releaseID, PhaseCandidate).
		Update("phase", PhasePreview).Error
}

// EnterRelease applies PREVIEW -> RELEASE, sets released=now, and deletes
// all revision rows for the release in one call, matching §4.D's "all
// within one database transaction" (the caller already runs inside a
// Session transaction).
func (sess *Session) EnterRelease(releaseID uint) error {
	now := time.Now()
	res := sess.tx.Model(&Release{}).Where("id = ? AND phase = ?", releaseID, PhasePreview).
		Updates(map[string]any{"phase": PhaseRelease, "released_at": &now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return atrerr.Conflictf("release is not in PREVIEW phase")
	}
	if err := sess.tx.Where("release_id = ?", releaseID).Delete(&Revision{}).Error; err != nil {
		return err
	}
	return nil
}

// DeleteRelease removes a release together with its check results and
// revisions (§3 "deleting a Release cascades to them"). The dependent rows
// are deleted explicitly, in one nested transaction, before the release row
// itself. Admin-only enforcement lives in the authz facade, not here.
func (sess *Session) DeleteRelease(releaseID uint) error {
	return sess.tx.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("release_id = ?", releaseID).Delete(&CheckResult{}).Error; err != nil {
			return err
		}
		if err := tx.Where("release_id = ?", releaseID).Delete(&Revision{}).Error; err != nil {
			return err
		}
		if err := tx.Where("release_id = ?", releaseID).Delete(&RevisionCounter{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Release{}, releaseID).Error
	})
}
