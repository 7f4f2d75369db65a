// Integration tests against a real Postgres container (internal/dbtest),
// covering the Metadata Store's transactional invariants: dense revision
// numbering, optimistic-concurrency promotion, atomic task claiming, and
// distribution upgrade-in-place semantics. Grounded on the teacher's
// db/postgres_integration_test.go style (container-backed, testify
// require/assert).
package metadata_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apache/atr/internal/atrerr"
	"github.com/apache/atr/internal/dbtest"
	"github.com/apache/atr/internal/metadata"
)

func seedCommitteeAndProject(t *testing.T, store *metadata.Store, committeeName, projectName string) {
	t.Helper()
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		if err := sess.UpsertCommittee(&metadata.Committee{
			Name:       committeeName,
			Members:    metadata.StringSet{"alice", "bob"},
			Committers: metadata.StringSet{"carol"},
		}); err != nil {
			return err
		}
		return sess.CreateProject(&metadata.Project{Name: projectName, CommitteeName: committeeName, Status: metadata.ProjectActive})
	}))
}

func TestStartReleaseRejectsDuplicateAndInvalidVersion(t *testing.T) {
	store := dbtest.Store(t)
	seedCommitteeAndProject(t, store, "cfoo", "foo")

	err := store.WithSession(t.Context(), func(sess *metadata.Session) error {
		_, err := sess.StartRelease("foo", "1.0")
		return err
	})
	require.NoError(t, err)

	err = store.WithSession(t.Context(), func(sess *metadata.Session) error {
		_, err := sess.StartRelease("foo", "1.0")
		return err
	})
	require.Error(t, err)
	assert.True(t, atrerr.Is(err, atrerr.Conflict))

	err = store.WithSession(t.Context(), func(sess *metadata.Session) error {
		_, err := sess.StartRelease("foo", "-bad-")
		return err
	})
	require.Error(t, err)
	assert.True(t, atrerr.Is(err, atrerr.Validation))
}

// TestLatestRevisionNilOnFreshRelease guards the bug where Demand(err, nil)
// was compared via atrerr.Is instead of errors.Is against ErrNoRows: a fresh
// release with no revisions must report (nil, nil), not an error, since the
// Revision Manager treats a nil latest revision as "first revision".
func TestLatestRevisionNilOnFreshRelease(t *testing.T) {
	store := dbtest.Store(t)
	seedCommitteeAndProject(t, store, "cfoo", "foo")

	var latest *metadata.Revision
	err := store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rel, err := sess.StartRelease("foo", "1.0")
		if err != nil {
			return err
		}
		latest, err = sess.LatestRevision(rel.ID)
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestAllocateNextRevisionIsDenseAndMonotonic(t *testing.T) {
	store := dbtest.Store(t)
	seedCommitteeAndProject(t, store, "cfoo", "foo")

	var releaseID uint
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rel, err := sess.StartRelease("foo", "1.0")
		if err != nil {
			return err
		}
		releaseID = rel.ID
		return nil
	}))

	for i := 1; i <= 3; i++ {
		err := store.WithSession(t.Context(), func(sess *metadata.Session) error {
			rev, err := sess.AllocateNextRevision(releaseID, "alice", metadata.PhaseCandidateDraft, nil, "")
			if err != nil {
				return err
			}
			assert.Equal(t, i, rev.Seq)
			assert.Equal(t, metadata.FormatRevisionNumber(i), rev.Number)
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rel, err := sess.GetRelease("foo", "1.0")
		if err != nil {
			return err
		}
		assert.Equal(t, 3, rel.LatestRevisionNumber)
		return nil
	}))
}

// TestAllocateNextRevisionSerializesUnderConcurrency exercises the release-
// scoped write lock of §4.C step 5 under real concurrent callers: many
// goroutines race to allocate the next revision for the same release, and
// AcquireReleaseWriteLock is meant to serialize them onto a dense,
// gap-free, collision-free sequence rather than let them race on
// idx_release_seq. Grounded on TestClaimNextTaskIsAtomicUnderConcurrency's
// shape below.
func TestAllocateNextRevisionSerializesUnderConcurrency(t *testing.T) {
	store := dbtest.Store(t)
	seedCommitteeAndProject(t, store, "cfoo", "foo")

	var releaseID uint
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rel, err := sess.StartRelease("foo", "1.0")
		if err != nil {
			return err
		}
		releaseID = rel.ID
		return nil
	}))

	const numAllocations = 20
	var wg sync.WaitGroup
	seqs := make([]int, numAllocations)
	errs := make([]error, numAllocations)
	for i := 0; i < numAllocations; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = store.WithSession(t.Context(), func(sess *metadata.Session) error {
				rev, err := sess.AllocateNextRevision(releaseID, "alice", metadata.PhaseCandidateDraft, nil, "")
				if err != nil {
					return err
				}
				seqs[idx] = rev.Seq
				return nil
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	seen := make(map[int]bool, numAllocations)
	for _, seq := range seqs {
		assert.False(t, seen[seq], "seq %d allocated more than once", seq)
		seen[seq] = true
	}
	for i := 1; i <= numAllocations; i++ {
		assert.True(t, seen[i], "seq %d was never allocated; sequence has a gap", i)
	}

	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rel, err := sess.GetRelease("foo", "1.0")
		if err != nil {
			return err
		}
		assert.Equal(t, numAllocations, rel.LatestRevisionNumber)
		return nil
	}))
}

func TestPromoteToCandidateOptimisticConcurrency(t *testing.T) {
	store := dbtest.Store(t)
	seedCommitteeAndProject(t, store, "cfoo", "foo")

	var releaseID uint
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rel, err := sess.StartRelease("foo", "1.0")
		if err != nil {
			return err
		}
		releaseID = rel.ID
		_, err = sess.AllocateNextRevision(releaseID, "alice", metadata.PhaseCandidateDraft, nil, "")
		return err
	}))

	// Stale expectedLatestRevisionNumber must be rejected as a Conflict.
	err := store.WithSession(t.Context(), func(sess *metadata.Session) error {
		return sess.PromoteToCandidate(releaseID, 0, false)
	})
	require.Error(t, err)
	assert.True(t, atrerr.Is(err, atrerr.Conflict))

	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		return sess.PromoteToCandidate(releaseID, 1, false)
	}))

	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rel, err := sess.GetRelease("foo", "1.0")
		if err != nil {
			return err
		}
		assert.Equal(t, metadata.PhaseCandidate, rel.Phase)
		return nil
	}))
}

func TestEnterReleaseDeletesRevisionRows(t *testing.T) {
	store := dbtest.Store(t)
	seedCommitteeAndProject(t, store, "cfoo", "foo")

	var releaseID uint
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rel, err := sess.StartRelease("foo", "1.0")
		if err != nil {
			return err
		}
		releaseID = rel.ID
		if _, err := sess.AllocateNextRevision(releaseID, "alice", metadata.PhaseCandidateDraft, nil, ""); err != nil {
			return err
		}
		if err := sess.PromoteToCandidate(releaseID, 1, false); err != nil {
			return err
		}
		if err := sess.EnterPreview(releaseID); err != nil {
			return err
		}
		return sess.EnterRelease(releaseID)
	}))

	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rel, err := sess.GetRelease("foo", "1.0")
		if err != nil {
			return err
		}
		assert.Equal(t, metadata.PhaseRelease, rel.Phase)
		assert.NotNil(t, rel.ReleasedAt)

		revs, err := sess.FindRevisions(metadata.RevisionFilter{ReleaseID: &releaseID})
		if err != nil {
			return err
		}
		assert.Empty(t, revs)
		return nil
	}))
}

func TestClaimNextTaskIsAtomicUnderConcurrency(t *testing.T) {
	store := dbtest.Store(t)

	const numTasks = 20
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		for i := 0; i < numTasks; i++ {
			if err := sess.EnqueueTask(&metadata.Task{Type: "HASHING_CHECK"}); err != nil {
				return err
			}
		}
		return nil
	}))

	var claimedCount int64
	seen := make(map[uint]bool)
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < 5; w++ {
		wg.Add(1)
		workerPID := "worker-" + string(rune('a'+w))
		go func(pid string) {
			defer wg.Done()
			for {
				var task *metadata.Task
				err := store.WithSession(t.Context(), func(sess *metadata.Session) error {
					tk, err := sess.ClaimNextTask(pid)
					task = tk
					return err
				})
				if err != nil || task == nil {
					return
				}
				atomic.AddInt64(&claimedCount, 1)
				mu.Lock()
				seen[task.ID] = true
				mu.Unlock()
			}
		}(workerPID)
	}
	wg.Wait()

	assert.Equal(t, int64(numTasks), claimedCount)
	assert.Len(t, seen, numTasks)
}

func TestCompleteTask(t *testing.T) {
	store := dbtest.Store(t)

	var taskID uint
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		task := &metadata.Task{Type: "HASHING_CHECK"}
		if err := sess.EnqueueTask(task); err != nil {
			return err
		}
		taskID = task.ID
		_, err := sess.ClaimNextTask("worker-1")
		return err
	}))

	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		return sess.CompleteTask(taskID, []byte(`{"ok":true}`))
	}))

	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		tasks, err := sess.FindTasks(metadata.TaskFilter{})
		if err != nil {
			return err
		}
		require.Len(t, tasks, 1)
		assert.Equal(t, metadata.TaskCompleted, tasks[0].Status)
		return nil
	}))
}

func TestRecordDistributionUpgradesStagingInPlaceAndRejectsDowngrade(t *testing.T) {
	store := dbtest.Store(t)
	seedCommitteeAndProject(t, store, "cfoo", "foo")

	var releaseID uint
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rel, err := sess.StartRelease("foo", "1.0")
		releaseID = rel.ID
		return err
	}))

	dist := metadata.Distribution{ReleaseID: releaseID, Platform: "pypi", OwnerNamespace: "apache", Package: "foo", Version: "1.0", Staging: true}
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		d := dist
		return sess.RecordDistribution(&d)
	}))

	// Upgrading staging -> published succeeds in place.
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		d := dist
		d.Staging = false
		d.APIURL = "https://pypi.org/project/foo/1.0"
		return sess.RecordDistribution(&d)
	}))

	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		dists, err := sess.FindDistributions(metadata.DistributionFilter{ReleaseID: &releaseID})
		if err != nil {
			return err
		}
		require.Len(t, dists, 1)
		assert.False(t, dists[0].Staging)
		return nil
	}))

	// Downgrading back to staging must be rejected.
	err := store.WithSession(t.Context(), func(sess *metadata.Session) error {
		d := dist
		d.Staging = true
		return sess.RecordDistribution(&d)
	})
	require.Error(t, err)
	assert.True(t, atrerr.Is(err, atrerr.Conflict))
}

// TestCachedResultsReturnsOneRowPerMemberPath guards against the cache-reuse
// row-count bug: successive cache-hit revisions must each copy forward
// exactly one CheckResult per member_rel_path, not every prior generation's
// rows compounded on top of each other. Mirrors original's check_cache
// GROUP BY member_rel_path / MAX(id) behavior.
func TestCachedResultsReturnsOneRowPerMemberPath(t *testing.T) {
	store := dbtest.Store(t)
	seedCommitteeAndProject(t, store, "cfoo", "foo")

	var releaseID uint
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rel, err := sess.StartRelease("foo", "1.0")
		if err != nil {
			return err
		}
		releaseID = rel.ID
		return nil
	}))

	memberPath := func(s string) *string { return &s }
	const checker = "license-files"
	const inputHash = "deadbeef"
	const primaryRelPath = "dist/foo-1.0-source.tar.gz"

	// Generation 1 (revision 1): two member-path findings.
	var rev1ID uint
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rev, err := sess.AllocateNextRevision(releaseID, "alice", metadata.PhaseCandidateDraft, nil, "")
		if err != nil {
			return err
		}
		rev1ID = rev.ID
		for _, mp := range []string{"LICENSE", "NOTICE"} {
			if err := sess.RecordCheckResult(&metadata.CheckResult{
				Checker: checker, ReleaseID: releaseID, RevisionID: rev1ID,
				PrimaryRelPath: primaryRelPath, MemberRelPath: memberPath(mp),
				Status: metadata.CheckSuccess, InputHash: inputHash,
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	// Generation 2 (revision 2): cache hit copies generation 1 forward
	// verbatim, as the orchestrator's CopyForward does.
	var rev2ID uint
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rev, err := sess.AllocateNextRevision(releaseID, "alice", metadata.PhaseCandidateDraft, nil, "")
		if err != nil {
			return err
		}
		rev2ID = rev.ID
		prior, err := sess.CachedResults(checker, inputHash, primaryRelPath)
		if err != nil {
			return err
		}
		require.Len(t, prior, 2, "generation 1 cache lookup should see exactly 2 member paths")
		for _, p := range prior {
			if err := sess.RecordCheckResult(&metadata.CheckResult{
				Checker: checker, ReleaseID: releaseID, RevisionID: rev2ID,
				PrimaryRelPath: primaryRelPath, MemberRelPath: p.MemberRelPath,
				Status: p.Status, InputHash: p.InputHash,
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	// Generation 3 (revision 3): a second cache hit. Without the
	// GROUP BY member_rel_path / MAX(id) fix, this lookup would now see 4
	// rows (2 from generation 1 plus 2 from generation 2) instead of 2.
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		_, err := sess.AllocateNextRevision(releaseID, "alice", metadata.PhaseCandidateDraft, nil, "")
		if err != nil {
			return err
		}
		prior, err := sess.CachedResults(checker, inputHash, primaryRelPath)
		if err != nil {
			return err
		}
		require.Len(t, prior, 2, "cache lookup must stay at one row per member path across repeated cache hits")
		seenPaths := make(map[string]bool, len(prior))
		for _, p := range prior {
			require.NotNil(t, p.MemberRelPath)
			seenPaths[*p.MemberRelPath] = true
		}
		assert.True(t, seenPaths["LICENSE"])
		assert.True(t, seenPaths["NOTICE"])
		return nil
	}))
}
