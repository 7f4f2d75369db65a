package revision_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apache/atr/internal/content"
	"github.com/apache/atr/internal/dbtest"
	"github.com/apache/atr/internal/metadata"
	"github.com/apache/atr/internal/revision"
)

func newManager(t *testing.T) (*revision.Manager, *metadata.Store) {
	t.Helper()
	store := dbtest.Store(t)
	contentStore, err := content.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		if err := sess.UpsertCommittee(&metadata.Committee{Name: "cfoo"}); err != nil {
			return err
		}
		return sess.CreateProject(&metadata.Project{Name: "foo", CommitteeName: "cfoo", Status: metadata.ProjectActive})
	}))
	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		_, err := sess.StartRelease("foo", "1.0")
		return err
	}))
	return revision.NewManager(store, contentStore), store
}

func TestCreateAndManageFirstRevisionHasNoOldPath(t *testing.T) {
	mgr, _ := newManager(t)

	var sawOldPath string
	result, err := mgr.CreateAndManage(context.Background(), "foo", "1.0", "alice", "initial upload",
		func(c *revision.Creating) error {
			sawOldPath = c.OldPath
			return os.WriteFile(filepath.Join(c.InterimPath, "foo-1.0-source.tar.gz"), []byte("payload"), 0o644)
		}, nil)

	require.NoError(t, err)
	assert.Empty(t, sawOldPath)
	require.NotNil(t, result.Revision)
	assert.Equal(t, "00001", result.Revision.Number)
	assert.Empty(t, result.FailedMessage)
}

func TestCreateAndManageClonesPriorRevisionByHardlink(t *testing.T) {
	mgr, _ := newManager(t)

	_, err := mgr.CreateAndManage(context.Background(), "foo", "1.0", "alice", "rev1",
		func(c *revision.Creating) error {
			return os.WriteFile(filepath.Join(c.InterimPath, "file.txt"), []byte("v1"), 0o644)
		}, nil)
	require.NoError(t, err)

	result, err := mgr.CreateAndManage(context.Background(), "foo", "1.0", "alice", "rev2",
		func(c *revision.Creating) error {
			require.NotEmpty(t, c.OldPath)
			data, readErr := os.ReadFile(filepath.Join(c.InterimPath, "file.txt"))
			require.NoError(t, readErr)
			assert.Equal(t, "v1", string(data))
			return os.WriteFile(filepath.Join(c.InterimPath, "new.txt"), []byte("v2"), 0o644)
		}, nil)
	require.NoError(t, err)
	assert.Equal(t, "00002", result.Revision.Number)
	assert.Equal(t, uint(1), *result.Revision.ParentRevisionID)
}

func TestCreateAndManageFailedAbortDiscardsStaging(t *testing.T) {
	mgr, _ := newManager(t)

	result, err := mgr.CreateAndManage(context.Background(), "foo", "1.0", "alice", "bad upload",
		func(c *revision.Creating) error {
			c.Fail("no artifact present")
			return nil
		}, func(ctx context.Context, sess *metadata.Session, rev *metadata.Revision) error {
			t.Fatal("check trigger must not fire on a failed abort")
			return nil
		})
	require.NoError(t, err)
	assert.Nil(t, result.Revision)
	assert.Equal(t, "no artifact present", result.FailedMessage)

	result2, err := mgr.CreateAndManage(context.Background(), "foo", "1.0", "alice", "explicit fail",
		func(c *revision.Creating) error {
			c.Fail("no artifact present")
			return nil
		}, nil)
	require.NoError(t, err)
	assert.Nil(t, result2.Revision)
	assert.Equal(t, "no artifact present", result2.FailedMessage)
}

func TestCreateAndManageDiscardsStagingOnMutateError(t *testing.T) {
	mgr, store := newManager(t)

	_, err := mgr.CreateAndManage(context.Background(), "foo", "1.0", "alice", "boom",
		func(c *revision.Creating) error {
			return assert.AnError
		}, nil)
	require.Error(t, err)

	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rel, err := sess.GetRelease("foo", "1.0")
		if err != nil {
			return err
		}
		assert.Equal(t, 0, rel.LatestRevisionNumber)
		return nil
	}))
}

func TestCreateAndManageInvokesCheckTriggerOnlyInDraftPhase(t *testing.T) {
	mgr, store := newManager(t)

	triggered := 0
	_, err := mgr.CreateAndManage(context.Background(), "foo", "1.0", "alice", "rev1",
		func(c *revision.Creating) error { return nil },
		func(ctx context.Context, sess *metadata.Session, rev *metadata.Revision) error {
			triggered++
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, triggered)

	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rel, err := sess.GetRelease("foo", "1.0")
		if err != nil {
			return err
		}
		if err := sess.PromoteToCandidate(rel.ID, rel.LatestRevisionNumber, false); err != nil {
			return err
		}
		return sess.EnterPreview(rel.ID)
	}))

	triggered = 0
	_, err = mgr.CloneForPreview(context.Background(), "foo", "1.0", "alice",
		func(ctx context.Context, sess *metadata.Session, rev *metadata.Revision) error {
			triggered++
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 0, triggered, "check trigger only fires for revisions created in CANDIDATE_DRAFT")
}

func TestCreateAndManageRejectsNonMutablePhase(t *testing.T) {
	mgr, store := newManager(t)

	require.NoError(t, store.WithSession(t.Context(), func(sess *metadata.Session) error {
		rel, err := sess.GetRelease("foo", "1.0")
		if err != nil {
			return err
		}
		return sess.PromoteToCandidate(rel.ID, 0, false)
	}))

	_, err := mgr.CreateAndManage(context.Background(), "foo", "1.0", "alice", "should fail",
		func(c *revision.Creating) error { return nil }, nil)
	require.Error(t, err)
}
