package checkorchestrator

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/apache/atr/internal/content"
	"github.com/apache/atr/internal/metadata"
	"github.com/apache/atr/internal/taskexecutor"
)

// Orchestrator enumerates a sealed revision's files and enqueues checker
// tasks, and builds the taskexecutor.Handler that runs them.
type Orchestrator struct {
	content          *content.Store
	registry         *Registry
	disableCache     bool
	redisClient      *redis.Client
	wakeChannel      string
}

func NewOrchestrator(contentStore *content.Store, registry *Registry, disableCache bool, redisClient *redis.Client, wakeChannel string) *Orchestrator {
	return &Orchestrator{
		content:      contentStore,
		registry:     registry,
		disableCache: disableCache,
		redisClient:  redisClient,
		wakeChannel:  wakeChannel,
	}
}

// EnqueueForRevision implements §4.C step 6 / §4.F's entry point: when a new
// revision is sealed in CANDIDATE_DRAFT phase, enumerate its files and, for
// each, enqueue zero or more checker tasks by filename suffix, plus one
// release-level paths-check.
func (o *Orchestrator) EnqueueForRevision(ctx context.Context, sess *metadata.Session, project, version string, rel *metadata.Release, rev *metadata.Revision) error {
	revDir := o.content.UnfinishedPath(project, version, rev.Number)

	err := filepath.WalkDir(revDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(revDir, path)
		if err != nil {
			return err
		}
		for _, t := range CheckersForFile(relPath) {
			if err := o.enqueueTask(sess, rel, rev, t, relPath, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// One release-level paths-check, per §4.F "Plus one release-level
	// paths-check."
	if err := o.enqueueTask(sess, rel, rev, taskexecutor.TypePathsCheck, "", map[string]any{"is_podling": rel.IsPodling}); err != nil {
		return err
	}

	return nil
}

func (o *Orchestrator) enqueueTask(sess *metadata.Session, rel *metadata.Release, rev *metadata.Revision, t taskexecutor.Type, primaryRelPath string, extra map[string]any) error {
	args, err := json.Marshal(extra)
	if err != nil {
		return err
	}
	project := rel.ProjectName
	version := rel.Version
	number := rev.Number
	path := primaryRelPath
	task := &metadata.Task{
		Type:           string(t),
		Args:           args,
		ProjectName:    &project,
		Version:        &version,
		RevisionNumber: &number,
		PrimaryRelPath: &path,
	}
	if err := sess.EnqueueTask(task); err != nil {
		return err
	}
	return nil
}

// cacheDisabledForRevision reports whether the ".atr-no-cache" marker exists
// in the revision directory (§4.F "Cache is bypassed if a .atr-no-cache
// marker exists in the revision or if globally disabled").
func (o *Orchestrator) cacheDisabledForRevision(revDir string) bool {
	if o.disableCache {
		return true
	}
	_, err := os.Stat(filepath.Join(revDir, ".atr-no-cache"))
	return err == nil
}

// BuildHandler returns a taskexecutor.Handler that dispatches to the
// registered Checker for task.Type, handling the BLAKE3 cache-reuse
// decision first (§4.F): on a cache hit, prior per-member results are
// copied forward and the checker itself never runs.
func (o *Orchestrator) BuildHandler() taskexecutor.Handler {
	return func(ctx context.Context, store *metadata.Store, task *metadata.Task) ([]byte, error) {
		checker, ok := o.registry.Get(taskexecutor.Type(task.Type))
		if !ok {
			// Not every task type in the suffix table is a checker plug-in
			// in scope here (e.g. MESSAGE_SEND is handled elsewhere); an
			// unregistered checker type is a configuration error.
			return nil, os.ErrNotExist
		}

		var result []byte
		err := store.WithSession(ctx, func(sess *metadata.Session) error {
			rel, err := sess.GetRelease(derefOr(task.ProjectName, ""), derefOr(task.Version, ""))
			if err != nil {
				return err
			}
			revs, err := sess.FindRevisions(metadata.RevisionFilter{ReleaseID: &rel.ID})
			if err != nil {
				return err
			}
			var rev *metadata.Revision
			for i := range revs {
				if revs[i].Number == derefOr(task.RevisionNumber, "") {
					rev = &revs[i]
					break
				}
			}
			if rev == nil {
				return os.ErrNotExist
			}

			revDir := o.content.UnfinishedPath(rel.ProjectName, rel.Version, rev.Number)
			primaryRelPath := derefOr(task.PrimaryRelPath, "")

			var raw map[string]any
			_ = json.Unmarshal(task.Args, &raw)

			args := FunctionArguments{
				ProjectName:    rel.ProjectName,
				VersionName:    rel.Version,
				RevisionNumber: rev.Number,
				PrimaryRelPath: primaryRelPath,
				RevisionDir:    revDir,
				Raw:            raw,
			}

			rec := newRecorder(sess, task.Type, rel.ID, rev.ID, primaryRelPath)

			if primaryRelPath != "" && !o.cacheDisabledForRevision(revDir) {
				hash, hashErr := HashFile(args.AbsolutePrimaryPath())
				if hashErr == nil {
					prior, cacheErr := sess.CachedResults(task.Type, hash, primaryRelPath)
					if cacheErr == nil && len(prior) > 0 {
						if err := rec.CopyForward(prior); err != nil {
							return err
						}
						result, _ = json.Marshal(map[string]any{"cached": true})
						return nil
					}
				}
			}

			if err := checker.Run(args, rec); err != nil {
				return err
			}
			result, _ = json.Marshal(map[string]any{"cached": false})
			return nil
		})
		return result, err
	}
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
