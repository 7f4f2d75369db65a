package metadata

// RecordCheckResult appends a new CheckResult row. Results are append-only
// within a revision (§3, §5).
func (sess *Session) RecordCheckResult(cr *CheckResult) error {
	return sess.tx.Create(cr).Error
}

// CachedResults looks up prior CheckResult rows keyed by (checker,
// input_hash, primary_rel_path), for the Check Orchestrator's cache-reuse
// path (§4.F). Returns exactly the latest result per member_rel_path --
// mirrors original's check_cache, which groups by member_rel_path and takes
// MAX(id) before copying forward. Without this grouping, copying forward
// from an already-copied-forward revision would re-copy every prior
// generation's rows on top of its own, duplicating without bound across
// successive cache hits.
func (sess *Session) CachedResults(checker, inputHash, primaryRelPath string) ([]CheckResult, error) {
	var out []CheckResult
	err := sess.tx.Where(
		"id IN (?)",
		sess.tx.Model(&CheckResult{}).
			Select("MAX(id)").
			Where("checker = ? AND input_hash = ? AND primary_rel_path = ?", checker, inputHash, primaryRelPath).
			Group("member_rel_path"),
	).Order("created_at DESC").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

type CheckResultFilter struct {
	ReleaseID      *uint
	RevisionID     *uint
	Checker        *string
	PrimaryRelPath *string
	Status         *CheckStatus
}

func (sess *Session) FindCheckResults(f CheckResultFilter) ([]CheckResult, error) {
	q := sess.tx.Model(&CheckResult{})
	if f.ReleaseID != nil {
		q = q.Where("release_id = ?", *f.ReleaseID)
	}
	if f.RevisionID != nil {
		q = q.Where("revision_id = ?", *f.RevisionID)
	}
	if f.Checker != nil {
		q = q.Where("checker = ?", *f.Checker)
	}
	if f.PrimaryRelPath != nil {
		q = q.Where("primary_rel_path = ?", *f.PrimaryRelPath)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	var out []CheckResult
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MatchesIgnore reports whether a CheckResult is suppressed by a
// CheckResultIgnore rule at display time (§4.F "applied at display time, not
// at record time"). Glob matching uses path.Match semantics.
func MatchesIgnore(cr CheckResult, ignore CheckResultIgnore) bool {
	match := func(pattern, value string) bool {
		if pattern == "" {
			return true
		}
		ok, err := globMatch(pattern, value)
		return err == nil && ok
	}
	return match(ignore.CheckerGlob, cr.Checker) &&
		match(ignore.PathGlob, cr.PrimaryRelPath) &&
		match(ignore.StatusGlob, string(cr.Status)) &&
		match(ignore.MessageGlob, cr.Message)
}
