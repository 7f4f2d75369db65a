package metadata

import (
	"time"

	"github.com/apache/atr/internal/atrerr"
)

// RecordDistribution inserts a new Distribution row, or upgrades an
// existing staging row to non-staging in place, per §3 "Staging rows may be
// upgraded in place to non-staging" and the Open Question decision in
// DESIGN.md #2: a non-staging row is never downgraded back to staging.
func (sess *Session) RecordDistribution(d *Distribution) error {
	var existing Distribution
	err := sess.tx.First(&existing, "release_id = ? AND platform = ? AND owner_namespace = ? AND package = ? AND version = ?",
		d.ReleaseID, d.Platform, d.OwnerNamespace, d.Package, d.Version).Error
	if err != nil {
		if Demand(err, nil) == ErrNoRows {
			d.UploadDate = time.Now()
			return sess.tx.Create(d).Error
		}
		return err
	}

	if existing.Staging && !d.Staging {
		return sess.tx.Model(&existing).Updates(map[string]any{
			"staging": false,
			"api_url": d.APIURL,
			"web_url": d.WebURL,
		}).Error
	}
	if !existing.Staging && d.Staging {
		return atrerr.Conflictf("distribution already published as non-staging; refusing to downgrade to staging")
	}
	return atrerr.Conflictf("distribution (release=%d platform=%s namespace=%s package=%s version=%s) already recorded",
		d.ReleaseID, d.Platform, d.OwnerNamespace, d.Package, d.Version)
}

type DistributionFilter struct {
	ReleaseID *uint
	Platform  *string
}

func (sess *Session) FindDistributions(f DistributionFilter) ([]Distribution, error) {
	q := sess.tx.Model(&Distribution{})
	if f.ReleaseID != nil {
		q = q.Where("release_id = ?", *f.ReleaseID)
	}
	if f.Platform != nil {
		q = q.Where("platform = ?", *f.Platform)
	}
	var out []Distribution
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
