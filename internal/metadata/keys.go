package metadata

import (
	"time"

	"github.com/apache/atr/internal/atrerr"
)

func (sess *Session) AddPublicSigningKey(k *PublicSigningKey) error {
	k.CreatedAt = time.Now()
	return sess.tx.Create(k).Error
}

func (sess *Session) AddSSHKey(k *SSHKey) error {
	k.CreatedAt = time.Now()
	return sess.tx.Create(k).Error
}

func (sess *Session) AddWorkflowSSHKey(k *WorkflowSSHKey) error {
	k.CreatedAt = time.Now()
	return sess.tx.Create(k).Error
}

// GetWorkflowSSHKey looks up a workflow key by fingerprint and rejects it if
// expired, per §3 "WorkflowSSHKey carries an expires unix timestamp".
func (sess *Session) GetWorkflowSSHKey(fingerprint string) (*WorkflowSSHKey, error) {
	var k WorkflowSSHKey
	if err := sess.tx.First(&k, "fingerprint = ?", fingerprint).Error; err != nil {
		return nil, Demand(err, atrerr.NotFoundf("workflow ssh key %q not found", fingerprint))
	}
	if k.Expires != 0 && time.Now().Unix() > k.Expires {
		return nil, atrerr.AccessDeniedf("workflow ssh key %q has expired", fingerprint)
	}
	return &k, nil
}

func (sess *Session) CreatePersonalAccessToken(t *PersonalAccessToken) error {
	t.CreatedAt = time.Now()
	return sess.tx.Create(t).Error
}

func (sess *Session) ListPersonalAccessTokens(owningUser string) ([]PersonalAccessToken, error) {
	var out []PersonalAccessToken
	if err := sess.tx.Where("owning_user = ?", owningUser).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (sess *Session) RevokePersonalAccessToken(id uint, owningUser string) error {
	res := sess.tx.Where("id = ? AND owning_user = ?", id, owningUser).Delete(&PersonalAccessToken{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return atrerr.NotFoundf("personal access token %d not found for user %q", id, owningUser)
	}
	return nil
}

func (sess *Session) TouchPersonalAccessToken(id uint) error {
	now := time.Now()
	return sess.tx.Model(&PersonalAccessToken{}).Where("id = ?", id).Update("last_used_at", &now).Error
}
