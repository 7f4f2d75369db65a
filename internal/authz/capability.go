// capability.go implements the layered capability objects of §4.G:
//
//	GeneralPublic ⊂ FoundationCommitter ⊂ CommitteeParticipant ⊂ CommitteeMember ⊂ FoundationAdmin
//
// Grounded on the teacher's auth/auth.go (capability-gated service methods
// that call audit() before returning) and auth/token.go/auth/password.go
// (PersonalAccessToken issuance, reapplied here since ATR has no interactive
// login of its own -- identity comes from the IdentityProvider plug-in).
// Per Design Notes "Layered capability objects over inheritance", each tier
// is a struct embedding the previous, not an interface hierarchy: a method
// defined only on CommitteeMember is simply unreachable through a
// CommitteeParticipant value, enforced by the type system at compile time.
package authz

import (
	"context"

	"github.com/apache/atr/internal/atrerr"
	"github.com/apache/atr/internal/audit"
	"github.com/apache/atr/internal/metadata"
	"github.com/apache/atr/internal/releasestate"
	"github.com/apache/atr/internal/revision"
	"github.com/apache/atr/internal/vote"
)

// GeneralPublic is the base capability: read-only access, no user identity
// required. Every higher tier embeds this one.
type GeneralPublic struct {
	store   *metadata.Store
	machine *releasestate.Machine
	revMgr  *revision.Manager
	voteC   *vote.Coordinator
	authz   *Authorisation
	audit   *audit.Writer
}

// Write constructs the base GeneralPublic handle for a request or task.
// Named after the teacher's Write(authorisation, data_session) dispatcher
// (§4.G).
func Write(a *Authorisation, store *metadata.Store, machine *releasestate.Machine, revMgr *revision.Manager, voteC *vote.Coordinator, auditWriter *audit.Writer) *GeneralPublic {
	return &GeneralPublic{store: store, machine: machine, revMgr: revMgr, voteC: voteC, authz: a, audit: auditWriter}
}

func (gp *GeneralPublic) recordAudit(action string, fields map[string]any) {
	gp.audit.Record(action, fields)
}

// AsFoundationCommitter requires a non-empty user id (§4.G).
func (gp *GeneralPublic) AsFoundationCommitter(uid string) (*FoundationCommitter, error) {
	if uid == "" {
		return nil, atrerr.AccessDeniedf("a foundation committer capability requires an authenticated user id")
	}
	return &FoundationCommitter{GeneralPublic: *gp, UID: uid}, nil
}

// AsFoundationAdmin requires uid to be in the configured admin set. isAdmin
// is resolved by the caller from internal/config.Config.IsAdmin, which this
// package deliberately does not import (authz stays agnostic of the
// concrete configuration surface; callers thread the one boolean it needs).
func (gp *GeneralPublic) AsFoundationAdmin(uid string, isAdmin bool) (*FoundationAdmin, error) {
	if !isAdmin {
		return nil, atrerr.AccessDeniedf("caller %q is not a configured foundation admin", uid)
	}
	return &FoundationAdmin{GeneralPublic: *gp, UID: uid}, nil
}

// FoundationCommitter is any user with a recognized identity. Sub-objects
// scoped to a single user (tokens, ssh keys) live at this tier.
type FoundationCommitter struct {
	GeneralPublic
	UID string
}

// AsCommitteeParticipant requires uid to be in committee c's committer or
// member set (§4.G "as_committee_participant").
func (fc *FoundationCommitter) AsCommitteeParticipant(ctx context.Context, sess *metadata.Session, committeeName string) (*CommitteeParticipant, error) {
	committee, err := sess.GetCommittee(committeeName)
	if err != nil {
		return nil, err
	}
	if !committee.IsParticipant(fc.UID) {
		return nil, atrerr.AccessDeniedf("caller %q is not a committer or member of committee %q", fc.UID, committeeName)
	}
	return &CommitteeParticipant{FoundationCommitter: *fc, Committee: committee}, nil
}

// AsCommitteeMember requires uid to be in committee c's member set (§4.G
// "as_committee_member").
func (fc *FoundationCommitter) AsCommitteeMember(ctx context.Context, sess *metadata.Session, committeeName string) (*CommitteeMember, error) {
	committee, err := sess.GetCommittee(committeeName)
	if err != nil {
		return nil, err
	}
	if !committee.HasMember(fc.UID) {
		return nil, atrerr.AccessDeniedf("caller %q is not a member of committee %q", fc.UID, committeeName)
	}
	return &CommitteeMember{CommitteeParticipant: CommitteeParticipant{FoundationCommitter: *fc, Committee: committee}}, nil
}

// AsProjectCommitteeParticipant resolves project's owning committee, then
// delegates to AsCommitteeParticipant (§4.G "as_project_committee_*").
func (fc *FoundationCommitter) AsProjectCommitteeParticipant(ctx context.Context, sess *metadata.Session, projectName string) (*CommitteeParticipant, error) {
	project, err := sess.GetProject(projectName, metadata.EagerLoad{})
	if err != nil {
		return nil, err
	}
	return fc.AsCommitteeParticipant(ctx, sess, project.CommitteeName)
}

// AsProjectCommitteeMember resolves project's owning committee, then
// delegates to AsCommitteeMember.
func (fc *FoundationCommitter) AsProjectCommitteeMember(ctx context.Context, sess *metadata.Session, projectName string) (*CommitteeMember, error) {
	project, err := sess.GetProject(projectName, metadata.EagerLoad{})
	if err != nil {
		return nil, err
	}
	return fc.AsCommitteeMember(ctx, sess, project.CommitteeName)
}

// CreatePersonalAccessToken is available at the committer tier: any
// recognized user may mint a token for themselves.
func (fc *FoundationCommitter) CreatePersonalAccessToken(sess *metadata.Session, t *metadata.PersonalAccessToken) error {
	t.OwningUser = fc.UID
	if err := sess.CreatePersonalAccessToken(t); err != nil {
		return err
	}
	fc.recordAudit("FoundationCommitter.create_personal_access_token", map[string]any{"uid": fc.UID, "label": t.Label})
	return nil
}

// RevokePersonalAccessToken is available at the committer tier, scoped to
// the caller's own tokens (metadata.RevokePersonalAccessToken already
// filters by owning_user).
func (fc *FoundationCommitter) RevokePersonalAccessToken(sess *metadata.Session, id uint) error {
	if err := sess.RevokePersonalAccessToken(id, fc.UID); err != nil {
		return err
	}
	fc.recordAudit("FoundationCommitter.revoke_personal_access_token", map[string]any{"uid": fc.UID, "token_id": id})
	return nil
}

// CommitteeParticipant is a committer or member of a specific committee.
// Release lifecycle and check-related read/mutate methods that any
// participant may perform live here.
type CommitteeParticipant struct {
	FoundationCommitter
	Committee *metadata.Committee
}

// StartRelease implements §4.D Start: caller is a committee member or
// committer of the owning committee (already established by the tier
// itself), (project, version) does not exist, version string valid.
func (cp *CommitteeParticipant) StartRelease(ctx context.Context, project, version string) (*metadata.Release, error) {
	rel, err := cp.machine.Start(ctx, cp.UID, cp.Committee.Name, project, version)
	if err != nil {
		return nil, err
	}
	cp.recordAudit("CommitteeParticipant.start_release", map[string]any{"uid": cp.UID, "project": project, "version": version})
	return rel, nil
}

// PromoteToCandidate implements §4.D CANDIDATE_DRAFT -> CANDIDATE.
func (cp *CommitteeParticipant) PromoteToCandidate(ctx context.Context, project, version string, revisionNumber int, manualVote bool, hasInFlightChecks hasInFlightChecksFunc) error {
	if err := cp.machine.PromoteToCandidate(ctx, project, version, revisionNumber, manualVote, hasInFlightChecks); err != nil {
		return err
	}
	cp.recordAudit("CommitteeParticipant.promote_to_candidate", map[string]any{"uid": cp.UID, "project": project, "version": version, "revision": revisionNumber})
	return nil
}

// StartVote implements §4.H Start.
func (cp *CommitteeParticipant) StartVote(ctx context.Context, in vote.StartInput, hasInFlightChecks vote.HasInFlightChecks) (*metadata.Release, error) {
	rel, err := cp.voteC.Start(ctx, in, hasInFlightChecks)
	if err != nil {
		return nil, err
	}
	cp.recordAudit("CommitteeParticipant.start_vote", map[string]any{"uid": cp.UID, "project": in.Project, "version": in.Version})
	return rel, nil
}

// Tabulate is the read-side tabulation view of §4.H: it classifies voters
// against the committee's member and committer lists and tabulates the
// thread. It needs no committee-scoped mutation capability. Resolving a vote
// is separate and requires the CommitteeMember tier -- see
// CommitteeMember.ResolveVote below.
func (cp *CommitteeParticipant) Tabulate(messages []vote.Message, emailToUID map[string]string) (vote.TabulateResult, error) {
	members := make(map[string]struct{}, len(cp.Committee.Members))
	for _, m := range cp.Committee.Members {
		members[m] = struct{}{}
	}
	committers := make(map[string]struct{}, len(cp.Committee.Committers))
	for _, m := range cp.Committee.Committers {
		committers[m] = struct{}{}
	}
	return vote.Tabulate(messages, emailToUID, members, committers)
}

// CommitteeMember is a member (not merely a committer) of a specific
// committee. Mutations unavailable to a bare participant -- policy edits,
// distribution deletion, vote resolution -- live here.
type CommitteeMember struct {
	CommitteeParticipant
}

// ResolveVote implements §4.H Resolve, requiring the committee-member tier
// per §4.D's "resolver is committee member" precondition.
func (cm *CommitteeMember) ResolveVote(ctx context.Context, in vote.ResolveInput, secondRound vote.StartInput, inFlight vote.HasInFlightChecks) error {
	in.IsCommitteeMember = true
	in.ResolverUID = cm.UID
	if err := cm.voteC.Resolve(ctx, in, secondRound, inFlight); err != nil {
		return err
	}
	cm.recordAudit("CommitteeMember.resolve_vote", map[string]any{"uid": cm.UID, "project": in.Project, "version": in.Version, "passed": in.Passed})
	return nil
}

// UpdatePolicy edits a project's ReleasePolicy; committee-member tier only.
func (cm *CommitteeMember) UpdatePolicy(sess *metadata.Session, policy *metadata.ReleasePolicy) error {
	if err := sess.UpsertReleasePolicy(policy); err != nil {
		return err
	}
	cm.recordAudit("CommitteeMember.update_policy", map[string]any{"uid": cm.UID, "project": policy.ProjectName})
	return nil
}

// RecordDistribution creates or upgrades a distribution publish record.
func (cm *CommitteeMember) RecordDistribution(sess *metadata.Session, d *metadata.Distribution) error {
	if err := sess.RecordDistribution(d); err != nil {
		return err
	}
	cm.recordAudit("CommitteeMember.record_distribution", map[string]any{"uid": cm.UID, "release_id": d.ReleaseID, "platform": d.Platform})
	return nil
}

// DeleteDistribution is available only at the member tier (§4.G example:
// "a CommitteeMember.distributions.delete_distribution(...) is available
// only at the member tier").
func (cm *CommitteeMember) DeleteDistribution(sess *metadata.Session, d metadata.Distribution) error {
	if err := sess.DB().Where("release_id = ? AND platform = ? AND owner_namespace = ? AND package = ? AND version = ?",
		d.ReleaseID, d.Platform, d.OwnerNamespace, d.Package, d.Version).Delete(&metadata.Distribution{}).Error; err != nil {
		return err
	}
	cm.recordAudit("CommitteeMember.delete_distribution", map[string]any{"uid": cm.UID, "release_id": d.ReleaseID, "platform": d.Platform})
	return nil
}

// DeleteRelease implements the "any -> (deleted)" transition at non-RELEASE
// phases (RELEASE phase requires FoundationAdmin.DeleteRelease instead).
func (cm *CommitteeMember) DeleteRelease(ctx context.Context, project, version string) error {
	if err := cm.machine.Delete(ctx, project, version, true, false); err != nil {
		return err
	}
	cm.recordAudit("CommitteeMember.delete_release", map[string]any{"uid": cm.UID, "project": project, "version": version})
	return nil
}

// AddPublicSigningKey associates a signing key with this committee.
func (cm *CommitteeMember) AddPublicSigningKey(sess *metadata.Session, k *metadata.PublicSigningKey) error {
	committeeName := cm.Committee.Name
	k.CommitteeName = &committeeName
	if err := sess.AddPublicSigningKey(k); err != nil {
		return err
	}
	cm.recordAudit("CommitteeMember.add_public_signing_key", map[string]any{"uid": cm.UID, "fingerprint": k.Fingerprint})
	return nil
}

// FoundationAdmin is in the configured admin set, independent of any
// specific committee. Every sub-object it needs is obtained by also
// acquiring a CommitteeMember/Participant handle where the method requires
// committee scoping (§4.G "Higher capability levels extend, never
// restrict, lower ones").
type FoundationAdmin struct {
	GeneralPublic
	UID string
}

// DeleteRelease implements the "any -> (deleted)" transition when the
// release is in RELEASE phase, which requires an admin per §4.D's table.
func (fa *FoundationAdmin) DeleteRelease(ctx context.Context, project, version string) error {
	if err := fa.machine.Delete(ctx, project, version, true, true); err != nil {
		return err
	}
	fa.recordAudit("FoundationAdmin.delete_release", map[string]any{"uid": fa.UID, "project": project, "version": version})
	return nil
}

// hasInFlightChecksFunc avoids an import cycle: releasestate does
// not import authz, so this package names the callback type directly
// matching releasestate.Machine.PromoteToCandidate's parameter.
type hasInFlightChecksFunc = func(releaseID uint, revisionNumber int) (bool, error)
