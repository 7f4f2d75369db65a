// Package metadata is the Metadata Store (component A): a transactional
// relational store over Postgres via GORM, fronted by a Session type that
// supports explicit write-lock acquisition, upsert-on-conflict, and
// eager-loading hints, per §4.A.
//
// Grounded on the teacher's db/postgres.go (GORM + AutoMigrate pattern) and
// db/repository/{interfaces,postgres}.go (repository-per-aggregate shape).
package metadata

import (
	"time"

	"gorm.io/gorm"
)

// Phase is the Release State Machine's phase enum, shared here because the
// Metadata Store stores it as a plain column.
type Phase string

const (
	PhaseCandidateDraft Phase = "CANDIDATE_DRAFT"
	PhaseCandidate      Phase = "CANDIDATE"
	PhasePreview        Phase = "PREVIEW"
	PhaseRelease        Phase = "RELEASE"
)

// ProjectStatus enumerates Project.Status.
type ProjectStatus string

const (
	ProjectActive  ProjectStatus = "ACTIVE"
	ProjectRetired ProjectStatus = "RETIRED"
)

// TaskStatus enumerates Task.Status.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "QUEUED"
	TaskActive    TaskStatus = "ACTIVE"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
)

// CheckStatus enumerates CheckResult.Status: the tagged sum of Design Notes
// "Polymorphic check results", mirrored here as a status column.
type CheckStatus string

const (
	CheckSuccess   CheckStatus = "SUCCESS"
	CheckWarning   CheckStatus = "WARNING"
	CheckFailure   CheckStatus = "FAILURE"
	CheckException CheckStatus = "EXCEPTION"
)

// LicenseCheckMode enumerates ReleasePolicy.LicenseCheckMode.
type LicenseCheckMode string

const (
	LicenseLightweight LicenseCheckMode = "LIGHTWEIGHT"
	LicenseRAT         LicenseCheckMode = "RAT"
	LicenseOff         LicenseCheckMode = "OFF"
)

// StringSet is a Postgres text[]-backed set of user identifiers, used for
// Committee membership sets.
type StringSet []string

// Committee is a governance body. Never deleted by the core; mirrored
// periodically from an external directory.
type Committee struct {
	Name             string `gorm:"primaryKey"`
	DisplayName      string
	Podling          bool
	Members          StringSet `gorm:"type:text[]"`
	Committers       StringSet `gorm:"type:text[]"`
	ReleaseManagers  StringSet `gorm:"type:text[]"`
	ParentCommittee  *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Committee) TableName() string { return "committees" }

// HasMember reports whether uid is in the member set.
func (c *Committee) HasMember(uid string) bool { return contains(c.Members, uid) }

// HasCommitter reports whether uid is in the committer set.
func (c *Committee) HasCommitter(uid string) bool { return contains(c.Committers, uid) }

// IsParticipant reports membership in either the committer or member set,
// per §4.G "as_committee_participant".
func (c *Committee) IsParticipant(uid string) bool {
	return c.HasMember(uid) || c.HasCommitter(uid)
}

func contains(set StringSet, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Project is a named release line under a committee.
type Project struct {
	Name           string `gorm:"primaryKey"`
	CommitteeName  string `gorm:"index;not null"`
	DisplayName    string
	Status         ProjectStatus
	SuperProject   *string
	Categories     StringSet `gorm:"type:text[]"`
	Languages      StringSet `gorm:"type:text[]"`
	ReleasePolicy  *ReleasePolicy
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Project) TableName() string { return "projects" }

// ReleasePolicy is per-project configuration for checks, voting, and
// template overrides. One-to-one with Project.
type ReleasePolicy struct {
	ProjectName           string `gorm:"primaryKey"`
	SourceArtifactGlobs   StringSet `gorm:"type:text[]"`
	BinaryArtifactGlobs   StringSet `gorm:"type:text[]"`
	MinVoteDurationHours  int
	LicenseCheckMode      LicenseCheckMode
	Strict                bool
	MailtoList            string
	WorkflowHooks         StringSet `gorm:"type:text[]"`
	VoteTemplateOverride  string
	AnnounceTemplateOverride string
	PreserveDownloadFiles bool
}

func (ReleasePolicy) TableName() string { return "release_policies" }

// Release is one versioned release of a project. A release in RELEASE phase
// is immutable and its revisions are deleted (§3 invariants).
type Release struct {
	ID                         uint   `gorm:"primaryKey;autoIncrement"`
	ProjectName                string `gorm:"uniqueIndex:idx_project_version;not null"`
	Version                    string `gorm:"uniqueIndex:idx_project_version;not null"`
	Name                       string `gorm:"uniqueIndex"` // canonical project-version
	Phase                      Phase  `gorm:"index"`
	CreatedAt                  time.Time
	ReleasedAt                 *time.Time
	VoteStartAt                *time.Time
	VoteEndAt                  *time.Time
	VoteDurationHours          int
	VoteThreadID               string
	VoteManual                 bool
	IsPodling                  bool
	PodlingFirstRoundThreadID  string // §4.H two-round podling chaining
	LatestRevisionNumber       int    // denormalized for the optimistic-concurrency check in §4.D
}

func (Release) TableName() string { return "releases" }

// Revision is one immutable snapshot of a release's content.
type Revision struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ReleaseID   uint   `gorm:"uniqueIndex:idx_release_seq;not null"`
	Seq         int    `gorm:"uniqueIndex:idx_release_seq;not null"`
	Number      string `gorm:"not null"` // zero-padded, e.g. "00005"
	Author      string
	CreatedAt   time.Time
	PhaseAtCreation Phase
	ParentRevisionID *uint
	Description string
}

func (Revision) TableName() string { return "revisions" }

// RevisionCounter tracks the last allocated revision number per release,
// incremented under a write lock (§4.A, §4.C).
type RevisionCounter struct {
	ReleaseID          uint `gorm:"primaryKey"`
	LastAllocatedNumber int
}

func (RevisionCounter) TableName() string { return "revision_counters" }

// Task is one unit of deferred work, claimed atomically by a worker (§4.E).
type Task struct {
	ID             uint `gorm:"primaryKey;autoIncrement"`
	Type           string `gorm:"index;not null"`
	Args           []byte `gorm:"type:jsonb"`
	Status         TaskStatus `gorm:"index;not null"`
	OwningUser     string
	WorkerPID      string
	Added          time.Time `gorm:"index;not null"`
	Started        *time.Time
	Completed      *time.Time
	ScheduledAt    *time.Time `gorm:"index"`
	ProjectName    *string
	Version        *string
	RevisionNumber *string
	PrimaryRelPath *string
	Result         []byte `gorm:"type:jsonb"`
	Error          string
}

func (Task) TableName() string { return "tasks" }

// CheckResult is one finding of a checker on a revision. Append-only.
type CheckResult struct {
	ID             uint `gorm:"primaryKey;autoIncrement"`
	Checker        string `gorm:"index:idx_cache_key;not null"`
	ReleaseID      uint   `gorm:"not null"`
	RevisionID     uint   `gorm:"index;not null"`
	PrimaryRelPath string `gorm:"index:idx_cache_key;not null"`
	MemberRelPath  *string
	Status         CheckStatus `gorm:"not null"`
	Message        string
	Data           []byte `gorm:"type:jsonb"`
	InputHash      string `gorm:"index:idx_cache_key"` // BLAKE3 of the artifact, per §4.F
	CreatedAt      time.Time
}

func (CheckResult) TableName() string { return "check_results" }

// CheckResultIgnore is a committee-scoped glob-pattern ignore rule applied
// at display time only (§4.F).
type CheckResultIgnore struct {
	ID             uint `gorm:"primaryKey;autoIncrement"`
	CommitteeName  string `gorm:"index;not null"`
	ReleaseGlob    string
	CheckerGlob    string
	PathGlob       string
	StatusGlob     string
	MessageGlob    string
	RevisionNumber *string
}

func (CheckResultIgnore) TableName() string { return "check_result_ignores" }

// PublicSigningKey is a committee-associated signing key record.
type PublicSigningKey struct {
	Fingerprint   string `gorm:"primaryKey"`
	OwningUser    string `gorm:"index;not null"`
	CommitteeName *string
	CreatedAt     time.Time
}

func (PublicSigningKey) TableName() string { return "public_signing_keys" }

// SSHKey is a user's SSH public key for ingest authentication.
type SSHKey struct {
	Fingerprint string `gorm:"primaryKey"`
	OwningUser  string `gorm:"index;not null"`
	CreatedAt   time.Time
}

func (SSHKey) TableName() string { return "ssh_keys" }

// WorkflowSSHKey is a project-scoped, time-limited key for CI-triggered
// ingest, bearing an expires unix timestamp.
type WorkflowSSHKey struct {
	Fingerprint string `gorm:"primaryKey"`
	ProjectName string `gorm:"index;not null"`
	Expires     int64
	CreatedAt   time.Time
}

func (WorkflowSSHKey) TableName() string { return "workflow_ssh_keys" }

// PersonalAccessToken is a hashed API bearer credential (§4.G, Domain Stack).
type PersonalAccessToken struct {
	ID         uint `gorm:"primaryKey;autoIncrement"`
	OwningUser string `gorm:"index;not null"`
	Label      string
	HashedSecret string `gorm:"not null"` // bcrypt, never the plaintext token
	CreatedAt  time.Time
	LastUsedAt *time.Time
	Expires    *time.Time
}

func (PersonalAccessToken) TableName() string { return "personal_access_tokens" }

// Distribution records that a release has been published to an external
// platform. The five-tuple (ReleaseID, Platform, OwnerNamespace, Package,
// Version) is the primary key.
type Distribution struct {
	ReleaseID      uint   `gorm:"primaryKey"`
	Platform       string `gorm:"primaryKey"`
	OwnerNamespace string `gorm:"primaryKey"`
	Package        string `gorm:"primaryKey"`
	Version        string `gorm:"primaryKey"`
	Staging        bool
	UploadDate     time.Time
	APIURL         string
	WebURL         string
}

func (Distribution) TableName() string { return "distributions" }

// TextValue is a (namespace, key) -> value configuration store.
type TextValue struct {
	Namespace string `gorm:"primaryKey"`
	Key       string `gorm:"primaryKey"`
	Value     string
}

func (TextValue) TableName() string { return "text_values" }

// AllModels lists every entity for AutoMigrate, in an order that satisfies
// foreign-key dependencies (Committee/Project before Release, etc.).
func AllModels() []any {
	return []any{
		&Committee{},
		&Project{},
		&ReleasePolicy{},
		&Release{},
		&Revision{},
		&RevisionCounter{},
		&Task{},
		&CheckResult{},
		&CheckResultIgnore{},
		&PublicSigningKey{},
		&SSHKey{},
		&WorkflowSSHKey{},
		&PersonalAccessToken{},
		&Distribution{},
		&TextValue{},
	}
}

// Migrate brings the schema up to date at startup with GORM's AutoMigrate,
// the teacher's own migration mechanism (db/postgres.go PGMigrations),
// generalized to the full entity set here. AutoMigrate compares each model
// with the live schema; no schema-version table is kept.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
