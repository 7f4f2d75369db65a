// Package taskexecutor implements the Task Executor (component E): a
// durable queue backed by the Task entity, with a worker pool that claims,
// executes, and records outcomes.
//
// Grounded directly on the teacher's worker/pool.go: its Worker type and the
// claim-loop-with-short-sleep idiom (processNext) are kept; its
// Queue/JobProcessor interfaces and Pool type are not. The durable claim is
// backed by
// metadata.Session.ClaimNextTask (Postgres) instead of the teacher's Redis
// queue -- see DESIGN.md.
package taskexecutor

// Type is a task type tag (§6 "Task argument schemas").
type Type string

const (
	TypeHashingCheck       Type = "HASHING_CHECK"
	TypeLicenseFiles       Type = "LICENSE_FILES"
	TypeLicenseHeaders     Type = "LICENSE_HEADERS"
	TypePathsCheck         Type = "PATHS_CHECK"
	TypeRATCheck           Type = "RAT_CHECK"
	TypeSignatureCheck     Type = "SIGNATURE_CHECK"
	TypeTarGzIntegrity     Type = "TARGZ_INTEGRITY"
	TypeTarGzStructure     Type = "TARGZ_STRUCTURE"
	TypeZipFormatIntegrity Type = "ZIPFORMAT_INTEGRITY"
	TypeZipFormatStructure Type = "ZIPFORMAT_STRUCTURE"
	TypeSBOMGenerateCycloneDX Type = "SBOM_GENERATE_CYCLONEDX"
	TypeSBOMOSVScan        Type = "SBOM_OSV_SCAN"
	TypeSBOMToolScore      Type = "SBOM_TOOL_SCORE"
	TypeSBOMAugment        Type = "SBOM_AUGMENT"
	TypeSBOMQSScore        Type = "SBOM_QS_SCORE"
	TypeVoteInitiate       Type = "VOTE_INITIATE"
	TypeMessageSend        Type = "MESSAGE_SEND"
	TypeSVNImportFiles     Type = "SVN_IMPORT_FILES"
	TypeMetadataUpdate     Type = "METADATA_UPDATE"
	TypeDistributionWorkflow Type = "DISTRIBUTION_WORKFLOW"
	TypeKeysImportFile     Type = "KEYS_IMPORT_FILE"
	TypeStagingSweep       Type = "STAGING_SWEEP" // supplemented recurring task, see DESIGN.md Open Question #4
)

// VoteInitiateArgs is the typed payload for TypeVoteInitiate (§6).
type VoteInitiateArgs struct {
	ReleaseName      string `json:"release_name"`
	EmailTo          string `json:"email_to"`
	VoteDuration     int    `json:"vote_duration"`
	InitiatorID      string `json:"initiator_id"`
	InitiatorFullname string `json:"initiator_fullname"`
	Subject          string `json:"subject"`
	Body             string `json:"body"`
}

// MessageSendArgs is the typed payload for TypeMessageSend (§6).
type MessageSendArgs struct {
	EmailSender    string `json:"email_sender"`
	EmailRecipient string `json:"email_recipient"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	InReplyTo      string `json:"in_reply_to,omitempty"`
}

// SVNImportFilesArgs is the typed payload for TypeSVNImportFiles (§6).
type SVNImportFilesArgs struct {
	SVNURL            string `json:"svn_url"`
	Revision          string `json:"revision"`
	TargetSubdirectory string `json:"target_subdirectory,omitempty"`
	ProjectName       string `json:"project_name"`
	VersionName       string `json:"version_name"`
	ASFUID            string `json:"asf_uid"`
}

// MetadataUpdateArgs is the typed payload for TypeMetadataUpdate (§6).
type MetadataUpdateArgs struct {
	ASFUID             string `json:"asf_uid"`
	NextScheduleSeconds int   `json:"next_schedule_seconds"`
}

// DistributionWorkflowArgs is the typed payload for TypeDistributionWorkflow (§6).
type DistributionWorkflowArgs struct {
	Name          string         `json:"name"`
	Namespace     string         `json:"namespace"`
	Package       string         `json:"package"`
	Version       string         `json:"version"`
	Staging       bool           `json:"staging"`
	Platform      string         `json:"platform"`
	ProjectName   string         `json:"project_name"`
	VersionName   string         `json:"version_name"`
	ASFUID        string         `json:"asf_uid"`
	CommitteeName string         `json:"committee_name"`
	Arguments     map[string]any `json:"arguments,omitempty"`
}

// KeysImportFileArgs is the typed payload for TypeKeysImportFile (§6).
type KeysImportFileArgs struct {
	ASFUID      string `json:"asf_uid"`
	ProjectName string `json:"project_name"`
	VersionName string `json:"version_name"`
}
