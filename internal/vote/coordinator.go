// Package vote implements the Vote Coordinator (component H): vote
// initiation, tabulation from the mailing-list archive, and resolution
// including the two-round podling protocol of §4.H.
//
// coordinator.go is grounded on original_source/atr/storage/writers/vote.py
// and spec.md §4.H; tabulate.go (vote-line parsing) is grounded directly on
// original_source/atr/tabulate.py.
package vote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/apache/atr/internal/atrerr"
	"github.com/apache/atr/internal/metadata"
	"github.com/apache/atr/internal/releasestate"
	"github.com/apache/atr/internal/revision"
	"github.com/apache/atr/internal/taskexecutor"
)

// Coordinator drives vote start/resolve, delegating phase transitions to the
// Release State Machine and preview-revision creation to the Revision
// Manager.
type Coordinator struct {
	store   *metadata.Store
	machine *releasestate.Machine
	revMgr  *revision.Manager
}

func NewCoordinator(store *metadata.Store, machine *releasestate.Machine, revMgr *revision.Manager) *Coordinator {
	return &Coordinator{store: store, machine: machine, revMgr: revMgr}
}

// RenderTemplate substitutes {{.Field}} placeholders in a vote/announce
// template body -- the "template substitution layer" of §4.H -- using
// stdlib text/template, per DESIGN.md (nothing in the retrieved pack does
// outbound email templating; text/template is the idiomatic stdlib choice).
func RenderTemplate(body string, data any) (string, error) {
	t, err := template.New("vote").Parse(body)
	if err != nil {
		return "", fmt.Errorf("vote: parse template: %w", err)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("vote: render template: %w", err)
	}
	return sb.String(), nil
}

// StartInput bundles the Start preconditions and payload of §4.H.
type StartInput struct {
	Project             string
	Version             string
	CommitteeName       string
	EmailTo             string
	PermittedRecipients []string
	DurationHours       int
	ManualVote          bool
	InitiatorID         string
	InitiatorFullname   string
	SubjectTemplate     string
	BodyTemplate        string
	ThreadID            string // known only once the MESSAGE_SEND task has actually posted
}

// HasInFlightChecks is passed through to the state machine's
// PromoteToCandidate precondition.
type HasInFlightChecks func(releaseID uint, revisionNumber int) (bool, error)

// Start implements §4.H "Start": validates email_to is permitted; promotes
// CANDIDATE_DRAFT -> CANDIDATE if not already promoted (optimistic
// concurrency); renders subject/body; enqueues a vote-initiate task.
func (c *Coordinator) Start(ctx context.Context, in StartInput, inFlight HasInFlightChecks) (*metadata.Release, error) {
	permitted := false
	for _, r := range in.PermittedRecipients {
		if r == in.EmailTo {
			permitted = true
			break
		}
	}
	if !permitted {
		return nil, atrerr.AccessDeniedf("email_to %q is not in the permitted-recipients set for committee %q", in.EmailTo, in.CommitteeName)
	}

	subject, err := RenderTemplate(in.SubjectTemplate, in)
	if err != nil {
		return nil, err
	}
	body, err := RenderTemplate(in.BodyTemplate, in)
	if err != nil {
		return nil, err
	}

	var rel *metadata.Release
	err = c.store.WithSession(ctx, func(sess *metadata.Session) error {
		r, err := sess.GetRelease(in.Project, in.Version)
		if err != nil {
			return err
		}

		if r.Phase == metadata.PhaseCandidateDraft {
			latest, err := sess.LatestRevision(r.ID)
			if err != nil {
				return err
			}
			if latest == nil {
				return atrerr.Validationf("release %s-%s has no files present", in.Project, in.Version)
			}
			if err := c.machine.PromoteToCandidate(ctx, in.Project, in.Version, latest.Seq, in.ManualVote, func(releaseID uint, revisionNumber int) (bool, error) {
				if inFlight == nil {
					return false, nil
				}
				return inFlight(releaseID, revisionNumber)
			}); err != nil {
				return err
			}
			// PromoteToCandidate ran in its own transaction via the state
			// machine; refetch the now-CANDIDATE row before continuing.
			r, err = sess.GetRelease(in.Project, in.Version)
			if err != nil {
				return err
			}
		} else if r.Phase != metadata.PhaseCandidate {
			return atrerr.Validationf("release %s-%s is not in a votable phase", in.Project, in.Version)
		}

		if err := sess.StartVote(r.ID, in.DurationHours, in.ThreadID, in.ManualVote); err != nil {
			return err
		}

		args, err := json.Marshal(taskexecutor.VoteInitiateArgs{
			ReleaseName:       r.Name,
			EmailTo:           in.EmailTo,
			VoteDuration:      in.DurationHours,
			InitiatorID:       in.InitiatorID,
			InitiatorFullname: in.InitiatorFullname,
			Subject:           subject,
			Body:              body,
		})
		if err != nil {
			return err
		}
		task := &metadata.Task{
			Type:        string(taskexecutor.TypeVoteInitiate),
			Args:        args,
			OwningUser:  in.InitiatorID,
			ProjectName: &in.Project,
			Version:     &in.Version,
		}
		if err := sess.EnqueueTask(task); err != nil {
			return err
		}

		rel, err = sess.GetRelease(in.Project, in.Version)
		return err
	})
	return rel, err
}

// ResolveInput bundles the Resolve preconditions of §4.H.
type ResolveInput struct {
	Project           string
	Version           string
	Passed            bool
	IsCommitteeMember bool
	ResolverUID       string
	ResolutionSubject string
	ResolutionBody    string
}

// Resolve implements §4.H "Resolve": marks the vote passed or failed. For
// podlings, the first round (PPMC) resolving "passed" automatically starts
// a fresh second round (foundation-level PMC) instead of advancing the
// release phase; only the second round's pass advances CANDIDATE -> PREVIEW
// (with a freshly cloned preview revision) and enqueues the resolution
// reply into the first round's thread.
func (c *Coordinator) Resolve(ctx context.Context, in ResolveInput, secondRound StartInput, inFlight HasInFlightChecks) error {
	if !in.IsCommitteeMember {
		return atrerr.AccessDeniedf("resolver %q is not a committee member", in.ResolverUID)
	}

	var releaseID uint
	var firstRoundThread string
	var isPodling bool
	err := c.store.WithSession(ctx, func(sess *metadata.Session) error {
		rel, err := sess.GetRelease(in.Project, in.Version)
		if err != nil {
			return err
		}
		if rel.Phase != metadata.PhaseCandidate {
			return atrerr.Validationf("release %s-%s has no latest vote task awaiting resolution", in.Project, in.Version)
		}
		releaseID = rel.ID
		isPodling = rel.IsPodling
		firstRoundThread = rel.PodlingFirstRoundThreadID

		if !in.Passed {
			return nil
		}

		if isPodling && firstRoundThread == "" {
			// First (PPMC) round passed: record its thread id and leave the
			// phase at CANDIDATE -- the second round is started below, once
			// this transaction has committed.
			return sess.SetPodlingFirstRoundThreadID(rel.ID, rel.VoteThreadID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !in.Passed {
		if err := c.enqueueResolutionEmail(ctx, in, ""); err != nil {
			return err
		}
		return c.machine.VoteFailed(ctx, releaseID)
	}

	if isPodling && firstRoundThread == "" {
		// The PPMC round just passed (handled above); automatically start
		// the foundation-level round with a fresh vote task, per §4.H.
		_, err := c.Start(ctx, secondRound, inFlight)
		return err
	}

	if err := c.machine.VotePassed(ctx, releaseID); err != nil {
		return err
	}

	// Preview entry creates a hard-linked clone of the candidate revision
	// (§4.H "a new preview revision is created").
	if _, err := c.revMgr.CloneForPreview(ctx, in.Project, in.Version, in.ResolverUID, nil); err != nil {
		return err
	}

	if err := c.enqueueResolutionEmail(ctx, in, ""); err != nil {
		return err
	}
	if isPodling && firstRoundThread != "" {
		// Second-round podling pass also replies into the first round's
		// thread (§4.H "on second-round podling passes, a resolution reply
		// is also enqueued in the first-round thread").
		return c.enqueueResolutionEmail(ctx, in, firstRoundThread)
	}
	return nil
}

func (c *Coordinator) enqueueResolutionEmail(ctx context.Context, in ResolveInput, inReplyTo string) error {
	return c.store.WithSession(ctx, func(sess *metadata.Session) error {
		args, err := json.Marshal(taskexecutor.MessageSendArgs{
			EmailRecipient: "", // resolved by the MessageSender plug-in from the release's mailto list
			Subject:        in.ResolutionSubject,
			Body:           in.ResolutionBody,
			InReplyTo:      inReplyTo,
		})
		if err != nil {
			return err
		}
		task := &metadata.Task{
			Type:        string(taskexecutor.TypeMessageSend),
			Args:        args,
			OwningUser:  in.ResolverUID,
			ProjectName: &in.Project,
			Version:     &in.Version,
		}
		return sess.EnqueueTask(task)
	})
}
