// Package vote implements the Vote Coordinator (component H): vote
// initiation, tabulation from a mailing-list archive, and resolution,
// including two-round podling voting.
//
// tabulate.go is grounded directly on original_source/atr/tabulate.py: the
// word-boundary +1/-1/0 parsing, quote/signature truncation, teaching-line
// skip, and last-vote-wins collapsing are kept line-for-line in behavior,
// reimplemented as idiomatic Go rather than translated.
package vote

import (
	"strings"
)

// Vote is a single voter's final casting.
type Vote int

const (
	VoteUnknown Vote = iota
	VoteYes
	VoteNo
	VoteAbstain
)

// VoterStatus classifies a voter's standing relative to the committee.
type VoterStatus int

const (
	StatusUnknown VoterStatus = iota
	StatusBinding
	StatusCommitter
	StatusContributor
)

// VoteEmail is one tabulated voter's final state in the thread.
type VoteEmail struct {
	ASFUIDOrEmail string
	FromEmail     string
	Status        VoterStatus
	MessageID     string
	ISODatetime   string
	Vote          Vote
	Quotation     string
	Updated       bool // true if the voter had cast a vote earlier in the thread
}

// ResolveIdentity strips the mailing-list ".invalid" suffix and resolves an
// ASF uid: @apache.org addresses map directly, otherwise a directory
// email-to-uid table is consulted. Mirrors original's _vote_identity.
func ResolveIdentity(fromRaw string, emailToUID map[string]string) (ok bool, fromEmailLower string, asfUID string) {
	email := extractEmail(fromRaw)
	if email == "" {
		return false, "", ""
	}
	email = strings.TrimSuffix(email, ".invalid")
	email = strings.ToLower(email)
	if strings.HasSuffix(email, "@apache.org") {
		uid := strings.SplitN(email, "@", 2)[0]
		return true, email, uid
	}
	if uid, found := emailToUID[email]; found {
		return true, email, uid
	}
	return true, email, ""
}

// extractEmail pulls the bare address out of a "Display Name <addr>" form,
// or returns the raw string if it already looks like a bare address.
func extractEmail(fromRaw string) string {
	if i := strings.LastIndex(fromRaw, "<"); i >= 0 {
		if j := strings.Index(fromRaw[i:], ">"); j >= 0 {
			return strings.TrimSpace(fromRaw[i+1 : i+j])
		}
	}
	return strings.TrimSpace(fromRaw)
}

// voteBreak reports whether line starts a quotation or signature block,
// at which point casting parsing for the message stops. Mirrors
// original's _vote_break.
func voteBreak(line string) bool {
	if line == "-- " {
		return true
	}
	if strings.HasPrefix(line, "On ") && len(line) > 7 && line[6:8] == ", " {
		return true
	}
	if strings.HasPrefix(line, "From: ") {
		return true
	}
	if strings.HasPrefix(line, "________") {
		return true
	}
	return false
}

// explanationIndicators are substrings that mark a line as vote-instruction
// boilerplate rather than an actual casting ("[ ] +1", "binding +1 votes").
var explanationIndicators = []string{
	"[ ] +1",
	"[ ] -1",
	"binding +1 votes",
	"binding -1 votes",
}

// voteContinue reports whether line should be skipped entirely (teaching
// indicators, or a quoted '>' line). Mirrors original's _vote_continue.
func voteContinue(line string) bool {
	for _, ind := range explanationIndicators {
		if strings.Contains(line, ind) {
			return true
		}
	}
	return strings.HasPrefix(line, ">")
}

// casting pairs a parsed vote with the literal line it came from, used to
// build the quotation field when castings are ambiguous.
type casting struct {
	vote Vote
	line string
}

// voteCastings scans a message body line by line, recognizing +1/-1/0 (with
// word-boundary care) and -0/+0 forms, stopping at quotation or signature
// markers and skipping teaching lines. Mirrors original's _vote_castings.
func voteCastings(body string) []casting {
	var out []casting
	for _, line := range strings.Split(body, "\n") {
		if voteContinue(line) {
			continue
		}
		if voteBreak(line) {
			break
		}

		plusOne := strings.HasPrefix(line, "+1") || strings.Contains(line, " +1")
		minusOne := strings.HasPrefix(line, "-1") || strings.Contains(line, " -1")
		zero := line == "0" || line == "-0" || line == "+0" ||
			strings.HasPrefix(line, "0 ") || strings.HasPrefix(line, "+0 ") || strings.HasPrefix(line, "-0 ")

		if (plusOne && minusOne) || (plusOne && zero) || (minusOne && zero) {
			// Ambiguous casting; dropped per §4.H.
			continue
		}
		switch {
		case plusOne:
			out = append(out, casting{vote: VoteYes, line: line})
		case minusOne:
			out = append(out, casting{vote: VoteNo, line: line})
		case zero:
			out = append(out, casting{vote: VoteAbstain, line: line})
		}
	}
	return out
}

// Message is the minimal shape tabulate needs from a mailing-list message,
// decoupled from the MailArchiveReader plug-in's own message representation.
type Message struct {
	MessageID string
	FromRaw   string
	ListRaw   string
	Subject   string
	Body      string
	ISODatetime string
	EpochUnixSeconds int64
}

// ClassifyVoter classifies voter standing for a resolved ASF uid against
// committee membership sets.
func ClassifyVoter(asfUID string, committeeMembers, committeeCommitters map[string]struct{}) VoterStatus {
	if _, ok := committeeMembers[asfUID]; ok {
		return StatusBinding
	}
	if _, ok := committeeCommitters[asfUID]; ok {
		return StatusCommitter
	}
	return StatusContributor
}

// TabulateResult is the full output of tabulating a vote thread.
type TabulateResult struct {
	StartUnixSeconds int64
	Votes            map[string]VoteEmail // keyed by ASF uid or email
}

// maxThreadMessages is the enumeration cap of §4.H "Tabulate": "enumerates
// messages up to a cap of 10,000".
const maxThreadMessages = 10000

// Tabulate walks a mailing-list thread and produces the final per-voter
// state, applying identity resolution, classification, casting parsing, and
// last-vote-wins collapsing. Mirrors original's votes().
func Tabulate(messages []Message, emailToUID map[string]string, committeeMembers, committeeCommitters map[string]struct{}) (TabulateResult, error) {
	result := TabulateResult{Votes: make(map[string]VoteEmail)}

	count := 0
	for _, msg := range messages {
		count++
		if count > maxThreadMessages {
			return result, errThreadTooLong
		}

		ok, fromEmail, asfUID := ResolveIdentity(msg.FromRaw, emailToUID)
		if !ok {
			continue
		}

		var key string
		var status VoterStatus
		if asfUID != "" {
			key = asfUID
			status = ClassifyVoter(asfUID, committeeMembers, committeeCommitters)
		} else {
			key = fromEmail
			status = StatusUnknown
		}

		if result.StartUnixSeconds == 0 && msg.EpochUnixSeconds != 0 {
			result.StartUnixSeconds = msg.EpochUnixSeconds
		}

		if strings.Contains(msg.Subject, "[RESULT]") {
			break
		}

		if msg.Body == "" {
			continue
		}

		castings := voteCastings(msg.Body)
		if len(castings) == 0 {
			continue
		}

		var voteCast Vote
		if len(castings) == 1 {
			voteCast = castings[0].vote
		} else {
			voteCast = VoteUnknown
		}

		quotes := make([]string, len(castings))
		for i, c := range castings {
			quotes[i] = c.line
		}

		_, alreadyVoted := result.Votes[key]
		result.Votes[key] = VoteEmail{
			ASFUIDOrEmail: key,
			FromEmail:     fromEmail,
			Status:        status,
			MessageID:     msg.MessageID,
			ISODatetime:   msg.ISODatetime,
			Vote:          voteCast,
			Quotation:     strings.Join(quotes, " // "),
			Updated:       alreadyVoted,
		}
	}

	return result, nil
}

var errThreadTooLong = &tabulateError{"thread exceeds maximum of 10000 messages"}

type tabulateError struct{ msg string }

func (e *tabulateError) Error() string { return e.msg }

// Summary is the binding/committer/contributor/unknown x yes/no/abstain
// count table of §4.H "Tabulate".
type Summary struct {
	BindingYes, BindingNo, BindingAbstain             int
	CommitterYes, CommitterNo, CommitterAbstain       int
	ContributorYes, ContributorNo, ContributorAbstain int
	UnknownYes, UnknownNo, UnknownAbstain             int
}

func Summarize(votes map[string]VoteEmail) Summary {
	var s Summary
	for _, v := range votes {
		switch v.Status {
		case StatusBinding:
			addCounts(&s.BindingYes, &s.BindingNo, &s.BindingAbstain, v.Vote)
		case StatusCommitter:
			addCounts(&s.CommitterYes, &s.CommitterNo, &s.CommitterAbstain, v.Vote)
		case StatusContributor:
			addCounts(&s.ContributorYes, &s.ContributorNo, &s.ContributorAbstain, v.Vote)
		default:
			addCounts(&s.UnknownYes, &s.UnknownNo, &s.UnknownAbstain, v.Vote)
		}
	}
	return s
}

func addCounts(yes, no, abstain *int, v Vote) {
	switch v {
	case VoteYes:
		*yes++
	case VoteNo:
		*no++
	case VoteAbstain:
		*abstain++
	}
}

// Outcome reports whether the vote passes the three-binding-yes rule of
// §4.H ("passes iff binding_yes >= 3 AND binding_yes > binding_no") and a
// human-readable message, annotated "would pass/fail if closed now" when
// the minimum duration has not yet elapsed. Mirrors original's
// _vote_outcome_format.
func Outcome(s Summary, durationHoursRemaining *float64) (passed bool, message string) {
	passed = s.BindingYes >= 3 && s.BindingYes > s.BindingNo
	stillOpen := durationHoursRemaining != nil && *durationHoursRemaining > 0

	if !passed {
		switch {
		case stillOpen:
			return false, "The vote is still open, but it would fail if closed now."
		default:
			return false, "The vote failed."
		}
	}
	if stillOpen {
		return true, "The vote is still open, but it would pass if closed now."
	}
	return true, "The vote passed."
}
