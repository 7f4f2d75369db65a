package vote

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIdentityApacheAddressMapsDirectly(t *testing.T) {
	ok, email, uid := ResolveIdentity("Jane Doe <jane@apache.org>", nil)
	assert.True(t, ok)
	assert.Equal(t, "jane@apache.org", email)
	assert.Equal(t, "jane", uid)
}

func TestResolveIdentityStripsInvalidSuffixAndLowercases(t *testing.T) {
	ok, email, uid := ResolveIdentity("Jane Doe <Jane@Apache.org.invalid>", nil)
	assert.True(t, ok)
	assert.Equal(t, "jane@apache.org", email)
	assert.Equal(t, "jane", uid)
}

func TestResolveIdentityDirectoryLookup(t *testing.T) {
	table := map[string]string{"jane@example.com": "janedoe"}
	ok, email, uid := ResolveIdentity("jane@example.com", table)
	assert.True(t, ok)
	assert.Equal(t, "jane@example.com", email)
	assert.Equal(t, "janedoe", uid)
}

func TestResolveIdentityUnknownEmailHasNoUID(t *testing.T) {
	ok, email, uid := ResolveIdentity("stranger@example.com", nil)
	assert.True(t, ok)
	assert.Equal(t, "stranger@example.com", email)
	assert.Empty(t, uid)
}

func TestClassifyVoter(t *testing.T) {
	members := map[string]struct{}{"alice": {}}
	committers := map[string]struct{}{"bob": {}}
	assert.Equal(t, StatusBinding, ClassifyVoter("alice", members, committers))
	assert.Equal(t, StatusCommitter, ClassifyVoter("bob", members, committers))
	assert.Equal(t, StatusContributor, ClassifyVoter("carol", members, committers))
}

func msg(id, from, subject, body string) Message {
	return Message{MessageID: id, FromRaw: from, Subject: subject, Body: body, EpochUnixSeconds: 1}
}

// TestTabulateSixMessageThread mirrors the spec's end-to-end vote tabulation
// scenario: a 6-message thread with three binding +1s and one binding -1.
func TestTabulateSixMessageThread(t *testing.T) {
	members := map[string]struct{}{"alice": {}, "bob": {}, "carol": {}, "dave": {}}
	committers := map[string]struct{}{}

	messages := []Message{
		msg("1", "alice@apache.org", "[VOTE] Release foo 1.0", "+1 looks good"),
		msg("2", "bob@apache.org", "Re: [VOTE] Release foo 1.0", "+1 binding"),
		msg("3", "carol@apache.org", "Re: [VOTE] Release foo 1.0", "-1 found a license issue"),
		msg("4", "dave@apache.org", "Re: [VOTE] Release foo 1.0", "+1"),
		msg("5", "eve@example.com", "Re: [VOTE] Release foo 1.0", "+1 (non-binding)"),
		msg("6", "alice@apache.org", "Re: [VOTE] Release foo 1.0", "Thanks everyone, closing soon."),
	}

	result, err := Tabulate(messages, nil, members, committers)
	require.NoError(t, err)

	summary := Summarize(result.Votes)
	assert.Equal(t, 3, summary.BindingYes)
	assert.Equal(t, 1, summary.BindingNo)
	assert.Equal(t, 1, summary.UnknownYes) // eve@example.com resolves to no ASF uid

	durationRemaining := 2.0
	passed, message := Outcome(summary, &durationRemaining)
	assert.True(t, passed)
	assert.Equal(t, "The vote is still open, but it would pass if closed now.", message)

	closed, closedMessage := Outcome(summary, nil)
	assert.True(t, closed)
	assert.Equal(t, "The vote passed.", closedMessage)
}

func TestTabulateLastVoteWinsOnUpdate(t *testing.T) {
	members := map[string]struct{}{"alice": {}}
	messages := []Message{
		msg("1", "alice@apache.org", "[VOTE] Release foo 1.0", "-1 needs a fix"),
		msg("2", "alice@apache.org", "Re: [VOTE] Release foo 1.0", "+1 fixed, thanks"),
	}
	result, err := Tabulate(messages, nil, members, nil)
	require.NoError(t, err)

	v, ok := result.Votes["alice"]
	require.True(t, ok)
	assert.Equal(t, VoteYes, v.Vote)
	assert.True(t, v.Updated)
}

func TestTabulateStopsAtResultSubject(t *testing.T) {
	members := map[string]struct{}{"alice": {}, "bob": {}}
	messages := []Message{
		msg("1", "alice@apache.org", "[VOTE] Release foo 1.0", "+1"),
		msg("2", "nobody@apache.org", "[RESULT] [VOTE] Release foo 1.0", "The vote passes."),
		msg("3", "bob@apache.org", "ignored, thread already closed", "+1"),
	}
	result, err := Tabulate(messages, nil, members, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Votes, "alice")
	assert.NotContains(t, result.Votes, "bob")
}

func TestTabulateDropsAmbiguousCastings(t *testing.T) {
	members := map[string]struct{}{"alice": {}}
	messages := []Message{
		msg("1", "alice@apache.org", "[VOTE] Release foo 1.0", "+1 but also -1 on second thought"),
	}
	result, err := Tabulate(messages, nil, members, nil)
	require.NoError(t, err)
	assert.NotContains(t, result.Votes, "alice")
}

func TestTabulateSkipsTeachingAndQuotedLines(t *testing.T) {
	members := map[string]struct{}{"alice": {}}
	body := strings.Join([]string{
		"> +1 from someone else's quoted message",
		"[ ] +1 release this package",
		"+1 real vote",
	}, "\n")
	messages := []Message{msg("1", "alice@apache.org", "[VOTE] Release foo 1.0", body)}

	result, err := Tabulate(messages, nil, members, nil)
	require.NoError(t, err)
	assert.Equal(t, VoteYes, result.Votes["alice"].Vote)
}

func TestTabulateStopsAtSignatureBlock(t *testing.T) {
	members := map[string]struct{}{"alice": {}}
	body := "+1 looks good\n-- \n-1 this is in my sig block, not a vote"
	messages := []Message{msg("1", "alice@apache.org", "[VOTE] Release foo 1.0", body)}

	result, err := Tabulate(messages, nil, members, nil)
	require.NoError(t, err)
	assert.Equal(t, VoteYes, result.Votes["alice"].Vote)
}

func TestTabulateUnresolvableIdentityIsSkipped(t *testing.T) {
	messages := []Message{msg("1", "", "[VOTE] Release foo 1.0", "+1")}
	result, err := Tabulate(messages, nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Votes)
}

func TestOutcomeFailingStillOpen(t *testing.T) {
	s := Summary{BindingYes: 2, BindingNo: 1}
	remaining := 5.0
	passed, message := Outcome(s, &remaining)
	assert.False(t, passed)
	assert.Equal(t, "The vote is still open, but it would fail if closed now.", message)
}

func TestOutcomeFailingClosed(t *testing.T) {
	s := Summary{BindingYes: 2, BindingNo: 1}
	passed, message := Outcome(s, nil)
	assert.False(t, passed)
	assert.Equal(t, "The vote failed.", message)
}

func TestOutcomeRequiresBindingYesStrictlyGreaterThanBindingNo(t *testing.T) {
	s := Summary{BindingYes: 3, BindingNo: 3}
	passed, _ := Outcome(s, nil)
	assert.False(t, passed)
}

func TestOutcomeRequiresAtLeastThreeBindingYes(t *testing.T) {
	s := Summary{BindingYes: 2, BindingNo: 0}
	passed, _ := Outcome(s, nil)
	assert.False(t, passed)
}

func TestRenderTemplateSubstitutesFields(t *testing.T) {
	out, err := RenderTemplate("Vote on {{.Project}} {{.Version}} ends in {{.DurationHours}}h", StartInput{
		Project: "foo", Version: "1.0", DurationHours: 72,
	})
	require.NoError(t, err)
	assert.Equal(t, "Vote on foo 1.0 ends in 72h", out)
}

func TestRenderTemplateInvalidSyntax(t *testing.T) {
	_, err := RenderTemplate("{{.Unterminated", StartInput{})
	assert.Error(t, err)
}
